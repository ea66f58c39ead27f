package forms

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fieldops/regsync/pkg/registration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCustomer() registration.CustomerData {
	return registration.CustomerData{
		FirstName:        "Jane",
		LastName:         "Doe",
		PrimaryPhone:     "0712 345 678",
		PackageCode:      "home-10",
		InstallationTown: "  nairobi   west town ",
		VisitDate:        "07/03/2025",
		VisitTime:        "2:30 PM",
	}
}

func sampleAgent() registration.AgentData {
	return registration.AgentData{Name: "Agent A", Mobile: "+254 700 000 001"}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "0712345678", want: "+254712345678"},
		{raw: "712345678", want: "+254712345678"},
		{raw: "+254712345678", want: "+254712345678"},
		{raw: "254 712 345 678", want: "+254712345678"},
		{raw: "12345", wantErr: true},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.raw, "254")
		if tc.wantErr {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestNormalizeTown(t *testing.T) {
	cases := map[string]string{
		"  nairobi   west town ": "Nairobi West",
		"KISUMU":                 "Kisumu",
		"thika Town":             "Thika",
		"eldoret":                "Eldoret",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeTown(raw), raw)
	}
}

func TestParsePackageNames(t *testing.T) {
	names := ParsePackageNames("home-10=Home 10 Mbps; biz-50 = Business 50;broken;=x")
	assert.Equal(t, map[string]string{"home-10": "Home 10 Mbps", "biz-50": "Business 50"}, names)
	assert.Equal(t, "Home 10 Mbps", PackageName("HOME-10", names))
	assert.Equal(t, "other", PackageName("other", names))
}

func TestBuildPayload(t *testing.T) {
	cfg := Config{CountryCode: "254", PackageNames: map[string]string{"home-10": "Home 10 Mbps"}}
	form, err := BuildPayload(sampleCustomer(), sampleAgent(), cfg)
	require.NoError(t, err)

	keys := DefaultEntryKeys()
	assert.Equal(t, "Jane", form.Get(keys.FirstName))
	assert.Equal(t, "+254712345678", form.Get(keys.PrimaryPhone))
	assert.Equal(t, "Home 10 Mbps", form.Get(keys.Package))
	assert.Equal(t, "Nairobi West", form.Get(keys.Town))
	assert.Equal(t, "2025", form.Get(keys.VisitDate+"_year"))
	assert.Equal(t, "3", form.Get(keys.VisitDate+"_month"))
	assert.Equal(t, "7", form.Get(keys.VisitDate+"_day"))
	assert.Equal(t, "14", form.Get(keys.VisitTime+"_hour"))
	assert.Equal(t, "30", form.Get(keys.VisitTime+"_minute"))
	assert.Equal(t, "+254700000001", form.Get(keys.AgentMobile))
	assert.False(t, form.Has(keys.AlternatePhone))
}

func TestBuildPayloadRejectsBadTime(t *testing.T) {
	customer := sampleCustomer()
	customer.VisitTime = "noon-ish"
	_, err := BuildPayload(customer, sampleAgent(), Config{})
	assert.Error(t, err)
}

func TestSubmitSuccessUsesHeaderID(t *testing.T) {
	var received url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		received, _ = url.ParseQuery(string(body))
		w.Header().Set(ResponseIDHeader, "resp-42")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := NewAdapter(Config{Endpoint: srv.URL}).Submit(context.Background(), sampleCustomer(), sampleAgent())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "resp-42", res.ResponseID)
	assert.Equal(t, "Doe", received.Get(DefaultEntryKeys().LastName))
}

func TestSubmitSuccessFromJSONAndGenerated(t *testing.T) {
	jsonSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"responseId":"json-7"}`)
	}))
	defer jsonSrv.Close()
	res := NewAdapter(Config{Endpoint: jsonSrv.URL}).Submit(context.Background(), sampleCustomer(), sampleAgent())
	require.True(t, res.Success)
	assert.Equal(t, "json-7", res.ResponseID)

	htmlSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>thanks</html>")
	}))
	defer htmlSrv.Close()
	res = NewAdapter(Config{Endpoint: htmlSrv.URL}).Submit(context.Background(), sampleCustomer(), sampleAgent())
	require.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.ResponseID, "fr_"), res.ResponseID)
}

func TestSubmitFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := NewAdapter(Config{Endpoint: srv.URL}).Submit(context.Background(), sampleCustomer(), sampleAgent())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "503")
	assert.EqualValues(t, 1, calls.Load())

	res = NewAdapter(Config{}).Submit(context.Background(), sampleCustomer(), sampleAgent())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not configured")
}

func TestSubmitTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	res := NewAdapter(Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond}).
		Submit(context.Background(), sampleCustomer(), sampleAgent())
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestDefaultPackageNames(t *testing.T) {
	assert.Equal(t, "Home 15 Mbps", PackageName("home_15", nil))
	assert.Equal(t, "Business 100 Mbps", PackageName(" BUSINESS-100 ", nil))
	assert.Equal(t, "custom-7", PackageName("custom-7", nil))

	form, err := BuildPayload(sampleCustomer(), sampleAgent(), Config{})
	require.NoError(t, err)
	assert.Equal(t, "Home 10 Mbps", form.Get(DefaultEntryKeys().Package))
}

func TestPackageNamesFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("FORMS_PACKAGE_NAMES", "home-10=Home Lite 10;promo_5=Promo 5")
	names := PackageNamesFromEnv()
	assert.Equal(t, "Home Lite 10", names["home-10"])
	assert.Equal(t, "Promo 5", names["promo-5"])
	assert.Equal(t, "Business 50 Mbps", names["business-50"])
	assert.Equal(t, "Home 10 Mbps", DefaultPackageNames()["home-10"])
}
