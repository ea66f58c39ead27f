// Package forms submits registrations to the external forms endpoint and
// normalizes the outcome to success plus an opaque response id.
package forms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fieldops/regsync/pkg/registration"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

// ResponseIDHeader carries the endpoint's id for the stored response.
const ResponseIDHeader = "X-Response-Id"

// Result is the normalized outcome of one submission.
type Result struct {
	Success    bool
	ResponseID string
	Error      string
}

// Submitter is the capability the sync routine depends on.
type Submitter interface {
	Submit(ctx context.Context, customer registration.CustomerData, agent registration.AgentData) Result
}

// Adapter posts registrations as form-urlencoded requests.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// NewAdapter applies defaults to cfg.
func NewAdapter(cfg Config) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Entries == (EntryKeys{}) {
		cfg.Entries = DefaultEntryKeys()
	}
	if cfg.PackageNames == nil {
		cfg.PackageNames = DefaultPackageNames()
	}
	if strings.TrimSpace(cfg.CountryCode) == "" {
		cfg.CountryCode = "254"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Adapter{cfg: cfg, client: client}
}

// NewAdapterFromEnv builds an adapter from FORMS_* variables.
func NewAdapterFromEnv() *Adapter {
	return NewAdapter(ConfigFromEnv())
}

// Submit performs exactly one POST. It never panics and reports every
// problem through Result.Error.
func (a *Adapter) Submit(ctx context.Context, customer registration.CustomerData, agent registration.AgentData) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("forms submission panicked")
			res = Result{Success: false, Error: fmt.Sprintf("forms submission panicked: %v", r)}
		}
	}()

	if strings.TrimSpace(a.cfg.Endpoint) == "" {
		return Result{Error: "forms endpoint is not configured"}
	}
	form, err := BuildPayload(customer, agent, a.cfg)
	if err != nil {
		return Result{Error: "build form payload: " + err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{Error: "build forms request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json, text/html;q=0.9")

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{Error: "submit form: " + err.Error()}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Str("endpoint", a.cfg.Endpoint).
			Int("status_code", resp.StatusCode).
			Str("customer", customer.FullName()).
			Msg("forms submission rejected")
		return Result{Error: fmt.Sprintf("forms endpoint responded with status %d", resp.StatusCode)}
	}

	responseID := extractResponseID(resp.Header, body)
	if responseID == "" {
		responseID = "fr_" + ulid.Make().String()
	}
	log.Info().
		Str("endpoint", a.cfg.Endpoint).
		Str("response_id", responseID).
		Str("customer", customer.FullName()).
		Msg("forms submission accepted")
	return Result{Success: true, ResponseID: responseID}
}

func extractResponseID(header http.Header, body []byte) string {
	if id := strings.TrimSpace(header.Get(ResponseIDHeader)); id != "" {
		return id
	}
	var parsed struct {
		ResponseID string `json:"responseId"`
	}
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		return strings.TrimSpace(parsed.ResponseID)
	}
	return ""
}
