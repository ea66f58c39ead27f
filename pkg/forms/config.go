package forms

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/fieldops/regsync/internal/env"
)

// DefaultTimeout bounds one submission round trip.
const DefaultTimeout = 30 * time.Second

// EntryKeys names the form inputs each value is posted under. Date and time
// keys are bases: the payload appends _year/_month/_day and _hour/_minute.
// Each key can be overridden with FORMS_ENTRY_<env tag>.
type EntryKeys struct {
	FirstName      string `env:"FIRST_NAME"`
	LastName       string `env:"LAST_NAME"`
	IDNumber       string `env:"ID_NUMBER"`
	PrimaryPhone   string `env:"PRIMARY_PHONE"`
	AlternatePhone string `env:"ALTERNATE_PHONE"`
	Email          string `env:"EMAIL"`
	Package        string `env:"PACKAGE"`
	Town           string `env:"TOWN"`
	Location       string `env:"LOCATION"`
	VisitDate      string `env:"VISIT_DATE"`
	VisitTime      string `env:"VISIT_TIME"`
	AgentName      string `env:"AGENT_NAME"`
	AgentMobile    string `env:"AGENT_MOBILE"`
}

// DefaultEntryKeys returns placeholder entry ids matching the reference form.
func DefaultEntryKeys() EntryKeys {
	return EntryKeys{
		FirstName:      "entry.1000001",
		LastName:       "entry.1000002",
		IDNumber:       "entry.1000003",
		PrimaryPhone:   "entry.1000004",
		AlternatePhone: "entry.1000005",
		Email:          "entry.1000006",
		Package:        "entry.1000007",
		Town:           "entry.1000008",
		Location:       "entry.1000009",
		VisitDate:      "entry.1000010",
		VisitTime:      "entry.1000011",
		AgentName:      "entry.1000012",
		AgentMobile:    "entry.1000013",
	}
}

// Config configures an Adapter.
type Config struct {
	Endpoint     string
	Timeout      time.Duration
	CountryCode  string
	PackageNames map[string]string
	Entries      EntryKeys
	HTTPClient   *http.Client
}

// ConfigFromEnv reads FORMS_* variables.
func ConfigFromEnv() Config {
	entries := DefaultEntryKeys()
	val := reflect.ValueOf(&entries).Elem()
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		if override := env.String("FORMS_ENTRY_"+typ.Field(i).Tag.Get("env"), ""); override != "" {
			val.Field(i).SetString(override)
		}
	}
	return Config{
		Endpoint:     env.String(env.FormsEndpoint, ""),
		Timeout:      env.Duration(env.FormsTimeout, DefaultTimeout),
		CountryCode:  env.String(env.FormsCountryCode, "254"),
		PackageNames: PackageNamesFromEnv(),
		Entries:      entries,
	}
}

// DefaultPackageNames maps the package codes sold by field agents to the
// labels the form expects.
func DefaultPackageNames() map[string]string {
	return map[string]string{
		"home-10":      "Home 10 Mbps",
		"home-15":      "Home 15 Mbps",
		"home-30":      "Home 30 Mbps",
		"home-50":      "Home 50 Mbps",
		"business-50":  "Business 50 Mbps",
		"business-100": "Business 100 Mbps",
	}
}

// PackageNamesFromEnv layers FORMS_PACKAGE_NAMES over the defaults.
func PackageNamesFromEnv() map[string]string {
	names := DefaultPackageNames()
	for code, name := range ParsePackageNames(env.String(env.FormsPackages, "")) {
		names[code] = name
	}
	return names
}

func packageKey(code string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(code)), "_", "-")
}

// ParsePackageNames parses "code=Name;code=Name".
func ParsePackageNames(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		code, name, ok := strings.Cut(pair, "=")
		code, name = strings.TrimSpace(code), strings.TrimSpace(name)
		if !ok || code == "" || name == "" {
			continue
		}
		out[packageKey(code)] = name
	}
	return out
}
