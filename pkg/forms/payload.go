package forms

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/fieldops/regsync/pkg/registration"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var trailingTown = regexp.MustCompile(`(?i)\s+town$`)

// NormalizePhone renders a local or international number as
// +<country><last 9 digits>.
func NormalizePhone(raw, countryCode string) (string, error) {
	digits := registration.PhoneDigits(raw)
	cc := registration.PhoneDigits(countryCode)
	if cc == "" {
		cc = "254"
	}
	switch {
	case len(digits) < 9:
		return "", errors.Errorf("phone number %q is too short", raw)
	case strings.HasPrefix(digits, cc) && len(digits) == len(cc)+9:
		return "+" + digits, nil
	default:
		return "+" + cc + digits[len(digits)-9:], nil
	}
}

// NormalizeTown trims, collapses whitespace, drops a trailing "town" and
// title-cases the result.
func NormalizeTown(raw string) string {
	town := strings.Join(strings.Fields(raw), " ")
	town = trailingTown.ReplaceAllString(town, "")
	return cases.Title(language.English).String(strings.ToLower(town))
}

// PackageName maps a package code to its display name; nil names selects the
// defaults and unknown codes pass through unchanged.
func PackageName(code string, names map[string]string) string {
	if names == nil {
		names = DefaultPackageNames()
	}
	if name, ok := names[packageKey(code)]; ok {
		return name
	}
	return strings.TrimSpace(code)
}

// BuildPayload renders the form-urlencoded body for one registration.
func BuildPayload(customer registration.CustomerData, agent registration.AgentData, cfg Config) (url.Values, error) {
	keys := cfg.Entries
	if keys == (EntryKeys{}) {
		keys = DefaultEntryKeys()
	}
	primary, err := NormalizePhone(customer.PrimaryPhone, cfg.CountryCode)
	if err != nil {
		return nil, errors.Wrap(err, "primary phone")
	}
	agentMobile, err := NormalizePhone(agent.Mobile, cfg.CountryCode)
	if err != nil {
		return nil, errors.Wrap(err, "agent mobile")
	}
	date, err := registration.ParseVisitDate(customer.VisitDate)
	if err != nil {
		return nil, err
	}
	hour, minute, err := registration.ParseVisitTime(customer.VisitTime)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	set := func(key, value string) {
		if key != "" && strings.TrimSpace(value) != "" {
			form.Set(key, strings.TrimSpace(value))
		}
	}
	set(keys.FirstName, customer.FirstName)
	set(keys.LastName, customer.LastName)
	set(keys.IDNumber, customer.IDNumber)
	set(keys.PrimaryPhone, primary)
	if strings.TrimSpace(customer.AlternatePhone) != "" {
		alternate, err := NormalizePhone(customer.AlternatePhone, cfg.CountryCode)
		if err != nil {
			return nil, errors.Wrap(err, "alternate phone")
		}
		set(keys.AlternatePhone, alternate)
	}
	set(keys.Email, customer.Email)
	set(keys.Package, PackageName(customer.PackageCode, cfg.PackageNames))
	set(keys.Town, NormalizeTown(customer.InstallationTown))
	set(keys.Location, customer.InstallationLocation)
	if keys.VisitDate != "" {
		set(keys.VisitDate+"_year", fmt.Sprintf("%d", date.Year()))
		set(keys.VisitDate+"_month", fmt.Sprintf("%d", int(date.Month())))
		set(keys.VisitDate+"_day", fmt.Sprintf("%d", date.Day()))
	}
	if keys.VisitTime != "" {
		set(keys.VisitTime+"_hour", fmt.Sprintf("%02d", hour))
		set(keys.VisitTime+"_minute", fmt.Sprintf("%02d", minute))
	}
	set(keys.AgentName, agent.Name)
	set(keys.AgentMobile, agentMobile)
	return form, nil
}
