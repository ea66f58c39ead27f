package registration

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
)

var visitDateLayouts = []string{"2006-01-02", "02/01/2006", "2/1/2006", "2006/01/02"}

var visitTimeLayouts = []string{"3:04 PM", "3:04PM", "03:04 PM", "3 PM", "3PM", "15:04", "15:04:05"}

// ParseVisitDate accepts ISO dates and day-first slash dates.
func ParseVisitDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, errors.New("visit date is empty")
	}
	for _, layout := range visitDateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized visit date %q", raw)
}

// ParseVisitTime accepts 12-hour clock times (with AM/PM, any case) and
// 24-hour times, returning hour and minute on the 24-hour clock.
func ParseVisitTime(raw string) (hour, minute int, err error) {
	trimmed := strings.ToUpper(strings.Join(strings.Fields(raw), " "))
	trimmed = strings.ReplaceAll(trimmed, ".", "")
	if trimmed == "" {
		return 0, 0, errors.New("visit time is empty")
	}
	for _, layout := range visitTimeLayouts {
		if t, perr := time.Parse(layout, trimmed); perr == nil {
			return t.Hour(), t.Minute(), nil
		}
	}
	return 0, 0, errors.Errorf("unrecognized visit time %q", raw)
}

// PhoneDigits strips everything but digits.
func PhoneDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validPhone(raw string) bool {
	n := len(PhoneDigits(raw))
	return n >= 9 && n <= 13
}

// Validate checks the payload once at the capture boundary so downstream
// components can assume well-formed input.
func (c CustomerData) Validate() error {
	var missing []string
	require := func(name, val string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, name)
		}
	}
	require("first_name", c.FirstName)
	require("last_name", c.LastName)
	require("primary_phone", c.PrimaryPhone)
	require("package_code", c.PackageCode)
	require("installation_town", c.InstallationTown)
	require("visit_date", c.VisitDate)
	require("visit_time", c.VisitTime)
	if len(missing) > 0 {
		return invalidf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if !validPhone(c.PrimaryPhone) {
		return invalidf("invalid primary phone %q", c.PrimaryPhone)
	}
	if strings.TrimSpace(c.AlternatePhone) != "" && !validPhone(c.AlternatePhone) {
		return invalidf("invalid alternate phone %q", c.AlternatePhone)
	}
	if _, err := ParseVisitDate(c.VisitDate); err != nil {
		return invalidf("%s", err.Error())
	}
	if _, _, err := ParseVisitTime(c.VisitTime); err != nil {
		return invalidf("%s", err.Error())
	}
	return nil
}

// Validate requires the fields forms submission depends on.
func (a AgentData) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return invalidf("agent name is required")
	}
	if !validPhone(a.Mobile) {
		return invalidf("invalid agent mobile %q", a.Mobile)
	}
	return nil
}

// ValidationError reports a malformed registration payload.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return "registration: " + e.msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err, or anything it wraps, is a
// ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
