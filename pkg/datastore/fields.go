package datastore

import (
	"reflect"

	"github.com/fieldops/regsync/internal/env"
)

// RegistrationFields maps logical registration attributes to column names.
// Every column can be renamed with REGISTRATION_FIELD_<env tag>.
type RegistrationFields struct {
	AgentID              string `env:"AGENT_ID"`
	LocalID              string `env:"LOCAL_ID"`
	FirstName            string `env:"FIRST_NAME"`
	LastName             string `env:"LAST_NAME"`
	IDNumber             string `env:"ID_NUMBER"`
	PrimaryPhone         string `env:"PRIMARY_PHONE"`
	AlternatePhone       string `env:"ALTERNATE_PHONE"`
	Email                string `env:"EMAIL"`
	PackageCode          string `env:"PACKAGE_CODE"`
	InstallationTown     string `env:"INSTALLATION_TOWN"`
	InstallationLocation string `env:"INSTALLATION_LOCATION"`
	VisitDate            string `env:"VISIT_DATE"`
	VisitTime            string `env:"VISIT_TIME"`
	Status               string `env:"STATUS"`
	FormsResponseID      string `env:"FORMS_RESPONSE_ID"`
	FormsSubmittedAt     string `env:"FORMS_SUBMITTED_AT"`
	CreatedAt            string `env:"CREATED_AT"`
}

// DefaultRegistrationFields mirrors the postgres schema.
func DefaultRegistrationFields() RegistrationFields {
	return RegistrationFields{
		AgentID:              "agent_id",
		LocalID:              "local_id",
		FirstName:            "first_name",
		LastName:             "last_name",
		IDNumber:             "id_number",
		PrimaryPhone:         "primary_phone",
		AlternatePhone:       "alternate_phone",
		Email:                "email",
		PackageCode:          "package_code",
		InstallationTown:     "installation_town",
		InstallationLocation: "installation_location",
		VisitDate:            "visit_date",
		VisitTime:            "visit_time",
		Status:               "status",
		FormsResponseID:      "forms_response_id",
		FormsSubmittedAt:     "forms_submitted_at",
		CreatedAt:            "created_at",
	}
}

// AgentFields maps agent profile attributes. Mobile is the preferred contact
// column, Phone the fallback.
type AgentFields struct {
	Name   string `env:"NAME"`
	Mobile string `env:"MOBILE"`
	Phone  string `env:"PHONE"`
}

// DefaultAgentFields mirrors the postgres schema.
func DefaultAgentFields() AgentFields {
	return AgentFields{Name: "full_name", Mobile: "mobile_number", Phone: "phone"}
}

// NotificationFields maps agent notification attributes.
type NotificationFields struct {
	AgentID   string `env:"AGENT_ID"`
	Kind      string `env:"KIND"`
	Title     string `env:"TITLE"`
	Message   string `env:"MESSAGE"`
	Data      string `env:"DATA"`
	Read      string `env:"READ"`
	CreatedAt string `env:"CREATED_AT"`
}

// DefaultNotificationFields mirrors the postgres schema.
func DefaultNotificationFields() NotificationFields {
	return NotificationFields{
		AgentID:   "agent_id",
		Kind:      "kind",
		Title:     "title",
		Message:   "message",
		Data:      "data",
		Read:      "is_read",
		CreatedAt: "created_at",
	}
}

// RegistrationFieldsFromEnv applies REGISTRATION_FIELD_* overrides.
func RegistrationFieldsFromEnv() RegistrationFields {
	fields := DefaultRegistrationFields()
	applyEnvOverrides(&fields, "REGISTRATION_FIELD_")
	return fields
}

// AgentFieldsFromEnv applies AGENT_FIELD_* overrides.
func AgentFieldsFromEnv() AgentFields {
	fields := DefaultAgentFields()
	applyEnvOverrides(&fields, "AGENT_FIELD_")
	return fields
}

// NotificationFieldsFromEnv applies NOTIFICATION_FIELD_* overrides.
func NotificationFieldsFromEnv() NotificationFields {
	fields := DefaultNotificationFields()
	applyEnvOverrides(&fields, "NOTIFICATION_FIELD_")
	return fields
}

func applyEnvOverrides(schema any, prefix string) {
	val := reflect.ValueOf(schema).Elem()
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		tag := typ.Field(i).Tag.Get("env")
		if field.Kind() != reflect.String || tag == "" {
			continue
		}
		if override := env.String(prefix+tag, ""); override != "" {
			field.SetString(override)
		}
	}
}
