package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment keys understood by regsync. Flags on the CLI override them.
const (
	QueueDBPath = "QUEUE_DB_PATH"

	DatastoreBackend       = "DATASTORE_BACKEND"
	DatabaseURL            = "DATABASE_URL"
	RegistrationBitableURL = "REGISTRATION_BITABLE_URL"
	AgentBitableURL        = "AGENT_BITABLE_URL"
	NotificationBitableURL = "NOTIFICATION_BITABLE_URL"

	ConnectivityTimeout = "CONNECTIVITY_TIMEOUT"

	FormsEndpoint    = "FORMS_ENDPOINT"
	FormsTimeout     = "FORMS_TIMEOUT"
	FormsCountryCode = "FORMS_PHONE_COUNTRY_CODE"
	FormsPackages    = "FORMS_PACKAGE_NAMES"

	NotifyWebhookURL = "NOTIFY_WEBHOOK_URL"
	NotifyWebhookAK  = "NOTIFY_WEBHOOK_AK"
	NotifyWebhookSK  = "NOTIFY_WEBHOOK_SK"

	SyncItemPacing  = "SYNC_ITEM_PACING"
	SyncItemTimeout = "SYNC_ITEM_TIMEOUT"
	SyncStaleAfter  = "SYNC_STALE_AFTER"

	AutoSyncInterval = "AUTOSYNC_INTERVAL"
	AutoSyncRegain   = "AUTOSYNC_REGAIN_INTERVAL"
)

// String returns the trimmed environment variable or fallback when unset.
func String(key, fallback string) string {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Duration parses a time duration from environment or returns fallback.
func Duration(key string, fallback time.Duration) time.Duration {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// Int returns an integer environment variable or fallback when invalid.
func Int(key string, fallback int) int {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Bool parses a boolean environment variable.
func Bool(key string, fallback bool) bool {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes":
			return true
		case "0", "false", "no":
			return false
		}
	}
	return fallback
}
