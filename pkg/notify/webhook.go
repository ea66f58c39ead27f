package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fieldops/regsync/internal/env"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	// AuthHeader carries the payload signature.
	AuthHeader = "Agw-Auth"

	signatureExpiration = 1800
)

// WebhookSink posts events as signed JSON.
type WebhookSink struct {
	URL       string
	AccessKey string
	SecretKey string
	Client    *http.Client

	now func() time.Time
}

// NewWebhookSinkFromEnv returns nil when NOTIFY_WEBHOOK_URL is unset.
func NewWebhookSinkFromEnv() *WebhookSink {
	url := env.String(env.NotifyWebhookURL, "")
	if url == "" {
		return nil
	}
	return &WebhookSink{
		URL:       url,
		AccessKey: env.String(env.NotifyWebhookAK, ""),
		SecretKey: env.String(env.NotifyWebhookSK, ""),
	}
}

type webhookPayload struct {
	Kind           string `json:"kind"`
	AgentID        string `json:"agent_id"`
	CustomerName   string `json:"customer_name"`
	RegistrationID string `json:"registration_id,omitempty"`
	QueueID        string `json:"queue_id,omitempty"`
	RetryCount     int    `json:"retry_count"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	Error          string `json:"error"`
	OccurredAt     int64  `json:"occurred_at"`
}

// Notify implements Sink.
func (w *WebhookSink) Notify(ctx context.Context, ev Event) error {
	if w == nil || strings.TrimSpace(w.URL) == "" {
		return errors.New("notify webhook url is empty")
	}
	body, err := json.Marshal(webhookPayload{
		Kind:           string(ev.Kind),
		AgentID:        ev.AgentID,
		CustomerName:   ev.CustomerName,
		RegistrationID: ev.RegistrationID,
		QueueID:        ev.QueueID,
		RetryCount:     ev.RetryCount,
		Title:          ev.Title(),
		Message:        ev.Body(),
		Error:          ev.Message,
		OccurredAt:     ev.OccurredAt.UnixMilli(),
	})
	if err != nil {
		return errors.Wrap(err, "marshal notification payload")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build notification request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token := w.sign(body); token != "" {
		req.Header.Set(AuthHeader, token)
	}

	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: FireTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post notification")
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		log.Error().
			Str("webhook_url", w.URL).
			Int("status_code", resp.StatusCode).
			Str("response_body", string(respBody)).
			Msg("notification webhook failed")
		return fmt.Errorf("notification webhook responded with status %d", resp.StatusCode)
	}
	log.Debug().
		Str("webhook_url", w.URL).
		Str("agent_id", ev.AgentID).
		Msg("notification webhook delivered")
	return nil
}

// sign returns "auth-v2/<ak>/<unix>/<expiration>/<hex signature>", or an
// empty string when credentials are missing.
func (w *WebhookSink) sign(payload []byte) string {
	if w.AccessKey == "" || w.SecretKey == "" {
		return ""
	}
	now := time.Now
	if w.now != nil {
		now = w.now
	}
	keyInfo := fmt.Sprintf("auth-v2/%s/%d/%d", w.AccessKey, now().Unix(), signatureExpiration)
	signKey := hmacHex([]byte(w.SecretKey), []byte(keyInfo))
	return keyInfo + "/" + string(hmacHex(signKey, payload))
}

func hmacHex(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return []byte(fmt.Sprintf("%x", mac.Sum(nil)))
}
