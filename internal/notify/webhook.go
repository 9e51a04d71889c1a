package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	maxErrorBodySize      = 4096
	// SignatureHeader carries the hex HMAC-SHA256 of the request body.
	SignatureHeader = "X-Teamup-Signature"
)

var (
	// ErrWebhookUnauthorized indicates the notification service rejected our signature.
	ErrWebhookUnauthorized = errors.New("notification webhook unauthorized")
	// ErrWebhookRejected indicates the notification service refused the payload.
	ErrWebhookRejected = errors.New("notification webhook rejected payload")
)

// WebhookEmitter posts signed events to an external notification service.
type WebhookEmitter struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

// NewWebhookEmitter creates an emitter posting to url, signing bodies with secret.
func NewWebhookEmitter(url, secret string, client *http.Client) (*WebhookEmitter, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return nil, errors.New("notification webhook url required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("notification webhook secret required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultWebhookTimeout
	}
	return &WebhookEmitter{
		url:    trimmed,
		secret: []byte(secret),
		client: client,
		now:    time.Now,
	}, nil
}

// Emit sends the event as JSON.
func (e *WebhookEmitter) Emit(ctx context.Context, kind Kind, recipients []string, payload map[string]any) error {
	body, err := json.Marshal(map[string]any{
		"kind":       kind,
		"recipients": recipients,
		"payload":    payload,
		"emitted_at": e.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(e.secret, body))
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return errorForStatus(resp)
	}
	return nil
}

func errorForStatus(resp *http.Response) error {
	buf, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	summary := strings.TrimSpace(string(buf))
	if summary == "" {
		summary = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrWebhookUnauthorized, summary)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrWebhookRejected, summary)
	default:
		return fmt.Errorf("notification webhook failed: %s", summary)
	}
}

// Sign returns the hex HMAC-SHA256 of payload.
func Sign(secret, payload []byte) string {
	hasher := hmac.New(sha256.New, secret)
	hasher.Write(payload)
	return hex.EncodeToString(hasher.Sum(nil))
}

// VerifySignature checks a signature produced by Sign.
func VerifySignature(secret, payload []byte, provided string) error {
	if provided == "" {
		return errors.New("missing webhook signature")
	}
	if !hmac.Equal([]byte(provided), []byte(Sign(secret, payload))) {
		return errors.New("invalid webhook signature")
	}
	return nil
}
