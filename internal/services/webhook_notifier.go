package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"guardian-api/internal/metrics"
	"guardian-api/internal/models"
	"guardian-api/pkg/logging"
)

// Notifier is told about licenses issued through the payment workflow
type Notifier interface {
	LicenseIssued(payment *models.PaymentTransaction, license *models.License)
}

// WebhookNotifier posts license events to an external endpoint, e.g. the
// bot process that DMs the buyer
type WebhookNotifier struct {
	url         string
	secret      string
	httpClient  *http.Client
	retryDelays []time.Duration
}

// NewWebhookNotifier creates a new webhook notifier. An empty url disables it.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryDelays: []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// WebhookPayload is the body of a license.issued event
type WebhookPayload struct {
	Event         string      `json:"event"`
	UserID        int64       `json:"user_id,string"`
	TransactionID string      `json:"transaction_id"`
	PaymentMethod string      `json:"payment_method"`
	Product       string      `json:"product"`
	Tier          models.Tier `json:"tier"`
	Period        string      `json:"period"`
	LicenseKey    string      `json:"license_key"`
	Amount        string      `json:"amount"`
	ExpiresAt     string      `json:"expires_at,omitempty"` // RFC 3339, empty when permanent
	Timestamp     string      `json:"timestamp"`
}

// LicenseIssued sends the event in the background
func (wn *WebhookNotifier) LicenseIssued(payment *models.PaymentTransaction, license *models.License) {
	if wn.url == "" {
		return
	}

	payload := WebhookPayload{
		Event:         "license.issued",
		UserID:        license.UserID,
		TransactionID: payment.TransactionID,
		PaymentMethod: payment.PaymentMethod,
		Product:       payment.Product,
		Tier:          license.Tier,
		Period:        string(license.Period),
		LicenseKey:    license.LicenseKey,
		Amount:        payment.Amount.StringFixed(2),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	if license.ExpiresAt != nil {
		payload.ExpiresAt = license.ExpiresAt.UTC().Format(time.RFC3339)
	}

	go wn.sendWithRetry(context.Background(), payload)
}

// sendWithRetry tries once per entry in retryDelays, sleeping between attempts
func (wn *WebhookNotifier) sendWithRetry(ctx context.Context, payload WebhookPayload) bool {
	maxRetries := len(wn.retryDelays)

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := wn.sendWebhook(ctx, payload)
		if err == nil {
			metrics.WebhookDeliveries.WithLabelValues(metrics.OutcomeSuccess).Inc()
			logging.Infof("Webhook notification sent - transaction: %s, attempt: %d",
				payload.TransactionID, attempt+1)
			return true
		}

		logging.Warnf("Webhook notification failed - transaction: %s, attempt: %d, error: %v",
			payload.TransactionID, attempt+1, err)

		if attempt < maxRetries-1 {
			select {
			case <-time.After(wn.retryDelays[attempt]):
			case <-ctx.Done():
				return false
			}
		}
	}

	metrics.WebhookDeliveries.WithLabelValues(metrics.OutcomeError).Inc()
	logging.Errorf("Webhook notification failed after %d attempts - transaction: %s",
		maxRetries, payload.TransactionID)
	return false
}

func (wn *WebhookNotifier) sendWebhook(ctx context.Context, payload WebhookPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Guardian-Webhook/1.0")
	if wn.secret != "" {
		req.Header.Set("X-Guardian-Signature", SignPayload(jsonData, wn.secret))
	}

	resp, err := wn.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret
func SignPayload(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
