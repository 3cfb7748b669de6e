package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWebhookSignedDelivery(t *testing.T) {
	received := make(chan WebhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if got := r.Header.Get("X-Guardian-Signature"); got != SignPayload(body, "s3cret") {
			t.Errorf("signature = %q", got)
		}
		var p WebhookPayload
		json.Unmarshal(body, &p)
		received <- p
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(srv.URL, "s3cret")
	ok := wn.sendWithRetry(context.Background(), WebhookPayload{Event: "license.issued", TransactionID: "tx-9", LicenseKey: "GUARD-AAAA-BBBB-CCCC"})
	if !ok {
		t.Fatal("delivery failed")
	}

	select {
	case p := <-received:
		if p.TransactionID != "tx-9" || p.LicenseKey != "GUARD-AAAA-BBBB-CCCC" {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no webhook received")
	}
}

func TestWebhookRetries(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(srv.URL, "")
	wn.retryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}

	if !wn.sendWithRetry(context.Background(), WebhookPayload{TransactionID: "tx-r"}) {
		t.Fatal("expected success on third attempt")
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWebhookGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wn := NewWebhookNotifier(srv.URL, "")
	wn.retryDelays = []time.Duration{time.Millisecond, time.Millisecond}
	if wn.sendWithRetry(context.Background(), WebhookPayload{TransactionID: "tx-f"}) {
		t.Error("expected failure")
	}
}
