package api

import (
	"net/http"
	"testing"

	"guardian-api/internal/models"
)

const btcTxID = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

func TestManualPaymentFlow(t *testing.T) {
	s := newTestServer(t, nil)

	code, env := s.do(http.MethodPost, "/api/payments", testAPIKey, map[string]string{
		"user_id": "1001", "transaction_id": "PAYPAL-123", "method": "paypal", "amount": "59.99", "tier": "PREMIUM",
	})
	if code != http.StatusCreated {
		t.Fatalf("submit = %d %s", code, env.Message)
	}
	payment := decode[models.PaymentTransaction](t, env.Data)
	if payment.Status != models.TxPending || payment.Period != models.PeriodYearly {
		t.Errorf("payment = %+v", payment)
	}

	if code, _ := s.do(http.MethodPost, "/api/payments", testAPIKey, map[string]string{
		"user_id": "1001", "transaction_id": "PAYPAL-123", "method": "paypal", "amount": "59.99", "tier": "PREMIUM",
	}); code != http.StatusConflict {
		t.Errorf("duplicate submit = %d, want 409", code)
	}

	code, env = s.do(http.MethodPost, "/api/payments/PAYPAL-123/confirm", testAPIKey, nil)
	if code != http.StatusOK {
		t.Fatalf("confirm = %d %s", code, env.Message)
	}
	confirmed := decode[models.PaymentTransaction](t, env.Data)
	if confirmed.Status != models.TxConfirmed || confirmed.LicenseKey == nil {
		t.Errorf("confirmed = %+v", confirmed)
	}

	if code, _ := s.do(http.MethodPost, "/api/payments/PAYPAL-123/confirm", testAPIKey, nil); code != http.StatusConflict {
		t.Errorf("second confirm = %d, want 409", code)
	}
	if code, _ := s.do(http.MethodPost, "/api/payments/PAYPAL-123/fail", testAPIKey, map[string]string{"reason": "late"}); code != http.StatusConflict {
		t.Errorf("fail after confirm = %d, want 409", code)
	}
	if code, _ := s.do(http.MethodPost, "/api/payments/missing/confirm", testAPIKey, nil); code != http.StatusNotFound {
		t.Errorf("confirm missing = %d, want 404", code)
	}

	_, env = s.do(http.MethodGet, "/api/payments?user_id=1001", testAPIKey, nil)
	if list := decode[[]models.PaymentTransaction](t, env.Data); len(list) != 1 {
		t.Errorf("payments = %d, want 1", len(list))
	}
}

func TestPayPalClaimAndFail(t *testing.T) {
	s := newTestServer(t, nil)

	code, env := s.do(http.MethodPost, "/api/payments/paypal", testAPIKey, map[string]string{
		"user_id": "1001", "transaction_id": "PP-1", "plan": "EXCLUSIVE",
	})
	if code != http.StatusCreated {
		t.Fatalf("claim = %d %s", code, env.Message)
	}
	claim := decode[models.PaymentTransaction](t, env.Data)
	if claim.Amount.String() != "99.99" || claim.Tier != models.TierExclusive {
		t.Errorf("claim = %+v", claim)
	}

	code, env = s.do(http.MethodPost, "/api/payments/PP-1/fail", testAPIKey, nil)
	if code != http.StatusOK {
		t.Fatalf("fail = %d %s", code, env.Message)
	}
	if failed := decode[models.PaymentTransaction](t, env.Data); failed.Status != models.TxFailed {
		t.Errorf("failed = %+v", failed)
	}
}

func TestVerifyBitcoinPayment(t *testing.T) {
	body := map[string]string{"user_id": "1001", "tx_id": btcTxID}

	t.Run("not configured", func(t *testing.T) {
		s := newTestServer(t, nil)
		if code, _ := s.do(http.MethodPost, "/api/payments/btc/verify", testAPIKey, body); code != http.StatusServiceUnavailable {
			t.Errorf("code = %d, want 503", code)
		}
	})

	t.Run("issues license", func(t *testing.T) {
		s := newTestServer(t, stubOracle{sats: 92000})
		code, env := s.do(http.MethodPost, "/api/payments/btc/verify", testAPIKey, body)
		if code != http.StatusOK {
			t.Fatalf("code = %d %s", code, env.Message)
		}
		if p := decode[models.PaymentTransaction](t, env.Data); p.Tier != models.TierExclusive || p.Status != models.TxConfirmed {
			t.Errorf("payment = %+v", p)
		}
		if code, _ := s.do(http.MethodPost, "/api/payments/btc/verify", testAPIKey, body); code != http.StatusConflict {
			t.Errorf("reverify = %d, want 409", code)
		}
	})

	t.Run("below every tier", func(t *testing.T) {
		s := newTestServer(t, stubOracle{sats: 2000})
		if code, _ := s.do(http.MethodPost, "/api/payments/btc/verify", testAPIKey, body); code != http.StatusUnprocessableEntity {
			t.Errorf("code = %d, want 422", code)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		s := newTestServer(t, stubOracle{sats: 92000})
		if code, _ := s.do(http.MethodPost, "/api/payments/btc/verify", testAPIKey, map[string]string{"user_id": "1001", "tx_id": "xyz"}); code != http.StatusBadRequest {
			t.Errorf("code = %d, want 400", code)
		}
	})
}

func TestSalesStatsEndpoint(t *testing.T) {
	s := newTestServer(t, stubOracle{sats: 92000})
	s.do(http.MethodPost, "/api/payments/btc/verify", testAPIKey, map[string]string{"user_id": "1001", "tx_id": btcTxID})

	code, env := s.do(http.MethodGet, "/api/stats/sales", testAPIKey, nil)
	if code != http.StatusOK {
		t.Fatalf("stats = %d", code)
	}
	stats := decode[map[string]interface{}](t, env.Data)
	if stats["total_sales"] != float64(1) || stats["total_revenue"] != "$92.00" {
		t.Errorf("stats = %v", stats)
	}
}
