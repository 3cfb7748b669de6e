package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"guardian-api/internal/database"
	"guardian-api/internal/models"

	"github.com/btcsuite/btcutil"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const testTxID = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

type fakeOracle struct {
	payment *BitcoinPayment
	err     error
	calls   int
}

func (f *fakeOracle) LookupPayment(_ context.Context, txID string) (*BitcoinPayment, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := *f.payment
	p.TxID = txID
	return &p, nil
}

type fakePrices struct {
	price decimal.Decimal
	err   error
}

func (f fakePrices) BTCUSD(context.Context) (decimal.Decimal, error) {
	return f.price, f.err
}

type allowAll struct{}

func (allowAll) Allow(context.Context, string, time.Duration) (bool, error) { return true, nil }

type recordingNotifier struct {
	mu     sync.Mutex
	issued []string
}

func (r *recordingNotifier) LicenseIssued(p *models.PaymentTransaction, _ *models.License) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued = append(r.issued, p.TransactionID)
}

func newPaymentService(t *testing.T, oracle BitcoinOracle, prices PriceSource) (*PaymentService, *gorm.DB, *recordingNotifier) {
	t.Helper()
	db := newTestDB(t)
	notifier := &recordingNotifier{}
	svc := NewPaymentService(db, PaymentDeps{
		Keys:         NewKeyService(db),
		Tickets:      NewTicketService(db),
		CustomBots:   NewCustomBotService(db),
		Oracle:       oracle,
		Prices:       prices,
		Limiter:      allowAll{},
		Notifier:     notifier,
		VerifyWindow: time.Minute,
	})
	return svc, db, notifier
}

func submit(t *testing.T, svc *PaymentService, txID string, tier models.Tier, amount string) {
	t.Helper()
	_, err := svc.SubmitTransaction(context.Background(), Submission{
		UserID:        42,
		TransactionID: txID,
		Method:        models.PaymentPayPal,
		Amount:        decimal.RequireFromString(amount),
		Tier:          tier,
		Period:        models.PeriodYearly,
	})
	if err != nil {
		t.Fatalf("SubmitTransaction: %v", err)
	}
}

func countKeys(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.LicenseKey{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func TestSubmitTransactionDuplicate(t *testing.T) {
	svc, _, _ := newPaymentService(t, nil, nil)
	submit(t, svc, "PAYPAL-1", models.TierBasic, "29.99")

	_, err := svc.SubmitTransaction(context.Background(), Submission{
		UserID: 43, TransactionID: "PAYPAL-1", Method: models.PaymentPayPal,
		Amount: decimal.RequireFromString("29.99"), Tier: models.TierBasic, Period: models.PeriodYearly,
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestSubmitTransactionValidation(t *testing.T) {
	svc, _, _ := newPaymentService(t, nil, nil)
	_, err := svc.SubmitTransaction(context.Background(), Submission{
		UserID: 1, TransactionID: "x", Method: "CASH",
		Amount: decimal.NewFromInt(1), Tier: models.TierBasic, Period: models.PeriodYearly,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestConfirmTransactionIssuesLicense(t *testing.T) {
	svc, db, notifier := newPaymentService(t, nil, nil)
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local)
	svc.now, _ = fixedClock(start)
	svc.keys.now = svc.now
	submit(t, svc, "PAYPAL-2", models.TierPremium, "59.99")

	payment, err := svc.ConfirmTransaction(context.Background(), "PAYPAL-2")
	if err != nil {
		t.Fatalf("ConfirmTransaction: %v", err)
	}
	if payment.Status != models.TxConfirmed || payment.LicenseKey == nil || payment.ConfirmedAt == nil {
		t.Fatalf("payment = %+v", payment)
	}

	license, err := database.GetLicenseByUser(db, 42)
	if err != nil {
		t.Fatal(err)
	}
	if license.LicenseKey != *payment.LicenseKey || license.Tier != models.TierPremium {
		t.Errorf("license = %+v", license)
	}
	if license.ExpiresAt == nil || !license.ExpiresAt.Equal(start.AddDate(0, 0, 365)) {
		t.Errorf("expires_at = %v, want one year after confirmation", license.ExpiresAt)
	}
	if license.PaymentReference != "PAYPAL-2" || !license.AmountPaid.Equal(decimal.RequireFromString("59.99")) {
		t.Errorf("payment details not copied: %+v", license)
	}

	key, _ := database.GetLicenseKey(db, *payment.LicenseKey)
	if key.Status != models.KeySold {
		t.Errorf("issued key status = %s", key.Status)
	}
	if len(notifier.issued) != 1 {
		t.Errorf("notifications = %v", notifier.issued)
	}
}

func TestConfirmTransactionExclusiveIsPermanent(t *testing.T) {
	svc, db, _ := newPaymentService(t, nil, nil)
	submit(t, svc, "PAYPAL-3", models.TierExclusive, "99.99")

	if _, err := svc.ConfirmTransaction(context.Background(), "PAYPAL-3"); err != nil {
		t.Fatal(err)
	}
	license, _ := database.GetLicenseByUser(db, 42)
	if license.ExpiresAt != nil {
		t.Errorf("EXCLUSIVE license expires at %v, want permanent", license.ExpiresAt)
	}
}

func TestConfirmTransactionTwice(t *testing.T) {
	svc, db, _ := newPaymentService(t, nil, nil)
	submit(t, svc, "PAYPAL-4", models.TierBasic, "29.99")
	ctx := context.Background()

	first, err := svc.ConfirmTransaction(ctx, "PAYPAL-4")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ConfirmTransaction(ctx, "PAYPAL-4"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second confirm err = %v, want ErrInvalidState", err)
	}
	if n := countKeys(t, db); n != 1 {
		t.Errorf("keys issued = %d, want 1", n)
	}
	again, _ := database.GetTransaction(db, "PAYPAL-4")
	if *again.LicenseKey != *first.LicenseKey {
		t.Error("license key on the transaction changed")
	}
}

func TestConfirmTransactionConcurrent(t *testing.T) {
	svc, db, _ := newPaymentService(t, nil, nil)
	submit(t, svc, "PAYPAL-5", models.TierBasic, "29.99")

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.ConfirmTransaction(context.Background(), "PAYPAL-5")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range results {
		if err == nil {
			ok++
		}
	}
	if ok != 1 {
		t.Errorf("successful confirmations = %d, want 1", ok)
	}
	if n := countKeys(t, db); n != 1 {
		t.Errorf("keys issued = %d, want 1", n)
	}
}

func TestConfirmMissingTransaction(t *testing.T) {
	svc, _, _ := newPaymentService(t, nil, nil)
	if _, err := svc.ConfirmTransaction(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestConfirmFailureLeavesPending(t *testing.T) {
	svc, db, _ := newPaymentService(t, nil, nil)
	submit(t, svc, "PAYPAL-6", models.TierBasic, "29.99")
	svc.keys.newCode = func() (string, error) { return "", errors.New("entropy unavailable") }

	if _, err := svc.ConfirmTransaction(context.Background(), "PAYPAL-6"); err == nil {
		t.Fatal("expected confirmation to fail")
	}
	payment, _ := database.GetTransaction(db, "PAYPAL-6")
	if payment.Status != models.TxPending || payment.LicenseKey != nil {
		t.Errorf("payment = %+v, want untouched PENDING", payment)
	}
	if _, err := database.GetLicenseByUser(db, 42); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("license was created: %v", err)
	}

	// Retrying after the fault clears succeeds
	svc.keys.newCode = randomKeyCode
	if _, err := svc.ConfirmTransaction(context.Background(), "PAYPAL-6"); err != nil {
		t.Errorf("retry failed: %v", err)
	}
}

// failUpdates makes every UPDATE of table fail while *fail is set
func failUpdates(t *testing.T, db *gorm.DB, table string, fail *bool) {
	t.Helper()
	err := db.Callback().Update().Before("gorm:update").Register("test:fail_"+table, func(tx *gorm.DB) {
		if *fail && tx.Statement.Table == table {
			tx.AddError(errors.New("disk I/O error"))
		}
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestConfirmRollsBackIssuedKeyWhenMarkFails(t *testing.T) {
	svc, db, notifier := newPaymentService(t, nil, nil)
	submit(t, svc, "PAYPAL-8", models.TierPremium, "59.99")
	fail := true
	failUpdates(t, db, "payment_transaction", &fail)

	if _, err := svc.ConfirmTransaction(context.Background(), "PAYPAL-8"); err == nil {
		t.Fatal("expected confirmation to fail")
	}
	payment, _ := database.GetTransaction(db, "PAYPAL-8")
	if payment.Status != models.TxPending || payment.LicenseKey != nil {
		t.Errorf("payment = %+v, want untouched PENDING", payment)
	}
	if n := countKeys(t, db); n != 0 {
		t.Errorf("keys left behind = %d, want 0", n)
	}
	if _, err := database.GetLicenseByUser(db, 42); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("license was created: %v", err)
	}
	if len(notifier.issued) != 0 {
		t.Errorf("notified for a rolled back payment: %v", notifier.issued)
	}

	fail = false
	if _, err := svc.ConfirmTransaction(context.Background(), "PAYPAL-8"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if n := countKeys(t, db); n != 1 {
		t.Errorf("keys after retry = %d, want 1", n)
	}
}

func TestConfirmRetriesKeyCodeTakenOnInsert(t *testing.T) {
	svc, db, _ := newPaymentService(t, nil, nil)
	submit(t, svc, "PAYPAL-9", models.TierBasic, "29.99")

	codes := []string{"GUARD-RACE-RACE-RACE", "GUARD-WINS-WINS-WINS"}
	svc.keys.newCode = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	// Another writer takes the first code between the existence check
	// and the insert
	raced := false
	err := db.Callback().Create().Before("gorm:create").Register("test:race_key_code", func(tx *gorm.DB) {
		key, ok := tx.Statement.Dest.(*models.LicenseKey)
		if !ok || raced {
			return
		}
		raced = true
		tx.Session(&gorm.Session{NewDB: true}).Create(&models.LicenseKey{
			Code:     key.Code,
			Tier:     models.TierBasic,
			Period:   models.PeriodMonthly,
			PriceUSD: decimal.Zero,
			Status:   models.KeyAvailable,
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	payment, err := svc.ConfirmTransaction(context.Background(), "PAYPAL-9")
	if err != nil {
		t.Fatalf("ConfirmTransaction: %v", err)
	}
	if !raced {
		t.Fatal("insert race was not triggered")
	}
	if payment.LicenseKey == nil || *payment.LicenseKey != "GUARD-WINS-WINS-WINS" {
		t.Errorf("license key = %v, want the retried code", payment.LicenseKey)
	}
	key, err := database.GetLicenseKey(db, "GUARD-WINS-WINS-WINS")
	if err != nil || key.Status != models.KeySold {
		t.Errorf("issued key = %+v, %v", key, err)
	}
}

func TestFailTransaction(t *testing.T) {
	svc, _, _ := newPaymentService(t, nil, nil)
	submit(t, svc, "PAYPAL-7", models.TierBasic, "29.99")
	ctx := context.Background()

	payment, err := svc.FailTransaction(ctx, "PAYPAL-7", "screenshot did not match")
	if err != nil {
		t.Fatal(err)
	}
	if payment.Status != models.TxFailed || payment.FailureReason != "screenshot did not match" {
		t.Errorf("payment = %+v", payment)
	}
	if _, err := svc.ConfirmTransaction(ctx, "PAYPAL-7"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("confirm after fail err = %v, want ErrInvalidState", err)
	}
}

func TestVerifyBitcoinPayment(t *testing.T) {
	tests := []struct {
		name     string
		satoshis btcutil.Amount
		wantTier models.Tier
		wantErr  error
	}{
		// 0.00092 BTC at $100,000 = $92.00
		{"exclusive", 92000, models.TierExclusive, nil},
		// $58.00
		{"premium yearly", 58000, models.TierPremium, nil},
		// $2.00
		{"below every plan", 2000, models.TierNone, ErrNoMatchingTier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &fakeOracle{payment: &BitcoinPayment{Received: tt.satoshis, Confirmed: true}}
			svc, db, _ := newPaymentService(t, oracle, fakePrices{price: decimal.NewFromInt(100000)})

			payment, err := svc.VerifyBitcoinPayment(context.Background(), 42, testTxID)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				if _, err := database.GetTransaction(db, testTxID); !errors.Is(err, database.ErrNotFound) {
					t.Error("a transaction was recorded for a rejected amount")
				}
				if n := countKeys(t, db); n != 0 {
					t.Errorf("keys issued = %d, want 0", n)
				}
				return
			}
			if err != nil {
				t.Fatalf("VerifyBitcoinPayment: %v", err)
			}
			if payment.Tier != tt.wantTier || payment.Status != models.TxConfirmed {
				t.Errorf("payment = %+v", payment)
			}
			if payment.PaymentMethod != models.PaymentBTC {
				t.Errorf("method = %s", payment.PaymentMethod)
			}
		})
	}
}

func TestVerifyBitcoinPaymentCustomBotOpensTicket(t *testing.T) {
	oracle := &fakeOracle{payment: &BitcoinPayment{Received: 50000, Confirmed: true}}
	svc, db, _ := newPaymentService(t, oracle, fakePrices{price: decimal.NewFromInt(100000)})

	payment, err := svc.VerifyBitcoinPayment(context.Background(), 42, testTxID)
	if err != nil {
		t.Fatal(err)
	}
	if payment.Product != models.ProductCustomBot || payment.Tier != models.TierExclusive {
		t.Errorf("payment = %+v", payment)
	}

	var tickets []models.SupportTicket
	db.Where("user_id = ? AND category = ?", 42, models.CategoryCustomBot).Find(&tickets)
	if len(tickets) != 1 {
		t.Errorf("custom bot tickets = %d, want 1", len(tickets))
	}
}

func TestVerifyBitcoinPaymentRejections(t *testing.T) {
	price := fakePrices{price: decimal.NewFromInt(100000)}
	ctx := context.Background()

	t.Run("malformed id", func(t *testing.T) {
		svc, _, _ := newPaymentService(t, &fakeOracle{}, price)
		if _, err := svc.VerifyBitcoinPayment(ctx, 42, "not-a-hash"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("oracle down", func(t *testing.T) {
		oracle := &fakeOracle{err: ErrExternalDependency}
		svc, db, _ := newPaymentService(t, oracle, price)
		if _, err := svc.VerifyBitcoinPayment(ctx, 42, testTxID); !errors.Is(err, ErrExternalDependency) {
			t.Errorf("err = %v", err)
		}
		if _, err := database.GetTransaction(db, testTxID); !errors.Is(err, database.ErrNotFound) {
			t.Error("transaction recorded despite oracle failure")
		}
	})

	t.Run("unconfirmed", func(t *testing.T) {
		oracle := &fakeOracle{payment: &BitcoinPayment{Received: 92000}}
		svc, _, _ := newPaymentService(t, oracle, price)
		if _, err := svc.VerifyBitcoinPayment(ctx, 42, testTxID); !errors.Is(err, ErrInvalidState) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("not paid to us", func(t *testing.T) {
		oracle := &fakeOracle{payment: &BitcoinPayment{Confirmed: true}}
		svc, _, _ := newPaymentService(t, oracle, price)
		if _, err := svc.VerifyBitcoinPayment(ctx, 42, testTxID); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("already verified", func(t *testing.T) {
		oracle := &fakeOracle{payment: &BitcoinPayment{Received: 92000, Confirmed: true}}
		svc, _, _ := newPaymentService(t, oracle, price)
		if _, err := svc.VerifyBitcoinPayment(ctx, 42, strings.ToUpper(testTxID)); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.VerifyBitcoinPayment(ctx, 43, testTxID); !errors.Is(err, ErrConflict) {
			t.Errorf("err = %v, want ErrConflict", err)
		}
		if oracle.calls != 1 {
			t.Errorf("oracle calls = %d, want 1", oracle.calls)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		oracle := &fakeOracle{payment: &BitcoinPayment{Received: 2000, Confirmed: true}}
		svc, _, _ := newPaymentService(t, oracle, price)
		limiter := NewMemoryLimiter()
		defer limiter.Stop()
		svc.limiter = limiter

		svc.VerifyBitcoinPayment(ctx, 42, testTxID)
		if _, err := svc.VerifyBitcoinPayment(ctx, 42, testTxID); !errors.Is(err, ErrRateLimited) {
			t.Errorf("err = %v, want ErrRateLimited", err)
		}
	})
}

func TestVerifyBitcoinPaymentResumesPending(t *testing.T) {
	oracle := &fakeOracle{payment: &BitcoinPayment{Received: 92000, Confirmed: true}}
	svc, db, _ := newPaymentService(t, oracle, fakePrices{price: decimal.NewFromInt(100000)})
	ctx := context.Background()

	fail := true
	failUpdates(t, db, "payment_transaction", &fail)
	if _, err := svc.VerifyBitcoinPayment(ctx, 42, testTxID); err == nil {
		t.Fatal("expected confirmation to fail")
	}
	pending, err := database.GetTransaction(db, testTxID)
	if err != nil || pending.Status != models.TxPending {
		t.Fatalf("payment = %+v, %v; want PENDING", pending, err)
	}
	fail = false

	if _, err := svc.VerifyBitcoinPayment(ctx, 43, testTxID); !errors.Is(err, ErrConflict) {
		t.Errorf("other user err = %v, want ErrConflict", err)
	}

	payment, err := svc.VerifyBitcoinPayment(ctx, 42, testTxID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if payment.Status != models.TxConfirmed || payment.Tier != models.TierExclusive {
		t.Errorf("payment = %+v", payment)
	}
	if oracle.calls != 2 {
		t.Errorf("oracle calls = %d, want 2", oracle.calls)
	}
	if n := countKeys(t, db); n != 1 {
		t.Errorf("keys issued = %d, want 1", n)
	}
}

func TestVerifyBitcoinPaymentWillNotConfirmPayPalClaim(t *testing.T) {
	oracle := &fakeOracle{payment: &BitcoinPayment{Received: 92000, Confirmed: true}}
	svc, db, _ := newPaymentService(t, oracle, fakePrices{price: decimal.NewFromInt(100000)})
	ctx := context.Background()

	if _, err := svc.SubmitPayPalClaim(ctx, 42, testTxID, "exclusive"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.VerifyBitcoinPayment(ctx, 42, testTxID); !errors.Is(err, ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
	claim, _ := database.GetTransaction(db, testTxID)
	if claim.Status != models.TxPending {
		t.Errorf("PayPal claim status = %s, want PENDING", claim.Status)
	}
}

func TestSubmitPayPalClaimUsesCatalogPrice(t *testing.T) {
	svc, _, _ := newPaymentService(t, nil, nil)
	payment, err := svc.SubmitPayPalClaim(context.Background(), 42, "PP-123", "premium_monthly")
	if err != nil {
		t.Fatal(err)
	}
	if !payment.Amount.Equal(decimal.RequireFromString("9.99")) || payment.Period != models.PeriodMonthly {
		t.Errorf("payment = %+v", payment)
	}
	if _, err := svc.SubmitPayPalClaim(context.Background(), 42, "PP-124", "gold"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown plan err = %v", err)
	}
}
