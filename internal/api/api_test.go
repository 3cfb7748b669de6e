package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"guardian-api/internal/config"
	"guardian-api/internal/database"
	"guardian-api/internal/services"

	"github.com/btcsuite/btcutil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const (
	testAPIKey = "test-admin-key"
	ownerID    = int64(344210326251896834)
)

// fakeIdentity maps bearer tokens to user ids
type fakeIdentity map[string]int64

func (f fakeIdentity) Verify(_ context.Context, token string) (*services.Identity, error) {
	id, ok := f[token]
	if !ok {
		return nil, services.ErrUnauthenticated
	}
	return &services.Identity{UserID: id, Username: "tester"}, nil
}

type stubOracle struct{ sats btcutil.Amount }

func (s stubOracle) LookupPayment(_ context.Context, txID string) (*services.BitcoinPayment, error) {
	return &services.BitcoinPayment{TxID: txID, Received: s.sats, Confirmed: true}, nil
}

type stubPrices struct{}

func (stubPrices) BTCUSD(context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(100000), nil
}

type testServer struct {
	t       *testing.T
	engine  *gin.Engine
	handler *Handler
}

func newTestServer(t *testing.T, oracle services.BitcoinOracle) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close(db) })

	cfg := &config.Config{AdminAPIKey: testAPIKey, OwnerUserIDs: []int64{ownerID}}
	keys := services.NewKeyService(db)
	tickets := services.NewTicketService(db)
	customBots := services.NewCustomBotService(db)
	deps := services.PaymentDeps{Keys: keys, Tickets: tickets, CustomBots: customBots}
	if oracle != nil {
		deps.Oracle = oracle
		deps.Prices = stubPrices{}
	}

	h := &Handler{
		Config:        cfg,
		DB:            db,
		Licenses:      services.NewLicenseService(db),
		Keys:          keys,
		Payments:      services.NewPaymentService(db, deps),
		Moderation:    services.NewModerationService(db),
		Guilds:        services.NewGuildService(db),
		Tickets:       tickets,
		CustomBots:    customBots,
		AutoResponses: services.NewAutoResponseService(db),
		Stats:         services.NewStatsService(db),
		Identity:      fakeIdentity{"owner-token": ownerID, "user-token": 1001, "buyer-token": 1002},
	}
	return &testServer{t: t, engine: NewEngine(h), handler: h}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends a request; auth is an admin key, or "Bearer ..." for the dashboard
func (s *testServer) do(method, path, auth string, body interface{}) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	switch {
	case len(auth) > 7 && auth[:7] == "Bearer ":
		req.Header.Set("Authorization", auth)
	case auth != "":
		req.Header.Set("X-API-Key", auth)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out
}
