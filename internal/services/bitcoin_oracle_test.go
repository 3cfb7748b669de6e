package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/btcsuite/btcutil"
	"github.com/shopspring/decimal"
)

const genesisAddress = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"

func TestNewBlockstreamClientRejectsBadAddress(t *testing.T) {
	if _, err := NewBlockstreamClient("http://example.invalid", "not-an-address", time.Second); err == nil {
		t.Error("expected invalid address error")
	}
}

func TestBlockstreamLookupPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tx/" + testTxID:
			fmt.Fprintf(w, `{"txid":%q,"vout":[
				{"scriptpubkey_address":%q,"value":60000},
				{"scriptpubkey_address":"bc1qother","value":99999999},
				{"scriptpubkey_address":%q,"value":32000}
			],"status":{"confirmed":true}}`, testTxID, genesisAddress, genesisAddress)
		default:
			http.Error(w, "Transaction not found", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := NewBlockstreamClient(srv.URL+"/", genesisAddress, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	payment, err := client.LookupPayment(context.Background(), testTxID)
	if err != nil {
		t.Fatalf("LookupPayment: %v", err)
	}
	if payment.Received != btcutil.Amount(92000) || !payment.Confirmed {
		t.Errorf("payment = %+v", payment)
	}

	_, err = client.LookupPayment(context.Background(), "00"+testTxID[2:])
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown tx err = %v, want ErrNotFound", err)
	}
}

func TestBlockstreamBreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewBlockstreamClient(srv.URL, genesisAddress, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 8; i++ {
		_, err := client.LookupPayment(context.Background(), testTxID)
		if !errors.Is(err, ErrExternalDependency) {
			t.Fatalf("call %d err = %v, want ErrExternalDependency", i, err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 5 {
		t.Errorf("upstream hits = %d, want 5 before the breaker opened", got)
	}
}

func TestPriceOracleCachesWithinTTL(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		fmt.Fprint(w, `{"bpi":{"USD":{"code":"USD","rate":"65,432.1000","rate_float":65432.1}}}`)
	}))
	defer srv.Close()

	oracle := NewPriceOracle(srv.URL, time.Minute, time.Second, nil)
	now := time.Now()
	oracle.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		price, err := oracle.BTCUSD(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !price.Equal(decimal.RequireFromString("65432.1")) {
			t.Errorf("price = %s", price)
		}
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("upstream hits = %d, want 1", hits)
	}

	now = now.Add(2 * time.Minute)
	if _, err := oracle.BTCUSD(ctx); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("upstream hits after TTL = %d, want 2", hits)
	}
}

func TestPriceOracleParsesRateString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bpi":{"USD":{"rate":"61,000.5000"}}}`)
	}))
	defer srv.Close()

	price, err := NewPriceOracle(srv.URL, time.Minute, time.Second, nil).BTCUSD(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !price.Equal(decimal.RequireFromString("61000.5")) {
		t.Errorf("price = %s", price)
	}
}

func TestPriceOracleFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bpi":{}}`)
	}))
	defer srv.Close()

	_, err := NewPriceOracle(srv.URL, time.Minute, time.Second, nil).BTCUSD(context.Background())
	if !errors.Is(err, ErrExternalDependency) {
		t.Errorf("err = %v, want ErrExternalDependency", err)
	}
}

func TestSatoshisToUSD(t *testing.T) {
	got := SatoshisToUSD(btcutil.Amount(123456), decimal.RequireFromString("65432.10"))
	// 0.00123456 * 65432.10 = 80.7798...
	if !got.Equal(decimal.RequireFromString("80.78")) {
		t.Errorf("SatoshisToUSD = %s, want 80.78", got)
	}
}
