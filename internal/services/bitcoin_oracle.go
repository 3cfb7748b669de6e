package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"guardian-api/internal/metrics"
	"guardian-api/pkg/logging"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	gobreaker "github.com/sony/gobreaker/v2"
)

var txIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ValidBitcoinTxID reports whether id looks like a Bitcoin transaction hash
func ValidBitcoinTxID(id string) bool {
	return txIDPattern.MatchString(id)
}

// BitcoinPayment is what a block explorer reports for one transaction
type BitcoinPayment struct {
	TxID      string
	Received  btcutil.Amount // paid to our address
	Confirmed bool
}

// BitcoinOracle looks up how much a transaction paid to an address
type BitcoinOracle interface {
	LookupPayment(ctx context.Context, txID string) (*BitcoinPayment, error)
}

// PriceSource returns the USD price of one BTC
type PriceSource interface {
	BTCUSD(ctx context.Context) (decimal.Decimal, error)
}

func newBreaker[T any](name string) *gobreaker.CircuitBreaker[T] {
	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// An unknown transaction is an answer, not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warnf("Circuit breaker %s: %s -> %s", name, from, to)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
}

// breakerError turns a breaker or transport failure into ErrExternalDependency.
// Business errors pass through untouched.
func breakerError(oracle string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	metrics.OracleFailures.WithLabelValues(oracle).Inc()
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s temporarily disabled: %w", oracle, ErrExternalDependency)
	}
	return fmt.Errorf("%s: %v: %w", oracle, err, ErrExternalDependency)
}

// BlockstreamClient queries an Esplora-compatible block explorer
type BlockstreamClient struct {
	baseURL    string
	address    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*BitcoinPayment]
}

// NewBlockstreamClient validates the receiving address and creates a client
func NewBlockstreamClient(baseURL, address string, timeout time.Duration) (*BlockstreamClient, error) {
	if _, err := btcutil.DecodeAddress(address, &chaincfg.MainNetParams); err != nil {
		return nil, fmt.Errorf("invalid BTC_ADDRESS: %w", err)
	}
	return &BlockstreamClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		address:    address,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    newBreaker[*BitcoinPayment]("blockstream"),
	}, nil
}

type esploraTx struct {
	TxID string `json:"txid"`
	Vout []struct {
		ScriptPubKeyAddress string `json:"scriptpubkey_address"`
		Value               int64  `json:"value"`
	} `json:"vout"`
	Status struct {
		Confirmed bool `json:"confirmed"`
	} `json:"status"`
}

// LookupPayment fetches txID and sums the outputs paying our address.
// An unknown transaction yields ErrNotFound.
func (b *BlockstreamClient) LookupPayment(ctx context.Context, txID string) (*BitcoinPayment, error) {
	payment, err := b.breaker.Execute(func() (*BitcoinPayment, error) {
		return b.fetch(ctx, txID)
	})
	if err != nil {
		return nil, breakerError("blockstream", err)
	}
	return payment, nil
}

func (b *BlockstreamClient) fetch(ctx context.Context, txID string) (*BitcoinPayment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/tx/"+txID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("bitcoin transaction %s: %w", txID, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var tx esploraTx
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}

	payment := &BitcoinPayment{TxID: txID, Confirmed: tx.Status.Confirmed}
	for _, out := range tx.Vout {
		if out.ScriptPubKeyAddress == b.address {
			payment.Received += btcutil.Amount(out.Value)
		}
	}
	return payment, nil
}

const priceCacheKey = "btc_usd_price"

// PriceOracle fetches the BTC/USD rate and caches it for a TTL, in Redis
// when a client is given and in process memory otherwise
type PriceOracle struct {
	url        string
	ttl        time.Duration
	httpClient *http.Client
	redis      *redis.Client
	breaker    *gobreaker.CircuitBreaker[decimal.Decimal]
	now        func() time.Time

	mu        sync.Mutex
	cached    decimal.Decimal
	fetchedAt time.Time
}

// NewPriceOracle creates a price oracle; redisClient may be nil
func NewPriceOracle(url string, ttl, timeout time.Duration, redisClient *redis.Client) *PriceOracle {
	return &PriceOracle{
		url:        url,
		ttl:        ttl,
		httpClient: &http.Client{Timeout: timeout},
		redis:      redisClient,
		breaker:    newBreaker[decimal.Decimal]("price"),
		now:        time.Now,
	}
}

// BTCUSD returns the cached price, refreshing it when stale
func (p *PriceOracle) BTCUSD(ctx context.Context) (decimal.Decimal, error) {
	if price, ok := p.cachedPrice(ctx); ok {
		return price, nil
	}

	price, err := p.breaker.Execute(func() (decimal.Decimal, error) {
		return p.fetch(ctx)
	})
	if err != nil {
		return decimal.Zero, breakerError("price", err)
	}

	p.store(ctx, price)
	return price, nil
}

func (p *PriceOracle) cachedPrice(ctx context.Context) (decimal.Decimal, bool) {
	if p.redis != nil {
		value, err := p.redis.Get(ctx, priceCacheKey).Result()
		if err == nil {
			if price, err := decimal.NewFromString(value); err == nil {
				return price, true
			}
		} else if err != redis.Nil {
			logging.Warnf("Price cache read failed: %v", err)
		}
		return decimal.Zero, false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.fetchedAt.IsZero() && p.now().Sub(p.fetchedAt) < p.ttl {
		return p.cached, true
	}
	return decimal.Zero, false
}

func (p *PriceOracle) store(ctx context.Context, price decimal.Decimal) {
	if p.redis != nil {
		if err := p.redis.Set(ctx, priceCacheKey, price.String(), p.ttl).Err(); err != nil {
			logging.Warnf("Price cache write failed: %v", err)
		}
		return
	}

	p.mu.Lock()
	p.cached = price
	p.fetchedAt = p.now()
	p.mu.Unlock()
}

// coindeskResponse matches the CoinDesk v1 current price document
type coindeskResponse struct {
	BPI struct {
		USD struct {
			Rate      string      `json:"rate"`
			RateFloat json.Number `json:"rate_float"`
		} `json:"USD"`
	} `json:"bpi"`
}

func (p *PriceOracle) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body coindeskResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode price: %w", err)
	}

	raw := body.BPI.USD.RateFloat.String()
	if raw == "" {
		raw = strings.ReplaceAll(body.BPI.USD.Rate, ",", "")
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %q: %w", raw, err)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price %s", price)
	}
	return price, nil
}

// SatoshisToUSD converts an amount at the given BTC price, rounded to cents
func SatoshisToUSD(amount btcutil.Amount, btcUSD decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(int64(amount)).Shift(-8).Mul(btcUSD).Round(2)
}
