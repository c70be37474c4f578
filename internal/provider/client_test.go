package provider

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"gamma-trading-bot/internal/gamma"
)

func float64Ptr(v float64) *float64 { return &v }
func int64Ptr(v int64) *int64       { return &v }

func TestNormalizeContractDropsMissingFields(t *testing.T) {
	valid := wireContract{
		Strike:       float64Ptr(660),
		Type:         "call",
		OpenInterest: int64Ptr(1000),
		Gamma:        float64Ptr(0.05),
		Volume:       int64Ptr(200),
	}

	tests := []struct {
		name   string
		mutate func(*wireContract)
		ok     bool
	}{
		{"complete contract", func(c *wireContract) {}, true},
		{"missing strike", func(c *wireContract) { c.Strike = nil }, false},
		{"missing gamma", func(c *wireContract) { c.Gamma = nil }, false},
		{"missing open interest", func(c *wireContract) { c.OpenInterest = nil }, false},
		{"nan gamma", func(c *wireContract) { c.Gamma = float64Ptr(math.NaN()) }, false},
		{"unknown type", func(c *wireContract) { c.Type = "straddle" }, false},
		{"missing volume is fine", func(c *wireContract) { c.Volume = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wc := valid
			tt.mutate(&wc)
			_, ok := normalizeContract(wc)
			if ok != tt.ok {
				t.Errorf("normalizeContract ok = %v, want %v", ok, tt.ok)
			}
		})
	}
}

func TestFetchChainNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chain" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "SPY" {
			t.Errorf("symbol = %q, want SPY", got)
		}
		if got := r.Header.Get("X-API-Key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		w.Write([]byte(`{
			"symbol": "SPY",
			"updated_at": 1735689600000,
			"contracts": [
				{"strike": 660, "type": "call", "open_interest": 5000, "gamma": 0.05, "volume": 1200},
				{"strike": 660, "type": "put", "open_interest": 4000, "gamma": 0.05, "volume": 900},
				{"strike": 665, "type": "call", "open_interest": 3000, "gamma": null, "volume": 100}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key", 60)
	snapshot, err := client.FetchChain(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("FetchChain: %v", err)
	}
	if len(snapshot.Contracts) != 2 {
		t.Fatalf("got %d contracts, want 2 (null-gamma contract dropped)", len(snapshot.Contracts))
	}
	for _, c := range snapshot.Contracts {
		if c.Strike != 660 {
			t.Errorf("unexpected strike %v", c.Strike)
		}
	}
	if snapshot.Contracts[0].Kind != gamma.Call || snapshot.Contracts[1].Kind != gamma.Put {
		t.Errorf("kinds = %v, %v", snapshot.Contracts[0].Kind, snapshot.Contracts[1].Kind)
	}
}

func TestFetchChainAllContractsUnusable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol": "SPY", "contracts": [{"strike": 660, "type": "call"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 60)
	if _, err := client.FetchChain(context.Background(), "SPY"); err == nil {
		t.Error("expected error when every contract is unusable")
	}
}

func TestFetchQuoteRejectsMissingPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol": "SPY", "volume": 100}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 60)
	if _, err := client.FetchQuote(context.Background(), "SPY"); err == nil {
		t.Error("expected error for quote without last price")
	}
}

func TestFetchQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbol": "SPY", "last": 661.74, "volume": 850000, "avg_volume": 1000000, "timestamp": 1735689600000}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", 60)
	q, err := client.FetchQuote(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}
	if q.Price != 661.74 {
		t.Errorf("price = %v, want 661.74", q.Price)
	}
	if q.AvgVolume != 1000000 {
		t.Errorf("avg volume = %v", q.AvgVolume)
	}
}

func TestRateLimiterCounts(t *testing.T) {
	rl := NewRateLimiter(5)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
	if got := rl.Remaining(); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := rl.Wait(cancelled); err == nil {
		t.Error("expected context error when window exhausted")
	}
}

func TestMockClientProducesAnalyzableChain(t *testing.T) {
	mock := NewMockClient()
	snapshot, err := mock.FetchChain(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("FetchChain: %v", err)
	}
	if len(snapshot.Contracts) == 0 {
		t.Fatal("mock chain is empty")
	}

	engine := gamma.NewEngine(gamma.DefaultConfig())
	quote, err := mock.FetchQuote(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}
	table, _, err := engine.ComputeExposure(snapshot, quote.Price)
	if err != nil {
		t.Fatalf("ComputeExposure on mock chain: %v", err)
	}
	if len(table) == 0 {
		t.Error("mock chain produced no exposure rows")
	}
}
