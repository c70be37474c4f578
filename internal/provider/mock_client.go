package provider

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"gamma-trading-bot/internal/gamma"
)

// MockClient serves deterministic simulated chains and quotes for local
// development when no real provider is reachable. Spot follows a slow random
// walk; the chain keeps a heavy call wall above spot and a put wall below so
// the downstream analysis has structure to find.
type MockClient struct {
	mu    sync.Mutex
	rng   *rand.Rand
	spots map[string]float64
}

func NewMockClient() *MockClient {
	return &MockClient{
		rng:   rand.New(rand.NewSource(42)),
		spots: make(map[string]float64),
	}
}

func (m *MockClient) FetchChain(ctx context.Context, symbol string) (*gamma.OptionChainSnapshot, error) {
	spot := m.step(symbol)

	snapshot := &gamma.OptionChainSnapshot{
		Symbol:     symbol,
		ObservedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Strikes on a 5 point grid, 10 either side of spot
	base := math.Round(spot/5) * 5
	for i := -10; i <= 10; i++ {
		strike := base + float64(i)*5
		if strike <= 0 {
			continue
		}
		// OI concentrates near the money and at round hundreds
		distance := math.Abs(strike - spot)
		oi := int64(5000 * math.Exp(-distance/30))
		if math.Mod(strike, 100) == 0 {
			oi *= 3
		}
		callOI := oi + int64(m.rng.Intn(500))
		putOI := oi + int64(m.rng.Intn(500))
		// Calls dominate above spot, puts below
		if strike > spot {
			callOI *= 2
		} else {
			putOI *= 2
		}
		g := 0.05 * math.Exp(-distance*distance/800)
		snapshot.Contracts = append(snapshot.Contracts,
			gamma.OptionContract{Strike: strike, Kind: gamma.Call, OpenInterest: callOI, Gamma: g, Volume: callOI / 4},
			gamma.OptionContract{Strike: strike, Kind: gamma.Put, OpenInterest: putOI, Gamma: g, Volume: putOI / 4},
		)
	}
	return snapshot, nil
}

func (m *MockClient) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	spot := m.step(symbol)

	m.mu.Lock()
	vol := 800000 + m.rng.Float64()*400000
	m.mu.Unlock()

	return &Quote{
		Symbol:    symbol,
		Price:     spot,
		Volume:    vol,
		AvgVolume: 1000000,
		Timestamp: time.Now().UTC(),
	}, nil
}

// step advances the symbol's random walk by one tick
func (m *MockClient) step(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	spot, ok := m.spots[symbol]
	if !ok {
		spot = 660.0
	}
	spot += (m.rng.Float64() - 0.5) * 0.5
	m.spots[symbol] = spot
	return spot
}
