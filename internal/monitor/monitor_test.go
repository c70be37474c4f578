package monitor

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gamma-trading-bot/config"
	"gamma-trading-bot/internal/provider"
	"gamma-trading-bot/internal/touch"
)

func testMonitor(t *testing.T) (*Monitor, *touch.Tracker) {
	t.Helper()
	tracker := touch.NewTracker("SPY", touch.NewMemoryStore(), touch.DefaultConfig())
	cfg := config.MonitorConfig{
		Enabled:              true,
		TouchPct:             0.001,
		VolumeConfirmRatio:   1.5,
		OutcomeWindowSeconds: 300,
		OutcomeMovePct:       0.003,
	}
	m := New(cfg, func(symbol string) *touch.Tracker {
		if symbol == "SPY" {
			return tracker
		}
		return nil
	}, nil, zerolog.New(io.Discard))
	return m, tracker
}

func tick(price float64, at time.Time) provider.Tick {
	return provider.Tick{Symbol: "SPY", Price: price, Timestamp: at}
}

func TestTouchDetectedInsideBand(t *testing.T) {
	m, tracker := testMonitor(t)
	ctx := context.Background()
	m.SetLevels("SPY", []float64{660})

	now := time.Now().UTC()
	m.HandleTick(ctx, tick(655, now))
	m.HandleTick(ctx, tick(659.8, now.Add(time.Second))) // within 0.1% of 660

	stats, err := tracker.Stats(ctx, 660)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats == nil || stats.TouchCount != 1 {
		t.Fatalf("expected 1 touch, got %+v", stats)
	}
}

func TestNoDuplicateTouchWhilePriceSits(t *testing.T) {
	m, tracker := testMonitor(t)
	ctx := context.Background()
	m.SetLevels("SPY", []float64{660})

	now := time.Now().UTC()
	m.HandleTick(ctx, tick(659.8, now))
	m.HandleTick(ctx, tick(659.9, now.Add(time.Second)))
	m.HandleTick(ctx, tick(660.1, now.Add(2*time.Second)))

	stats, _ := tracker.Stats(ctx, 660)
	if stats.TouchCount != 1 {
		t.Errorf("touch count = %d, want 1 while price stays in the band", stats.TouchCount)
	}
}

func TestReArmAfterPriceLeaves(t *testing.T) {
	m, tracker := testMonitor(t)
	ctx := context.Background()
	m.SetLevels("SPY", []float64{660})

	now := time.Now().UTC()
	m.HandleTick(ctx, tick(659.8, now))                     // first touch
	m.HandleTick(ctx, tick(657, now.Add(time.Minute)))      // clears 2x band
	m.HandleTick(ctx, tick(659.9, now.Add(2*time.Minute)))  // second touch

	stats, _ := tracker.Stats(ctx, 660)
	if stats.TouchCount != 2 {
		t.Errorf("touch count = %d, want 2 after re-arm", stats.TouchCount)
	}
}

func TestOutcomeResolvedAfterWindow(t *testing.T) {
	m, tracker := testMonitor(t)
	ctx := context.Background()
	m.SetLevels("SPY", []float64{660})

	now := time.Now().UTC()
	m.HandleTick(ctx, tick(662, now))
	m.HandleTick(ctx, tick(660.3, now.Add(time.Second))) // touch from above
	if m.PendingOutcomes() != 1 {
		t.Fatalf("pending = %d, want 1", m.PendingOutcomes())
	}

	// Past the window, price bounced back above the level: a hold
	m.HandleTick(ctx, tick(663, now.Add(6*time.Minute)))
	if m.PendingOutcomes() != 0 {
		t.Fatalf("pending = %d after window, want 0", m.PendingOutcomes())
	}

	stats, _ := tracker.Stats(ctx, 660)
	if stats.HoldCount != 1 {
		t.Errorf("hold count = %d, want 1", stats.HoldCount)
	}
}

func TestBreakRecordedWhenPriceCrosses(t *testing.T) {
	m, tracker := testMonitor(t)
	ctx := context.Background()
	m.SetLevels("SPY", []float64{660})

	now := time.Now().UTC()
	m.HandleTick(ctx, tick(662, now))
	m.HandleTick(ctx, tick(660.3, now.Add(time.Second)))
	m.HandleTick(ctx, tick(655, now.Add(6*time.Minute))) // traded through

	stats, _ := tracker.Stats(ctx, 660)
	if stats.TouchCount != 1 {
		t.Fatalf("touch count = %d, want 1", stats.TouchCount)
	}
	if stats.HoldCount != 0 {
		t.Errorf("hold count = %d, want 0 for a break", stats.HoldCount)
	}
}

func TestSweepResolvesWithoutNewTicks(t *testing.T) {
	m, tracker := testMonitor(t)
	ctx := context.Background()
	m.SetLevels("SPY", []float64{660})

	past := time.Now().UTC().Add(-10 * time.Minute)
	m.HandleTick(ctx, tick(662, past))
	m.HandleTick(ctx, tick(660.3, past.Add(time.Second)))

	m.Sweep(ctx)
	if m.PendingOutcomes() != 0 {
		t.Fatalf("pending = %d after sweep, want 0", m.PendingOutcomes())
	}
	stats, _ := tracker.Stats(ctx, 660)
	if stats.TouchCount != 1 {
		t.Errorf("touch count = %d", stats.TouchCount)
	}
}

func TestUnknownSymbolIgnored(t *testing.T) {
	m, _ := testMonitor(t)
	ctx := context.Background()
	m.SetLevels("QQQ", []float64{400})

	// Tracker source returns nil for QQQ; must not panic
	m.HandleTick(ctx, provider.Tick{Symbol: "QQQ", Price: 400.1, Timestamp: time.Now()})
}
