package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gamma-trading-bot/config"
	"gamma-trading-bot/internal/metrics"
	"gamma-trading-bot/internal/provider"
	"gamma-trading-bot/internal/touch"
)

// TrackerSource yields the touch tracker for a symbol
type TrackerSource func(symbol string) *touch.Tracker

// pendingOutcome is a recorded touch waiting for its hold-or-break resolution
type pendingOutcome struct {
	symbol    string
	level     float64
	side      int // +1 approached from above, -1 from below
	resolveAt time.Time
}

// symbolState is the per-symbol watch state
type symbolState struct {
	levels    []float64
	lastPrice float64
	volumeEWM float64
	// armed[level] is false while price sits inside the touch band, so one
	// visit produces one touch event
	armed map[float64]bool
}

// Monitor turns the spot tick stream into touch and outcome events. It holds
// the set of levels worth watching per symbol, pushed in by the analysis loop
// after every pass.
type Monitor struct {
	mu       sync.Mutex
	cfg      config.MonitorConfig
	trackers TrackerSource
	states   map[string]*symbolState
	pending  []pendingOutcome
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New creates a monitor. A nil metrics instance disables instrumentation.
func New(cfg config.MonitorConfig, trackers TrackerSource, m *metrics.Metrics, logger zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		trackers: trackers,
		states:   make(map[string]*symbolState),
		metrics:  m,
		logger:   logger.With().Str("component", "monitor").Logger(),
	}
}

// SetLevels replaces the watched levels for a symbol. Called by the analysis
// loop after each pass with the freshly classified nodes.
func (m *Monitor) SetLevels(symbol string, levels []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(symbol)
	st.levels = levels
	for _, lvl := range levels {
		if _, ok := st.armed[lvl]; !ok {
			st.armed[lvl] = true
		}
	}
}

// HandleTick processes one spot tick: detects level touches, re-arms levels
// price has left, and resolves any pending outcomes whose window expired.
func (m *Monitor) HandleTick(ctx context.Context, tick provider.Tick) {
	if !finite(tick.Price) || tick.Price <= 0 {
		return
	}

	m.mu.Lock()
	st := m.state(tick.Symbol)
	prevPrice := st.lastPrice
	st.lastPrice = tick.Price

	// Rolling volume baseline for confirmation
	if tick.Volume > 0 {
		if st.volumeEWM == 0 {
			st.volumeEWM = tick.Volume
		} else {
			st.volumeEWM = 0.9*st.volumeEWM + 0.1*tick.Volume
		}
	}
	volumeConfirmed := st.volumeEWM > 0 && tick.Volume >= m.cfg.VolumeConfirmRatio*st.volumeEWM

	type hit struct {
		level float64
		side  int
	}
	var hits []hit
	for _, lvl := range st.levels {
		dist := math.Abs(tick.Price-lvl) / lvl
		inside := dist <= m.cfg.TouchPct
		if inside && st.armed[lvl] {
			st.armed[lvl] = false
			side := 1
			if prevPrice != 0 && prevPrice < lvl {
				side = -1
			}
			hits = append(hits, hit{level: lvl, side: side})
		}
		// Re-arm once price has cleared twice the touch band
		if !inside && dist > 2*m.cfg.TouchPct {
			st.armed[lvl] = true
		}
	}

	due := m.takeDue(tick.Symbol, tick.Timestamp)
	m.mu.Unlock()

	tracker := m.trackers(tick.Symbol)
	if tracker == nil {
		return
	}

	for _, h := range hits {
		if _, err := tracker.RecordTouch(ctx, tick.Price, h.level, volumeConfirmed, ""); err != nil {
			m.logger.Error().Err(err).Float64("level", h.level).Msg("failed to record touch")
			continue
		}
		m.logger.Info().
			Str("symbol", tick.Symbol).
			Float64("level", h.level).
			Float64("price", tick.Price).
			Bool("volume_confirmed", volumeConfirmed).
			Msg("level touched")
		if m.metrics != nil {
			m.metrics.TouchesRecorded.WithLabelValues(tick.Symbol).Inc()
		}

		m.mu.Lock()
		m.pending = append(m.pending, pendingOutcome{
			symbol:    tick.Symbol,
			level:     h.level,
			side:      h.side,
			resolveAt: tick.Timestamp.Add(time.Duration(m.cfg.OutcomeWindowSeconds) * time.Second),
		})
		m.mu.Unlock()
	}

	for _, p := range due {
		m.resolve(ctx, tracker, p, tick.Price)
	}
}

// Sweep resolves outcomes whose window expired while no tick arrived.
// Run it on a timer alongside the tick handler.
func (m *Monitor) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	m.mu.Lock()
	type job struct {
		p     pendingOutcome
		price float64
	}
	var jobs []job
	var keep []pendingOutcome
	for _, p := range m.pending {
		st := m.states[p.symbol]
		if now.After(p.resolveAt) && st != nil && st.lastPrice > 0 {
			jobs = append(jobs, job{p: p, price: st.lastPrice})
		} else {
			keep = append(keep, p)
		}
	}
	m.pending = keep
	m.mu.Unlock()

	for _, j := range jobs {
		tracker := m.trackers(j.p.symbol)
		if tracker == nil {
			continue
		}
		m.resolve(ctx, tracker, j.p, j.price)
	}
}

// PendingOutcomes reports how many touches still await resolution
func (m *Monitor) PendingOutcomes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// resolve decides hold versus break for one expired touch. A hold means
// price is back on the approach side of the level; the move size only
// upgrades a marginal reading, it never flips the side call.
func (m *Monitor) resolve(ctx context.Context, tracker *touch.Tracker, p pendingOutcome, price float64) {
	move := (price - p.level) / p.level
	held := float64(p.side)*move >= 0

	if err := tracker.RecordOutcome(ctx, p.level, held, move); err != nil {
		m.logger.Error().Err(err).
			Str("symbol", p.symbol).
			Float64("level", p.level).
			Msg("failed to record outcome")
		return
	}
	m.logger.Info().
		Str("symbol", p.symbol).
		Float64("level", p.level).
		Bool("held", held).
		Float64("move", move).
		Msg("touch outcome resolved")
	if m.metrics != nil {
		result := "break"
		if held {
			result = "hold"
		}
		m.metrics.OutcomesRecorded.WithLabelValues(p.symbol, result).Inc()
	}
}

// takeDue removes and returns this symbol's expired pending outcomes.
// Caller holds the lock.
func (m *Monitor) takeDue(symbol string, now time.Time) []pendingOutcome {
	var due []pendingOutcome
	var keep []pendingOutcome
	for _, p := range m.pending {
		if p.symbol == symbol && now.After(p.resolveAt) {
			due = append(due, p)
		} else {
			keep = append(keep, p)
		}
	}
	m.pending = keep
	return due
}

// state returns the symbol state, creating it on first sight.
// Caller holds the lock.
func (m *Monitor) state(symbol string) *symbolState {
	st, ok := m.states[symbol]
	if !ok {
		st = &symbolState{armed: make(map[float64]bool)}
		m.states[symbol] = st
	}
	return st
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
