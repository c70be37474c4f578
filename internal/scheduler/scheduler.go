package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"gamma-trading-bot/config"
	"gamma-trading-bot/internal/cache"
	"gamma-trading-bot/internal/consensus"
	"gamma-trading-bot/internal/gamma"
	"gamma-trading-bot/internal/metrics"
	"gamma-trading-bot/internal/monitor"
	"gamma-trading-bot/internal/notification"
	"gamma-trading-bot/internal/provider"
	"gamma-trading-bot/internal/touch"
)

// Recoverable is a store that can probe its backend and flush buffered
// writes once it comes back
type Recoverable interface {
	TryRecover(ctx context.Context)
}

// TrackerSource yields the touch tracker for a symbol
type TrackerSource func(symbol string) *touch.Tracker

// Scheduler drives the periodic analysis loop: fetch chain and quote,
// compute exposure, unify with touch history, cache the state, refresh the
// monitor's watch list and push alerts. Symbols fail independently; one bad
// chain never stalls the rest of the pass.
type Scheduler struct {
	cfg      config.SchedulerConfig
	symbols  []string
	client   provider.Interface
	engine   *gamma.Engine
	resolver *consensus.Resolver
	trackers TrackerSource
	states   *cache.MarketStateCache
	watch    *monitor.Monitor
	metrics  *metrics.Metrics
	notify   *notification.Manager
	store    Recoverable
	logger   zerolog.Logger

	mu          sync.Mutex
	lastRegimes map[string]gamma.VolRegime
}

type Deps struct {
	Client   provider.Interface
	Engine   *gamma.Engine
	Resolver *consensus.Resolver
	Trackers TrackerSource
	States   *cache.MarketStateCache
	Monitor  *monitor.Monitor
	Metrics  *metrics.Metrics
	Notify   *notification.Manager
	Store    Recoverable
}

func New(cfg config.SchedulerConfig, symbols []string, deps Deps, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		symbols:     symbols,
		client:      deps.Client,
		engine:      deps.Engine,
		resolver:    deps.Resolver,
		trackers:    deps.Trackers,
		states:      deps.States,
		watch:       deps.Monitor,
		metrics:     deps.Metrics,
		notify:      deps.Notify,
		store:       deps.Store,
		logger:      logger.With().Str("component", "scheduler").Logger(),
		lastRegimes: make(map[string]gamma.VolRegime),
	}
}

// Run blocks until ctx is cancelled, analyzing every symbol each interval.
// The first pass starts immediately.
func (s *Scheduler) Run(ctx context.Context) {
	interval := time.Duration(s.cfg.IntervalSeconds) * time.Second
	s.logger.Info().
		Strs("symbols", s.symbols).
		Dur("interval", interval).
		Msg("analysis loop started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("analysis loop stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one full analysis pass over all symbols
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.store != nil {
		s.store.TryRecover(ctx)
	}
	for _, symbol := range s.symbols {
		if ctx.Err() != nil {
			return
		}
		if err := s.analyzeSymbol(ctx, symbol); err != nil {
			s.metrics.AnalysisRuns.WithLabelValues(symbol, "error").Inc()
			s.logger.Error().Err(err).Str("symbol", symbol).Msg("analysis pass failed")
			continue
		}
		s.metrics.AnalysisRuns.WithLabelValues(symbol, "ok").Inc()
	}
}

func (s *Scheduler) analyzeSymbol(ctx context.Context, symbol string) error {
	started := time.Now()
	defer func() {
		s.metrics.AnalysisDuration.Observe(time.Since(started).Seconds())
	}()

	quote, err := s.client.FetchQuote(ctx, symbol)
	if err != nil {
		return err
	}
	chain, err := s.client.FetchChain(ctx, symbol)
	if err != nil {
		return err
	}

	exposure, keyLevels, err := s.engine.ComputeExposure(chain, quote.Price)
	if err != nil {
		if errors.Is(err, gamma.ErrMalformedChain) {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("malformed chain, skipping pass")
		}
		return err
	}
	if len(exposure) == 0 {
		s.logger.Info().Str("symbol", symbol).Msg("empty chain, nothing to analyze")
		return nil
	}

	tracker := s.trackers(symbol)
	state, err := s.resolver.Unify(ctx, symbol, exposure, keyLevels, tracker, quote.Price, consensus.VolumeInput{
		Current:  quote.Volume,
		Baseline: quote.AvgVolume,
	})
	if err != nil {
		return err
	}
	rec := s.resolver.Recommend(state)

	s.states.PutState(ctx, state, rec)
	s.metrics.ConsensusScore.WithLabelValues(symbol).Set(state.Consensus)
	s.metrics.Recommendations.WithLabelValues(symbol, string(rec.Action)).Inc()

	var levels []float64
	for _, node := range state.Nodes {
		levels = append(levels, node.Level)
	}
	s.watch.SetLevels(symbol, levels)

	s.checkRegimeChange(symbol, keyLevels, quote.Price)
	if err := s.notify.SendRecommendation(rec); err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("recommendation alert failed")
	}

	s.logger.Info().
		Str("symbol", symbol).
		Float64("price", quote.Price).
		Float64("consensus", state.Consensus).
		Str("bias", string(state.Bias)).
		Str("action", string(rec.Action)).
		Int("nodes", len(state.Nodes)).
		Msg("analysis pass complete")
	return nil
}

// checkRegimeChange alerts when the volatility regime flips between passes
func (s *Scheduler) checkRegimeChange(symbol string, keyLevels gamma.KeyLevels, price float64) {
	if keyLevels.Regime == "" || keyLevels.GammaFlip == nil {
		return
	}

	s.mu.Lock()
	prev, seen := s.lastRegimes[symbol]
	s.lastRegimes[symbol] = keyLevels.Regime
	s.mu.Unlock()

	if !seen || prev == keyLevels.Regime {
		return
	}
	s.logger.Info().
		Str("symbol", symbol).
		Str("from", string(prev)).
		Str("to", string(keyLevels.Regime)).
		Msg("volatility regime changed")
	if err := s.notify.SendRegimeChange(symbol, string(prev), string(keyLevels.Regime), *keyLevels.GammaFlip, price); err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("regime alert failed")
	}
}
