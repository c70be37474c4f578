package touch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoTouchHistory is returned when an outcome is recorded for a level that
// was never touched. The tracker never fabricates a synthetic touch.
var ErrNoTouchHistory = errors.New("no touch history for level")

// Config holds the probability model parameters. The tier probabilities and
// blend weights are empirical constants from live trading; they are kept
// configurable because nothing documents how they were calibrated.
type Config struct {
	ModelProbabilities []float64 // hold probability by touch count, 1-indexed; last entry repeats
	ModelWeight        float64   // weight of the touch-count model once outcomes exist
	HistoryWeight      float64   // weight of the observed hold rate
	ExactPct           float64   // |price-level|/level threshold for an "exact" touch
	NearPct            float64   // threshold for a "near" touch
	VolumeBoostMax     float64   // max relative ranking boost for volume-confirmed levels
}

// DefaultConfig returns the standard model parameters
func DefaultConfig() *Config {
	return &Config{
		ModelProbabilities: []float64{0.90, 0.66, 0.33, 0.20},
		ModelWeight:        0.7,
		HistoryWeight:      0.3,
		ExactPct:           0.0005,
		NearPct:            0.005,
		VolumeBoostMax:     0.20,
	}
}

// Tracker owns the touch history for one symbol. Calls for the same level are
// serialized; distinct levels proceed without contention.
type Tracker struct {
	symbol string
	store  Store
	cfg    *Config

	mu    sync.Mutex
	locks map[float64]*sync.Mutex
}

// NewTracker creates a tracker backed by the given store. A nil config uses
// defaults.
func NewTracker(symbol string, store Store, cfg *Config) *Tracker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Tracker{
		symbol: symbol,
		store:  store,
		cfg:    cfg,
		locks:  make(map[float64]*sync.Mutex),
	}
}

// Symbol returns the underlying this tracker records for
func (t *Tracker) Symbol() string {
	return t.symbol
}

func (t *Tracker) levelLock(level float64) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[level]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[level] = lock
	}
	return lock
}

// RecordTouch records a test of a level and persists it before returning.
// The classification hint is only used when no valid price is available;
// otherwise the class is derived from the price's distance to the level.
func (t *Tracker) RecordTouch(ctx context.Context, price, level float64, volumeConfirmed bool, hint TouchClass) (*TouchEvent, error) {
	if !finite(level) || level <= 0 {
		return nil, fmt.Errorf("invalid level %v", level)
	}

	lock := t.levelLock(level)
	lock.Lock()
	defer lock.Unlock()

	rec, err := t.store.GetLevel(ctx, t.symbol, level)
	if err != nil {
		return nil, fmt.Errorf("load level %v: %w", level, err)
	}
	if rec == nil {
		rec = &LevelRecord{Symbol: t.symbol, Level: level}
	}

	event := TouchEvent{
		ID:              uuid.New().String(),
		Symbol:          t.symbol,
		Level:           level,
		Price:           price,
		Timestamp:       time.Now().UTC(),
		Class:           t.classify(price, level, hint),
		VolumeConfirmed: volumeConfirmed,
	}
	rec.Touches = append(rec.Touches, event)
	rec.Stats = t.recomputeStats(rec)

	if err := t.store.PutLevel(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist touch at %v: %w", level, err)
	}
	return &event, nil
}

// RecordOutcome attaches the hold-or-break outcome to the oldest touch at the
// level that has none. Recording an outcome for an untouched level is a
// caller error.
func (t *Tracker) RecordOutcome(ctx context.Context, level float64, held bool, subsequentMove float64) error {
	lock := t.levelLock(level)
	lock.Lock()
	defer lock.Unlock()

	rec, err := t.store.GetLevel(ctx, t.symbol, level)
	if err != nil {
		return fmt.Errorf("load level %v: %w", level, err)
	}
	if rec == nil || len(rec.Touches) == 0 {
		return fmt.Errorf("%w: %s %v", ErrNoTouchHistory, t.symbol, level)
	}

	patched := false
	for i := range rec.Touches {
		if !rec.Touches[i].OutcomeRecorded {
			rec.Touches[i].OutcomeRecorded = true
			rec.Touches[i].Held = held
			rec.Touches[i].SubsequentMove = subsequentMove
			patched = true
			break
		}
	}
	if !patched {
		return fmt.Errorf("all %d touches at %s %v already have outcomes", len(rec.Touches), t.symbol, level)
	}

	rec.Stats = t.recomputeStats(rec)
	if err := t.store.PutLevel(ctx, rec); err != nil {
		return fmt.Errorf("persist outcome at %v: %w", level, err)
	}
	return nil
}

// ProbabilityOf answers the hold-probability query for the touch currently
// being evaluated (prior touches + 1).
func (t *Tracker) ProbabilityOf(ctx context.Context, level float64) (*Probability, error) {
	lock := t.levelLock(level)
	lock.Lock()
	defer lock.Unlock()

	rec, err := t.store.GetLevel(ctx, t.symbol, level)
	if err != nil {
		return nil, fmt.Errorf("load level %v: %w", level, err)
	}

	prior := 0
	outcomes := 0
	holds := 0
	if rec != nil {
		prior = len(rec.Touches)
		for _, touch := range rec.Touches {
			if touch.OutcomeRecorded {
				outcomes++
				if touch.Held {
					holds++
				}
			}
		}
	}

	count := prior + 1
	prob := t.modelProbability(count)

	// Blend with observed history once any outcome exists. The historical
	// rate divides by touches recorded, not outcomes, per the model's
	// original definition.
	if outcomes > 0 && prior > 0 {
		holdRate := float64(holds) / float64(prior)
		prob = t.cfg.ModelWeight*prob + t.cfg.HistoryWeight*holdRate
	}

	return &Probability{
		Level:       level,
		TouchCount:  count,
		Probability: prob,
		Confidence:  confidenceFor(count),
		Age:         ageFor(prior),
	}, nil
}

// Stats returns the current aggregate view for a level, or nil when untracked
func (t *Tracker) Stats(ctx context.Context, level float64) (*LevelStats, error) {
	rec, err := t.store.GetLevel(ctx, t.symbol, level)
	if err != nil || rec == nil {
		return nil, err
	}
	stats := rec.Stats
	return &stats, nil
}

// Levels lists every level with recorded history
func (t *Tracker) Levels(ctx context.Context) ([]float64, error) {
	return t.store.ListLevels(ctx, t.symbol)
}

// SignificanceScore is the ranking score for comparing levels against each
// other: the hold probability with up to a VolumeBoostMax relative boost for
// levels whose touches are disproportionately volume-confirmed. The boost is
// never folded into the raw probability.
func (t *Tracker) SignificanceScore(ctx context.Context, level float64) (float64, error) {
	prob, err := t.ProbabilityOf(ctx, level)
	if err != nil {
		return 0, err
	}

	rec, err := t.store.GetLevel(ctx, t.symbol, level)
	if err != nil {
		return 0, err
	}
	boost := 0.0
	if rec != nil && len(rec.Touches) > 0 {
		confirmed := 0
		for _, touch := range rec.Touches {
			if touch.VolumeConfirmed {
				confirmed++
			}
		}
		boost = t.cfg.VolumeBoostMax * float64(confirmed) / float64(len(rec.Touches))
	}
	return prob.Probability * (1 + boost), nil
}

// modelProbability is the canonical probability-by-touch-count rule
func (t *Tracker) modelProbability(count int) float64 {
	tiers := t.cfg.ModelProbabilities
	if len(tiers) == 0 {
		tiers = DefaultConfig().ModelProbabilities
	}
	if count < 1 {
		count = 1
	}
	if count > len(tiers) {
		count = len(tiers)
	}
	return tiers[count-1]
}

func (t *Tracker) classify(price, level float64, hint TouchClass) TouchClass {
	if !finite(price) || price <= 0 {
		if hint != "" {
			return hint
		}
		return TouchPenetration
	}
	dist := math.Abs(price-level) / level
	switch {
	case dist <= t.cfg.ExactPct:
		return TouchExact
	case dist <= t.cfg.NearPct:
		return TouchNear
	default:
		return TouchPenetration
	}
}

func (t *Tracker) recomputeStats(rec *LevelRecord) LevelStats {
	stats := LevelStats{
		Symbol:     rec.Symbol,
		Level:      rec.Level,
		TouchCount: len(rec.Touches),
		Age:        ageFor(len(rec.Touches)),
	}

	var reactionSum float64
	var reactions int
	var weightedHolds, weightedTotal float64
	for _, touch := range rec.Touches {
		if touch.Timestamp.After(stats.LastTouch) {
			stats.LastTouch = touch.Timestamp
		}
		if !touch.OutcomeRecorded {
			continue
		}
		reactionSum += math.Abs(touch.SubsequentMove)
		reactions++

		// Volume-confirmed touches count double in the weighted rate
		weight := 1.0
		if touch.VolumeConfirmed {
			weight = 2.0
		}
		weightedTotal += weight
		if touch.Held {
			stats.HoldCount++
			weightedHolds += weight
		}
	}

	if stats.TouchCount > 0 {
		stats.HoldRate = float64(stats.HoldCount) / float64(stats.TouchCount)
	}
	if reactions > 0 {
		stats.AvgReaction = reactionSum / float64(reactions)
	}
	if weightedTotal > 0 {
		stats.VolumeWeightedHoldRate = weightedHolds / weightedTotal
	}
	return stats
}

func confidenceFor(count int) Confidence {
	switch {
	case count <= 1:
		return ConfidenceHigh
	case count <= 3:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func ageFor(priorTouches int) LevelAge {
	switch {
	case priorTouches == 0:
		return AgeFresh
	case priorTouches == 1:
		return AgeTestedOnce
	case priorTouches <= 3:
		return AgeEstablished
	default:
		return AgeHeavilyTested
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
