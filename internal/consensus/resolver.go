package consensus

import (
	"context"
	"fmt"
	"math"
	"time"

	"gamma-trading-bot/internal/gamma"
	"gamma-trading-bot/internal/touch"
)

// ProbabilitySource is the slice of the touch tracker the resolver needs.
// The resolver looks up probabilities for levels the exposure engine already
// flagged; it never asks the tracker to nominate levels of its own.
type ProbabilitySource interface {
	ProbabilityOf(ctx context.Context, level float64) (*touch.Probability, error)
}

// Config holds the resolver weights and thresholds
type Config struct {
	GammaWeight  float64 // share of the gamma sub-score
	TouchWeight  float64 // share of the touch sub-score
	VolumeWeight float64 // share of the volume sub-score

	MinConsensus float64 // below this the recommendation is always avoid
	BullishAt    float64 // consensus at or above -> bullish
	BearishAt    float64 // consensus at or below -> bearish

	WallProximityPoints float64 // "near the call wall" distance
	MaxNodeDistance     float64 // nodes farther than this are not traded
	StopFraction        float64 // stop distance as a fraction of the target distance
	MaxPositionFraction float64 // hard cap on position size
}

// DefaultConfig returns the standard resolver parameters
func DefaultConfig() *Config {
	return &Config{
		GammaWeight:         0.4,
		TouchWeight:         0.4,
		VolumeWeight:        0.2,
		MinConsensus:        70,
		BullishAt:           60,
		BearishAt:           40,
		WallProximityPoints: 20,
		MaxNodeDistance:     50,
		StopFraction:        0.5,
		MaxPositionFraction: 0.10,
	}
}

// Resolver combines the exposure engine's view with the touch tracker's view
// into one MarketState and a single recommendation. Each evidence source
// feeds exactly one sub-score: the flip regime and wall proximity drive the
// gamma score only, level hold probabilities drive the touch score only, and
// traded volume drives the volume score only.
type Resolver struct {
	cfg *Config
}

// NewResolver creates a resolver. A nil config uses defaults.
func NewResolver(cfg *Config) *Resolver {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Resolver{cfg: cfg}
}

// VolumeInput carries the external volume evidence for the volume sub-score
type VolumeInput struct {
	Current  float64
	Baseline float64 // rolling baseline; zero means no volume evidence
}

// Unify builds the MarketState for one snapshot. The KeyLevels are the sole
// source of structurally significant levels.
func (r *Resolver) Unify(ctx context.Context, symbol string, exposure []gamma.StrikeExposure, keyLevels gamma.KeyLevels, tracker ProbabilitySource, underlyingPrice float64, volume VolumeInput) (*MarketState, error) {
	state := &MarketState{
		Symbol:          symbol,
		Timestamp:       time.Now().UTC(),
		UnderlyingPrice: underlyingPrice,
		Exposure:        exposure,
		KeyLevels:       keyLevels,
		Nodes:           make([]UnifiedNode, 0, len(keyLevels.Nodes)),
	}

	for _, node := range keyLevels.Nodes {
		unified := UnifiedNode{
			Level:    node.Level,
			Kind:     node.Kind,
			Exposure: node.Exposure,
		}
		if tracker != nil {
			prob, err := tracker.ProbabilityOf(ctx, node.Level)
			if err != nil {
				return nil, fmt.Errorf("annotate node %v: %w", node.Level, err)
			}
			unified.TouchProbability = prob.Probability
			unified.TouchCount = prob.TouchCount
			unified.TouchConfidence = prob.Confidence
			unified.Age = prob.Age
		}
		state.Nodes = append(state.Nodes, unified)
	}

	state.GammaScore = r.gammaScore(state)
	state.TouchScore = r.touchScore(state)
	state.VolumeScore = r.volumeScore(volume)
	state.Consensus = clamp(
		r.cfg.GammaWeight*state.GammaScore+
			r.cfg.TouchWeight*state.TouchScore+
			r.cfg.VolumeWeight*state.VolumeScore,
		0, 100)

	switch {
	case state.Consensus >= r.cfg.BullishAt:
		state.Bias = BiasBullish
	case state.Consensus <= r.cfg.BearishAt:
		state.Bias = BiasBearish
	default:
		state.Bias = BiasNeutral
	}
	state.Tier = tierFor(state.Consensus, r.cfg.MinConsensus)

	return state, nil
}

// gammaScore scores the dealer-positioning evidence: the flip regime and the
// call-wall relationship. These inputs are spent here and nowhere else.
func (r *Resolver) gammaScore(state *MarketState) float64 {
	score := 50.0
	levels := state.KeyLevels
	price := state.UnderlyingPrice

	if levels.GammaFlip != nil {
		if price > *levels.GammaFlip {
			score += 15
			state.Reasoning = append(state.Reasoning, "trading above gamma flip, volatility suppressed")
		} else {
			score -= 15
			state.Reasoning = append(state.Reasoning, "trading below gamma flip, volatility amplified")
		}
	}

	if levels.CallWall != nil {
		wall := *levels.CallWall
		switch {
		case price > wall:
			score += 20
			state.Reasoning = append(state.Reasoning, fmt.Sprintf("price above call wall %.2f", wall))
		case wall-price <= r.cfg.WallProximityPoints:
			score += 10
			state.Reasoning = append(state.Reasoning, fmt.Sprintf("price within %.0f points of call wall %.2f", r.cfg.WallProximityPoints, wall))
		}
	}

	return clamp(score, 0, 100)
}

// touchScore scores the level-hold evidence: the nearest node above and the
// nearest node below the current price. Support holding lifts the score;
// resistance holding weighs on it. The (prob - 0.5) * 40 scaling makes a
// coin-flip level contribute nothing.
func (r *Resolver) touchScore(state *MarketState) float64 {
	score := 50.0
	above, below := nearestNodes(state.Nodes, state.UnderlyingPrice)

	if below != nil && below.TouchProbability > 0 {
		score += (below.TouchProbability - 0.5) * 40
	}
	if above != nil && above.TouchProbability > 0 {
		score -= (above.TouchProbability - 0.5) * 40
	}

	return clamp(score, 0, 100)
}

// volumeScore maps observed volume against its rolling baseline onto 0-100,
// neutral at the baseline.
func (r *Resolver) volumeScore(volume VolumeInput) float64 {
	if volume.Baseline <= 0 || volume.Current < 0 {
		return 50
	}
	return clamp(50*volume.Current/volume.Baseline, 0, 100)
}

// Recommend derives the single recommendation for a MarketState. Consensus
// below the minimum threshold forces avoid; no positive-expected-value node
// yields an explicit hold.
func (r *Resolver) Recommend(state *MarketState) *TradingRecommendation {
	rec := &TradingRecommendation{
		Symbol:         state.Symbol,
		Action:         ActionAvoid,
		Entry:          state.UnderlyingPrice,
		GammaScore:     state.GammaScore,
		TouchScore:     state.TouchScore,
		ConsensusScore: state.Consensus,
	}

	if state.Consensus < r.cfg.MinConsensus {
		rec.Reason = fmt.Sprintf("consensus %.1f below minimum %.1f", state.Consensus, r.cfg.MinConsensus)
		return rec
	}

	type candidate struct {
		node UnifiedNode
		ev   float64
		prob float64
	}
	var best *candidate

	for _, node := range state.Nodes {
		if node.Kind == gamma.NodeGammaFlip {
			continue // regime marker, not a tradeable magnet
		}
		distance := math.Abs(node.Level - state.UnderlyingPrice)
		if distance == 0 || distance > r.cfg.MaxNodeDistance {
			continue
		}

		prob := node.TouchProbability
		if prob <= 0 {
			continue // never-annotated node: no touch evidence to price
		}
		if node.Level < state.UnderlyingPrice {
			// A level below price holding as support opposes the downside
			// trade toward it.
			prob = 1 - prob
		}

		reward := distance
		risk := distance * r.cfg.StopFraction
		ev := prob*reward - (1-prob)*risk
		if ev <= 0 {
			continue
		}
		if best == nil || ev > best.ev {
			best = &candidate{node: node, ev: ev, prob: prob}
		}
	}

	if best == nil {
		rec.Action = ActionHold
		rec.Reason = "no node within range offers positive expected value"
		return rec
	}

	node := best.node
	reward := math.Abs(node.Level - state.UnderlyingPrice)
	risk := reward * r.cfg.StopFraction

	rec.SuccessProbability = best.prob
	rec.Target = node.Level
	rec.RiskReward = reward / risk
	rec.PositionFraction = math.Min(r.cfg.MaxPositionFraction, r.cfg.MaxPositionFraction*best.prob)

	if node.Level > state.UnderlyingPrice {
		rec.Action = ActionBuy
		rec.Stop = state.UnderlyingPrice - risk
		rec.Instrument = fmt.Sprintf("%s upside toward %s %.2f", state.Symbol, node.Kind, node.Level)
	} else {
		rec.Action = ActionSell
		rec.Stop = state.UnderlyingPrice + risk
		rec.Instrument = fmt.Sprintf("%s downside toward %s %.2f", state.Symbol, node.Kind, node.Level)
	}
	rec.Reason = fmt.Sprintf("%s at %.2f, expected value %.2f", node.Kind, node.Level, best.ev)

	return rec
}

func nearestNodes(nodes []UnifiedNode, price float64) (above, below *UnifiedNode) {
	for i := range nodes {
		node := &nodes[i]
		if node.Kind == gamma.NodeGammaFlip {
			continue // already spent in the gamma score
		}
		if node.Level > price {
			if above == nil || node.Level < above.Level {
				above = node
			}
		} else if node.Level < price {
			if below == nil || node.Level > below.Level {
				below = node
			}
		}
	}
	return above, below
}

func tierFor(consensus, minConsensus float64) Tier {
	switch {
	case consensus >= 95:
		return TierMaximum
	case consensus >= 85:
		return TierHigh
	case consensus >= minConsensus:
		return TierMedium
	default:
		return TierLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
