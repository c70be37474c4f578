package consensus

import (
	"time"

	"gamma-trading-bot/internal/gamma"
	"gamma-trading-bot/internal/touch"
)

// Bias is the directional read of the consensus score
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
	BiasNeutral Bias = "neutral"
)

// Tier grades the consensus score
type Tier string

const (
	TierMaximum Tier = "maximum" // >= 95
	TierHigh    Tier = "high"    // >= 85
	TierMedium  Tier = "medium"  // >= 70
	TierLow     Tier = "low"     // below the tradeable threshold
)

// Action is the recommended course
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionHold  Action = "hold"
	ActionAvoid Action = "avoid"
)

// UnifiedNode is an exposure-engine level annotated with its touch
// probability. The exposure engine alone decides which levels appear here;
// the tracker only annotates them.
type UnifiedNode struct {
	Level           float64          `json:"level"`
	Kind            gamma.NodeKind   `json:"kind"`
	Exposure        float64          `json:"exposure"`
	TouchProbability float64         `json:"touch_probability"`
	TouchCount      int              `json:"touch_count"`
	TouchConfidence touch.Confidence `json:"touch_confidence"`
	Age             touch.LevelAge   `json:"age"`
}

// MarketState is the unified view produced by one analysis pass. Superseded,
// never mutated, by the next pass.
type MarketState struct {
	Symbol          string                 `json:"symbol"`
	Timestamp       time.Time              `json:"timestamp"`
	UnderlyingPrice float64                `json:"underlying_price"`
	Exposure        []gamma.StrikeExposure `json:"exposure"`
	KeyLevels       gamma.KeyLevels        `json:"key_levels"`
	Nodes           []UnifiedNode          `json:"nodes"`

	GammaScore  float64 `json:"gamma_score"`
	TouchScore  float64 `json:"touch_score"`
	VolumeScore float64 `json:"volume_score"`
	Consensus   float64 `json:"consensus"`

	Bias      Bias     `json:"bias"`
	Tier      Tier     `json:"tier"`
	Reasoning []string `json:"reasoning"`
}

// TradingRecommendation is the single actionable output of an analysis pass.
// Always structurally complete: a no-trade outcome is an explicit hold/avoid
// with a stated reason, never a missing result.
type TradingRecommendation struct {
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Instrument string  `json:"instrument"`
	Entry      float64 `json:"entry"`
	Stop       float64 `json:"stop"`
	Target     float64 `json:"target"`

	PositionFraction   float64 `json:"position_fraction"`
	SuccessProbability float64 `json:"success_probability"`
	RiskReward         float64 `json:"risk_reward"`

	// Attributed sub-scores that produced this recommendation
	GammaScore     float64 `json:"gamma_score"`
	TouchScore     float64 `json:"touch_score"`
	ConsensusScore float64 `json:"consensus_score"`

	Reason string `json:"reason"`
}
