package touch

import "time"

// TouchClass describes how closely price approached the level when it was
// tested. Purely descriptive metadata; it never feeds the probability model.
type TouchClass string

const (
	TouchExact       TouchClass = "exact"       // within 0.05% of the level
	TouchNear        TouchClass = "near"        // within 0.5%
	TouchPenetration TouchClass = "penetration" // traded through
)

// TouchEvent is one recorded test of a level. Append-only: it is patched at
// most once, to attach the hold-or-break outcome, and immutable after that.
type TouchEvent struct {
	ID              string     `json:"id"`
	Symbol          string     `json:"symbol"`
	Level           float64    `json:"level"`
	Price           float64    `json:"price"`
	Timestamp       time.Time  `json:"timestamp"`
	Class           TouchClass `json:"class"`
	VolumeConfirmed bool       `json:"volume_confirmed"`

	// Outcome fields, attached by RecordOutcome
	OutcomeRecorded bool    `json:"outcome_recorded"`
	Held            bool    `json:"held"`
	SubsequentMove  float64 `json:"subsequent_move"`
}

// LevelAge labels how worked-over a level is
type LevelAge string

const (
	AgeFresh         LevelAge = "fresh"          // 0 touches
	AgeTestedOnce    LevelAge = "tested_once"    // 1
	AgeEstablished   LevelAge = "established"    // 2-3
	AgeHeavilyTested LevelAge = "heavily_tested" // 4+
)

// Confidence tiers for a probability query
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"   // evaluating the 1st touch
	ConfidenceMedium Confidence = "medium" // 2nd or 3rd
	ConfidenceLow    Confidence = "low"    // 4th and beyond
)

// LevelStats is the aggregate view of one level's touch history. Recomputed
// from the full history whenever a touch or outcome lands; owned exclusively
// by the tracker.
type LevelStats struct {
	Symbol                 string    `json:"symbol"`
	Level                  float64   `json:"level"`
	TouchCount             int       `json:"touch_count"`
	HoldCount              int       `json:"hold_count"`
	HoldRate               float64   `json:"hold_rate"`
	LastTouch              time.Time `json:"last_touch"`
	AvgReaction            float64   `json:"avg_reaction"`
	VolumeWeightedHoldRate float64   `json:"volume_weighted_hold_rate"`
	Age                    LevelAge  `json:"age"`
}

// LevelRecord is the unit of persistence: one level's full history plus its
// derived stats.
type LevelRecord struct {
	Symbol  string       `json:"symbol"`
	Level   float64      `json:"level"`
	Touches []TouchEvent `json:"touches"`
	Stats   LevelStats   `json:"stats"`
}

// Probability is the answer to a hold-probability query for a level
type Probability struct {
	Level       float64    `json:"level"`
	TouchCount  int        `json:"touch_count"` // the touch being evaluated: prior touches + 1
	Probability float64    `json:"probability"`
	Confidence  Confidence `json:"confidence"`
	Age         LevelAge   `json:"age"`
}
