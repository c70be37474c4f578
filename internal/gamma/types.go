package gamma

import "time"

// OptionKind identifies the side of an option contract
type OptionKind string

const (
	Call OptionKind = "call"
	Put  OptionKind = "put"
)

// OptionContract is a single normalized contract from the chain snapshot.
// Immutable once ingested.
type OptionContract struct {
	Strike       float64    `json:"strike"`
	Kind         OptionKind `json:"kind"`
	OpenInterest int64      `json:"open_interest"`
	Gamma        float64    `json:"gamma"`
	Volume       int64      `json:"volume"`
}

// OptionChainSnapshot is the full chain for one underlying at one observation time
type OptionChainSnapshot struct {
	Symbol     string           `json:"symbol"`
	ObservedAt time.Time        `json:"observed_at"`
	Contracts  []OptionContract `json:"contracts"`
}

// StrikeExposure is the per-strike exposure row. A fresh table is produced on
// every analysis run; rows are never mutated in place.
type StrikeExposure struct {
	Strike        float64 `json:"strike"`
	CallExposure  float64 `json:"call_exposure"`
	PutExposure   float64 `json:"put_exposure"`
	NetExposure   float64 `json:"net_exposure"`
	OpenInterest  int64   `json:"open_interest"`
	VolumeWeight  float64 `json:"volume_weight"` // combined volume x OI weight
	DistanceSpot  float64 `json:"distance_spot"` // strike - underlying price
}

// NodeKind classifies a structurally significant level
type NodeKind string

const (
	NodeKingNode   NodeKind = "king_node"
	NodeGatekeeper NodeKind = "gatekeeper"
	NodeGammaFlip  NodeKind = "gamma_flip"
)

// VolRegime labels which side of the gamma flip the market is trading on
type VolRegime string

const (
	RegimeSuppressed VolRegime = "suppressed" // spot above flip: dealers dampen moves
	RegimeAmplified  VolRegime = "amplified"  // spot below flip: dealers chase moves
)

// Node is one classified level in the KeyLevels map
type Node struct {
	Level    float64  `json:"level"`
	Kind     NodeKind `json:"kind"`
	Exposure float64  `json:"exposure"` // supporting absolute net exposure
}

// KeyLevels holds the derived significant levels for one snapshot.
// Any pointer field may be nil when the chain carried no signal for it;
// callers must check before use.
type KeyLevels struct {
	GammaFlip      *float64  `json:"gamma_flip,omitempty"`
	FlipConfidence float64   `json:"flip_confidence"`
	Regime         VolRegime `json:"regime,omitempty"`
	CallWall       *float64  `json:"call_wall,omitempty"`
	PutWall        *float64  `json:"put_wall,omitempty"`
	KingNode       *float64  `json:"king_node,omitempty"`
	Nodes          []Node    `json:"nodes"`

	// DealerPreferenceStrike is the alternative king-node heuristic
	// (max volume-weighted exposure). Reported as a separate metric and
	// never used for node classification.
	DealerPreferenceStrike *float64 `json:"dealer_preference_strike,omitempty"`
}
