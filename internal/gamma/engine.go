package gamma

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrMalformedChain indicates a snapshot carrying non-finite or negative
// fields. Distinct from an empty chain, which is a valid "no data" result.
var ErrMalformedChain = errors.New("malformed option chain")

// Config holds the exposure engine parameters
type Config struct {
	ContractMultiplier    float64 // shares per contract, 100 for US equity options
	ReferenceVolumeWeight float64 // normalization scale for flip confidence and wall scaling
	WallProximityPoints   float64 // distance considered "near" a wall when scoring
}

// DefaultConfig returns the standard engine parameters
func DefaultConfig() *Config {
	return &Config{
		ContractMultiplier:    100,
		ReferenceVolumeWeight: 1_000_000,
		WallProximityPoints:   20,
	}
}

// Engine computes per-strike gamma exposure and derived key levels.
// Stateless per call; safe for concurrent use.
type Engine struct {
	cfg *Config
}

// NewEngine creates an exposure engine. A nil config uses defaults.
func NewEngine(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// ComputeExposure builds the per-strike exposure table and key levels for one
// snapshot. An empty chain yields an empty table and a KeyLevels value with
// all fields absent. A chain with non-finite or negative fields returns
// ErrMalformedChain and aborts this snapshot only.
func (e *Engine) ComputeExposure(chain *OptionChainSnapshot, underlyingPrice float64) ([]StrikeExposure, KeyLevels, error) {
	if !isFinite(underlyingPrice) || underlyingPrice <= 0 {
		return nil, KeyLevels{}, fmt.Errorf("%w: underlying price %v", ErrMalformedChain, underlyingPrice)
	}
	if chain == nil || len(chain.Contracts) == 0 {
		return []StrikeExposure{}, KeyLevels{}, nil
	}

	type sideAgg struct {
		callExp, putExp float64
		oi              int64
		volWeight       float64
	}
	byStrike := make(map[float64]*sideAgg, len(chain.Contracts))

	for i, c := range chain.Contracts {
		if err := validateContract(c); err != nil {
			return nil, KeyLevels{}, fmt.Errorf("contract %d (strike %v): %w", i, c.Strike, err)
		}
		agg := byStrike[c.Strike]
		if agg == nil {
			agg = &sideAgg{}
			byStrike[c.Strike] = agg
		}
		// Monetary exposure: OI x gamma x multiplier x spot. The spot factor
		// converts per-share gamma into notional terms; dropping it collapses
		// far-OTM and near-ATM strikes onto the same scale.
		notional := float64(c.OpenInterest) * c.Gamma * e.cfg.ContractMultiplier * underlyingPrice
		switch c.Kind {
		case Call:
			agg.callExp += notional
		case Put:
			agg.putExp += notional
		default:
			return nil, KeyLevels{}, fmt.Errorf("contract %d: %w: unknown kind %q", i, ErrMalformedChain, c.Kind)
		}
		agg.oi += c.OpenInterest
		agg.volWeight += float64(c.Volume) * float64(c.OpenInterest)
	}

	table := make([]StrikeExposure, 0, len(byStrike))
	for strike, agg := range byStrike {
		// Near-zero rows stay in the table; the flip is located by the sign
		// change between adjacent rows.
		table = append(table, StrikeExposure{
			Strike:       strike,
			CallExposure: agg.callExp,
			PutExposure:  agg.putExp,
			NetExposure:  agg.callExp - agg.putExp,
			OpenInterest: agg.oi,
			VolumeWeight: agg.volWeight,
			DistanceSpot: strike - underlyingPrice,
		})
	}
	sort.Slice(table, func(i, j int) bool { return table[i].Strike < table[j].Strike })

	levels := e.deriveKeyLevels(table, underlyingPrice)
	return table, levels, nil
}

func validateContract(c OptionContract) error {
	if !isFinite(c.Strike) || c.Strike <= 0 {
		return fmt.Errorf("%w: strike %v", ErrMalformedChain, c.Strike)
	}
	if !isFinite(c.Gamma) {
		return fmt.Errorf("%w: gamma %v", ErrMalformedChain, c.Gamma)
	}
	if c.OpenInterest < 0 {
		return fmt.Errorf("%w: negative open interest %d", ErrMalformedChain, c.OpenInterest)
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: negative volume %d", ErrMalformedChain, c.Volume)
	}
	return nil
}

func (e *Engine) deriveKeyLevels(table []StrikeExposure, underlyingPrice float64) KeyLevels {
	levels := KeyLevels{Nodes: []Node{}}
	if len(table) == 0 {
		return levels
	}

	e.detectGammaFlip(&levels, table, underlyingPrice)
	e.detectWalls(&levels, table, underlyingPrice)
	e.classifyNodes(&levels, table)
	e.dealerPreference(&levels, table)

	return levels
}

// detectGammaFlip walks strikes in ascending order and linearly interpolates
// the zero-crossing of net exposure. Rows with exactly zero exposure stay in
// the table but the crossing is interpolated between their nonzero neighbors.
// With multiple crossings the one nearest the current price wins.
func (e *Engine) detectGammaFlip(levels *KeyLevels, table []StrikeExposure, underlyingPrice float64) {
	nonzero := make([]StrikeExposure, 0, len(table))
	for _, row := range table {
		if row.NetExposure != 0 {
			nonzero = append(nonzero, row)
		}
	}

	var (
		best     *float64
		bestDist float64
		bestConf float64
	)
	for i := 0; i+1 < len(nonzero); i++ {
		lo, hi := nonzero[i], nonzero[i+1]
		if (lo.NetExposure > 0) == (hi.NetExposure > 0) {
			continue
		}
		absLo := math.Abs(lo.NetExposure)
		absHi := math.Abs(hi.NetExposure)
		flip := lo.Strike + (hi.Strike-lo.Strike)*absLo/(absLo+absHi)
		dist := math.Abs(flip - underlyingPrice)
		if best == nil || dist < bestDist {
			f := flip
			best = &f
			bestDist = dist
			bestConf = math.Min(1, (lo.VolumeWeight+hi.VolumeWeight)/e.cfg.ReferenceVolumeWeight)
		}
	}
	if best == nil {
		return
	}
	levels.GammaFlip = best
	levels.FlipConfidence = bestConf
	if underlyingPrice >= *best {
		levels.Regime = RegimeSuppressed
	} else {
		levels.Regime = RegimeAmplified
	}
}

// detectWalls finds the dominant positive and negative exposure strikes,
// volume-scaled, with nearest-to-spot as tie-break.
func (e *Engine) detectWalls(levels *KeyLevels, table []StrikeExposure, underlyingPrice float64) {
	var callWall, putWall *StrikeExposure
	var callScore, putScore float64

	for i := range table {
		row := &table[i]
		scale := 1 + row.VolumeWeight/e.cfg.ReferenceVolumeWeight
		score := math.Abs(row.NetExposure) * scale
		if row.NetExposure > 0 {
			if callWall == nil || score > callScore || (score == callScore && nearerSpot(row, callWall, underlyingPrice)) {
				callWall = row
				callScore = score
			}
		} else if row.NetExposure < 0 {
			if putWall == nil || score > putScore || (score == putScore && nearerSpot(row, putWall, underlyingPrice)) {
				putWall = row
				putScore = score
			}
		}
	}
	if callWall != nil {
		s := callWall.Strike
		levels.CallWall = &s
	}
	if putWall != nil {
		s := putWall.Strike
		levels.PutWall = &s
	}
}

// classifyNodes assigns the King Node (single max absolute net exposure,
// absent on an exact tie) and Gatekeeper nodes (walls distinct from the king),
// then tags the gamma flip with its regime node.
func (e *Engine) classifyNodes(levels *KeyLevels, table []StrikeExposure) {
	var king *StrikeExposure
	kingTied := false
	for i := range table {
		row := &table[i]
		abs := math.Abs(row.NetExposure)
		if abs == 0 {
			continue
		}
		switch {
		case king == nil || abs > math.Abs(king.NetExposure):
			king = row
			kingTied = false
		case abs == math.Abs(king.NetExposure):
			kingTied = true
		}
	}

	if king != nil && !kingTied {
		s := king.Strike
		levels.KingNode = &s
		levels.Nodes = append(levels.Nodes, Node{
			Level:    king.Strike,
			Kind:     NodeKingNode,
			Exposure: math.Abs(king.NetExposure),
		})
	}

	appendGatekeeper := func(wall *float64) {
		if wall == nil {
			return
		}
		if levels.KingNode != nil && *wall == *levels.KingNode {
			return
		}
		for i := range table {
			if table[i].Strike == *wall {
				levels.Nodes = append(levels.Nodes, Node{
					Level:    *wall,
					Kind:     NodeGatekeeper,
					Exposure: math.Abs(table[i].NetExposure),
				})
				return
			}
		}
	}
	appendGatekeeper(levels.CallWall)
	appendGatekeeper(levels.PutWall)

	if levels.GammaFlip != nil {
		levels.Nodes = append(levels.Nodes, Node{
			Level: *levels.GammaFlip,
			Kind:  NodeGammaFlip,
		})
	}
}

// dealerPreference reports the alternative king-node heuristic (max
// volume-weighted absolute exposure) as a standalone metric. It never feeds
// node classification.
func (e *Engine) dealerPreference(levels *KeyLevels, table []StrikeExposure) {
	var best *StrikeExposure
	var bestScore float64
	for i := range table {
		row := &table[i]
		score := math.Abs(row.NetExposure) * (1 + row.VolumeWeight/e.cfg.ReferenceVolumeWeight)
		if row.VolumeWeight == 0 {
			continue
		}
		if best == nil || score > bestScore {
			best = row
			bestScore = score
		}
	}
	if best != nil {
		s := best.Strike
		levels.DealerPreferenceStrike = &s
	}
}

func nearerSpot(a, b *StrikeExposure, spot float64) bool {
	return math.Abs(a.Strike-spot) < math.Abs(b.Strike-spot)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
