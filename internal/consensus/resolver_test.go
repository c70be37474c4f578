package consensus

import (
	"context"
	"math"
	"testing"

	"gamma-trading-bot/internal/gamma"
	"gamma-trading-bot/internal/touch"
)

// stubTracker is a fixed probability table standing in for the touch tracker
type stubTracker struct {
	probs map[float64]float64
}

func (s *stubTracker) ProbabilityOf(_ context.Context, level float64) (*touch.Probability, error) {
	p, ok := s.probs[level]
	if !ok {
		p = 0.90 // fresh level
	}
	return &touch.Probability{
		Level:       level,
		TouchCount:  1,
		Probability: p,
		Confidence:  touch.ConfidenceHigh,
		Age:         touch.AgeFresh,
	}, nil
}

func fptr(f float64) *float64 { return &f }

func keyLevelsFixture() gamma.KeyLevels {
	return gamma.KeyLevels{
		GammaFlip: fptr(95),
		CallWall:  fptr(110),
		PutWall:   fptr(90),
		KingNode:  fptr(110),
		Nodes: []gamma.Node{
			{Level: 110, Kind: gamma.NodeKingNode, Exposure: 5e6},
			{Level: 90, Kind: gamma.NodeGatekeeper, Exposure: 2e6},
			{Level: 95, Kind: gamma.NodeGammaFlip},
		},
	}
}

func TestUnifyAnnotatesOnlyEngineNodes(t *testing.T) {
	resolver := NewResolver(nil)
	tracker := &stubTracker{probs: map[float64]float64{110: 0.66, 90: 0.33}}

	state, err := resolver.Unify(context.Background(), "SPY", nil, keyLevelsFixture(), tracker, 100, VolumeInput{})
	if err != nil {
		t.Fatal(err)
	}

	if len(state.Nodes) != 3 {
		t.Fatalf("unified nodes = %d, want the engine's 3", len(state.Nodes))
	}
	for _, node := range state.Nodes {
		switch node.Level {
		case 110:
			if node.TouchProbability != 0.66 {
				t.Errorf("node 110 probability = %v, want 0.66", node.TouchProbability)
			}
		case 90:
			if node.TouchProbability != 0.33 {
				t.Errorf("node 90 probability = %v, want 0.33", node.TouchProbability)
			}
		}
	}
}

func TestConsensusBounded(t *testing.T) {
	resolver := NewResolver(nil)
	tracker := &stubTracker{probs: map[float64]float64{110: 1.0, 90: 1.0}}

	inputs := []struct {
		price  float64
		volume VolumeInput
	}{
		{100, VolumeInput{}},
		{120, VolumeInput{Current: 10, Baseline: 1}}, // everything maxed
		{80, VolumeInput{Current: 0, Baseline: 1}},   // everything floored
	}
	for _, in := range inputs {
		state, err := resolver.Unify(context.Background(), "SPY", nil, keyLevelsFixture(), tracker, in.price, in.volume)
		if err != nil {
			t.Fatal(err)
		}
		if state.Consensus < 0 || state.Consensus > 100 {
			t.Errorf("consensus %v out of [0,100] at price %v", state.Consensus, in.price)
		}
	}
}

// TestGammaScoreRules exercises the flip-regime and call-wall adjustments
func TestGammaScoreRules(t *testing.T) {
	resolver := NewResolver(nil)
	levels := keyLevelsFixture()

	cases := []struct {
		name  string
		price float64
		want  float64
	}{
		{"above flip, near wall", 100, 50 + 15 + 10},
		{"above flip, above wall", 115, 50 + 15 + 20},
		{"below flip, far from wall", 85, 50 - 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state, err := resolver.Unify(context.Background(), "SPY", nil, levels, nil, tc.price, VolumeInput{})
			if err != nil {
				t.Fatal(err)
			}
			if state.GammaScore != tc.want {
				t.Errorf("gamma score = %v, want %v", state.GammaScore, tc.want)
			}
		})
	}
}

// TestTouchScoreSingleCounting: the touch score reacts only to node hold
// probabilities; flip and wall placement never reach it.
func TestTouchScoreSingleCounting(t *testing.T) {
	resolver := NewResolver(nil)
	tracker := &stubTracker{probs: map[float64]float64{110: 0.9, 90: 0.8}}

	withFlip := keyLevelsFixture()
	withoutFlip := keyLevelsFixture()
	withoutFlip.GammaFlip = nil
	withoutFlip.CallWall = nil
	withoutFlip.Nodes = withoutFlip.Nodes[:2] // drop the flip node

	a, err := resolver.Unify(context.Background(), "SPY", nil, withFlip, tracker, 100, VolumeInput{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := resolver.Unify(context.Background(), "SPY", nil, withoutFlip, tracker, 100, VolumeInput{})
	if err != nil {
		t.Fatal(err)
	}

	if a.TouchScore != b.TouchScore {
		t.Errorf("flip and wall placement leaked into touch score: %v vs %v", a.TouchScore, b.TouchScore)
	}
	// support at 90 holding (0.8) +12, resistance at 110 holding (0.9) -16
	want := 50.0 + (0.8-0.5)*40 - (0.9-0.5)*40
	if math.Abs(a.TouchScore-want) > 1e-9 {
		t.Errorf("touch score = %v, want %v", a.TouchScore, want)
	}
}

func TestCoinFlipLevelContributesNothing(t *testing.T) {
	resolver := NewResolver(nil)
	tracker := &stubTracker{probs: map[float64]float64{110: 0.5, 90: 0.5}}

	state, err := resolver.Unify(context.Background(), "SPY", nil, keyLevelsFixture(), tracker, 100, VolumeInput{})
	if err != nil {
		t.Fatal(err)
	}
	if state.TouchScore != 50 {
		t.Errorf("touch score = %v, want baseline 50 for 50%% levels", state.TouchScore)
	}
}

func TestBiasThresholds(t *testing.T) {
	cases := []struct {
		consensus float64
		want      Bias
	}{
		{65, BiasBullish},
		{60, BiasBullish},
		{50, BiasNeutral},
		{40, BiasBearish},
		{30, BiasBearish},
	}
	for _, tc := range cases {
		var bias Bias
		switch {
		case tc.consensus >= 60:
			bias = BiasBullish
		case tc.consensus <= 40:
			bias = BiasBearish
		default:
			bias = BiasNeutral
		}
		if bias != tc.want {
			t.Errorf("consensus %v: bias %s, want %s", tc.consensus, bias, tc.want)
		}
	}
}

// TestAvoidBelowMinimumConsensus: any state under the threshold must come
// back as a structurally complete avoid.
func TestAvoidBelowMinimumConsensus(t *testing.T) {
	resolver := NewResolver(nil)

	for _, consensus := range []float64{0, 35, 69.9} {
		state := &MarketState{
			Symbol:          "SPY",
			UnderlyingPrice: 100,
			Consensus:       consensus,
			Nodes: []UnifiedNode{
				{Level: 105, Kind: gamma.NodeKingNode, TouchProbability: 0.95},
			},
		}
		rec := resolver.Recommend(state)
		if rec == nil {
			t.Fatal("recommendation must never be nil")
		}
		if rec.Action != ActionAvoid {
			t.Errorf("consensus %v: action = %s, want avoid", consensus, rec.Action)
		}
		if rec.Reason == "" {
			t.Error("avoid recommendation must state a reason")
		}
		if rec.ConsensusScore != consensus {
			t.Errorf("attributed consensus = %v, want %v", rec.ConsensusScore, consensus)
		}
	}
}

func TestRecommendBuyTowardUpsideNode(t *testing.T) {
	resolver := NewResolver(nil)

	state := &MarketState{
		Symbol:          "SPY",
		UnderlyingPrice: 100,
		Consensus:       80,
		Nodes: []UnifiedNode{
			{Level: 105, Kind: gamma.NodeKingNode, TouchProbability: 0.9},
		},
	}
	rec := resolver.Recommend(state)

	if rec.Action != ActionBuy {
		t.Fatalf("action = %s, want buy", rec.Action)
	}
	if rec.Target != 105 {
		t.Errorf("target = %v, want 105", rec.Target)
	}
	if rec.Stop != 97.5 {
		t.Errorf("stop = %v, want 97.5", rec.Stop)
	}
	if rec.SuccessProbability != 0.9 {
		t.Errorf("probability = %v, want 0.9", rec.SuccessProbability)
	}
	if rec.RiskReward != 2 {
		t.Errorf("risk/reward = %v, want 2", rec.RiskReward)
	}
	if math.Abs(rec.PositionFraction-0.09) > 1e-9 {
		t.Errorf("position fraction = %v, want 0.09 (max 0.10 scaled by 0.9)", rec.PositionFraction)
	}
}

// TestDownsideProbabilityInverted: a strongly-holding support below price
// argues against selling toward it.
func TestDownsideProbabilityInverted(t *testing.T) {
	resolver := NewResolver(nil)

	state := &MarketState{
		Symbol:          "SPY",
		UnderlyingPrice: 100,
		Consensus:       80,
		Nodes: []UnifiedNode{
			{Level: 95, Kind: gamma.NodeGatekeeper, TouchProbability: 0.9},
		},
	}
	rec := resolver.Recommend(state)

	// inverted prob 0.1: EV = 0.1*5 - 0.9*2.5 < 0, so no trade
	if rec.Action != ActionHold {
		t.Errorf("action = %s, want hold when the only node has negative EV", rec.Action)
	}
	if rec.Reason == "" {
		t.Error("hold must state a reason")
	}
}

func TestWeakSupportInvitesDownsideTrade(t *testing.T) {
	resolver := NewResolver(nil)

	state := &MarketState{
		Symbol:          "SPY",
		UnderlyingPrice: 100,
		Consensus:       80,
		Nodes: []UnifiedNode{
			{Level: 95, Kind: gamma.NodeGatekeeper, TouchProbability: 0.2},
		},
	}
	rec := resolver.Recommend(state)

	if rec.Action != ActionSell {
		t.Fatalf("action = %s, want sell toward a weak support", rec.Action)
	}
	if rec.SuccessProbability != 0.8 {
		t.Errorf("probability = %v, want inverted 0.8", rec.SuccessProbability)
	}
	if rec.Stop != 102.5 {
		t.Errorf("stop = %v, want 102.5", rec.Stop)
	}
}

func TestDistantNodesIgnored(t *testing.T) {
	resolver := NewResolver(nil)

	state := &MarketState{
		Symbol:          "SPY",
		UnderlyingPrice: 100,
		Consensus:       80,
		Nodes: []UnifiedNode{
			{Level: 200, Kind: gamma.NodeKingNode, TouchProbability: 0.95},
		},
	}
	rec := resolver.Recommend(state)
	if rec.Action != ActionHold {
		t.Errorf("action = %s, want hold when the only node is out of range", rec.Action)
	}
}

func TestHighestExpectedValueNodeWins(t *testing.T) {
	resolver := NewResolver(nil)

	state := &MarketState{
		Symbol:          "SPY",
		UnderlyingPrice: 100,
		Consensus:       80,
		Nodes: []UnifiedNode{
			{Level: 103, Kind: gamma.NodeGatekeeper, TouchProbability: 0.8}, // EV = 0.8*3 - 0.2*1.5 = 2.1
			{Level: 110, Kind: gamma.NodeKingNode, TouchProbability: 0.7},  // EV = 0.7*10 - 0.3*5 = 5.5
		},
	}
	rec := resolver.Recommend(state)
	if rec.Target != 110 {
		t.Errorf("target = %v, want the higher-EV node at 110", rec.Target)
	}
}
