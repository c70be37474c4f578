package touch

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

func newTestTracker() *Tracker {
	return NewTracker("SPY", NewMemoryStore(), nil)
}

// TestModelProbabilityTiers checks the canonical 90/66/33/20 curve
func TestModelProbabilityTiers(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	cases := []struct {
		priorTouches int
		want         float64
	}{
		{0, 0.90},
		{1, 0.66},
		{2, 0.33},
		{3, 0.20},
		{4, 0.20},
		{7, 0.20},
	}

	for _, tc := range cases {
		level := 100.0 + float64(tc.priorTouches) // isolate levels per case
		for i := 0; i < tc.priorTouches; i++ {
			if _, err := tracker.RecordTouch(ctx, level, level, false, ""); err != nil {
				t.Fatalf("RecordTouch: %v", err)
			}
		}
		prob, err := tracker.ProbabilityOf(ctx, level)
		if err != nil {
			t.Fatalf("ProbabilityOf: %v", err)
		}
		if prob.Probability != tc.want {
			t.Errorf("%d prior touches: probability = %v, want %v", tc.priorTouches, prob.Probability, tc.want)
		}
		if prob.TouchCount != tc.priorTouches+1 {
			t.Errorf("%d prior touches: touch count = %d, want %d", tc.priorTouches, prob.TouchCount, tc.priorTouches+1)
		}
	}
}

// TestBlendedProbability replays the reference scenario: 4 touches, 3 holds,
// 1 break, queried on the 5th approach.
func TestBlendedProbability(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()
	level := 660.0

	outcomes := []bool{true, true, false, true}
	for range outcomes {
		if _, err := tracker.RecordTouch(ctx, level, level, false, ""); err != nil {
			t.Fatal(err)
		}
	}
	for _, held := range outcomes {
		if err := tracker.RecordOutcome(ctx, level, held, 2.5); err != nil {
			t.Fatal(err)
		}
	}

	prob, err := tracker.ProbabilityOf(ctx, level)
	if err != nil {
		t.Fatal(err)
	}
	// 0.7*0.20 + 0.3*0.75 = 0.365
	if math.Abs(prob.Probability-0.365) > 1e-9 {
		t.Errorf("blended probability = %v, want 0.365", prob.Probability)
	}

	stats, err := tracker.Stats(ctx, level)
	if err != nil {
		t.Fatal(err)
	}
	if stats.HoldCount != 3 || stats.TouchCount != 4 {
		t.Errorf("stats = %d/%d, want 3 holds of 4 touches", stats.HoldCount, stats.TouchCount)
	}
	if math.Abs(stats.HoldRate-0.75) > 1e-9 {
		t.Errorf("hold rate = %v, want 0.75", stats.HoldRate)
	}
}

// TestNoBlendBeforeOutcomes: raw model probability until an outcome exists
func TestNoBlendBeforeOutcomes(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()
	level := 450.0

	if _, err := tracker.RecordTouch(ctx, level, level, false, ""); err != nil {
		t.Fatal(err)
	}

	prob, err := tracker.ProbabilityOf(ctx, level)
	if err != nil {
		t.Fatal(err)
	}
	if prob.Probability != 0.66 {
		t.Errorf("probability = %v, want raw model 0.66 with no outcomes", prob.Probability)
	}
}

func TestOutcomeWithoutTouchIsError(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	err := tracker.RecordOutcome(ctx, 123.45, true, 1.0)
	if !errors.Is(err, ErrNoTouchHistory) {
		t.Fatalf("expected ErrNoTouchHistory, got %v", err)
	}

	// The failed call must not have created a synthetic record
	stats, err := tracker.Stats(ctx, 123.45)
	if err != nil {
		t.Fatal(err)
	}
	if stats != nil {
		t.Errorf("stats created for never-touched level: %+v", stats)
	}
}

func TestTouchClassification(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	cases := []struct {
		name  string
		price float64
		level float64
		want  TouchClass
	}{
		{"exact", 100.04, 100, TouchExact},       // 0.04%
		{"near", 100.3, 100, TouchNear},          // 0.3%
		{"penetration", 101.0, 100, TouchPenetration}, // 1%
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := tracker.RecordTouch(ctx, tc.price, tc.level, false, "")
			if err != nil {
				t.Fatal(err)
			}
			if event.Class != tc.want {
				t.Errorf("class = %s, want %s", event.Class, tc.want)
			}
		})
	}
}

func TestConfidenceAndAge(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()
	level := 200.0

	expect := []struct {
		conf Confidence
		age  LevelAge
	}{
		{ConfidenceHigh, AgeFresh},
		{ConfidenceMedium, AgeTestedOnce},
		{ConfidenceMedium, AgeEstablished},
		{ConfidenceLow, AgeEstablished},
		{ConfidenceLow, AgeHeavilyTested},
	}

	for i, want := range expect {
		prob, err := tracker.ProbabilityOf(ctx, level)
		if err != nil {
			t.Fatal(err)
		}
		if prob.Confidence != want.conf {
			t.Errorf("after %d touches: confidence = %s, want %s", i, prob.Confidence, want.conf)
		}
		if prob.Age != want.age {
			t.Errorf("after %d touches: age = %s, want %s", i, prob.Age, want.age)
		}
		if _, err := tracker.RecordTouch(ctx, level, level, false, ""); err != nil {
			t.Fatal(err)
		}
	}
}

// TestVolumeBoostRankingOnly: the boost shows up in the significance score,
// never in the raw probability
func TestVolumeBoostRankingOnly(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	plain, confirmed := 100.0, 110.0
	if _, err := tracker.RecordTouch(ctx, plain, plain, false, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.RecordTouch(ctx, confirmed, confirmed, true, ""); err != nil {
		t.Fatal(err)
	}

	probPlain, _ := tracker.ProbabilityOf(ctx, plain)
	probConfirmed, _ := tracker.ProbabilityOf(ctx, confirmed)
	if probPlain.Probability != probConfirmed.Probability {
		t.Errorf("volume confirmation must not change the raw probability: %v vs %v",
			probPlain.Probability, probConfirmed.Probability)
	}

	scorePlain, err := tracker.SignificanceScore(ctx, plain)
	if err != nil {
		t.Fatal(err)
	}
	scoreConfirmed, err := tracker.SignificanceScore(ctx, confirmed)
	if err != nil {
		t.Fatal(err)
	}
	if scoreConfirmed <= scorePlain {
		t.Errorf("volume-confirmed level should rank higher: %v vs %v", scoreConfirmed, scorePlain)
	}
	// Fully confirmed history gets the full 20% boost
	if math.Abs(scoreConfirmed-probConfirmed.Probability*1.20) > 1e-9 {
		t.Errorf("score = %v, want %v", scoreConfirmed, probConfirmed.Probability*1.20)
	}
}

func TestClassificationHintFallback(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()

	event, err := tracker.RecordTouch(ctx, math.NaN(), 100, false, TouchNear)
	if err != nil {
		t.Fatal(err)
	}
	if event.Class != TouchNear {
		t.Errorf("class = %s, want hint fallback near", event.Class)
	}
}

// TestConcurrentTouchesSameLevel hammers one level from many goroutines;
// every touch must survive the read-modify-write.
func TestConcurrentTouchesSameLevel(t *testing.T) {
	tracker := newTestTracker()
	ctx := context.Background()
	level := 500.0

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tracker.RecordTouch(ctx, level, level, false, ""); err != nil {
				t.Errorf("RecordTouch: %v", err)
			}
		}()
	}
	wg.Wait()

	stats, err := tracker.Stats(ctx, level)
	if err != nil {
		t.Fatal(err)
	}
	if stats == nil || stats.TouchCount != n {
		t.Fatalf("expected %d touches recorded, got %+v", n, stats)
	}
}
