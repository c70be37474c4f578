package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gamma-trading-bot/internal/consensus"
	"gamma-trading-bot/internal/gamma"
	"gamma-trading-bot/internal/touch"
)

// Offline chain analysis: feed a chain snapshot JSON and a spot price, get
// the exposure table, key levels and a recommendation on stdout. Useful for
// replaying saved snapshots without the full service running.
func main() {
	chainPath := flag.String("chain", "", "path to an options chain snapshot JSON file")
	price := flag.Float64("price", 0, "underlying spot price")
	asJSON := flag.Bool("json", false, "emit the full market state as JSON")
	flag.Parse()

	if *chainPath == "" || *price <= 0 {
		fmt.Fprintln(os.Stderr, "usage: analyze_chain -chain snapshot.json -price 661.74 [-json]")
		os.Exit(2)
	}

	data, err := os.ReadFile(*chainPath)
	if err != nil {
		fmt.Printf("Failed to read chain file: %v\n", err)
		os.Exit(1)
	}
	var chain gamma.OptionChainSnapshot
	if err := json.Unmarshal(data, &chain); err != nil {
		fmt.Printf("Failed to parse chain file: %v\n", err)
		os.Exit(1)
	}

	engine := gamma.NewEngine(gamma.DefaultConfig())
	exposure, keyLevels, err := engine.ComputeExposure(&chain, *price)
	if err != nil {
		fmt.Printf("Analysis failed: %v\n", err)
		os.Exit(1)
	}
	if len(exposure) == 0 {
		fmt.Println("Empty chain: nothing to analyze")
		return
	}

	// A fresh tracker: every level is scored as a first touch
	tracker := touch.NewTracker(chain.Symbol, touch.NewMemoryStore(), touch.DefaultConfig())
	resolver := consensus.NewResolver(consensus.DefaultConfig())
	state, err := resolver.Unify(context.Background(), chain.Symbol, exposure, keyLevels, tracker, *price, consensus.VolumeInput{})
	if err != nil {
		fmt.Printf("Consensus resolution failed: %v\n", err)
		os.Exit(1)
	}
	rec := resolver.Recommend(state)

	if *asJSON {
		out, _ := json.MarshalIndent(map[string]interface{}{
			"state":          state,
			"recommendation": rec,
		}, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("Symbol: %s  Spot: %.2f  Contracts: %d\n\n", chain.Symbol, *price, len(chain.Contracts))

	fmt.Println("Strike       Call GEX        Put GEX        Net GEX")
	for _, row := range exposure {
		fmt.Printf("%8.2f %14.0f %14.0f %14.0f\n", row.Strike, row.CallExposure, row.PutExposure, row.NetExposure)
	}
	fmt.Println()

	if keyLevels.GammaFlip != nil {
		fmt.Printf("Gamma flip:  %.2f (confidence %.2f, regime %s)\n", *keyLevels.GammaFlip, keyLevels.FlipConfidence, keyLevels.Regime)
	} else {
		fmt.Println("Gamma flip:  none detected")
	}
	if keyLevels.KingNode != nil {
		fmt.Printf("King node:   %.2f\n", *keyLevels.KingNode)
	}
	if keyLevels.CallWall != nil {
		fmt.Printf("Call wall:   %.2f\n", *keyLevels.CallWall)
	}
	if keyLevels.PutWall != nil {
		fmt.Printf("Put wall:    %.2f\n", *keyLevels.PutWall)
	}
	if keyLevels.DealerPreferenceStrike != nil {
		fmt.Printf("Dealer preference: %.2f\n", *keyLevels.DealerPreferenceStrike)
	}
	fmt.Println()

	fmt.Printf("Consensus: %.1f (gamma %.1f / touch %.1f / volume %.1f)  bias=%s tier=%s\n",
		state.Consensus, state.GammaScore, state.TouchScore, state.VolumeScore, state.Bias, state.Tier)
	fmt.Printf("Action: %s", rec.Action)
	if rec.Action == consensus.ActionBuy || rec.Action == consensus.ActionSell {
		fmt.Printf("  entry %.2f stop %.2f target %.2f (p=%.2f, rr=%.1f, size=%.0f%%)",
			rec.Entry, rec.Stop, rec.Target, rec.SuccessProbability, rec.RiskReward, rec.PositionFraction*100)
	}
	fmt.Printf("\nReason: %s\n", rec.Reason)
}
