package provider

import (
	"context"
	"time"

	"gamma-trading-bot/internal/gamma"
)

// Interface is the options-data provider surface the analysis loop needs.
// Implementations must hand back normalized snapshots: numeric fields are
// valid numbers, and contracts with missing required fields are dropped and
// counted rather than silently zeroed.
type Interface interface {
	FetchChain(ctx context.Context, symbol string) (*gamma.OptionChainSnapshot, error)
	FetchQuote(ctx context.Context, symbol string) (*Quote, error)
}

// Quote is the current spot snapshot for an underlying
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`     // session volume so far
	AvgVolume float64   `json:"avg_volume"` // rolling baseline for the volume score
	Timestamp time.Time `json:"timestamp"`
}

// Tick is one spot price update from the stream
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// chainResponse is the provider wire format for an options chain
type chainResponse struct {
	Symbol    string         `json:"symbol"`
	UpdatedAt int64          `json:"updated_at"` // unix milliseconds
	Contracts []wireContract `json:"contracts"`
}

// wireContract uses pointers for numeric fields so a missing value is
// distinguishable from zero
type wireContract struct {
	Strike       *float64 `json:"strike"`
	Type         string   `json:"type"` // "call" or "put"
	OpenInterest *int64   `json:"open_interest"`
	Gamma        *float64 `json:"gamma"`
	Volume       *int64   `json:"volume"`
}

// quoteResponse is the provider wire format for a spot quote
type quoteResponse struct {
	Symbol    string   `json:"symbol"`
	Last      *float64 `json:"last"`
	Volume    *float64 `json:"volume"`
	AvgVolume *float64 `json:"avg_volume"`
	Timestamp int64    `json:"timestamp"`
}
