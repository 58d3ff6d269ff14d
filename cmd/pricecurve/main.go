package main

import (
	"flag"
	"fmt"
	"os"

	"dutch_auction/internal/domain"
	"dutch_auction/pkg/chain"
)

// Prints the decay table for a price configuration so an owner can sanity
// check the curve before deploying it.
func main() {
	starting := flag.String("starting", "100", "starting price in coins")
	rate := flag.String("rate", "0.01", "discount per second in coins")
	floor := flag.String("floor", "10", "floor price in coins (0 for hard expiry)")
	duration := flag.Uint64("duration", 3600, "auction duration in seconds")
	steps := flag.Int("steps", 12, "number of rows to print")
	flag.Parse()

	cfg, err := buildConfig(*starting, *rate, *floor, *duration)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Dutch Auction Price Curve ===")
	fmt.Printf("starting %s | rate %s/s | floor %s | duration %ds\n",
		cfg.StartingPrice, cfg.DiscountRate, cfg.FloorPrice, cfg.DurationSec)
	if cfg.FloorHold() {
		fmt.Println("floor mode: holds at floor, never expires")
	} else {
		fmt.Println("floor mode: hard expiry at the deadline")
	}
	fmt.Println()

	startedAt := chain.Timestamp(0)
	step := cfg.DurationSec / uint64(*steps)
	if step == 0 {
		step = 1
	}

	fmt.Printf("%10s  %24s\n", "t (sec)", "ask")
	for t := uint64(0); t <= cfg.DurationSec; t += step {
		now := startedAt + chain.Timestamp(t*1000)
		price := domain.CurrentPrice(cfg, startedAt, now)
		fmt.Printf("%10d  %24s\n", t, price)
	}
	// One row past the deadline shows the hold (or the unreachable ask).
	past := startedAt + chain.Timestamp((cfg.DurationSec+step)*1000)
	fmt.Printf("%10d  %24s\n", cfg.DurationSec+step, domain.CurrentPrice(cfg, startedAt, past))
}

func buildConfig(starting, rate, floor string, duration uint64) (domain.AuctionConfig, error) {
	s, err := chain.ParseValue(starting)
	if err != nil {
		return domain.AuctionConfig{}, fmt.Errorf("starting: %w", err)
	}
	r, err := chain.ParseValue(rate)
	if err != nil {
		return domain.AuctionConfig{}, fmt.Errorf("rate: %w", err)
	}
	f, err := chain.ParseValue(floor)
	if err != nil {
		return domain.AuctionConfig{}, fmt.Errorf("floor: %w", err)
	}

	cfg := domain.AuctionConfig{
		Registry:      "curve-preview",
		TokenID:       1,
		StartingPrice: s,
		DiscountRate:  r,
		FloorPrice:    f,
		DurationSec:   duration,
	}
	return cfg, cfg.Validate()
}
