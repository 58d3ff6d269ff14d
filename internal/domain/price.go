package domain

import (
	"dutch_auction/pkg/chain"
	"dutch_auction/pkg/safe"
)

// CurrentPrice derives the ask price at a given host timestamp.
//
//	price(t) = max(floor, starting_price - discount_rate * elapsed_seconds)
//
// Pure function: identical inputs always produce identical outputs. It is
// invoked both to quote a price and to validate an offered payment, and those
// two calls may land on different timestamps, so callers must re-derive with
// a freshly read timestamp rather than cache the result across a message
// boundary. All arithmetic saturates: the price never underflows below the
// floor and never exceeds the starting price for t <= 0.
func CurrentPrice(cfg AuctionConfig, startedAt, now chain.Timestamp) chain.Value {
	elapsed := chain.ElapsedSeconds(startedAt, now)
	discount := safe.SatMul(uint64(cfg.DiscountRate), elapsed)
	price := safe.SatSub(uint64(cfg.StartingPrice), discount)
	if price < uint64(cfg.FloorPrice) {
		price = uint64(cfg.FloorPrice)
	}
	return chain.Value(price)
}
