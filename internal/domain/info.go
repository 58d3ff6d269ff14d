package domain

import (
	"dutch_auction/pkg/chain"
	"dutch_auction/pkg/safe"
)

// AuctionInfo is the read-only view returned for an Info query. Prices are
// derived from the query timestamp, never stored.
type AuctionInfo struct {
	Registry          chain.ActorID   `json:"registry"`
	TokenID           chain.TokenID   `json:"token_id"`
	Owner             chain.ActorID   `json:"owner"`
	Phase             string          `json:"phase"`
	StartingPrice     chain.Value     `json:"starting_price,string"`
	CurrentPrice      chain.Value     `json:"current_price,string"`
	DiscountRate      chain.Value     `json:"discount_rate,string"`
	FloorPrice        chain.Value     `json:"floor_price,string"`
	StartedAt         chain.Timestamp `json:"started_at,omitempty"`
	ExpiresAt         chain.Timestamp `json:"expires_at,omitempty"`
	TimeLeftMs        int64           `json:"time_left_ms"`
	SettlementPending bool            `json:"settlement_pending"`
	Buyer             chain.ActorID   `json:"buyer,omitempty"`
	SalePrice         chain.Value     `json:"sale_price,string,omitempty"`
}

// Info snapshots the auction for the given query timestamp.
func (a *Auction) Info(now chain.Timestamp) AuctionInfo {
	info := AuctionInfo{
		Registry:          a.Config.Registry,
		TokenID:           a.Config.TokenID,
		Owner:             a.Owner,
		Phase:             a.Phase.String(),
		StartingPrice:     a.Config.StartingPrice,
		CurrentPrice:      a.Price(now),
		DiscountRate:      a.Config.DiscountRate,
		FloorPrice:        a.Config.FloorPrice,
		StartedAt:         a.StartedAt,
		ExpiresAt:         a.ExpiresAt,
		SettlementPending: a.Pending != nil,
		Buyer:             a.Buyer,
		SalePrice:         a.SalePrice,
	}
	if a.Phase == PhaseStarted {
		info.TimeLeftMs = int64(safe.SatSub(uint64(a.ExpiresAt), uint64(now)))
	}
	return info
}
