package domain

import (
	"encoding/json"
	"fmt"

	"dutch_auction/pkg/chain"
	"dutch_auction/pkg/safe"
)

// Phase is the auction's position in its lifecycle state machine.
// Created -> Started -> Purchased | Stopped. No transition leaves a terminal
// phase.
type Phase uint8

const (
	PhaseCreated Phase = iota
	PhaseStarted
	PhasePurchased
	PhaseStopped
)

var phaseNames = map[Phase]string{
	PhaseCreated:   "CREATED",
	PhaseStarted:   "STARTED",
	PhasePurchased: "PURCHASED",
	PhaseStopped:   "STOPPED",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE(%d)", uint8(p))
}

// Terminal reports whether no further transition is permitted.
func (p Phase) Terminal() bool {
	return p == PhasePurchased || p == PhaseStopped
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for phase, name := range phaseNames {
		if name == s {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", s)
}

// AuctionConfig is immutable after creation.
// DiscountRate is expressed in value units shed per second of elapsed time.
type AuctionConfig struct {
	Registry      chain.ActorID `json:"registry"`
	TokenID       chain.TokenID `json:"token_id"`
	StartingPrice chain.Value   `json:"starting_price,string"`
	DiscountRate  chain.Value   `json:"discount_rate,string"`
	FloorPrice    chain.Value   `json:"floor_price,string"`
	DurationSec   uint64        `json:"duration_sec"`
}

// Validate enforces the creation invariants: starting price above the floor,
// positive duration, and a discount rate fast enough for the price to reach
// the floor within the auction window.
func (c AuctionConfig) Validate() error {
	if c.Registry.IsZero() {
		return Errf(KindBadRequest, "registry address is not set")
	}
	if c.DurationSec == 0 {
		return Errf(KindBadRequest, "duration must be positive")
	}
	if c.DiscountRate == 0 {
		return Errf(KindBadRequest, "discount rate must be positive")
	}
	if c.StartingPrice <= c.FloorPrice {
		return Errf(KindBadRequest, "starting price %s must exceed floor %s",
			c.StartingPrice, c.FloorPrice)
	}
	totalDiscount := safe.SatMul(uint64(c.DiscountRate), c.DurationSec)
	if safe.SatSub(uint64(c.StartingPrice), totalDiscount) > uint64(c.FloorPrice) {
		return Errf(KindBadRequest,
			"discount rate %s too low: price cannot reach floor %s within %d seconds",
			c.DiscountRate, c.FloorPrice, c.DurationSec)
	}
	return nil
}

// FloorHold reports whether the floor acts as a reserve: with a non-zero
// floor the auction never expires, the ask simply holds at the floor after
// the decay window. With a zero floor a buy at or after the deadline is
// rejected as expired.
func (c AuctionConfig) FloorHold() bool {
	return c.FloorPrice > 0
}

// PendingSettlement marks a buy that awaits the asset registry's reply.
// At most one exists per auction: a second buy while one is outstanding is
// rejected, which is what makes concurrent sales impossible.
type PendingSettlement struct {
	CallID  string        `json:"call_id"`
	Buyer   chain.ActorID `json:"buyer"`
	Paid    chain.Value   `json:"paid,string"`
	Price   chain.Value   `json:"price,string"`
	ReplyID string        `json:"reply_id,omitempty"`
}

// Auction is the single durable record of the program. It is owned by the
// message handler and mutated only through the validated transitions below;
// every mutation happens with a host-provided timestamp, never wall-clock
// reads inside this package.
type Auction struct {
	Owner     chain.ActorID      `json:"owner"`
	Config    AuctionConfig      `json:"config"`
	Phase     Phase              `json:"phase"`
	StartedAt chain.Timestamp    `json:"started_at"`
	ExpiresAt chain.Timestamp    `json:"expires_at"`
	Buyer     chain.ActorID      `json:"buyer,omitempty"`
	SalePrice chain.Value        `json:"sale_price,string"`
	Pending   *PendingSettlement `json:"pending,omitempty"`
}

// NewAuction validates the config and builds the record in phase Created.
func NewAuction(owner chain.ActorID, cfg AuctionConfig) (*Auction, error) {
	if owner.IsZero() {
		return nil, Errf(KindBadRequest, "owner address is not set")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Auction{
		Owner:  owner,
		Config: cfg,
		Phase:  PhaseCreated,
	}, nil
}

// Start moves Created -> Started, recording the host-provided timestamp.
func (a *Auction) Start(caller chain.ActorID, now chain.Timestamp) error {
	if caller != a.Owner {
		return Errf(KindUnauthorized, "only the owner %s may start the auction", a.Owner)
	}
	if a.Phase != PhaseCreated {
		return Errf(KindAlreadyStarted, "auction is %s", a.Phase)
	}
	a.Phase = PhaseStarted
	a.StartedAt = now
	a.ExpiresAt = now + chain.Timestamp(a.Config.DurationSec*1000)
	return nil
}

// Price quotes the current ask. Before the start it is the starting price.
func (a *Auction) Price(now chain.Timestamp) chain.Value {
	if a.Phase == PhaseCreated {
		return a.Config.StartingPrice
	}
	return CurrentPrice(a.Config, a.StartedAt, now)
}

// Expired reports whether a buy arriving now must be rejected on timing.
// Detected lazily per inbound message: the runtime has no timer primitive.
func (a *Auction) Expired(now chain.Timestamp) bool {
	if a.Phase != PhaseStarted || a.Config.FloorHold() {
		return false
	}
	return now >= a.ExpiresAt
}

// CanBuy validates a buy request against the current phase, timing, the
// single-settlement invariant and the offered payment. On success it returns
// the accepted price derived at now. The record is never mutated here.
func (a *Auction) CanBuy(paid chain.Value, now chain.Timestamp) (chain.Value, error) {
	if a.Phase != PhaseStarted {
		return 0, Errf(KindNotStarted, "auction is %s", a.Phase)
	}
	if a.Pending != nil {
		return 0, Errf(KindSettlementInProgress, "a sale is awaiting registry confirmation")
	}
	if a.Expired(now) {
		return 0, Errf(KindExpired, "auction expired at %d", a.ExpiresAt)
	}
	price := a.Price(now)
	if paid < price {
		return 0, Errf(KindInsufficientPayment, "offered %s below current price %s", paid, price)
	}
	return price, nil
}

// BeginSettlement attaches the single in-flight settlement marker.
func (a *Auction) BeginSettlement(ps *PendingSettlement) {
	if a.Pending != nil {
		panic("AUCTION_DOUBLE_SETTLEMENT") // CanBuy must run first
	}
	a.Pending = ps
}

// FinalizeSale moves Started -> Purchased once the registry confirmed the
// transfer, recording buyer and price from the pending marker.
func (a *Auction) FinalizeSale() {
	ps := a.Pending
	if ps == nil {
		panic("AUCTION_FINALIZE_WITHOUT_PENDING")
	}
	a.Phase = PhasePurchased
	a.Buyer = ps.Buyer
	a.SalePrice = ps.Price
	a.Pending = nil
}

// RevertSale destroys the pending marker after a failed transfer. The phase
// stays Started and the auction remains open for the next buyer.
func (a *Auction) RevertSale() {
	a.Pending = nil
}

// Stop moves Started -> Stopped. A stop during an in-flight settlement is
// rejected rather than delayed: abandoning a half-completed sale would leave
// the asset and the payment on different sides.
func (a *Auction) Stop(caller chain.ActorID, now chain.Timestamp) error {
	if caller != a.Owner {
		return Errf(KindUnauthorized, "only the owner %s may stop the auction", a.Owner)
	}
	if a.Phase != PhaseStarted {
		return Errf(KindNotStarted, "auction is %s", a.Phase)
	}
	if a.Pending != nil {
		return Errf(KindSettlementInProgress, "a sale is awaiting registry confirmation")
	}
	a.Phase = PhaseStopped
	return nil
}
