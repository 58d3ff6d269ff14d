package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"dutch_auction/internal/domain"
	"dutch_auction/internal/event"
	"dutch_auction/internal/ledger"
	"dutch_auction/internal/registry"
	"dutch_auction/pkg/chain"
	"dutch_auction/pkg/safe"
)

// DustThreshold is the smallest overpayment remainder worth sending back.
// Remainders below it stay with the proceeds instead of costing a transfer.
const DustThreshold chain.Value = 500

// Coordinator drives the two-step exchange for a single buy: payment is
// collected up front, the asset transfer is requested from the registry, and
// the registry's reply decides whether the sale finalizes or reverts.
//
// Settlement cannot be atomic across program boundaries. The coordinator's
// job is recoverability: a buy that does not finalize always returns the full
// payment to the buyer, and the single-pending invariant makes a concurrent
// second sale impossible.
type Coordinator struct {
	program  chain.ActorID
	auction  *domain.Auction
	book     *ledger.Ledger
	registry registry.Registry
}

// NewCoordinator wires the coordinator to the auction record, the value
// ledger and the asset-registry boundary.
func NewCoordinator(program chain.ActorID, auction *domain.Auction, book *ledger.Ledger, reg registry.Registry) *Coordinator {
	return &Coordinator{
		program:  program,
		auction:  auction,
		book:     book,
		registry: reg,
	}
}

// Begin validates a buy and, when accepted, records the pending settlement
// and issues the transfer call. It returns the immediate reply and whether
// the final answer is deferred until the registry responds. During replay
// (live=false) the call is not re-issued: the recorded reply will follow in
// the WAL.
//
// When the call fails to issue, the pending marker stays in place and the
// failure is returned as a synthesized registry reply. The handler runs it
// through the same pipeline as a real reply, so the revert is recorded in
// the WAL and replay re-derives it instead of diverging.
func (c *Coordinator) Begin(ctx context.Context, m *event.BuyMessage, live bool) (event.Reply, bool, event.Message) {
	// The runtime credited the attached value to the program with delivery.
	c.book.Deposit(c.program, m.Value)

	price, err := c.auction.CanBuy(m.Value, m.Ts)
	if err != nil {
		c.payOut(m.Source, m.Value)
		return event.ErrReply(m.Source, m.ReplyID, m.Value, err), false, nil
	}

	ps := &domain.PendingSettlement{
		CallID:  callID(m.Seq),
		Buyer:   m.Source,
		Paid:    m.Value,
		Price:   price,
		ReplyID: m.ReplyID,
	}
	c.auction.BeginSettlement(ps)

	slog.Info("SETTLEMENT_BEGIN",
		slog.String("call_id", ps.CallID),
		slog.String("buyer", string(ps.Buyer)),
		slog.String("price", ps.Price.String()),
	)

	if !live {
		return event.Reply{}, true, nil
	}

	cfg := c.auction.Config
	call := registry.TransferCall{
		CallID:   ps.CallID,
		From:     c.program,
		Registry: cfg.Registry,
		TokenID:  cfg.TokenID,
		To:       m.Source,
	}
	if err := c.registry.Transfer(ctx, call); err != nil {
		// The call never left the program. The revert must go through the
		// log like any other outcome, so hand back a failure reply for the
		// handler to process instead of mutating state here.
		slog.Warn("SETTLEMENT_ISSUE_FAILED", slog.String("call_id", ps.CallID), slog.Any("error", err))
		failure := &event.TransferReplyMessage{
			BaseMessage: event.BaseMessage{Ts: m.Ts, Source: c.program},
			CallID:      ps.CallID,
			OK:          false,
			Detail:      fmt.Sprintf("registry unreachable: %v", err),
		}
		return event.Reply{}, true, failure
	}
	return event.Reply{}, true, nil
}

// Resolve consumes the registry's reply for the pending settlement and
// produces the deferred answer to the original buyer. Replies that match no
// pending call are ignored: they are stale duplicates or answers to a
// settlement already resolved.
func (c *Coordinator) Resolve(m *event.TransferReplyMessage) (event.Reply, bool) {
	ps := c.auction.Pending
	if ps == nil || ps.CallID != m.CallID {
		slog.Warn("SETTLEMENT_REPLY_UNMATCHED", slog.String("call_id", m.CallID))
		return event.Reply{}, false
	}

	if !m.OK {
		// Transfer rejected: full refund, auction stays open.
		c.auction.RevertSale()
		c.payOut(ps.Buyer, ps.Paid)
		slog.Info("SETTLEMENT_REVERTED",
			slog.String("call_id", ps.CallID),
			slog.String("detail", m.Detail),
		)
		rejection := domain.Errf(domain.KindTransferFailed, "transfer failed: %s", m.Detail)
		return event.ErrReply(ps.Buyer, ps.ReplyID, ps.Paid, rejection), true
	}

	// Ownership changed: proceeds to the owner, remainder back to the buyer.
	refund := chain.Value(safe.SatSub(uint64(ps.Paid), uint64(ps.Price)))
	if refund < DustThreshold {
		refund = 0
	}
	c.payOut(c.auction.Owner, ps.Price)
	if refund > 0 {
		c.payOut(ps.Buyer, refund)
	}
	c.auction.FinalizeSale()

	slog.Info("SETTLEMENT_FINALIZED",
		slog.String("call_id", ps.CallID),
		slog.String("buyer", string(ps.Buyer)),
		slog.String("price", ps.Price.String()),
		slog.String("refund", refund.String()),
	)
	return event.Reply{
		To:      ps.Buyer,
		ReplyID: ps.ReplyID,
		Value:   refund,
		Bought:  &event.BoughtPayload{Buyer: ps.Buyer, Price: ps.Price},
	}, true
}

func (c *Coordinator) payOut(to chain.ActorID, amount chain.Value) {
	if err := c.book.Transfer(c.program, to, amount); err != nil {
		// The program holds every coin it collected; running short here
		// means the settlement accounting itself is broken. Halt.
		panic(fmt.Sprintf("SETTLEMENT_LEDGER_FAILURE: %v", err))
	}
}

// callID derives the correlation id from the buy's sequence number, so a WAL
// replay regenerates the identical id and the recorded reply still matches.
func callID(seq uint64) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("settlement-%d", seq))).String()
}
