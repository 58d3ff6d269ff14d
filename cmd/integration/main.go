package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dutch_auction/internal/domain"
	"dutch_auction/internal/engine"
	"dutch_auction/internal/event"
	"dutch_auction/internal/ledger"
	"dutch_auction/internal/registry"
	"dutch_auction/internal/settlement"
	"dutch_auction/pkg/chain"
)

// End-to-end scenario against the in-process registry: full lifecycle, one
// failed buy, one successful sale with overpayment, then conservation and
// ownership checks. Exits non-zero on the first mismatch.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	slog.Info("🚀 Starting auction integration scenario...")

	const (
		programID = chain.ActorID("auction-program")
		ownerID   = chain.ActorID("owner-1")
		buyerID   = chain.ActorID("buyer-1")
		strangeID = chain.ActorID("stranger-1")
		regID     = chain.ActorID("asset-registry")
		tokenID   = chain.TokenID(7)
	)

	cfg := domain.AuctionConfig{
		Registry:      regID,
		TokenID:       tokenID,
		StartingPrice: 1_000_000,
		DiscountRate:  1_000,
		FloorPrice:    100_000,
		DurationSec:   3600,
	}

	auction, err := domain.NewAuction(ownerID, cfg)
	if err != nil {
		fail("auction creation", err)
	}

	book := ledger.NewLedger()
	replies := make(chan event.Reply, 16)

	var h *engine.Handler
	reg := registry.NewInProcRegistry(regID, func(m event.Message) { h.Inbox() <- m })
	reg.Mint(tokenID, ownerID)
	reg.Approve(tokenID, programID)

	coord := settlement.NewCoordinator(programID, auction, book, reg)
	h = engine.NewHandler(64, auction, coord, nil, func(r event.Reply) { replies <- r })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	now := chain.Timestamp(time.Now().UnixMilli())
	base := func(src chain.ActorID) event.BaseMessage {
		return event.BaseMessage{Ts: now, Source: src}
	}

	// 1. Stranger cannot start.
	h.Inbox() <- &event.StartMessage{BaseMessage: base(strangeID)}
	expectErr(await(replies), string(domain.KindUnauthorized), "stranger start")

	// 2. Owner starts.
	h.Inbox() <- &event.StartMessage{BaseMessage: base(ownerID)}
	r := await(replies)
	if r.Started == nil {
		fail("owner start", fmt.Errorf("expected started payload, got %+v", r))
	}
	slog.Info("✅ Auction started", "price", r.Started.Price.String())

	// 3. Info reflects the running auction.
	h.Inbox() <- &event.InfoMessage{BaseMessage: base(buyerID)}
	r = await(replies)
	if r.Info == nil || r.Info.Phase != domain.PhaseStarted.String() {
		fail("info", fmt.Errorf("expected STARTED info, got %+v", r))
	}

	// 4. Underpaid buy is rejected with a full refund.
	h.Inbox() <- &event.BuyMessage{BaseMessage: base(buyerID), Value: 10}
	r = await(replies)
	expectErr(r, string(domain.KindInsufficientPayment), "underpaid buy")
	if r.Value != 10 {
		fail("underpaid refund", fmt.Errorf("expected refund 10, got %s", r.Value))
	}

	// 5. Overpaid buy settles through the registry.
	paid := cfg.StartingPrice + 50_000
	h.Inbox() <- &event.BuyMessage{BaseMessage: base(buyerID), Value: paid}
	r = await(replies)
	if r.Bought == nil {
		fail("buy", fmt.Errorf("expected bought payload, got %+v", r))
	}
	slog.Info("✅ Sale settled", "price", r.Bought.Price.String(), "refund", r.Value.String())

	// 6. Ownership moved and no value leaked.
	if got := reg.Owner(tokenID); got != buyerID {
		fail("ownership", fmt.Errorf("token owner is %s, want %s", got, buyerID))
	}
	book.VerifyConservation()
	ownerBal := book.BalanceOf(ownerID)
	buyerBal := book.BalanceOf(buyerID)
	if ownerBal != r.Bought.Price {
		fail("proceeds", fmt.Errorf("owner balance %s, want %s", ownerBal, r.Bought.Price))
	}
	expectedRefund := 10 + (paid - r.Bought.Price)
	if buyerBal != expectedRefund {
		fail("refunds", fmt.Errorf("buyer balance %s, want %s", buyerBal, expectedRefund))
	}

	// 7. The terminal phase rejects further control messages.
	h.Inbox() <- &event.StopMessage{BaseMessage: base(ownerID)}
	expectErr(await(replies), string(domain.KindNotStarted), "stop after purchase")

	snap := h.Snapshot()
	if snap.Phase != domain.PhasePurchased || snap.Buyer != buyerID {
		fail("final state", fmt.Errorf("phase %s buyer %s", snap.Phase, snap.Buyer))
	}

	slog.Info("✨ Integration scenario passed",
		"owner_proceeds", ownerBal.String(),
		"buyer_refunds", buyerBal.String(),
	)
}

func await(replies <-chan event.Reply) event.Reply {
	select {
	case r := <-replies:
		return r
	case <-time.After(5 * time.Second):
		fail("await reply", fmt.Errorf("timed out waiting for reply"))
		return event.Reply{}
	}
}

func expectErr(r event.Reply, kind, step string) {
	if r.Err == nil || r.Err.Kind != kind {
		fail(step, fmt.Errorf("expected %s error, got %+v", kind, r))
	}
	slog.Info("✅ Rejected as expected", "step", step, "kind", kind)
}

func fail(step string, err error) {
	slog.Error("❌ Scenario failed", "step", step, "error", err)
	os.Exit(1)
}
