package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"dutch_auction/internal/domain"
	"dutch_auction/internal/event"
	"dutch_auction/internal/ledger"
	"dutch_auction/internal/settlement"
	"dutch_auction/internal/storage"
)

func newStoredHarness(t *testing.T, store *storage.Store) *harness {
	t.Helper()
	auction, err := domain.NewAuction(ownerID, defaultConfig())
	if err != nil {
		t.Fatalf("NewAuction failed: %v", err)
	}
	hn := &harness{auction: auction, book: ledger.NewLedger(), reg: &captureRegistry{}}
	coord := settlement.NewCoordinator(programID, auction, hn.book, hn.reg)
	hn.h = NewHandler(16, auction, coord, store, func(r event.Reply) {
		hn.replies = append(hn.replies, r)
	})
	return hn
}

// TestHandler_Replay_EmptyWAL verifies recovery is a no-op on a fresh store.
func TestHandler_Replay_EmptyWAL(t *testing.T) {
	store, err := storage.NewStore(t.TempDir() + "/empty.db")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	hn := newStoredHarness(t, store)
	if err := hn.h.RecoverFromWAL(context.Background()); err != nil {
		t.Fatalf("RecoverFromWAL failed on empty WAL: %v", err)
	}
	if hn.h.GetNextSeq() != 1 {
		t.Errorf("next seq = %d; want 1", hn.h.GetNextSeq())
	}
	if hn.h.Snapshot().Phase != domain.PhaseCreated {
		t.Errorf("phase = %s; want CREATED", hn.h.Snapshot().Phase)
	}
}

// TestHandler_Replay_FullLifecycle runs a complete sale live, then rebuilds a
// second handler from the same WAL and compares state.
func TestHandler_Replay_FullLifecycle(t *testing.T) {
	dbPath := t.TempDir() + "/lifecycle.db"
	store, err := storage.NewStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	// Live run: start, failed buy, accepted buy, registry confirmation.
	live := newStoredHarness(t, store)
	live.h.ProcessForTest(&event.StartMessage{BaseMessage: base(ownerID, 1_000_000)})
	live.h.ProcessForTest(&event.BuyMessage{BaseMessage: base(buyerID, 1_010_000), Value: 10})
	live.h.ProcessForTest(&event.BuyMessage{BaseMessage: base(buyerID, 1_050_000), Value: 2000})

	pending := live.h.Snapshot().Pending
	if pending == nil {
		t.Fatal("no pending settlement in live run")
	}
	live.h.ProcessForTest(&event.TransferReplyMessage{
		BaseMessage: event.BaseMessage{Ts: 1_051_000, Source: "registry-1"},
		CallID:      pending.CallID,
		OK:          true,
	})

	liveState := live.h.Snapshot()
	if liveState.Phase != domain.PhasePurchased {
		t.Fatalf("live run did not finish: phase %s", liveState.Phase)
	}

	// Recovery run: same WAL, fresh everything.
	replayed := newStoredHarness(t, store)
	if err := replayed.h.RecoverFromWAL(context.Background()); err != nil {
		t.Fatalf("RecoverFromWAL failed: %v", err)
	}

	replayedState := replayed.h.Snapshot()
	if replayedState.Phase != liveState.Phase {
		t.Errorf("phase mismatch: live %s, replayed %s", liveState.Phase, replayedState.Phase)
	}
	if replayedState.Buyer != liveState.Buyer {
		t.Errorf("buyer mismatch: live %s, replayed %s", liveState.Buyer, replayedState.Buyer)
	}
	if replayedState.SalePrice != liveState.SalePrice {
		t.Errorf("sale price mismatch: live %s, replayed %s", liveState.SalePrice, replayedState.SalePrice)
	}
	if replayed.h.GetNextSeq() != live.h.GetNextSeq() {
		t.Errorf("next seq mismatch: live %d, replayed %d", live.h.GetNextSeq(), replayed.h.GetNextSeq())
	}

	// Replay must not touch the outside world.
	if len(replayed.reg.calls) != 0 {
		t.Errorf("replay issued %d registry calls", len(replayed.reg.calls))
	}
	if len(replayed.replies) != 0 {
		t.Errorf("replay emitted %d replies", len(replayed.replies))
	}
}

// TestHandler_Replay_PendingSettlementSurvives checks a crash between the buy
// and the registry reply recovers into the same pending state, and the
// recorded reply still correlates after recovery.
func TestHandler_Replay_PendingSettlementSurvives(t *testing.T) {
	dbPath := t.TempDir() + "/pending.db"
	store, err := storage.NewStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	live := newStoredHarness(t, store)
	live.h.ProcessForTest(&event.StartMessage{BaseMessage: base(ownerID, 1_000_000)})
	live.h.ProcessForTest(&event.BuyMessage{BaseMessage: base(buyerID, 1_000_000), Value: 1500})
	livePending := live.h.Snapshot().Pending
	if livePending == nil {
		t.Fatal("no pending settlement in live run")
	}

	replayed := newStoredHarness(t, store)
	if err := replayed.h.RecoverFromWAL(context.Background()); err != nil {
		t.Fatalf("RecoverFromWAL failed: %v", err)
	}

	replayedPending := replayed.h.Snapshot().Pending
	if replayedPending == nil {
		t.Fatal("pending settlement lost in replay")
	}
	if replayedPending.CallID != livePending.CallID {
		t.Errorf("call id mismatch: live %s, replayed %s", livePending.CallID, replayedPending.CallID)
	}

	// The registry reply arriving after recovery settles the sale.
	replayed.h.ProcessForTest(&event.TransferReplyMessage{
		BaseMessage: event.BaseMessage{Ts: 1_001_000, Source: "registry-1"},
		CallID:      replayedPending.CallID,
		OK:          true,
	})
	if replayed.h.Snapshot().Phase != domain.PhasePurchased {
		t.Errorf("post-recovery settlement failed: phase %s", replayed.h.Snapshot().Phase)
	}
	replayed.book.VerifyConservation()
}

// TestHandler_Replay_IssueFailureMatchesLive runs a buy whose transfer call
// fails to issue, then rebuilds from the WAL. The revert travels through the
// log as a failed registry reply, so both runs land on the same open auction
// with nothing pending.
func TestHandler_Replay_IssueFailureMatchesLive(t *testing.T) {
	dbPath := t.TempDir() + "/issuefail.db"
	store, err := storage.NewStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	live := newStoredHarness(t, store)
	live.reg.issueErr = errors.New("link down")
	live.h.ProcessForTest(&event.StartMessage{BaseMessage: base(ownerID, 1_000_000)})
	live.h.ProcessForTest(&event.BuyMessage{BaseMessage: base(buyerID, 1_050_000), Value: 2000})

	// The failure resolved the buy synchronously: full refund, auction open.
	r := live.lastReply(t)
	if r.Err == nil || r.Err.Kind != string(domain.KindTransferFailed) {
		t.Fatalf("buy reply = %+v; want TRANSFER_FAILED", r)
	}
	if r.Value != 2000 {
		t.Errorf("refund = %s; want full 2000", r.Value)
	}
	liveState := live.h.Snapshot()
	if liveState.Phase != domain.PhaseStarted || liveState.Pending != nil {
		t.Fatalf("live state: phase %s pending %v", liveState.Phase, liveState.Pending)
	}
	live.book.VerifyConservation()

	// Recovery must land on the same state: the synthesized failure consumed
	// a sequence slot and its revert replays from the WAL.
	replayed := newStoredHarness(t, store)
	if err := replayed.h.RecoverFromWAL(context.Background()); err != nil {
		t.Fatalf("RecoverFromWAL failed: %v", err)
	}
	replayedState := replayed.h.Snapshot()
	if replayedState.Phase != liveState.Phase {
		t.Errorf("phase mismatch: live %s, replayed %s", liveState.Phase, replayedState.Phase)
	}
	if replayedState.Pending != nil {
		t.Errorf("replayed state holds a stale pending settlement: %+v", replayedState.Pending)
	}
	if replayed.h.GetNextSeq() != live.h.GetNextSeq() {
		t.Errorf("next seq mismatch: live %d, replayed %d", live.h.GetNextSeq(), replayed.h.GetNextSeq())
	}

	// The recovered node still sells: a fresh buy is accepted and reaches
	// the registry.
	replayed.h.ProcessForTest(&event.BuyMessage{BaseMessage: base(buyerID, 1_060_000), Value: 2000})
	if replayed.h.Snapshot().Pending == nil {
		t.Error("buy after recovery was not accepted")
	}
	if len(replayed.reg.calls) != 1 {
		t.Errorf("registry calls after recovery = %d; want 1", len(replayed.reg.calls))
	}
}

// TestHandler_RecordDriftDetection checks the byte-for-byte comparison of the
// replayed state against the persisted record row.
func TestHandler_RecordDriftDetection(t *testing.T) {
	dbPath := t.TempDir() + "/drift.db"
	store, err := storage.NewStore(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	live := newStoredHarness(t, store)
	live.h.ProcessForTest(&event.StartMessage{BaseMessage: base(ownerID, 1_000_000)})
	live.h.ProcessForTest(&event.BuyMessage{BaseMessage: base(buyerID, 1_000_000), Value: 1500})

	replayed := newStoredHarness(t, store)
	if err := replayed.h.RecoverFromWAL(context.Background()); err != nil {
		t.Fatalf("RecoverFromWAL failed: %v", err)
	}
	if replayed.h.checkRecordDrift(context.Background()) {
		t.Error("clean recovery reported drift")
	}

	// A record differing in any field, the pending settlement included, must
	// be flagged even when phase and buyer still agree.
	tampered := replayed.h.Snapshot()
	tampered.Pending = nil
	raw, err := json.Marshal(&tampered)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := store.SaveRecord(context.Background(), auctionRecordKey, string(raw), 1_000_000); err != nil {
		t.Fatalf("SaveRecord failed: %v", err)
	}
	if !replayed.h.checkRecordDrift(context.Background()) {
		t.Error("record differing in pending settlement not flagged as drift")
	}
}
