package audit

import (
	"context"
	"fmt"

	"dutch_auction/internal/domain"
	"dutch_auction/internal/engine"
	"dutch_auction/internal/event"
	"dutch_auction/internal/ledger"
	"dutch_auction/internal/registry"
	"dutch_auction/internal/settlement"
	"dutch_auction/internal/storage"
	"dutch_auction/pkg/chain"
)

// Replayer reads a node's WAL offline and rebuilds the auction state from it,
// without touching the registry or emitting replies. Used to audit what a
// node did and to verify the log replays cleanly.
type Replayer struct {
	store *storage.Store
}

// MessageSummary is one WAL row in human-readable form.
type MessageSummary struct {
	Seq    uint64
	Kind   string
	Ts     chain.Timestamp
	Source chain.ActorID
	Value  chain.Value // payment attached, buy messages only
}

// NewReplayer opens the WAL database read-side.
func NewReplayer(dbPath string) (*Replayer, error) {
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	return &Replayer{store: store}, nil
}

// Close releases the store.
func (r *Replayer) Close() error {
	return r.store.Close()
}

// Summarize lists every message in the WAL in sequence order.
func (r *Replayer) Summarize(ctx context.Context) ([]MessageSummary, error) {
	messages, err := r.store.LoadMessages(ctx, 1)
	if err != nil {
		return nil, err
	}

	summaries := make([]MessageSummary, 0, len(messages))
	for _, m := range messages {
		s := MessageSummary{
			Seq:    m.GetSeq(),
			Kind:   m.GetKind().String(),
			Ts:     m.GetTs(),
			Source: m.GetSource(),
		}
		if buy, ok := m.(*event.BuyMessage); ok {
			s.Value = buy.Value
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// Rebuild replays the WAL into a fresh handler and returns the resulting
// auction state and the next expected sequence number. A replay gap or a
// drifted record row surfaces here the same way it would on node startup.
func (r *Replayer) Rebuild(ctx context.Context, owner chain.ActorID, cfg domain.AuctionConfig) (domain.Auction, uint64, error) {
	auction, err := domain.NewAuction(owner, cfg)
	if err != nil {
		return domain.Auction{}, 0, fmt.Errorf("auction config does not match this WAL: %w", err)
	}

	book := ledger.NewLedger()
	coord := settlement.NewCoordinator("audit", auction, book, registry.NewMockRegistry())
	h := engine.NewHandler(1, auction, coord, r.store, nil)

	if err := h.RecoverFromWAL(ctx); err != nil {
		return domain.Auction{}, 0, err
	}
	book.VerifyConservation()
	return h.Snapshot(), h.GetNextSeq(), nil
}
