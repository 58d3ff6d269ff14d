package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"dutch_auction/internal/domain"
	"dutch_auction/internal/event"
	"dutch_auction/internal/settlement"
	"dutch_auction/internal/storage"
	"dutch_auction/pkg/chain"
)

// auctionRecordKey is where the current state row lives in the record table.
const auctionRecordKey = "auction"

// Handler is the program's single-threaded message processor: the actor
// entrypoint. The host runtime delivers messages one at a time; Run drains
// the inbox in delivery order and every mutation completes before the next
// message is dequeued, so no intermediate phase is ever visible to a
// subsequent message.
type Handler struct {
	inbox     chan event.Message
	auction   *domain.Auction
	coord     *settlement.Coordinator
	store     *storage.Store
	onReply   func(event.Reply)
	nextSeq   uint64
	followups []event.Message

	mu sync.RWMutex // Used only for external reads (Snapshot)
}

// NewHandler creates a handler. store may be nil for in-memory runs; onReply
// receives exactly one reply per inbound request message.
func NewHandler(inboxSize int, auction *domain.Auction, coord *settlement.Coordinator, store *storage.Store, onReply func(event.Reply)) *Handler {
	return &Handler{
		inbox:   make(chan event.Message, inboxSize),
		auction: auction,
		coord:   coord,
		store:   store,
		onReply: onReply,
		nextSeq: 1,
	}
}

// Inbox returns the message channel. Transports send inbound messages here.
func (h *Handler) Inbox() chan<- event.Message {
	return h.inbox
}

// Run starts the main message loop. This MUST be run in a single goroutine.
func (h *Handler) Run(ctx context.Context) {
	slog.Info("Handler started (single-thread message loop)")

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			h.DumpState("panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Handler stopping...")
			return
		case m := <-h.inbox:
			h.processMessage(m, true)
		}
	}
}

// RecoverFromWAL rebuilds the auction state by replaying every message from
// the WAL through the same dispatch path as live traffic. Replay issues no
// registry calls and emits no replies: the recorded TransferReply messages
// in the WAL carry the outcomes forward.
func (h *Handler) RecoverFromWAL(ctx context.Context) error {
	if h.store == nil {
		slog.Info("No store configured, starting fresh")
		return nil
	}

	lastSeq, err := h.store.GetLastSeq(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last seq: %w", err)
	}
	if lastSeq == 0 {
		slog.Info("WAL is empty, starting fresh")
		return nil
	}

	messages, err := h.store.LoadMessages(ctx, 1)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	slog.Info("Replaying messages from WAL", slog.Int("count", len(messages)))
	for _, m := range messages {
		h.processMessage(m, false)
	}
	slog.Info("State recovered from WAL",
		slog.Uint64("next_seq", h.nextSeq),
		slog.String("phase", h.auction.Phase.String()),
	)

	h.checkRecordDrift(ctx)
	return nil
}

// checkRecordDrift compares the replayed state against the last persisted
// record row byte for byte. Any difference, pending settlement included,
// means replay is no longer deterministic. Reports whether drift was found.
func (h *Handler) checkRecordDrift(ctx context.Context) bool {
	raw, err := h.store.LoadRecord(ctx, auctionRecordKey)
	if err != nil || raw == "" {
		return false
	}
	replayed, err := json.Marshal(h.auction)
	if err != nil {
		slog.Warn("RECORD_UNREADABLE", slog.Any("error", err))
		return false
	}
	if string(replayed) != raw {
		slog.Warn("RECORD_DRIFT_DETECTED",
			slog.String("recorded", raw),
			slog.String("replayed", string(replayed)),
		)
		return true
	}
	return false
}

func (h *Handler) processMessage(m event.Message, live bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.processLocked(m, live)

	// Internally generated messages (a transfer call that failed to issue)
	// run through the same pipeline so the WAL records their outcome.
	for len(h.followups) > 0 {
		next := h.followups[0]
		h.followups = h.followups[1:]
		h.processLocked(next, live)
	}
}

func (h *Handler) processLocked(m event.Message, live bool) {
	if live {
		// The handler is the authority on delivery order.
		m.StampSeq(h.nextSeq)
		if m.GetTs() == 0 {
			// Transports stamp the host timestamp at delivery; backstop
			// with local time so price derivation never sees zero.
			if bm, ok := m.(interface{ StampTs(chain.Timestamp) }); ok {
				bm.StampTs(chain.Timestamp(time.Now().UnixMilli()))
			}
		}
	} else if m.GetSeq() != h.nextSeq {
		panic(fmt.Sprintf("REPLAY_GAP_DETECTED: expected %d, got %d", h.nextSeq, m.GetSeq()))
	}

	// WAL-first: a message that cannot be persisted is never acted upon.
	if live && h.store != nil {
		if err := h.store.SaveMessage(context.Background(), m); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
	}

	h.dispatch(m, live)

	if live && h.store != nil {
		h.persistRecord(m.GetTs())
	}

	h.nextSeq++
}

func (h *Handler) dispatch(m event.Message, live bool) {
	switch m := m.(type) {
	case *event.StartMessage:
		h.emit(h.handleStart(m), live)
	case *event.BuyMessage:
		reply, deferred, followup := h.coord.Begin(context.Background(), m, live)
		if !deferred {
			h.emit(reply, live)
		}
		if followup != nil {
			h.followups = append(h.followups, followup)
		}
	case *event.StopMessage:
		h.emit(h.handleStop(m), live)
	case *event.InfoMessage:
		h.emit(h.handleInfo(m), live)
	case *event.TransferReplyMessage:
		// The registry's reply settles our own outbound call; the only
		// reply owed is the deferred one to the original buyer.
		if reply, ok := h.coord.Resolve(m); ok {
			h.emit(reply, live)
		}
	default:
		slog.Warn("Unknown message type", slog.Any("kind", m.GetKind()))
	}
}

func (h *Handler) handleStart(m *event.StartMessage) event.Reply {
	if err := h.auction.Start(m.Source, m.Ts); err != nil {
		return event.ErrReply(m.Source, m.ReplyID, 0, err)
	}
	slog.Info("AUCTION_STARTED",
		slog.Int64("started_at", int64(h.auction.StartedAt)),
		slog.Int64("expires_at", int64(h.auction.ExpiresAt)),
	)
	return event.Reply{
		To:      m.Source,
		ReplyID: m.ReplyID,
		Started: &event.StartedPayload{
			StartedAt: h.auction.StartedAt,
			ExpiresAt: h.auction.ExpiresAt,
			Price:     h.auction.Config.StartingPrice,
			TokenID:   h.auction.Config.TokenID,
		},
	}
}

func (h *Handler) handleStop(m *event.StopMessage) event.Reply {
	if err := h.auction.Stop(m.Source, m.Ts); err != nil {
		return event.ErrReply(m.Source, m.ReplyID, 0, err)
	}
	slog.Info("AUCTION_STOPPED", slog.String("owner", string(h.auction.Owner)))
	return event.Reply{
		To:      m.Source,
		ReplyID: m.ReplyID,
		Stopped: &event.StoppedPayload{
			Owner:   h.auction.Owner,
			TokenID: h.auction.Config.TokenID,
		},
	}
}

func (h *Handler) handleInfo(m *event.InfoMessage) event.Reply {
	info := h.auction.Info(m.Ts)
	return event.Reply{To: m.Source, ReplyID: m.ReplyID, Info: &info}
}

func (h *Handler) emit(r event.Reply, live bool) {
	if live && h.onReply != nil {
		h.onReply(r)
	}
}

func (h *Handler) persistRecord(ts chain.Timestamp) {
	data, err := json.Marshal(h.auction)
	if err != nil {
		slog.Error("Failed to marshal auction record", slog.Any("error", err))
		return
	}
	if err := h.store.SaveRecord(context.Background(), auctionRecordKey, string(data), int64(ts)); err != nil {
		// The WAL already holds the message; the record row is only a
		// convenience view, so log and continue.
		slog.Warn("Failed to persist auction record", slog.Any("error", err))
	}
}

// Snapshot returns a copy of the auction record for external readers.
func (h *Handler) Snapshot() domain.Auction {
	h.mu.RLock()
	defer h.mu.RUnlock()

	a := *h.auction
	if a.Pending != nil {
		ps := *a.Pending
		a.Pending = &ps
	}
	return a
}

// GetNextSeq returns the next expected sequence number (external read).
func (h *Handler) GetNextSeq() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.nextSeq
}

// ProcessForTest runs one message through the live path synchronously.
func (h *Handler) ProcessForTest(m event.Message) {
	h.processMessage(m, true)
}

// DumpState writes the auction record to a file (for post-mortem).
func (h *Handler) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextSeq uint64          `json:"next_seq"`
		Auction *domain.Auction `json:"auction"`
	}{
		NextSeq: h.nextSeq,
		Auction: h.auction,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
