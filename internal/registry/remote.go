package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"dutch_auction/internal/event"
	"dutch_auction/internal/infra"
	"dutch_auction/pkg/chain"
)

// RemoteRegistry talks to an external asset-registry node over a WebSocket
// link. Transfer calls go out as JSON frames; the registry's answers come
// back as frames that are turned into TransferReplyMessages and pushed into
// the handler inbox through deliver.
//
// Transfer fails fast when the link is down. The settlement path treats an
// issue failure as an immediate revert, which is safer than queueing a call
// whose reply may never correlate.
type RemoteRegistry struct {
	id      chain.ActorID
	url     string
	deliver func(event.Message)
	worker  *infra.BaseWSWorker
	breaker *infra.CircuitBreaker
}

var _ Registry = (*RemoteRegistry)(nil)

type transferFrame struct {
	Type string       `json:"type"`
	Call TransferCall `json:"call"`
}

type replyFrame struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// NewRemoteRegistry creates the client. Call Start before issuing transfers.
func NewRemoteRegistry(id chain.ActorID, url string, deliver func(event.Message)) *RemoteRegistry {
	r := &RemoteRegistry{
		id:      id,
		url:     url,
		deliver: deliver,
		breaker: infra.NewCircuitBreaker("registry-link", 5, 2, 30*time.Second),
	}
	r.worker = infra.NewBaseWSWorker(r)
	return r
}

// Start begins the connection loop (reconnects with backoff).
func (r *RemoteRegistry) Start(ctx context.Context) {
	r.worker.Start(ctx)
}

// Stop tears down the link.
func (r *RemoteRegistry) Stop() {
	r.worker.Stop()
}

// Transfer sends the call over the link. An error here means the call was
// never issued and no reply will follow.
func (r *RemoteRegistry) Transfer(ctx context.Context, call TransferCall) error {
	if !r.breaker.Allow() {
		return fmt.Errorf("registry link circuit open")
	}

	data, err := json.Marshal(transferFrame{Type: "transfer", Call: call})
	if err != nil {
		return fmt.Errorf("encode transfer call: %w", err)
	}
	if err := r.worker.Write(websocket.TextMessage, data); err != nil {
		r.breaker.RecordFailure()
		return fmt.Errorf("registry link down: %w", err)
	}
	r.breaker.RecordSuccess()
	slog.Info("REGISTRY_TRANSFER_SENT",
		slog.String("call_id", call.CallID),
		slog.Uint64("token_id", uint64(call.TokenID)),
	)
	return nil
}

// GetURL implements infra.WSHandler.
func (r *RemoteRegistry) GetURL() string { return r.url }

// ID implements infra.WSHandler.
func (r *RemoteRegistry) ID() string { return "registry:" + string(r.id) }

// OnConnect implements infra.WSHandler.
func (r *RemoteRegistry) OnConnect(ctx context.Context, conn *websocket.Conn) error {
	return nil
}

// OnMessage decodes a reply frame and hands it to the inbox. Frames that do
// not parse are dropped with a warning; the correlation id check happens in
// the settlement coordinator.
func (r *RemoteRegistry) OnMessage(ctx context.Context, msg []byte) {
	var frame replyFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		slog.Warn("REGISTRY_FRAME_UNREADABLE", slog.Any("error", err))
		return
	}
	if frame.Type != "transfer_reply" {
		slog.Warn("REGISTRY_FRAME_IGNORED", slog.String("type", frame.Type))
		return
	}

	r.deliver(&event.TransferReplyMessage{
		BaseMessage: event.BaseMessage{
			Ts:     chain.Timestamp(time.Now().UnixMilli()),
			Source: r.id,
		},
		CallID: frame.CallID,
		OK:     frame.OK,
		Detail: frame.Detail,
	})
}
