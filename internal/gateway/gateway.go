package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"dutch_auction/internal/event"
	"dutch_auction/pkg/chain"
)

// Request is the wire format callers send over the gateway socket. ID is the
// caller's correlation id and is echoed back on the reply. Value is a decimal
// coin string and only meaningful for buy.
type Request struct {
	ID     string `json:"id"`
	Action string `json:"action"` // "start", "buy", "stop", "info"
	Source string `json:"source"`
	Value  string `json:"value,omitempty"`
}

// wireReply is what goes back over the socket: the caller's id plus the
// handler reply.
type wireReply struct {
	ID string `json:"id"`
	event.Reply
}

type wireError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Gateway exposes the handler inbox over WebSocket. Each caller request is
// translated into an inbound message, stamped with the arrival time, and fed
// to the inbox; the deferred reply is routed back to the waiting connection
// by reply id.
type Gateway struct {
	listenAddr string
	inbox      chan<- event.Message
	limit      rate.Limit
	burst      int
	upgrader   websocket.Upgrader
	server     *http.Server

	mu      sync.Mutex
	waiting map[string]waiter // reply id -> connection + caller correlation id
}

// waiter ties a pending reply to the connection that asked and the caller's
// own correlation id, echoed back verbatim on the answer.
type waiter struct {
	c        *conn
	callerID string
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

// NewGateway creates the gateway in front of the handler inbox.
func NewGateway(listenAddr string, inbox chan<- event.Message, limitPerSec float64, burst int) *Gateway {
	return &Gateway{
		listenAddr: listenAddr,
		inbox:      inbox,
		limit:      rate.Limit(limitPerSec),
		burst:      burst,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		waiting: make(map[string]waiter),
	}
}

// Run serves until the context is cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)

	g.server = &http.Server{Addr: g.listenAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Gateway listening", slog.String("addr", g.listenAddr))
		errCh <- g.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return g.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Gateway upgrade failed", slog.Any("error", err))
		return
	}
	c := &conn{ws: ws}
	limiter := rate.NewLimiter(g.limit, g.burst)

	defer func() {
		g.dropConn(c)
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.writeJSON(wireError{Error: "malformed request"})
			continue
		}
		if !limiter.Allow() {
			c.writeJSON(wireError{ID: req.ID, Error: "rate limit exceeded"})
			continue
		}

		msg, err := g.buildMessage(req, c)
		if err != nil {
			c.writeJSON(wireError{ID: req.ID, Error: err.Error()})
			continue
		}
		g.inbox <- msg
	}
}

// buildMessage parses the request into an inbound message, registering the
// connection under a fresh reply id so Deliver can route the answer back.
func (g *Gateway) buildMessage(req Request, c *conn) (event.Message, error) {
	source := chain.ActorID(req.Source)
	if source.IsZero() {
		return nil, fmt.Errorf("source is required")
	}

	base := event.BaseMessage{
		Ts:      chain.Timestamp(time.Now().UnixMilli()),
		Source:  source,
		ReplyID: uuid.NewString(),
	}

	var msg event.Message
	switch req.Action {
	case "start":
		msg = &event.StartMessage{BaseMessage: base}
	case "buy":
		if req.Value == "" {
			return nil, fmt.Errorf("buy requires a value")
		}
		v, err := chain.ParseValue(req.Value)
		if err != nil {
			return nil, fmt.Errorf("bad value: %w", err)
		}
		msg = &event.BuyMessage{BaseMessage: base, Value: v}
	case "stop":
		msg = &event.StopMessage{BaseMessage: base}
	case "info":
		msg = &event.InfoMessage{BaseMessage: base}
	default:
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}

	g.mu.Lock()
	g.waiting[base.ReplyID] = waiter{c: c, callerID: req.ID}
	g.mu.Unlock()
	return msg, nil
}

// Deliver routes a handler reply back to the connection that sent the
// original request. Replies for connections that have gone away are logged
// and dropped; the WAL still holds the outcome.
func (g *Gateway) Deliver(r event.Reply) {
	g.mu.Lock()
	w, ok := g.waiting[r.ReplyID]
	delete(g.waiting, r.ReplyID)
	g.mu.Unlock()

	if !ok {
		slog.Warn("GATEWAY_REPLY_ORPHANED", slog.String("reply_id", r.ReplyID))
		return
	}

	if err := w.c.writeJSON(wireReply{ID: w.callerID, Reply: r}); err != nil {
		slog.Warn("GATEWAY_REPLY_WRITE_FAILED", slog.Any("error", err))
	}
}

func (g *Gateway) dropConn(c *conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, w := range g.waiting {
		if w.c == c {
			delete(g.waiting, id)
		}
	}
}
