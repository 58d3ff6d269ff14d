package registry

import (
	"context"
	"testing"
	"time"

	"dutch_auction/internal/event"
	"dutch_auction/pkg/chain"
)

const (
	regID     = chain.ActorID("registry-1")
	programID = chain.ActorID("program-1")
	ownerID   = chain.ActorID("owner-1")
	buyerID   = chain.ActorID("buyer-1")
)

func awaitReply(t *testing.T, ch <-chan event.Message) *event.TransferReplyMessage {
	t.Helper()
	select {
	case m := <-ch:
		reply, ok := m.(*event.TransferReplyMessage)
		if !ok {
			t.Fatalf("delivered %T; want TransferReplyMessage", m)
		}
		return reply
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for registry reply")
		return nil
	}
}

func TestInProcRegistry_ApprovedTransfer(t *testing.T) {
	delivered := make(chan event.Message, 1)
	reg := NewInProcRegistry(regID, func(m event.Message) { delivered <- m })
	reg.Mint(7, ownerID)
	reg.Approve(7, programID)

	call := TransferCall{CallID: "c1", From: programID, Registry: regID, TokenID: 7, To: buyerID}
	if err := reg.Transfer(context.Background(), call); err != nil {
		t.Fatalf("Transfer failed to issue: %v", err)
	}

	reply := awaitReply(t, delivered)
	if !reply.OK || reply.CallID != "c1" || reply.Source != regID {
		t.Errorf("reply = %+v", reply)
	}
	if got := reg.Owner(7); got != buyerID {
		t.Errorf("owner = %s; want %s", got, buyerID)
	}
}

func TestInProcRegistry_UnapprovedTransferRejected(t *testing.T) {
	delivered := make(chan event.Message, 1)
	reg := NewInProcRegistry(regID, func(m event.Message) { delivered <- m })
	reg.Mint(7, ownerID)

	call := TransferCall{CallID: "c1", From: programID, Registry: regID, TokenID: 7, To: buyerID}
	if err := reg.Transfer(context.Background(), call); err != nil {
		t.Fatalf("Transfer failed to issue: %v", err)
	}

	reply := awaitReply(t, delivered)
	if reply.OK {
		t.Error("unapproved transfer succeeded")
	}
	if got := reg.Owner(7); got != ownerID {
		t.Errorf("owner changed on rejected transfer: %s", got)
	}
}

func TestInProcRegistry_UnknownToken(t *testing.T) {
	delivered := make(chan event.Message, 1)
	reg := NewInProcRegistry(regID, func(m event.Message) { delivered <- m })

	call := TransferCall{CallID: "c1", From: programID, Registry: regID, TokenID: 99, To: buyerID}
	if err := reg.Transfer(context.Background(), call); err != nil {
		t.Fatalf("Transfer failed to issue: %v", err)
	}

	reply := awaitReply(t, delivered)
	if reply.OK || reply.Detail == "" {
		t.Errorf("reply = %+v; want rejection with detail", reply)
	}
}

func TestInProcRegistry_ApprovalConsumedByTransfer(t *testing.T) {
	delivered := make(chan event.Message, 2)
	reg := NewInProcRegistry(regID, func(m event.Message) { delivered <- m })
	reg.Mint(7, ownerID)
	reg.Approve(7, programID)

	call := TransferCall{CallID: "c1", From: programID, Registry: regID, TokenID: 7, To: buyerID}
	reg.Transfer(context.Background(), call)
	if reply := awaitReply(t, delivered); !reply.OK {
		t.Fatalf("first transfer rejected: %+v", reply)
	}

	// The approval does not survive the transfer.
	call.CallID = "c2"
	call.To = "someone-else"
	reg.Transfer(context.Background(), call)
	if reply := awaitReply(t, delivered); reply.OK {
		t.Error("second transfer reused a consumed approval")
	}
}
