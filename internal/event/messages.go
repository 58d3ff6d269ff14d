package event

import (
	"dutch_auction/pkg/chain"
)

// Kind defines the type of an inbound message.
type Kind uint16

const (
	MsgStart Kind = iota + 1
	MsgBuy
	MsgStop
	MsgInfo
	MsgTransferReply
)

func (k Kind) String() string {
	switch k {
	case MsgStart:
		return "START"
	case MsgBuy:
		return "BUY"
	case MsgStop:
		return "STOP"
	case MsgInfo:
		return "INFO"
	case MsgTransferReply:
		return "TRANSFER_REPLY"
	default:
		return "UNKNOWN"
	}
}

// Message is the interface for everything delivered to the handler inbox:
// caller requests and cross-program replies alike. The handler stamps the
// sequence number at dequeue; the transport stamps the timestamp and caller
// identity at delivery.
type Message interface {
	GetSeq() uint64
	GetTs() chain.Timestamp
	GetSource() chain.ActorID
	GetKind() Kind
	StampSeq(seq uint64)
}

// BaseMessage contains the envelope fields common to all messages.
type BaseMessage struct {
	Seq     uint64          `json:"seq"`
	Ts      chain.Timestamp `json:"ts"`
	Source  chain.ActorID   `json:"source"`
	ReplyID string          `json:"reply_id,omitempty"`
}

func (m *BaseMessage) GetSeq() uint64           { return m.Seq }
func (m *BaseMessage) GetTs() chain.Timestamp   { return m.Ts }
func (m *BaseMessage) GetSource() chain.ActorID { return m.Source }
func (m *BaseMessage) StampSeq(seq uint64)      { m.Seq = seq }

// StampTs backfills the delivery timestamp for transports that did not set
// one.
func (m *BaseMessage) StampTs(ts chain.Timestamp) { m.Ts = ts }

// StartMessage asks to open the auction. Owner only.
type StartMessage struct {
	BaseMessage
}

func (m *StartMessage) GetKind() Kind { return MsgStart }

// BuyMessage accepts the current ask. Value is the payment the runtime
// attached to the envelope, not a payload field chosen by the caller.
type BuyMessage struct {
	BaseMessage
	Value chain.Value `json:"value,string"`
}

func (m *BuyMessage) GetKind() Kind { return MsgBuy }

// StopMessage force-stops the auction. Owner only.
type StopMessage struct {
	BaseMessage
}

func (m *StopMessage) GetKind() Kind { return MsgStop }

// InfoMessage queries the auction state. Read-only.
type InfoMessage struct {
	BaseMessage
}

func (m *InfoMessage) GetKind() Kind { return MsgInfo }

// TransferReplyMessage is the asset registry's answer to a transfer call.
// It is the sole authority on whether ownership changed.
type TransferReplyMessage struct {
	BaseMessage
	CallID string `json:"call_id"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

func (m *TransferReplyMessage) GetKind() Kind { return MsgTransferReply }
