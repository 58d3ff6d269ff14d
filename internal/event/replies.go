package event

import (
	"errors"

	"dutch_auction/internal/domain"
	"dutch_auction/pkg/chain"
)

// Reply is the single outbound answer to an inbound message. Value carries
// any coins returned with the reply (a refund or an overpayment remainder).
// Exactly one of the payload pointers is set.
type Reply struct {
	To      chain.ActorID       `json:"to"`
	ReplyID string              `json:"reply_id,omitempty"`
	Value   chain.Value         `json:"value,string"`
	Started *StartedPayload     `json:"started,omitempty"`
	Bought  *BoughtPayload      `json:"bought,omitempty"`
	Stopped *StoppedPayload     `json:"stopped,omitempty"`
	Info    *domain.AuctionInfo `json:"info,omitempty"`
	Err     *ErrPayload         `json:"err,omitempty"`
}

// StartedPayload confirms the auction opened.
type StartedPayload struct {
	StartedAt chain.Timestamp `json:"started_at"`
	ExpiresAt chain.Timestamp `json:"expires_at"`
	Price     chain.Value     `json:"price,string"`
	TokenID   chain.TokenID   `json:"token_id"`
}

// BoughtPayload confirms the sale after the registry confirmed the transfer.
type BoughtPayload struct {
	Buyer chain.ActorID `json:"buyer"`
	Price chain.Value   `json:"price,string"`
}

// StoppedPayload confirms a force-stop.
type StoppedPayload struct {
	Owner   chain.ActorID `json:"owner"`
	TokenID chain.TokenID `json:"token_id"`
}

// ErrPayload is the structured rejection sent back to the caller.
type ErrPayload struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

// ErrReply wraps a domain error into a reply, attaching refund back to the
// caller when the rejected message carried value.
func ErrReply(to chain.ActorID, replyID string, refund chain.Value, err error) Reply {
	detail := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		detail = de.Detail
	}
	return Reply{
		To:      to,
		ReplyID: replyID,
		Value:   refund,
		Err: &ErrPayload{
			Kind:   string(domain.KindOf(err)),
			Detail: detail,
		},
	}
}
