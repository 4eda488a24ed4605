package streaming

import (
	"encoding/json"
	"errors"
	"time"

	"txstatus/internal/domain"
)

type MessageType string

const (
	MessageTypePendingBlock   MessageType = "pending_block"
	MessageTypePendingCleared MessageType = "pending_cleared"
)

// Message is the wire format of the pending block feed.
type Message struct {
	Type         MessageType              `json:"type"`
	TraceID      string                   `json:"trace_id,omitempty"`
	ParentHash   *domain.BlockHash        `json:"parent_hash,omitempty"`
	Timestamp    uint64                   `json:"timestamp,omitempty"`
	Transactions []domain.TransactionHash `json:"transactions,omitempty"`
	PublishedAt  time.Time                `json:"published_at"`
}

func PendingBlockMessage(block domain.PendingBlock, publishedAt time.Time) Message {
	msg := Message{
		Type:         MessageTypePendingBlock,
		Timestamp:    block.Timestamp,
		Transactions: block.Transactions,
		PublishedAt:  publishedAt,
	}
	if !block.ParentHash.IsZero() {
		parent := block.ParentHash
		msg.ParentHash = &parent
	}
	return msg
}

func (m Message) PendingBlock() domain.PendingBlock {
	block := domain.PendingBlock{
		Timestamp:    m.Timestamp,
		Transactions: m.Transactions,
	}
	if m.ParentHash != nil {
		block.ParentHash = *m.ParentHash
	}
	return block
}

func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, errors.New("message type is required")
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	switch msg.Type {
	case MessageTypePendingBlock, MessageTypePendingCleared:
	case "":
		return Message{}, errors.New("message type is missing")
	default:
		return Message{}, errors.New("unknown message type " + string(msg.Type))
	}
	return msg, nil
}
