package websocket

import (
	"encoding/json"
	"time"

	"reconciler-server/internal/domain"
)

type MessageType string

const (
	TypeConflictDetected MessageType = "conflict_detected"
	TypeConflictResolved MessageType = "conflict_resolved"
	TypeConflictFailed   MessageType = "conflict_failed"
	TypePing             MessageType = "ping"
	TypePong             MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ConflictEventPayload is pushed to connected operator consoles on every
// conflict lifecycle transition.
type ConflictEventPayload struct {
	ConflictID     string                    `json:"conflict_id"`
	Table          string                    `json:"table"`
	RecordID       string                    `json:"record_id"`
	ConflictType   domain.ConflictType       `json:"conflict_type"`
	ConflictFields []string                  `json:"conflict_fields"`
	Status         domain.ConflictStatus     `json:"status"`
	Strategy       domain.ResolutionStrategy `json:"strategy,omitempty"`
	Error          string                    `json:"error,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
