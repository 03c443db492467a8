package models

import (
	"encoding/json"
	"time"
)

type EventType string

// Inbound events (client → relay).
const (
	EventMessageSend    EventType = "message:send"
	EventMessageEdit    EventType = "message:edit"
	EventMessageDelete  EventType = "message:delete"
	EventMessageSeen    EventType = "message:seen"
	EventMessageRead    EventType = "message:read"
	EventMessageHistory EventType = "message:history"
	EventUserHide       EventType = "user:hide"
	EventCallOffer      EventType = "call:offer"
)

// Outbound events (relay → client). call:answer, call:ice, call:hangup and
// call:cancel travel in both directions.
const (
	EventMessageNew        EventType = "message:new"
	EventMessageSent       EventType = "message:sent"
	EventMessageUpdate     EventType = "message:update"
	EventMessageDeleted    EventType = "message:deleted"
	EventMessageSeenUpdate EventType = "message:seen:update"
	EventUserStatus        EventType = "user:status"
	EventUserStatusInit    EventType = "user:status:init"
	EventCallIncoming      EventType = "call:incoming"
	EventCallAnswer        EventType = "call:answer"
	EventCallICE           EventType = "call:ice"
	EventCallHangup        EventType = "call:hangup"
	EventCallCancel        EventType = "call:cancel"
	EventCallBusy          EventType = "call:busy"
	EventAck               EventType = "ack"
)

// Event is the envelope for every frame on the channel. AckID, when set on
// an inbound event, requests an EventAck frame carrying the same id.
type Event struct {
	Type    EventType       `json:"type"`
	AckID   string          `json:"ack_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEvent(t EventType, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, Payload: data}, nil
}

// Ack is the acknowledgment payload for one inbound event.
type Ack struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
}

type SendMessagePayload struct {
	RecipientID string      `json:"recipient_id"`
	Content     string      `json:"content"`
	Type        MessageType `json:"type"`
	FileRef     string      `json:"file_ref,omitempty"`
}

type EditMessagePayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
}

type DeleteMessagePayload struct {
	MessageID   string `json:"message_id"`
	ForEveryone bool   `json:"for_everyone"`
}

type SeenPayload struct {
	MessageIDs []string `json:"message_ids"`
	ThreadKey  string   `json:"thread_key,omitempty"`
}

type ReadPayload struct {
	MessageID string `json:"message_id"`
}

type HistoryPayload struct {
	WithUserID string `json:"with_user_id"`
	Limit      int    `json:"limit,omitempty"`
}

type HidePayload struct {
	Hidden bool `json:"hidden"`
}

type UserStatusPayload struct {
	UserID     string     `json:"user_id"`
	Status     string     `json:"status"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

type SeenUpdatePayload struct {
	ThreadKey  string   `json:"thread_key"`
	MessageIDs []string `json:"message_ids"`
	SeenBy     string   `json:"seen_by"`
}

type DeletedPayload struct {
	MessageID string `json:"message_id"`
	ThreadKey string `json:"thread_key"`
}
