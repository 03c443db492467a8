package models

import "time"

type MessageStatus string

const (
	MessageUnread MessageStatus = "unread"
	MessageRead   MessageStatus = "read"
)

type MessageType string

const (
	MessageTypeText MessageType = "text"
	MessageTypeFile MessageType = "file"
)

// Message is a direct message between exactly two users. It is mutated in
// place on edit, read, and delete; a delete-for-everyone clears the content
// and flags the row instead of removing it.
type Message struct {
	ID           string        `json:"id"`
	SenderID     string        `json:"sender_id"`
	ReceiverID   string        `json:"receiver_id"`
	Participants []string      `json:"participants"`
	SenderRole   Role          `json:"sender_role"`
	ReceiverRole Role          `json:"receiver_role"`
	Content      string        `json:"content"`
	FileRef      string        `json:"file_ref,omitempty"`
	Status       MessageStatus `json:"status"`
	Type         MessageType   `json:"type"`
	DeliveredTo  []string      `json:"delivered_to"`
	SeenBy       []string      `json:"seen_by"`
	ThreadKey    string        `json:"thread_key"`
	CreatedAt    time.Time     `json:"created_at"`
	EditedAt     *time.Time    `json:"edited_at,omitempty"`
	ReadAt       *time.Time    `json:"read_at,omitempty"`
	Deleted      bool          `json:"deleted"`
}

// ThreadKey joins two user identities into an order-independent
// conversation key, so both directions of a conversation collide on it.
func ThreadKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

func (m *Message) HasParticipant(userID string) bool {
	for _, p := range m.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// MarkDelivered adds userID to the delivered set. Returns false when the
// user was already present.
func (m *Message) MarkDelivered(userID string) bool {
	if contains(m.DeliveredTo, userID) {
		return false
	}
	m.DeliveredTo = append(m.DeliveredTo, userID)
	return true
}

// MarkSeen adds userID to the seen set. Returns false when the user was
// already present.
func (m *Message) MarkSeen(userID string) bool {
	if contains(m.SeenBy, userID) {
		return false
	}
	m.SeenBy = append(m.SeenBy, userID)
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
