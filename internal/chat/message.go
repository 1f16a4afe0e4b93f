package chat

import (
	"strings"
	"time"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/apperror"
)

// Role is the participant role of a message sender.
type Role string

const (
	RoleClient Role = "CLIENTE"
	RoleOwner  Role = "PROPRIETARIO"
)

// Status is the delivery state of a message. It only moves forward.
type Status string

const (
	StatusSent      Status = "SENT"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
)

// Rank orders statuses; unknown statuses rank below SENT.
func (s Status) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.Rank() > s.Rank()
}

// Below lists the statuses a message must currently have to be advanced to s.
func (s Status) Below() []Status {
	var out []Status
	for _, st := range []Status{StatusSent, StatusDelivered, StatusRead} {
		if st.Rank() < s.Rank() {
			out = append(out, st)
		}
	}
	return out
}

// ErrEmptyText is returned when a message would carry only whitespace.
var ErrEmptyText = apperror.Validation("Message text cannot be empty", "text")

// Message is a single persisted chat message. CreatedAt, with Seq as tiebreaker, is the
// only ordering key.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderRole     Role
	Text           string
	Status         Status
	CreatedAt      time.Time
	Seq            int64
}

// NewMessage carries the fields a store needs to persist a message. Build it with Draft.
type NewMessage struct {
	ConversationID string
	SenderID       string
	SenderRole     Role
	Text           string
}

// Draft validates the text and returns a message ready to be persisted.
func Draft(conversationID, senderID string, role Role, text string) (NewMessage, error) {
	if strings.TrimSpace(text) == "" {
		return NewMessage{}, ErrEmptyText
	}
	return NewMessage{
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderRole:     role,
		Text:           text,
	}, nil
}

// MarkAsDelivered returns a copy with status DELIVERED. It does not check monotonicity;
// stores guard that at the update boundary.
func (m *Message) MarkAsDelivered() *Message {
	next := *m
	next.Status = StatusDelivered
	return &next
}

// MarkAsRead returns a copy with status READ.
func (m *Message) MarkAsRead() *Message {
	next := *m
	next.Status = StatusRead
	return &next
}

// Before reports whether m sorts strictly before other in conversation order.
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.Seq < other.Seq
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Page selects a window of messages, newest first. Before is a message id; when set only
// strictly older messages are returned.
type Page struct {
	Before string
	Limit  int
}

// Normalize applies the default page size and clamps the limit to MaxPageSize.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	if p.Limit > MaxPageSize {
		p.Limit = MaxPageSize
	}
	return p
}
