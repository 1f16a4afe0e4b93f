// Package chat holds the conversation and message value objects.
//
// Values are treated as immutable snapshots: methods that "change" an entity return a
// new pointer and leave the receiver untouched, so concurrent readers never observe a
// half-updated value.
package chat

import "time"

// Conversation is a two-party channel between a client and a property owner.
// (PropertyID, ClientID) is unique.
type Conversation struct {
	ID              string
	PropertyID      string
	ClientID        string
	OwnerID         string
	LastMessage     *string
	LastMessageTime *time.Time
	// LastMessageSeq is the seq of the message behind the snapshot; it orders
	// snapshots that share a LastMessageTime.
	LastMessageSeq int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewConversation carries the fields a store needs to create a conversation.
type NewConversation struct {
	PropertyID string
	ClientID   string
	OwnerID    string
}

// IsParticipant reports whether userID is the client or the owner.
func (c *Conversation) IsParticipant(userID string) bool {
	return userID != "" && (userID == c.ClientID || userID == c.OwnerID)
}

// OtherParticipant returns the counterpart of userID. Callers must check IsParticipant
// first; any non-participant gets ClientID back.
func (c *Conversation) OtherParticipant(userID string) string {
	if userID == c.ClientID {
		return c.OwnerID
	}
	return c.ClientID
}

// RoleOf derives the sender role by comparing against the client id.
func (c *Conversation) RoleOf(userID string) Role {
	if userID == c.ClientID {
		return RoleClient
	}
	return RoleOwner
}

// UpdateLastMessage returns a copy with the last-message snapshot set to text at the given
// time and seq.
func (c *Conversation) UpdateLastMessage(text string, at time.Time, seq int64) *Conversation {
	next := *c
	t := text
	ts := at
	next.LastMessage = &t
	next.LastMessageTime = &ts
	next.LastMessageSeq = seq
	next.UpdatedAt = at
	return &next
}

// SnapshotBefore reports whether a message at (at, seq) is newer than the current
// snapshot, comparing time first and seq on ties.
func (c *Conversation) SnapshotBefore(at time.Time, seq int64) bool {
	if c.LastMessageTime == nil {
		return true
	}
	if at.Equal(*c.LastMessageTime) {
		return seq > c.LastMessageSeq
	}
	return at.After(*c.LastMessageTime)
}
