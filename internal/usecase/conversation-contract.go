package usecase

import (
	"context"
	"time"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/chat"
)

// ConversationStore persists conversations. Lookups of absent ids return an
// apperror.KindNotFound error.
type ConversationStore interface {
	FindByID(ctx context.Context, id string) (*chat.Conversation, error)
	FindByPropertyAndClient(ctx context.Context, propertyID, clientID string) (*chat.Conversation, error)
	// FindByUserID lists conversations where userID is client or owner, newest update first.
	FindByUserID(ctx context.Context, userID string) ([]*chat.Conversation, error)
	// Create inserts a conversation. A concurrent insert of the same (property, client)
	// pair resolves to the existing row instead of failing.
	Create(ctx context.Context, c chat.NewConversation) (*chat.Conversation, error)
	// UpdateLastMessage moves the snapshot forward only if (at, seq) is newer than the
	// stored one; equal times are ordered by seq.
	UpdateLastMessage(ctx context.Context, id, text string, at time.Time, seq int64) error
}

// MessageStore persists messages. CreatedAt and Seq are assigned by the store.
type MessageStore interface {
	FindByID(ctx context.Context, id string) (*chat.Message, error)
	FindByConversationID(ctx context.Context, conversationID string, page chat.Page) ([]*chat.Message, error)
	Create(ctx context.Context, m chat.NewMessage) (*chat.Message, error)
	// UpdateStatus advances a message status; backward or same-status transitions report false.
	UpdateStatus(ctx context.Context, id string, status chat.Status) (bool, error)
	// MarkAsRead sets READ on every message of the conversation up to and including
	// lastMessageID that was not sent by readerID. An unknown cursor is a no-op.
	MarkAsRead(ctx context.Context, conversationID, lastMessageID, readerID string) (int64, error)
}

// PropertyOwners resolves a property to the user that owns it.
type PropertyOwners interface {
	OwnerOf(ctx context.Context, propertyID string) (string, error)
}

// ConversationServiceContract is what transports depend on.
type ConversationServiceContract interface {
	ListConversations(ctx context.Context, userID string) ([]*chat.Conversation, error)
	GetOrCreateConversation(ctx context.Context, in GetOrCreateInput) (*chat.Conversation, error)
	Conversation(ctx context.Context, conversationID, userID string) (*chat.Conversation, error)
	ListMessages(ctx context.Context, in ListMessagesInput) ([]*chat.Message, error)
	SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageResult, error)
	MarkAsRead(ctx context.Context, in MarkAsReadInput) (int64, error)
	MarkDelivered(ctx context.Context, messageID string) (bool, error)
}
