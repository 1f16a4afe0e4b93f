package usecase

import "github.com/jonatanmachado35/back-imobix-sub001/internal/chat"

type GetOrCreateInput struct {
	PropertyID string `validate:"required"`
	ClientID   string `validate:"required"`
}

type ListMessagesInput struct {
	ConversationID string `validate:"required"`
	UserID         string `validate:"required"`
	Before         string
	Limit          int `validate:"gte=0"`
}

// SendMessageInput leaves SenderID unchecked by tags: a missing conversation is
// reported before a missing sender.
type SendMessageInput struct {
	ConversationID string `validate:"required"`
	SenderID       string
	Text           string
}

type MarkAsReadInput struct {
	ConversationID string `validate:"required"`
	LastMessageID  string `validate:"required"`
	UserID         string `validate:"required"`
}

// SendMessageResult carries the persisted message and the conversation snapshot after it.
type SendMessageResult struct {
	Message      *chat.Message
	Conversation *chat.Conversation
}
