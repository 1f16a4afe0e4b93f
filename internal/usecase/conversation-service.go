// Package usecase orchestrates authorization and persistence for conversations and messages.
package usecase

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/apperror"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/chat"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/normalize"
)

var _ ConversationServiceContract = (*ConversationService)(nil)

type ConversationService struct {
	Conversations ConversationStore
	Messages      MessageStore
	Owners        PropertyOwners

	validate *validator.Validate
	log      zerolog.Logger
}

func NewConversationService(convs ConversationStore, msgs MessageStore, owners PropertyOwners, logger zerolog.Logger) *ConversationService {
	return &ConversationService{
		Conversations: convs,
		Messages:      msgs,
		Owners:        owners,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		log:           logger.With().Str("component", "conversation-service").Logger(),
	}
}

func (s *ConversationService) ListConversations(ctx context.Context, userID string) ([]*chat.Conversation, error) {
	userID = normalize.ID(userID)
	if userID == "" {
		return nil, apperror.Validation("user id is required", "userId")
	}
	return s.Conversations.FindByUserID(ctx, userID)
}

// GetOrCreateConversation returns the conversation for (property, client), creating it
// with the property's owner on first contact.
func (s *ConversationService) GetOrCreateConversation(ctx context.Context, in GetOrCreateInput) (*chat.Conversation, error) {
	in.PropertyID = normalize.ID(in.PropertyID)
	in.ClientID = normalize.ID(in.ClientID)
	if err := s.check(in); err != nil {
		return nil, err
	}

	conv, err := s.Conversations.FindByPropertyAndClient(ctx, in.PropertyID, in.ClientID)
	if err == nil {
		return conv, nil
	}
	if !apperror.Is(err, apperror.KindNotFound) {
		return nil, err
	}

	ownerID, err := s.Owners.OwnerOf(ctx, in.PropertyID)
	if err != nil {
		return nil, err
	}
	if ownerID == in.ClientID {
		return nil, apperror.Validation("owner cannot open a conversation about their own property", "clientId")
	}

	conv, err = s.Conversations.Create(ctx, chat.NewConversation{
		PropertyID: in.PropertyID,
		ClientID:   in.ClientID,
		OwnerID:    ownerID,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("conversation_id", conv.ID).Str("property_id", conv.PropertyID).Msg("conversation opened")
	return conv, nil
}

// Conversation loads a conversation and checks that userID takes part in it.
func (s *ConversationService) Conversation(ctx context.Context, conversationID, userID string) (*chat.Conversation, error) {
	conv, err := s.Conversations.FindByID(ctx, normalize.ID(conversationID))
	if err != nil {
		return nil, err
	}
	if !conv.IsParticipant(normalize.ID(userID)) {
		return nil, apperror.Unauthorized("user is not a participant of this conversation")
	}
	return conv, nil
}

// ListMessages returns a page of messages, newest first.
func (s *ConversationService) ListMessages(ctx context.Context, in ListMessagesInput) ([]*chat.Message, error) {
	in.ConversationID = normalize.ID(in.ConversationID)
	in.UserID = normalize.ID(in.UserID)
	in.Before = normalize.ID(in.Before)
	if err := s.check(in); err != nil {
		return nil, err
	}

	if _, err := s.Conversation(ctx, in.ConversationID, in.UserID); err != nil {
		return nil, err
	}

	page := chat.Page{Before: in.Before, Limit: in.Limit}.Normalize()
	return s.Messages.FindByConversationID(ctx, in.ConversationID, page)
}

// SendMessage validates, persists and snapshots a message. Checks run in order: empty
// text, missing conversation, missing sender, non-participant sender.
func (s *ConversationService) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageResult, error) {
	text := normalize.Text(in.Text)
	if text == "" {
		return nil, chat.ErrEmptyText
	}
	in.ConversationID = normalize.ID(in.ConversationID)
	in.SenderID = normalize.ID(in.SenderID)
	if err := s.check(in); err != nil {
		return nil, err
	}

	conv, err := s.Conversations.FindByID(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if in.SenderID == "" {
		return nil, apperror.Validation("sender id is required", "senderId")
	}
	if !conv.IsParticipant(in.SenderID) {
		return nil, apperror.Unauthorized("sender is not a participant of this conversation")
	}

	draft, err := chat.Draft(conv.ID, in.SenderID, conv.RoleOf(in.SenderID), text)
	if err != nil {
		return nil, err
	}

	msg, err := s.Messages.Create(ctx, draft)
	if err != nil {
		return nil, err
	}

	// The message is already durable. A failed snapshot update leaves lastMessage stale
	// until the next send; the store update is conditional so retrying is safe.
	if err := s.Conversations.UpdateLastMessage(ctx, conv.ID, msg.Text, msg.CreatedAt, msg.Seq); err != nil {
		s.log.Error().Err(err).Str("conversation_id", conv.ID).Str("message_id", msg.ID).Msg("failed to update conversation snapshot")
	}

	return &SendMessageResult{
		Message:      msg,
		Conversation: conv.UpdateLastMessage(msg.Text, msg.CreatedAt, msg.Seq),
	}, nil
}

// MarkAsRead marks the counterpart's messages up to LastMessageID as READ.
func (s *ConversationService) MarkAsRead(ctx context.Context, in MarkAsReadInput) (int64, error) {
	in.ConversationID = normalize.ID(in.ConversationID)
	in.LastMessageID = normalize.ID(in.LastMessageID)
	in.UserID = normalize.ID(in.UserID)
	if err := s.check(in); err != nil {
		return 0, err
	}

	if _, err := s.Conversation(ctx, in.ConversationID, in.UserID); err != nil {
		return 0, err
	}

	n, err := s.Messages.MarkAsRead(ctx, in.ConversationID, in.LastMessageID, in.UserID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debug().Str("conversation_id", in.ConversationID).Str("reader_id", in.UserID).Int64("marked", n).Msg("messages marked as read")
	}
	return n, nil
}

// MarkDelivered advances a message from SENT to DELIVERED. It reports false when the
// message already had DELIVERED or READ.
func (s *ConversationService) MarkDelivered(ctx context.Context, messageID string) (bool, error) {
	messageID = normalize.ID(messageID)
	if messageID == "" {
		return false, apperror.Validation("message id is required", "messageId")
	}
	return s.Messages.UpdateStatus(ctx, messageID, chat.StatusDelivered)
}

func (s *ConversationService) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperror.Validation(fe.Field()+" is "+fe.Tag(), fe.Field())
	}
	return apperror.Validation(err.Error(), "")
}
