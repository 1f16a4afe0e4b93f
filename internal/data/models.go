package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/chat"
)

// conversationDoc maps to the conversations collection; (property_id, client_id) is unique.
type conversationDoc struct {
	ID              bson.ObjectID `bson:"_id,omitempty"`
	PropertyID      string        `bson:"property_id"`
	ClientID        string        `bson:"client_id"`
	OwnerID         string        `bson:"owner_id"`
	LastMessage     *string       `bson:"last_message,omitempty"`
	LastMessageTime *time.Time    `bson:"last_message_time,omitempty"`
	LastMessageSeq  int64         `bson:"last_message_seq,omitempty"`
	CreatedAt       time.Time     `bson:"created_at"`
	UpdatedAt       time.Time     `bson:"updated_at"`
}

func (d *conversationDoc) toEntity() *chat.Conversation {
	return &chat.Conversation{
		ID:              d.ID.Hex(),
		PropertyID:      d.PropertyID,
		ClientID:        d.ClientID,
		OwnerID:         d.OwnerID,
		LastMessage:     d.LastMessage,
		LastMessageTime: d.LastMessageTime,
		LastMessageSeq:  d.LastMessageSeq,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// messageDoc maps to the messages collection. seq breaks created_at ties.
type messageDoc struct {
	ID             bson.ObjectID `bson:"_id,omitempty"`
	ConversationID string        `bson:"conversation_id"`
	SenderID       string        `bson:"sender_id"`
	SenderRole     string        `bson:"sender_role"`
	Text           string        `bson:"text"`
	Status         string        `bson:"status"`
	CreatedAt      time.Time     `bson:"created_at"`
	Seq            int64         `bson:"seq"`
}

func (d *messageDoc) toEntity() *chat.Message {
	return &chat.Message{
		ID:             d.ID.Hex(),
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		SenderRole:     chat.Role(d.SenderRole),
		Text:           d.Text,
		Status:         chat.Status(d.Status),
		CreatedAt:      d.CreatedAt,
		Seq:            d.Seq,
	}
}

// counterDoc holds named monotonically increasing sequences.
type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// Property maps to the properties table in Postgres. Only the owner is read here.
type Property struct {
	ID        string `gorm:"primaryKey"`
	OwnerID   string `gorm:"not null;index"`
	Title     string
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
