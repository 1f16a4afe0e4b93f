// Package realtime implements the live chat gateway: authenticated connections,
// personal and conversation rooms, presence broadcasts and per-event replies.
package realtime

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/chat"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Inbound events.
const (
	EventMessageSend       = "message:send"
	EventMessageRead       = "message:read"
	EventTyping            = "user:typing"
	EventStopTyping        = "user:stop_typing"
	EventConversationJoin  = "conversation:join"
	EventConversationLeave = "conversation:leave"
)

// Pushed events.
const (
	EventMessageReceive = "message:receive"
	EventMessageStatus  = "message:status"
	EventUserOnline     = "user:online"
	EventUserOffline    = "user:offline"
	EventReply          = "reply"
)

// Frame is the unit exchanged on a live connection. Replies carry the Ref of the
// frame they answer.
type Frame struct {
	Event string         `json:"event"`
	Ref   string         `json:"ref,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// String returns Data[key] when it is a string.
func (f Frame) String(key string) string {
	s, _ := f.Data[key].(string)
	return s
}

func EncodeFrame(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Timestamp renders times the way every payload carries them.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// MessagePayload is the wire shape of a message.
func MessagePayload(m *chat.Message) map[string]any {
	return map[string]any{
		"id":             m.ID,
		"conversationId": m.ConversationID,
		"senderId":       m.SenderID,
		"senderRole":     string(m.SenderRole),
		"text":           m.Text,
		"status":         string(m.Status),
		"timestamp":      Timestamp(m.CreatedAt),
	}
}

// ConversationPayload is the wire shape of a conversation. Absent snapshots are null.
func ConversationPayload(c *chat.Conversation) map[string]any {
	out := map[string]any{
		"id":              c.ID,
		"propertyId":      c.PropertyID,
		"clientId":        c.ClientID,
		"ownerId":         c.OwnerID,
		"lastMessage":     nil,
		"lastMessageTime": nil,
		"createdAt":       Timestamp(c.CreatedAt),
		"updatedAt":       Timestamp(c.UpdatedAt),
	}
	if c.LastMessage != nil {
		out["lastMessage"] = *c.LastMessage
	}
	if c.LastMessageTime != nil {
		out["lastMessageTime"] = Timestamp(*c.LastMessageTime)
	}
	return out
}
