package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/apperror"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/auth"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/chat"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/middleware"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/presence"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/usecase"
)

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

var errRateLimited = apperror.New("rate_limited", "rate limit exceeded", "")

// Gateway owns the live connections of one process.
type Gateway struct {
	svc      usecase.ConversationServiceContract
	tokens   TokenValidator
	presence *presence.Registry
	rooms    *Rooms
	limiter  *middleware.LimiterStore
	log      zerolog.Logger

	// presenceMu spans a presence transition and its broadcast, so watchers see
	// online/offline in the order the registry changed.
	presenceMu sync.Mutex
}

// NewGateway wires a gateway. limiter may be nil to disable inbound event limits.
func NewGateway(svc usecase.ConversationServiceContract, tokens TokenValidator, reg *presence.Registry, limiter *middleware.LimiterStore, logger zerolog.Logger) *Gateway {
	return &Gateway{
		svc:      svc,
		tokens:   tokens,
		presence: reg,
		rooms:    NewRooms(),
		limiter:  limiter,
		log:      logger.With().Str("component", "gateway").Logger(),
	}
}

// IsOnline reports whether userID has a live connection on this process.
func (g *Gateway) IsOnline(userID string) bool {
	return g.presence.IsOnline(userID)
}

// Connections returns how many live connections userID has on this process.
func (g *Gateway) Connections(userID string) int {
	return g.presence.Connections(userID)
}

// OnlineUsers lists every user with a live connection, sorted.
func (g *Gateway) OnlineUsers() []string {
	return g.presence.OnlineUsers()
}

// Connect authenticates conn. On failure conn is closed and the error is Unauthorized.
func (g *Gateway) Connect(ctx context.Context, token string, conn Conn) (*Session, error) {
	token = auth.BearerToken(token)
	if token == "" {
		_ = conn.Close()
		return nil, apperror.Unauthorized("missing token")
	}
	userID, err := g.tokens.ValidateToken(token)
	if err != nil || userID == "" {
		g.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("rejected connection")
		_ = conn.Close()
		return nil, apperror.Unauthorized("invalid token")
	}

	s := &Session{
		g:      g,
		conn:   conn,
		userID: userID,
		log:    g.log.With().Str("conn_id", conn.ID()).Str("user_id", userID).Logger(),
	}

	g.rooms.Add(conn)
	g.rooms.Join(userRoom(userID), conn)
	g.presenceMu.Lock()
	if g.presence.Add(conn.ID(), userID) {
		g.rooms.Everyone(Frame{Event: EventUserOnline, Data: map[string]any{"userId": userID}}, "")
	}
	g.presenceMu.Unlock()

	s.log.Info().Msg("connection authenticated")
	return s, nil
}

// Session is one authenticated connection. Handle may be called from several
// goroutines; Close runs its cleanup once.
type Session struct {
	g      *Gateway
	conn   Conn
	userID string
	log    zerolog.Logger

	closeOnce sync.Once
}

func (s *Session) UserID() string { return s.userID }
func (s *Session) ConnID() string { return s.conn.ID() }

// Close leaves every room and emits user:offline when this was the user's last connection.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.g.rooms.Remove(s.conn.ID())
		s.g.presenceMu.Lock()
		userID, gone := s.g.presence.Remove(s.conn.ID())
		if gone {
			s.g.rooms.Everyone(Frame{Event: EventUserOffline, Data: map[string]any{"userId": userID}}, "")
		}
		s.g.presenceMu.Unlock()
		s.log.Info().Bool("offline", gone).Msg("connection closed")
	})
}

// Handle processes one inbound frame and returns the reply for the caller, if any.
// Failures never close the connection.
func (s *Session) Handle(ctx context.Context, in Frame) (Frame, bool) {
	if s.g.limiter != nil && !s.g.limiter.Allow("user:"+s.userID) {
		return s.fail(in, errRateLimited), true
	}

	switch in.Event {
	case EventMessageSend:
		return s.sendMessage(ctx, in), true
	case EventMessageRead:
		return s.markRead(ctx, in), true
	case EventTyping, EventStopTyping:
		reply := s.relayTyping(ctx, in)
		return reply, in.Ref != "" || !isSuccess(reply)
	case EventConversationJoin:
		return s.join(ctx, in), true
	case EventConversationLeave:
		s.g.rooms.Leave(conversationRoom(in.String("conversationId")), s.conn.ID())
		return s.ok(in, nil), true
	default:
		return s.fail(in, apperror.Validation("unknown event "+in.Event, "event")), true
	}
}

func (s *Session) sendMessage(ctx context.Context, in Frame) Frame {
	msg, _, err := s.g.Send(ctx, s.userID, in.String("conversationId"), in.String("text"))
	if err != nil {
		return s.fail(in, err)
	}
	return s.ok(in, map[string]any{
		"tempId":  in.String("tempId"),
		"message": MessagePayload(msg),
	})
}

func (s *Session) markRead(ctx context.Context, in Frame) Frame {
	n, err := s.g.MarkRead(ctx, s.userID, in.String("conversationId"), in.String("lastReadMessageId"))
	if err != nil {
		return s.fail(in, err)
	}
	return s.ok(in, map[string]any{"marked": n})
}

// Send persists a message from senderID and pushes it to the other participant's
// connections. When at least one of them got it the message is marked DELIVERED and
// the sender's connections are told so. The returned message carries the final status.
func (g *Gateway) Send(ctx context.Context, senderID, conversationID, text string) (*chat.Message, *chat.Conversation, error) {
	res, err := g.svc.SendMessage(ctx, usecase.SendMessageInput{
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
	})
	if err != nil {
		return nil, nil, err
	}
	msg := res.Message

	other := res.Conversation.OtherParticipant(senderID)
	if g.rooms.Broadcast(userRoom(other), Frame{Event: EventMessageReceive, Data: MessagePayload(msg)}) == 0 {
		return msg, res.Conversation, nil
	}

	ok, err := g.svc.MarkDelivered(ctx, msg.ID)
	if err != nil {
		g.log.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to mark message delivered")
		return msg, res.Conversation, nil
	}
	if ok {
		msg = msg.MarkAsDelivered()
		g.rooms.Broadcast(userRoom(senderID), Frame{Event: EventMessageStatus, Data: map[string]any{
			"messageId":      msg.ID,
			"conversationId": msg.ConversationID,
			"status":         string(chat.StatusDelivered),
		}})
	}
	return msg, res.Conversation, nil
}

// MarkRead persists the read receipt, then tells the other participant. Nothing is
// pushed when no message changed.
func (g *Gateway) MarkRead(ctx context.Context, readerID, conversationID, lastReadMessageID string) (int64, error) {
	conv, err := g.svc.Conversation(ctx, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	n, err := g.svc.MarkAsRead(ctx, usecase.MarkAsReadInput{
		ConversationID: conv.ID,
		LastMessageID:  lastReadMessageID,
		UserID:         readerID,
	})
	if err != nil {
		return 0, err
	}

	if n > 0 {
		g.rooms.Broadcast(userRoom(conv.OtherParticipant(readerID)), Frame{Event: EventMessageStatus, Data: map[string]any{
			"conversationId":    conv.ID,
			"lastReadMessageId": lastReadMessageID,
			"readerId":          readerID,
			"status":            string(chat.StatusRead),
		}})
	}
	return n, nil
}

func (s *Session) relayTyping(ctx context.Context, in Frame) Frame {
	conv, err := s.g.svc.Conversation(ctx, in.String("conversationId"), s.userID)
	if err != nil {
		return s.fail(in, err)
	}
	s.g.rooms.Broadcast(userRoom(conv.OtherParticipant(s.userID)), Frame{Event: in.Event, Data: map[string]any{
		"conversationId": conv.ID,
		"userId":         s.userID,
	}})
	return s.ok(in, nil)
}

// join records that the connection has the conversation open. Pushes are routed to
// personal rooms only; the conversation room is membership bookkeeping for now.
func (s *Session) join(ctx context.Context, in Frame) Frame {
	conv, err := s.g.svc.Conversation(ctx, in.String("conversationId"), s.userID)
	if err != nil {
		return s.fail(in, err)
	}
	s.g.rooms.Join(conversationRoom(conv.ID), s.conn)
	return s.ok(in, map[string]any{"conversationId": conv.ID})
}

func (s *Session) ok(in Frame, data map[string]any) Frame {
	if data == nil {
		data = map[string]any{}
	}
	data["success"] = true
	return Frame{Event: EventReply, Ref: in.Ref, Data: data}
}

func (s *Session) fail(in Frame, err error) Frame {
	kind := apperror.KindOf(err)
	if kind == apperror.KindInternal {
		s.log.Error().Err(err).Str("event", in.Event).Msg("event failed")
	} else {
		s.log.Debug().Err(err).Str("event", in.Event).Msg("event rejected")
	}
	return Frame{Event: EventReply, Ref: in.Ref, Data: map[string]any{
		"success": false,
		"error":   apperror.PublicMessage(err),
		"code":    string(kind),
	}}
}

func isSuccess(f Frame) bool {
	ok, _ := f.Data["success"].(bool)
	return ok
}
