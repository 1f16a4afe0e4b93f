package main

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/apperror"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/auth"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/chat"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/realtime"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/rpcapi"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/usecase"
)

func callerID(ctx context.Context) (string, error) {
	id := auth.UserID(ctx)
	if id == "" {
		return "", status.Errorf(codes.Unauthenticated, "missing auth claims")
	}
	return id, nil
}

func reply(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response")
	}
	return out, nil
}

func conversationList(convs []*chat.Conversation) []any {
	out := make([]any, 0, len(convs))
	for _, c := range convs {
		out = append(out, realtime.ConversationPayload(c))
	}
	return out
}

func messageList(msgs []*chat.Message) []any {
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, realtime.MessagePayload(m))
	}
	return out
}

// ListConversations returns the caller's conversations, most recently updated first.
func (s *Server) ListConversations(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	convs, err := s.svc.ListConversations(ctx, userID)
	if err != nil {
		return nil, rpcapi.Status(err)
	}
	return reply(map[string]any{"conversations": conversationList(convs)})
}

// GetOrCreateConversation opens (or returns) the caller's conversation about a property.
// The caller is always the client side.
func (s *Server) GetOrCreateConversation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	conv, err := s.svc.GetOrCreateConversation(ctx, usecase.GetOrCreateInput{
		PropertyID: rpcapi.String(in, "propertyId"),
		ClientID:   userID,
	})
	if err != nil {
		return nil, rpcapi.Status(err)
	}
	return reply(map[string]any{"conversation": realtime.ConversationPayload(conv)})
}

// ListMessages returns one page of messages, newest first.
func (s *Server) ListMessages(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := s.svc.ListMessages(ctx, usecase.ListMessagesInput{
		ConversationID: rpcapi.String(in, "conversationId"),
		UserID:         userID,
		Before:         rpcapi.String(in, "before"),
		Limit:          rpcapi.Int(in, "limit"),
	})
	if err != nil {
		return nil, rpcapi.Status(err)
	}
	return reply(map[string]any{"messages": messageList(msgs)})
}

// SendMessage persists a message and pushes it to the other participant's live connections.
func (s *Server) SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	msg, conv, err := s.gateway.Send(ctx, userID, rpcapi.String(in, "conversationId"), rpcapi.String(in, "text"))
	if err != nil {
		return nil, rpcapi.Status(err)
	}
	return reply(map[string]any{
		"message":      realtime.MessagePayload(msg),
		"conversation": realtime.ConversationPayload(conv),
	})
}

// MarkAsRead marks the counterpart's messages up to lastMessageId as READ.
func (s *Server) MarkAsRead(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.gateway.MarkRead(ctx, userID, rpcapi.String(in, "conversationId"), rpcapi.String(in, "lastMessageId"))
	if err != nil {
		return nil, rpcapi.Status(err)
	}
	return reply(map[string]any{"marked": n})
}

// Live carries gateway frames in both directions for one authenticated connection.
func (s *Server) Live(stream rpcapi.LiveServer) error {
	ctx, cancel := context.WithCancel(stream.Context())
	conn := newStreamConn(cancel)

	// the writer must be gone before the handler returns; a peer that stopped reading
	// can hold it in stream.Send, so the wait is bounded
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		conn.writePump(ctx, stream)
	}()
	defer func() {
		cancel()
		select {
		case <-writerDone:
		case <-time.After(writeWait):
			s.log.Warn().Str("conn_id", conn.id).Msg("live writer did not stop")
		}
	}()

	sess, err := s.gateway.Connect(ctx, bearerFromMetadata(ctx), conn)
	if err != nil {
		return status.Error(codes.Unauthenticated, apperror.PublicMessage(err))
	}
	defer sess.Close()
	defer conn.Close()

	// Recv blocks, so it runs on its own goroutine and the loop below can also
	// observe the gateway closing this connection.
	frames := make(chan *structpb.Struct)
	recvErr := make(chan error, 1)
	go func() {
		for {
			in, err := stream.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case frames <- in:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return status.Error(codes.Aborted, "connection closed")
		case err := <-recvErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case in := <-frames:
			frame, err := rpcapi.StructToFrame(in)
			if err != nil {
				frame = realtime.Frame{Event: "", Ref: rpcapi.String(in, "ref")}
			}
			out, ok := sess.Handle(ctx, frame)
			if !ok {
				continue
			}
			if err := conn.Send(out); err != nil {
				s.log.Debug().Err(err).Str("conn_id", sess.ConnID()).Msg("failed to send reply")
				return nil
			}
		}
	}
}

// streamConn adapts a Live stream to realtime.Conn. Frames are queued and written by
// writePump, the only goroutine that calls stream.Send, so Send never blocks on the peer.
type streamConn struct {
	id     string
	send   chan *structpb.Struct
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newStreamConn(cancel context.CancelFunc) *streamConn {
	return &streamConn{id: uuid.NewString(), send: make(chan *structpb.Struct, sendBuffer), cancel: cancel}
}

func (c *streamConn) ID() string { return c.id }

func (c *streamConn) Send(f realtime.Frame) error {
	out, err := rpcapi.FrameToStruct(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- out:
		return nil
	default:
		return errSlowConsumer
	}
}

// Close cancels the stream context, which stops writePump and ends the Live handler.
func (c *streamConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	return nil
}

func (c *streamConn) writePump(ctx context.Context, stream rpcapi.LiveServer) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-c.send:
			if err := stream.Send(out); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
