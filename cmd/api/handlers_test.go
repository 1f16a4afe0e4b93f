package main

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/auth"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/data"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/middleware"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/presence"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/realtime"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/rpcapi"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/usecase"
)

const bufSize = 1024 * 1024

const (
	clientID = "client-789"
	ownerID  = "owner-101"
)

type testEnv struct {
	client  *rpcapi.ChatServiceClient
	jwt     *auth.JWTManager
	gateway *realtime.Gateway
}

// newTestEnv serves the chat service over bufconn with in-memory storage.
func newTestEnv(t *testing.T, svc usecase.ConversationServiceContract) *testEnv {
	t.Helper()
	if svc == nil {
		store := data.NewMemoryStore()
		svc = usecase.NewConversationService(store, store.Messages(), data.StaticOwners{"prop-1": ownerID}, zerolog.Nop())
	}

	jwtMgr := auth.NewJWTManager("test-secret", time.Hour)
	gw := realtime.NewGateway(svc, jwtMgr, presence.NewRegistry(), nil, zerolog.Nop())
	limiter := middleware.NewLimiterStore(600, 100, time.Hour)
	t.Cleanup(limiter.Stop)

	lis := bufconn.Listen(bufSize)
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			authUnaryInterceptor(jwtMgr),
			middleware.RateLimitUnaryInterceptor(limiter, map[string]bool{rpcapi.FullMethodSendMessage: true}),
		),
		grpc.ChainStreamInterceptor(authStreamInterceptor(jwtMgr)),
	)
	registerService(s, newServer(svc, gw, zerolog.Nop()))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &testEnv{client: rpcapi.NewChatServiceClient(conn), jwt: jwtMgr, gateway: gw}
}

func (e *testEnv) as(t *testing.T, userID string) context.Context {
	t.Helper()
	token, _, err := e.jwt.GenerateToken(userID)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

func req(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func field(t *testing.T, s *structpb.Struct, key string) map[string]any {
	t.Helper()
	v, ok := s.AsMap()[key].(map[string]any)
	require.True(t, ok, "response has no %s object", key)
	return v
}

func list(t *testing.T, s *structpb.Struct, key string) []any {
	t.Helper()
	v, ok := s.AsMap()[key].([]any)
	require.True(t, ok, "response has no %s list", key)
	return v
}

func openConversation(t *testing.T, e *testEnv) string {
	t.Helper()
	resp, err := e.client.GetOrCreateConversation(e.as(t, clientID), req(t, map[string]any{"propertyId": "prop-1"}))
	require.NoError(t, err)
	return field(t, resp, "conversation")["id"].(string)
}

func TestUnauthenticatedCallsAreRejected(t *testing.T) {
	e := newTestEnv(t, nil)

	_, err := e.client.ListConversations(context.Background(), req(t, nil))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer forged")
	_, err = e.client.ListConversations(bad, req(t, nil))
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestConversationFlowOverGRPC(t *testing.T) {
	e := newTestEnv(t, nil)
	convID := openConversation(t, e)

	resp, err := e.client.SendMessage(e.as(t, clientID), req(t, map[string]any{"conversationId": convID, "text": "Olá!"}))
	require.NoError(t, err)
	assert.Equal(t, "Olá!", field(t, resp, "conversation")["lastMessage"])
	assert.Equal(t, "CLIENTE", field(t, resp, "message")["senderRole"])

	resp, err = e.client.SendMessage(e.as(t, ownerID), req(t, map[string]any{"conversationId": convID, "text": "Oi!"}))
	require.NoError(t, err)
	oiID := field(t, resp, "message")["id"].(string)

	resp, err = e.client.ListMessages(e.as(t, clientID), req(t, map[string]any{"conversationId": convID, "limit": 1}))
	require.NoError(t, err)
	msgs := list(t, resp, "messages")
	require.Len(t, msgs, 1)
	assert.Equal(t, "Oi!", msgs[0].(map[string]any)["text"])

	resp, err = e.client.ListMessages(e.as(t, clientID), req(t, map[string]any{"conversationId": convID, "before": oiID, "limit": 1}))
	require.NoError(t, err)
	msgs = list(t, resp, "messages")
	require.Len(t, msgs, 1)
	assert.Equal(t, "Olá!", msgs[0].(map[string]any)["text"])

	resp, err = e.client.ListConversations(e.as(t, ownerID), req(t, nil))
	require.NoError(t, err)
	convs := list(t, resp, "conversations")
	require.Len(t, convs, 1)
	assert.Equal(t, "Oi!", convs[0].(map[string]any)["lastMessage"])

	resp, err = e.client.MarkAsRead(e.as(t, clientID), req(t, map[string]any{"conversationId": convID, "lastMessageId": oiID}))
	require.NoError(t, err)
	assert.EqualValues(t, 1, resp.AsMap()["marked"])
}

func TestErrorMapping(t *testing.T) {
	e := newTestEnv(t, nil)
	convID := openConversation(t, e)

	_, err := e.client.SendMessage(e.as(t, clientID), req(t, map[string]any{"conversationId": convID, "text": "  "}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, "Message text cannot be empty", status.Convert(err).Message())

	_, err = e.client.SendMessage(e.as(t, clientID), req(t, map[string]any{"conversationId": "nope", "text": "hi"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = e.client.SendMessage(e.as(t, "stranger"), req(t, map[string]any{"conversationId": convID, "text": "hi"}))
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = e.client.GetOrCreateConversation(e.as(t, clientID), req(t, map[string]any{"propertyId": "ghost"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = e.client.GetOrCreateConversation(e.as(t, ownerID), req(t, map[string]any{"propertyId": "prop-1"}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func sendFrame(t *testing.T, stream rpcapi.LiveClient, f realtime.Frame) {
	t.Helper()
	s, err := rpcapi.FrameToStruct(f)
	require.NoError(t, err)
	require.NoError(t, stream.Send(s))
}

// recvUntil reads frames until one with the given event arrives.
func recvUntil(t *testing.T, stream rpcapi.LiveClient, event string) realtime.Frame {
	t.Helper()
	for {
		in, err := stream.Recv()
		require.NoError(t, err)
		f, err := rpcapi.StructToFrame(in)
		require.NoError(t, err)
		if f.Event == event {
			return f
		}
	}
}

func TestLiveStream(t *testing.T) {
	e := newTestEnv(t, nil)
	convID := openConversation(t, e)

	ownerStream, err := e.client.Live(e.as(t, ownerID))
	require.NoError(t, err)

	// the first frame the owner sees is their own online broadcast
	online := recvUntil(t, ownerStream, realtime.EventUserOnline)
	assert.Equal(t, ownerID, online.String("userId"))

	clientStream, err := e.client.Live(e.as(t, clientID))
	require.NoError(t, err)
	online = recvUntil(t, ownerStream, realtime.EventUserOnline)
	assert.Equal(t, clientID, online.String("userId"))

	sendFrame(t, clientStream, realtime.Frame{Event: realtime.EventMessageSend, Ref: "1", Data: map[string]any{
		"conversationId": convID, "text": "Olá!", "tempId": "tmp-1",
	}})

	got := recvUntil(t, ownerStream, realtime.EventMessageReceive)
	assert.Equal(t, "Olá!", got.String("text"))
	assert.Equal(t, clientID, got.String("senderId"))

	ack := recvUntil(t, clientStream, realtime.EventReply)
	assert.Equal(t, "1", ack.Ref)
	assert.Equal(t, true, ack.Data["success"])
	assert.Equal(t, "tmp-1", ack.Data["tempId"])

	// unary sends reach live connections too
	_, err = e.client.SendMessage(e.as(t, ownerID), req(t, map[string]any{"conversationId": convID, "text": "Oi!"}))
	require.NoError(t, err)
	got = recvUntil(t, clientStream, realtime.EventMessageReceive)
	assert.Equal(t, "Oi!", got.String("text"))

	require.NoError(t, clientStream.CloseSend())
	offline := recvUntil(t, ownerStream, realtime.EventUserOffline)
	assert.Equal(t, clientID, offline.String("userId"))
	assert.False(t, e.gateway.IsOnline(clientID))
}

func TestLiveStream_RejectsMissingToken(t *testing.T) {
	e := newTestEnv(t, nil)

	stream, err := e.client.Live(context.Background())
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

// stalledStream is a Live server stream whose peer never reads: Send blocks until unblock.
type stalledStream struct {
	grpc.ServerStream
	unblock chan struct{}
}

func (s *stalledStream) Send(*structpb.Struct) error {
	<-s.unblock
	return errors.New("stream closed")
}

func (s *stalledStream) Recv() (*structpb.Struct, error) { return nil, errors.New("not used") }

func TestStreamConn_SlowPeerDoesNotBlockBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := &stalledStream{unblock: make(chan struct{})}
	defer close(stream.unblock)

	conn := newStreamConn(cancel)
	go conn.writePump(ctx, stream)

	rooms := realtime.NewRooms()
	rooms.Join("user:"+clientID, conn)

	done := make(chan int)
	go func() {
		delivered := 0
		for i := 0; i < sendBuffer+2; i++ {
			delivered += rooms.Broadcast("user:"+clientID, realtime.Frame{Event: realtime.EventMessageReceive})
		}
		done <- delivered
	}()

	select {
	case delivered := <-done:
		assert.LessOrEqual(t, delivered, sendBuffer+1)
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast blocked on a stalled Live stream")
	}
	assert.Zero(t, rooms.Members("user:"+clientID), "stalled connection is evicted")
	assert.Error(t, ctx.Err(), "eviction cancels the stream context")

	err := conn.Send(realtime.Frame{Event: realtime.EventUserOnline})
	assert.Error(t, err)
}

func TestStreamConn_BufferFullIsSlowConsumer(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	// no writer: the buffer is the only capacity
	conn := newStreamConn(cancel)

	for i := 0; i < sendBuffer; i++ {
		require.NoError(t, conn.Send(realtime.Frame{Event: realtime.EventMessageReceive}))
	}
	assert.ErrorIs(t, conn.Send(realtime.Frame{Event: realtime.EventMessageReceive}), errSlowConsumer)
}
