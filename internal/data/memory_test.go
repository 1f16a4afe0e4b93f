package data

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/apperror"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/chat"
)

// frozenClock returns the same instant every call so ordering falls back to seq.
func frozenClock() func() time.Time {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func seedConversation(t *testing.T, s *MemoryStore) *chat.Conversation {
	t.Helper()
	c, err := s.Create(context.Background(), chat.NewConversation{PropertyID: "prop-1", ClientID: "client-789", OwnerID: "owner-101"})
	require.NoError(t, err)
	return c
}

func send(t *testing.T, s *MemoryStore, convID, sender, text string) *chat.Message {
	t.Helper()
	m, err := s.Messages().Create(context.Background(), chat.NewMessage{ConversationID: convID, SenderID: sender, Text: text})
	require.NoError(t, err)
	return m
}

func TestMemoryStore_CreateIsUniquePerPair(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := s.Create(ctx, chat.NewConversation{PropertyID: "p", ClientID: "c", OwnerID: "o"})
			if assert.NoError(t, err) {
				ids[i] = c.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	list, err := s.FindByUserID(ctx, "o")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStore_FindMissing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.FindByID(ctx, "nope")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	_, err = s.FindByPropertyAndClient(ctx, "p", "c")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	_, err = s.Messages().FindByID(ctx, "nope")
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestMemoryStore_PaginationWithTimestampTies(t *testing.T) {
	s := NewMemoryStoreWithClock(frozenClock())
	ctx := context.Background()
	conv := seedConversation(t, s)

	var sent []*chat.Message
	for _, text := range []string{"m1", "m2", "m3", "m4", "m5"} {
		sent = append(sent, send(t, s, conv.ID, conv.ClientID, text))
	}

	first, err := s.FindByConversationID(ctx, conv.ID, chat.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "m5", first[0].Text)
	assert.Equal(t, "m4", first[1].Text)

	second, err := s.FindByConversationID(ctx, conv.ID, chat.Page{Before: first[1].ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "m3", second[0].Text)
	assert.Equal(t, "m2", second[1].Text)

	last, err := s.FindByConversationID(ctx, conv.ID, chat.Page{Before: second[1].ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, sent[0].ID, last[0].ID)
}

func TestMemoryStore_PaginationRejectsForeignCursor(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	a := seedConversation(t, s)
	b, err := s.Create(ctx, chat.NewConversation{PropertyID: "prop-2", ClientID: "client-789", OwnerID: "owner-202"})
	require.NoError(t, err)

	other := send(t, s, b.ID, b.ClientID, "elsewhere")

	_, err = s.FindByConversationID(ctx, a.ID, chat.Page{Before: other.ID})
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestMemoryStore_UpdateStatusIsMonotonic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	conv := seedConversation(t, s)
	m := send(t, s, conv.ID, conv.ClientID, "hi")
	msgs := s.Messages()

	ok, err := msgs.UpdateStatus(ctx, m.ID, chat.StatusRead)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = msgs.UpdateStatus(ctx, m.ID, chat.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, ok, "READ must not go back to DELIVERED")

	got, err := msgs.FindByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.StatusRead, got.Status)

	_, err = msgs.UpdateStatus(ctx, "missing", chat.StatusRead)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestMemoryStore_MarkAsRead(t *testing.T) {
	s := NewMemoryStoreWithClock(frozenClock())
	ctx := context.Background()
	conv := seedConversation(t, s)
	msgs := s.Messages()

	c1 := send(t, s, conv.ID, conv.ClientID, "c1")
	o1 := send(t, s, conv.ID, conv.OwnerID, "o1")
	c2 := send(t, s, conv.ID, conv.ClientID, "c2")
	c3 := send(t, s, conv.ID, conv.ClientID, "c3")

	// the owner reads up to c2: c1 and c2 become READ, o1 (own) and c3 (after cursor) don't
	n, err := msgs.MarkAsRead(ctx, conv.ID, c2.ID, conv.OwnerID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	for id, want := range map[string]chat.Status{
		c1.ID: chat.StatusRead,
		c2.ID: chat.StatusRead,
		o1.ID: chat.StatusSent,
		c3.ID: chat.StatusSent,
	} {
		got, err := msgs.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, got.Text)
	}

	n, err = msgs.MarkAsRead(ctx, conv.ID, c2.ID, conv.OwnerID)
	require.NoError(t, err)
	assert.Zero(t, n, "second call with the same cursor is a no-op")

	n, err = msgs.MarkAsRead(ctx, conv.ID, "unknown", conv.OwnerID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStore_UpdateLastMessageOnlyMovesForward(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	conv := seedConversation(t, s)
	t0 := time.Now()

	require.NoError(t, s.UpdateLastMessage(ctx, conv.ID, "newer", t0.Add(time.Second), 2))
	require.NoError(t, s.UpdateLastMessage(ctx, conv.ID, "older", t0, 1))

	got, err := s.FindByID(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "newer", *got.LastMessage)

	// the snapshot handed out before the update is untouched
	assert.Nil(t, conv.LastMessage)
}

func TestMemoryStore_UpdateLastMessageBreaksTiesBySeq(t *testing.T) {
	s := NewMemoryStoreWithClock(frozenClock())
	ctx := context.Background()
	conv := seedConversation(t, s)

	first := send(t, s, conv.ID, conv.ClientID, "Olá!")
	second := send(t, s, conv.ID, conv.OwnerID, "Oi!")
	require.Equal(t, first.CreatedAt, second.CreatedAt)

	require.NoError(t, s.UpdateLastMessage(ctx, conv.ID, first.Text, first.CreatedAt, first.Seq))
	require.NoError(t, s.UpdateLastMessage(ctx, conv.ID, second.Text, second.CreatedAt, second.Seq))
	// a retry of the earlier send does not win back the snapshot
	require.NoError(t, s.UpdateLastMessage(ctx, conv.ID, first.Text, first.CreatedAt, first.Seq))

	got, err := s.FindByID(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, "Oi!", *got.LastMessage)
	assert.Equal(t, second.Seq, got.LastMessageSeq)
}

func TestMemoryStore_FindByUserIDOrdersByUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, err := s.Create(ctx, chat.NewConversation{PropertyID: "p1", ClientID: "u", OwnerID: "o1"})
	require.NoError(t, err)
	b, err := s.Create(ctx, chat.NewConversation{PropertyID: "p2", ClientID: "u", OwnerID: "o2"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateLastMessage(ctx, a.ID, "bump", time.Now().Add(time.Hour), 1))

	list, err := s.FindByUserID(ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}
