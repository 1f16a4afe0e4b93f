package chat

import (
	"testing"
	"time"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConversation() *Conversation {
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	return &Conversation{
		ID:         "conv-123",
		PropertyID: "prop-1",
		ClientID:   "client-789",
		OwnerID:    "owner-101",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestConversation_IsParticipant(t *testing.T) {
	c := sampleConversation()

	assert.True(t, c.IsParticipant(c.ClientID))
	assert.True(t, c.IsParticipant(c.OwnerID))
	assert.False(t, c.IsParticipant("intruder"))
	assert.False(t, c.IsParticipant(""))
}

func TestConversation_OtherParticipantIsInvolutive(t *testing.T) {
	c := sampleConversation()

	for _, u := range []string{c.ClientID, c.OwnerID} {
		assert.Equal(t, u, c.OtherParticipant(c.OtherParticipant(u)))
	}
	assert.Equal(t, c.OwnerID, c.OtherParticipant(c.ClientID))
	assert.Equal(t, c.ClientID, c.OtherParticipant(c.OwnerID))
}

func TestConversation_RoleOf(t *testing.T) {
	c := sampleConversation()

	assert.Equal(t, RoleClient, c.RoleOf(c.ClientID))
	assert.Equal(t, RoleOwner, c.RoleOf(c.OwnerID))
}

func TestConversation_UpdateLastMessageLeavesOriginal(t *testing.T) {
	c := sampleConversation()
	at := c.CreatedAt.Add(time.Minute)

	next := c.UpdateLastMessage("Olá!", at, 7)

	require.NotNil(t, next.LastMessage)
	assert.Equal(t, "Olá!", *next.LastMessage)
	assert.Equal(t, at, *next.LastMessageTime)
	assert.Equal(t, at, next.UpdatedAt)
	assert.EqualValues(t, 7, next.LastMessageSeq)

	assert.Nil(t, c.LastMessage)
	assert.Nil(t, c.LastMessageTime)
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)
}

func TestDraft_RejectsBlankText(t *testing.T) {
	for _, text := range []string{"", " ", "\n\t  "} {
		_, err := Draft("conv-123", "client-789", RoleClient, text)
		require.Error(t, err)
		assert.True(t, apperror.Is(err, apperror.KindValidation), "text %q", text)
	}

	m, err := Draft("conv-123", "client-789", RoleClient, " hi ")
	require.NoError(t, err)
	assert.Equal(t, " hi ", m.Text)
}

func TestStatus_Transitions(t *testing.T) {
	assert.True(t, StatusSent.CanAdvanceTo(StatusDelivered))
	assert.True(t, StatusSent.CanAdvanceTo(StatusRead))
	assert.True(t, StatusDelivered.CanAdvanceTo(StatusRead))
	assert.False(t, StatusRead.CanAdvanceTo(StatusDelivered))
	assert.False(t, StatusDelivered.CanAdvanceTo(StatusDelivered))

	assert.Equal(t, []Status{StatusSent, StatusDelivered}, StatusRead.Below())
	assert.Empty(t, StatusSent.Below())
}

func TestMessage_MarkSnapshots(t *testing.T) {
	m := &Message{ID: "m1", Status: StatusSent}

	d := m.MarkAsDelivered()
	r := d.MarkAsRead()

	assert.Equal(t, StatusSent, m.Status)
	assert.Equal(t, StatusDelivered, d.Status)
	assert.Equal(t, StatusRead, r.Status)
}

func TestMessage_BeforeUsesSeqOnTies(t *testing.T) {
	at := time.Now()
	a := &Message{CreatedAt: at, Seq: 1}
	b := &Message{CreatedAt: at, Seq: 2}
	c := &Message{CreatedAt: at.Add(-time.Second), Seq: 3}

	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))
	assert.True(t, c.Before(a))
}

func TestPage_Normalize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Page{}.Normalize().Limit)
	assert.Equal(t, MaxPageSize, Page{Limit: 10_000}.Normalize().Limit)
	assert.Equal(t, 7, Page{Limit: 7}.Normalize().Limit)
}

func TestConversation_SnapshotBefore(t *testing.T) {
	c := sampleConversation()
	at := c.CreatedAt.Add(time.Minute)
	assert.True(t, c.SnapshotBefore(at, 1), "empty snapshot accepts anything")

	c = c.UpdateLastMessage("Olá!", at, 5)
	assert.True(t, c.SnapshotBefore(at, 6))
	assert.False(t, c.SnapshotBefore(at, 5))
	assert.False(t, c.SnapshotBefore(at, 4))
	assert.True(t, c.SnapshotBefore(at.Add(time.Millisecond), 1))
	assert.False(t, c.SnapshotBefore(at.Add(-time.Millisecond), 9))
}
