package data

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/apperror"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/chat"
)

// MemoryStore keeps conversations and messages in process memory. It implements both
// store contracts and is used by the "memory" storage driver and by tests.
type MemoryStore struct {
	mu sync.RWMutex

	conversations map[string]*chat.Conversation
	byPair        map[pairKey]string
	messages      map[string]*chat.Message
	// byConversation keeps message ids in insertion (= seq) order.
	byConversation map[string][]string

	seq   int64
	clock func() time.Time
}

type pairKey struct{ property, client string }

// NewMemoryStore returns an empty store using the wall clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock lets tests control the timestamps assigned to records.
func NewMemoryStoreWithClock(clock func() time.Time) *MemoryStore {
	return &MemoryStore{
		conversations:  make(map[string]*chat.Conversation),
		byPair:         make(map[pairKey]string),
		messages:       make(map[string]*chat.Message),
		byConversation: make(map[string][]string),
		clock:          clock,
	}
}

// Conversations

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, apperror.NotFound("conversation not found")
	}
	return c, nil
}

func (s *MemoryStore) FindByPropertyAndClient(ctx context.Context, propertyID, clientID string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPair[pairKey{propertyID, clientID}]
	if !ok {
		return nil, apperror.NotFound("conversation not found")
	}
	return s.conversations[id], nil
}

func (s *MemoryStore) FindByUserID(ctx context.Context, userID string) ([]*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*chat.Conversation, 0)
	for _, c := range s.conversations {
		if c.IsParticipant(userID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Create(ctx context.Context, nc chat.NewConversation) (*chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{nc.PropertyID, nc.ClientID}
	if id, ok := s.byPair[key]; ok {
		return s.conversations[id], nil
	}

	now := s.clock()
	c := &chat.Conversation{
		ID:         uuid.NewString(),
		PropertyID: nc.PropertyID,
		ClientID:   nc.ClientID,
		OwnerID:    nc.OwnerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.conversations[c.ID] = c
	s.byPair[key] = c.ID
	return c, nil
}

func (s *MemoryStore) UpdateLastMessage(ctx context.Context, id, text string, at time.Time, seq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return apperror.NotFound("conversation not found")
	}
	if !c.SnapshotBefore(at, seq) {
		return nil
	}
	// replace the snapshot rather than mutating the one readers may hold
	s.conversations[id] = c.UpdateLastMessage(text, at, seq)
	return nil
}

// Messages

func (s *MemoryStore) FindMessageByID(ctx context.Context, id string) (*chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, apperror.NotFound("message not found")
	}
	return m, nil
}

func (s *MemoryStore) CreateMessage(ctx context.Context, nm chat.NewMessage) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[nm.ConversationID]; !ok {
		return nil, apperror.NotFound("conversation not found")
	}

	s.seq++
	m := &chat.Message{
		ID:             uuid.NewString(),
		ConversationID: nm.ConversationID,
		SenderID:       nm.SenderID,
		SenderRole:     nm.SenderRole,
		Text:           nm.Text,
		Status:         chat.StatusSent,
		CreatedAt:      s.clock(),
		Seq:            s.seq,
	}
	s.messages[m.ID] = m
	s.byConversation[m.ConversationID] = append(s.byConversation[m.ConversationID], m.ID)
	return m, nil
}

func (s *MemoryStore) FindByConversationID(ctx context.Context, conversationID string, page chat.Page) ([]*chat.Message, error) {
	page = page.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var cursor *chat.Message
	if page.Before != "" {
		c, ok := s.messages[page.Before]
		if !ok || c.ConversationID != conversationID {
			return nil, apperror.Validation("invalid pagination cursor", "before")
		}
		cursor = c
	}

	ordered := s.orderedLocked(conversationID)
	out := make([]*chat.Message, 0, page.Limit)
	for i := len(ordered) - 1; i >= 0 && len(out) < page.Limit; i-- {
		m := ordered[i]
		if cursor != nil && !m.Before(cursor) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status chat.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[id]
	if !ok {
		return false, apperror.NotFound("message not found")
	}
	if !m.Status.CanAdvanceTo(status) {
		return false, nil
	}
	next := *m
	next.Status = status
	s.messages[id] = &next
	return true, nil
}

func (s *MemoryStore) MarkAsRead(ctx context.Context, conversationID, lastMessageID, readerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursor, ok := s.messages[lastMessageID]
	if !ok || cursor.ConversationID != conversationID {
		return 0, nil
	}

	var n int64
	for _, id := range s.byConversation[conversationID] {
		m := s.messages[id]
		if m.SenderID == readerID || m.Status == chat.StatusRead {
			continue
		}
		if cursor.Before(m) {
			continue
		}
		s.messages[id] = m.MarkAsRead()
		n++
	}
	return n, nil
}

// orderedLocked returns the conversation's messages oldest first. Callers hold mu.
func (s *MemoryStore) orderedLocked(conversationID string) []*chat.Message {
	ids := s.byConversation[conversationID]
	out := make([]*chat.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.messages[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Messages exposes the message side of the store under the MessageStore method names.
func (s *MemoryStore) Messages() *MemoryMessages { return &MemoryMessages{s} }

// MemoryMessages adapts MemoryStore to the message store contract, whose FindByID and
// Create names collide with the conversation side.
type MemoryMessages struct{ s *MemoryStore }

func (m *MemoryMessages) FindByID(ctx context.Context, id string) (*chat.Message, error) {
	return m.s.FindMessageByID(ctx, id)
}

func (m *MemoryMessages) FindByConversationID(ctx context.Context, conversationID string, page chat.Page) ([]*chat.Message, error) {
	return m.s.FindByConversationID(ctx, conversationID, page)
}

func (m *MemoryMessages) Create(ctx context.Context, nm chat.NewMessage) (*chat.Message, error) {
	return m.s.CreateMessage(ctx, nm)
}

func (m *MemoryMessages) UpdateStatus(ctx context.Context, id string, status chat.Status) (bool, error) {
	return m.s.UpdateStatus(ctx, id, status)
}

func (m *MemoryMessages) MarkAsRead(ctx context.Context, conversationID, lastMessageID, readerID string) (int64, error) {
	return m.s.MarkAsRead(ctx, conversationID, lastMessageID, readerID)
}
