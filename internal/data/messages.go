package data

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/apperror"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/chat"
)

const messageSeqCounter = "messages"

// MessagesStore provides message database operations.
type MessagesStore struct {
	coll     *mongo.Collection
	counters *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using the messages and counters collections.
func NewMessagesStore(coll, counters *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll, counters: counters}
}

// Create inserts a message with status SENT. created_at is assigned here, never by the
// client, and seq comes from a shared counter so equal timestamps still order.
func (m *MessagesStore) Create(ctx context.Context, nm chat.NewMessage) (*chat.Message, error) {
	seq, err := m.nextSeq(ctx)
	if err != nil {
		return nil, err
	}

	doc := &messageDoc{
		ConversationID: nm.ConversationID,
		SenderID:       nm.SenderID,
		SenderRole:     string(nm.SenderRole),
		Text:           nm.Text,
		Status:         string(chat.StatusSent),
		// Mongo stores milliseconds; truncate so the returned entity matches what a read sees.
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Seq:       seq,
	}

	result, err := m.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, apperror.Internal("failed to save message", err)
	}
	doc.ID = result.InsertedID.(bson.ObjectID)
	return doc.toEntity(), nil
}

// FindByID finds a message by its hex ObjectID.
func (m *MessagesStore) FindByID(ctx context.Context, id string) (*chat.Message, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperror.NotFound("message not found")
	}

	var doc messageDoc
	if err := m.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("message not found")
		}
		return nil, apperror.Internal("failed to fetch message", err)
	}
	return doc.toEntity(), nil
}

// FindByConversationID returns up to page.Limit messages, newest first. With page.Before
// set, only messages strictly older than that message are returned.
func (m *MessagesStore) FindByConversationID(ctx context.Context, conversationID string, page chat.Page) ([]*chat.Message, error) {
	page = page.Normalize()
	filter := bson.M{"conversation_id": conversationID}

	if page.Before != "" {
		cursor, err := m.FindByID(ctx, page.Before)
		if err != nil || cursor.ConversationID != conversationID {
			if err != nil && !apperror.Is(err, apperror.KindNotFound) {
				return nil, err
			}
			return nil, apperror.Validation("invalid pagination cursor", "before")
		}
		filter["$or"] = olderThan(cursor, false)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: -1}}).
		SetLimit(int64(page.Limit))

	cur, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperror.Internal("failed to fetch messages", err)
	}
	defer cur.Close(ctx)

	var docs []*messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apperror.Internal("failed to decode messages", err)
	}

	out := make([]*chat.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toEntity())
	}
	return out, nil
}

// UpdateStatus advances a single message. The filter only matches statuses below the
// target, so a backward transition matches nothing and reports false.
func (m *MessagesStore) UpdateStatus(ctx context.Context, id string, status chat.Status) (bool, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return false, apperror.NotFound("message not found")
	}

	filter := bson.M{"_id": oid, "status": bson.M{"$in": statusStrings(status.Below())}}
	res, err := m.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return false, apperror.Internal("failed to update message status", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	// nothing matched: either the message is gone or it is already at/after status
	if _, err := m.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// MarkAsRead sets READ on every message in the conversation at or before lastMessageID
// that the reader did not send. Already-READ messages are not touched.
func (m *MessagesStore) MarkAsRead(ctx context.Context, conversationID, lastMessageID, readerID string) (int64, error) {
	cursor, err := m.FindByID(ctx, lastMessageID)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if cursor.ConversationID != conversationID {
		return 0, nil
	}

	filter := bson.M{
		"conversation_id": conversationID,
		"sender_id":       bson.M{"$ne": readerID},
		"status":          bson.M{"$ne": string(chat.StatusRead)},
		"$or":             olderThan(cursor, true),
	}
	res, err := m.coll.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"status": string(chat.StatusRead)}})
	if err != nil {
		return 0, apperror.Internal("failed to mark messages as read", err)
	}
	return res.ModifiedCount, nil
}

func (m *MessagesStore) nextSeq(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var c counterDoc
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": messageSeqCounter},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&c)
	if err != nil {
		return 0, apperror.Internal("failed to allocate message sequence", err)
	}
	return c.Value, nil
}

// olderThan matches messages ordered before cursor by (created_at, seq); inclusive also
// matches the cursor itself.
func olderThan(cursor *chat.Message, inclusive bool) bson.A {
	seqOp := "$lt"
	if inclusive {
		seqOp = "$lte"
	}
	return bson.A{
		bson.M{"created_at": bson.M{"$lt": cursor.CreatedAt}},
		bson.M{"created_at": cursor.CreatedAt, "seq": bson.M{seqOp: cursor.Seq}},
	}
}

func statusStrings(in []chat.Status) bson.A {
	out := make(bson.A, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
