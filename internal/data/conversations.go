// Package data provides the Mongo, Postgres, Redis and in-memory stores behind the use cases.
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

// ConversationsStore performs conversation DB operations.
type ConversationsStore struct {
	coll *mongo.Collection
}

// NewConversationsStore returns a ConversationsStore using the provided collection.
func NewConversationsStore(coll *mongo.Collection) *ConversationsStore {
	return &ConversationsStore{coll: coll}
}

// Create inserts a conversation. When the unique (property_id, client_id) index rejects
// the insert because a concurrent caller won the race, the existing document is returned.
func (s *ConversationsStore) Create(ctx context.Context, nc chat.NewConversation) (*chat.Conversation, error) {
	now := time.Now().UTC()
	doc := &conversationDoc{
		PropertyID: nc.PropertyID,
		ClientID:   nc.ClientID,
		OwnerID:    nc.OwnerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	result, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, findErr := s.FindByPropertyAndClient(ctx, nc.PropertyID, nc.ClientID)
			if findErr == nil {
				return existing, nil
			}
			return nil, apperror.Conflict("conversation already exists")
		}
		return nil, apperror.Internal("failed to create conversation", err)
	}

	doc.ID = result.InsertedID.(bson.ObjectID)
	return doc.toEntity(), nil
}

// FindByID finds a conversation by its hex ObjectID.
func (s *ConversationsStore) FindByID(ctx context.Context, id string) (*chat.Conversation, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		// a malformed id can never match a stored conversation
		return nil, apperror.NotFound("conversation not found")
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

// FindByPropertyAndClient finds the conversation for a property/client pair.
func (s *ConversationsStore) FindByPropertyAndClient(ctx context.Context, propertyID, clientID string) (*chat.Conversation, error) {
	return s.findOne(ctx, bson.M{"property_id": propertyID, "client_id": clientID})
}

// FindByUserID lists conversations where the user is client or owner, most recently updated first.
func (s *ConversationsStore) FindByUserID(ctx context.Context, userID string) ([]*chat.Conversation, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"client_id": userID},
			bson.M{"owner_id": userID},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: -1}})

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperror.Internal("failed to list conversations", err)
	}
	defer cursor.Close(ctx)

	var docs []*conversationDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperror.Internal("failed to decode conversations", err)
	}

	out := make([]*chat.Conversation, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toEntity())
	}
	return out, nil
}

// UpdateLastMessage sets the last-message snapshot unless a newer one is already stored,
// which makes the call safe to retry and safe against out-of-order sends. Snapshots with
// the same time are ordered by seq.
func (s *ConversationsStore) UpdateLastMessage(ctx context.Context, id, text string, at time.Time, seq int64) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return apperror.NotFound("conversation not found")
	}

	filter := bson.M{
		"_id": oid,
		"$or": bson.A{
			bson.M{"last_message_time": bson.M{"$exists": false}},
			bson.M{"last_message_time": bson.M{"$lt": at}},
			bson.M{"last_message_time": at, "last_message_seq": bson.M{"$lt": seq}},
		},
	}
	update := bson.M{"$set": bson.M{
		"last_message":      text,
		"last_message_time": at,
		"last_message_seq":  seq,
		"updated_at":        at,
	}}

	if _, err := s.coll.UpdateOne(ctx, filter, update); err != nil {
		return apperror.Internal("failed to update conversation snapshot", err)
	}
	return nil
}

func (s *ConversationsStore) findOne(ctx context.Context, filter bson.M) (*chat.Conversation, error) {
	var doc conversationDoc
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("conversation not found")
		}
		return nil, apperror.Internal("failed to fetch conversation", err)
	}
	return doc.toEntity(), nil
}
