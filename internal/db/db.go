// Package db manages MongoDB, Postgres and Redis connections.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// DefaultDatabase is used when no database name is configured.
const DefaultDatabase = "imobix_chat"

// Client wraps mongo.Client and exposes collections.
type Client struct {
	// client is the underlying MongoDB connection (thread-safe, can be reused)
	client *mongo.Client

	db *mongo.Database
}

// New connects to MongoDB and returns a Client for the given database.
func New(ctx context.Context, mongoURI, database string) (*Client, error) {
	if database == "" {
		database = DefaultDatabase
	}

	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database(database),
	}, nil
}

// ConversationsCollection returns the conversations collection.
func (c *Client) ConversationsCollection() *mongo.Collection {
	return c.db.Collection("conversations")
}

// MessagesCollection returns the messages collection.
func (c *Client) MessagesCollection() *mongo.Collection {
	return c.db.Collection("messages")
}

// CountersCollection returns the collection holding sequence counters.
func (c *Client) CountersCollection() *mongo.Collection {
	return c.db.Collection("counters")
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the stores rely on for correctness and speed.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// ===== CONVERSATIONS =====
	// The unique pair index is what makes get-or-create idempotent under races.
	conversationIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "property_id", Value: 1}, {Key: "client_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "updated_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	}
	if _, err := c.ConversationsCollection().Indexes().CreateMany(ctx, conversationIndexes); err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}

	// ===== MESSAGES =====
	// Pagination and read receipts both walk (conversation_id, created_at, seq).
	messageIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "conversation_id", Value: 1},
				{Key: "created_at", Value: -1},
				{Key: "seq", Value: -1},
			},
		},
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "status", Value: 1}},
		},
	}
	if _, err := c.MessagesCollection().Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	return nil
}
