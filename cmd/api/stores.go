package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/config"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/data"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/db"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/usecase"
)

// stores groups what the conversation service needs plus the cleanup for it.
type stores struct {
	conversations usecase.ConversationStore
	messages      usecase.MessageStore
	owners        usecase.PropertyOwners
	closers       []func(context.Context) error
}

func (s *stores) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		mem := data.NewMemoryStore()
		st.conversations = mem
		st.messages = mem.Messages()
		log.Warn().Msg("using in-memory storage; data is lost on restart")

	case config.DriverMongo:
		client, err := db.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		st.closers = append(st.closers, client.Close)
		if err := client.CreateIndexes(ctx); err != nil {
			st.Close(ctx)
			return nil, fmt.Errorf("failed to create indexes: %w", err)
		}
		st.conversations = data.NewConversationsStore(client.ConversationsCollection())
		st.messages = data.NewMessagesStore(client.MessagesCollection(), client.CountersCollection())
	}

	owners, err := openOwners(ctx, cfg, st)
	if err != nil {
		st.Close(ctx)
		return nil, err
	}
	st.owners = owners
	return st, nil
}

// openOwners picks the property ownership source: Postgres when configured, the static
// map otherwise, behind a Redis cache when Redis is configured.
func openOwners(ctx context.Context, cfg *config.Config, st *stores) (data.OwnerLookup, error) {
	var owners data.OwnerLookup

	if cfg.Postgres.DSN != "" {
		gdb, err := db.OpenPostgres(cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func(context.Context) error { return db.ClosePostgres(gdb) })
		owners = data.NewPropertiesStore(gdb)
	} else {
		static, err := cfg.PropertyOwners()
		if err != nil {
			return nil, err
		}
		owners = data.StaticOwners(static)
		log.Info().Int("properties", len(static)).Msg("using static property owners")
	}

	if cfg.Redis.Addr != "" {
		rdb, err := db.OpenRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func(context.Context) error { return rdb.Close() })
		owners = data.NewCachedOwners(owners, rdb, cfg.Redis.OwnerTTL)
	}
	return owners, nil
}
