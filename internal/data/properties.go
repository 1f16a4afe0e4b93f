package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/apperror"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OwnerLookup resolves a property id to its owner's user id.
type OwnerLookup interface {
	OwnerOf(ctx context.Context, propertyID string) (string, error)
}

// PropertiesStore reads property ownership from the CRM's Postgres database.
type PropertiesStore struct {
	db *gorm.DB
}

func NewPropertiesStore(db *gorm.DB) *PropertiesStore {
	return &PropertiesStore{db: db}
}

func (s *PropertiesStore) OwnerOf(ctx context.Context, propertyID string) (string, error) {
	var p Property
	err := s.db.WithContext(ctx).Select("id", "owner_id").Where("id = ?", propertyID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperror.NotFound("property not found")
		}
		return "", apperror.Internal("failed to fetch property", err)
	}
	return p.OwnerID, nil
}

// StaticOwners is a fixed property -> owner map, used with the memory storage driver.
type StaticOwners map[string]string

func (s StaticOwners) OwnerOf(ctx context.Context, propertyID string) (string, error) {
	owner, ok := s[propertyID]
	if !ok || owner == "" {
		return "", apperror.NotFound("property not found")
	}
	return owner, nil
}

type cachedOwner struct {
	OwnerID string `json:"owner_id"`
}

// CachedOwners is a read-through Redis cache in front of another OwnerLookup. Ownership
// rarely changes, and every first contact on a property hits this path.
type CachedOwners struct {
	next OwnerLookup
	rdb  *redis.Client
	ttl  time.Duration
}

func NewCachedOwners(next OwnerLookup, rdb *redis.Client, ttl time.Duration) *CachedOwners {
	return &CachedOwners{next: next, rdb: rdb, ttl: ttl}
}

func (c *CachedOwners) OwnerOf(ctx context.Context, propertyID string) (string, error) {
	key := ownerCacheKey(propertyID)

	val, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var entry cachedOwner
		if jerr := json.Unmarshal([]byte(val), &entry); jerr == nil && entry.OwnerID != "" {
			return entry.OwnerID, nil
		}
		log.Warn().Str("key", key).Msg("discarding malformed owner cache entry")
	case errors.Is(err, redis.Nil):
		// miss
	default:
		// cache is an optimization; fall through to the source on Redis errors
		log.Warn().Err(err).Str("key", key).Msg("owner cache unavailable")
	}

	owner, err := c.next.OwnerOf(ctx, propertyID)
	if err != nil {
		return "", err
	}

	if b, err := json.Marshal(cachedOwner{OwnerID: owner}); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to cache property owner")
		}
	}
	return owner, nil
}

func ownerCacheKey(propertyID string) string {
	return fmt.Sprintf("property:%s:owner", propertyID)
}
