package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KilluaDB/topology/internal/models"

	"github.com/redis/go-redis/v9"
)

// RelationshipCache stores fetched relationship trees by (key, depth).
type RelationshipCache interface {
	Get(ctx context.Context, key models.NodeKey, depth int) (*models.RelationshipNode, bool, error)
	Set(ctx context.Context, key models.NodeKey, depth int, node *models.RelationshipNode) error
}

type RedisRelationshipCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisRelationshipCache(rdb *redis.Client, ttl time.Duration) *RedisRelationshipCache {
	return &RedisRelationshipCache{rdb: rdb, ttl: ttl}
}

func relationshipCacheKey(key models.NodeKey, depth int) string {
	return fmt.Sprintf("topology:rel:%s:%d", key, depth)
}

func (r *RedisRelationshipCache) Get(ctx context.Context, key models.NodeKey, depth int) (*models.RelationshipNode, bool, error) {
	raw, err := r.rdb.Get(ctx, relationshipCacheKey(key, depth)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var node models.RelationshipNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached relationships for %s: %w", key, err)
	}
	return &node, true, nil
}

func (r *RedisRelationshipCache) Set(ctx context.Context, key models.NodeKey, depth int, node *models.RelationshipNode) error {
	raw, err := json.Marshal(node)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, relationshipCacheKey(key, depth), raw, r.ttl).Err()
}

// NoopRelationshipCache never hits. It is used when no Redis is configured.
type NoopRelationshipCache struct{}

func (NoopRelationshipCache) Get(context.Context, models.NodeKey, int) (*models.RelationshipNode, bool, error) {
	return nil, false, nil
}

func (NoopRelationshipCache) Set(context.Context, models.NodeKey, int, *models.RelationshipNode) error {
	return nil
}
