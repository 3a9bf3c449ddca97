// Package cache keeps the read-only room catalog in Redis.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"campusroomz/internal/metrics"
	"campusroomz/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "campusroomz:rooms:"

// RoomSource is the authoritative room store.
type RoomSource interface {
	ListActiveRooms(ctx context.Context) ([]model.Room, error)
	GetRoomByName(ctx context.Context, name string) (*model.Room, error)
}

// RoomCache is a read-through cache in front of RoomSource. With a nil
// Redis client or a non-positive TTL it passes every call through. Redis
// errors are never returned to callers; the source is used instead.
type RoomCache struct {
	source RoomSource
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRoomCache(source RoomSource, client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *RoomCache {
	return &RoomCache{
		source: source,
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "room_cache").Logger(),
	}
}

func (c *RoomCache) ListActiveRooms(ctx context.Context) ([]model.Room, error) {
	key := keyPrefix + "active"
	var rooms []model.Room
	if c.readCache(ctx, key, &rooms) {
		return rooms, nil
	}

	rooms, err := c.source.ListActiveRooms(ctx)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, key, rooms)
	return rooms, nil
}

// GetRoomByName caches found rooms only, so a newly added room is visible
// as soon as it is synced.
func (c *RoomCache) GetRoomByName(ctx context.Context, name string) (*model.Room, error) {
	key := keyPrefix + "name:" + name
	var room model.Room
	if c.readCache(ctx, key, &room) {
		return &room, nil
	}

	r, err := c.source.GetRoomByName(ctx, name)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, key, r)
	return r, nil
}

// Invalidate drops every cached catalog entry.
func (c *RoomCache) Invalidate(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	iter := c.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

func (c *RoomCache) enabled() bool {
	return c.redis != nil && c.ttl > 0
}

func (c *RoomCache) readCache(ctx context.Context, key string, out any) bool {
	if !c.enabled() {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
			metrics.IncCacheLookup("error")
		} else {
			metrics.IncCacheLookup("miss")
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		metrics.IncCacheLookup("error")
		return false
	}
	metrics.IncCacheLookup("hit")
	return true
}

func (c *RoomCache) writeCache(ctx context.Context, key string, val any) {
	if !c.enabled() {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
