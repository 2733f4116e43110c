// Package cache keeps rendered week grids warm in Redis between
// mutations. The cache is strictly derived state: every booking or
// status change for a practitioner's week drops the entry before the
// mutation is reported done, so a cached grid can never outlive the
// storage truth it was built from.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type GridCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewGridCache(client *redis.Client, ttl time.Duration, log zerolog.Logger) *GridCache {
	return &GridCache{
		client: client,
		ttl:    ttl,
		log:    log.With().Str("component", "grid_cache").Logger(),
	}
}

func gridKey(practitionerID uuid.UUID, weekStart time.Time) string {
	return fmt.Sprintf("grid:%s:%s", practitionerID, weekStart.Format(time.DateOnly))
}

func (c *GridCache) Get(ctx context.Context, practitionerID uuid.UUID, weekStart time.Time) (*appointment.WeekView, bool) {
	raw, err := c.client.Get(ctx, gridKey(practitionerID, weekStart)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("grid cache read failed")
		}
		return nil, false
	}

	var view appointment.WeekView
	if err := json.Unmarshal(raw, &view); err != nil {
		c.log.Warn().Err(err).Msg("dropping undecodable grid cache entry")
		c.Invalidate(ctx, practitionerID, weekStart)
		return nil, false
	}
	return &view, true
}

func (c *GridCache) Set(ctx context.Context, practitionerID uuid.UUID, weekStart time.Time, view *appointment.WeekView) {
	raw, err := json.Marshal(view)
	if err != nil {
		c.log.Warn().Err(err).Msg("grid cache encode failed")
		return
	}
	if err := c.client.Set(ctx, gridKey(practitionerID, weekStart), raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("grid cache write failed")
	}
}

func (c *GridCache) Invalidate(ctx context.Context, practitionerID uuid.UUID, weekStart time.Time) {
	if err := c.client.Del(ctx, gridKey(practitionerID, weekStart)).Err(); err != nil {
		c.log.Warn().Err(err).Msg("grid cache invalidation failed")
	}
}
