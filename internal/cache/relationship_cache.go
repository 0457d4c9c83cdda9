package cache

import (
	"context"
	"encoding/json"
	"time"

	"care-alert/internal/models"
	"care-alert/internal/services"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedDirectory is a Redis read-through cache in front of the relationship
// directory. Relationship reads happen on every create, dispatch, sweep and
// query; the directory is externally owned, so a short TTL bounds staleness
// instead of an invalidation protocol. Redis being down degrades to direct
// reads, never to routing failures.
type CachedDirectory struct {
	client *redis.Client
	inner  services.RelationshipDirectory
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedDirectory(client *redis.Client, inner services.RelationshipDirectory, ttl time.Duration, logger *zap.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &CachedDirectory{client: client, inner: inner, ttl: ttl, logger: logger}
}

func (c *CachedDirectory) ListActive(ctx context.Context, sharerEmail string) ([]models.Relationship, error) {
	key := "rel:active:" + sharerEmail

	var cached []models.Relationship
	if c.get(ctx, key, &cached) {
		return cached, nil
	}

	rels, err := c.inner.ListActive(ctx, sharerEmail)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, rels)
	return rels, nil
}

// ListActiveByRole filters the cached full set rather than keeping a second
// key per role.
func (c *CachedDirectory) ListActiveByRole(ctx context.Context, sharerEmail, role string) ([]models.Relationship, error) {
	rels, err := c.ListActive(ctx, sharerEmail)
	if err != nil {
		return nil, err
	}
	filtered := []models.Relationship{}
	for _, rel := range rels {
		if rel.Role == role {
			filtered = append(filtered, rel)
		}
	}
	return filtered, nil
}

func (c *CachedDirectory) SharersForCaregiver(ctx context.Context, caregiverEmail string) ([]string, error) {
	key := "rel:sharers:" + caregiverEmail

	var cached []string
	if c.get(ctx, key, &cached) {
		return cached, nil
	}

	sharers, err := c.inner.SharersForCaregiver(ctx, caregiverEmail)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, sharers)
	return sharers, nil
}

func (c *CachedDirectory) ActiveExists(ctx context.Context, sharerEmail, caregiverEmail string) (bool, error) {
	rels, err := c.ListActive(ctx, sharerEmail)
	if err != nil {
		return false, err
	}
	for _, rel := range rels {
		if rel.CaregiverEmail == caregiverEmail {
			return true, nil
		}
	}
	return false, nil
}

func (c *CachedDirectory) get(ctx context.Context, key string, dest any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("relationship cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("relationship cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CachedDirectory) set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("relationship cache write failed", zap.String("key", key), zap.Error(err))
	}
}
