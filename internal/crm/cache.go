package crm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const contactCacheTTL = 24 * time.Hour

// ContactCache memoizes phone -> CRM contact id lookups per org, cutting
// repeated search calls against the CRM during bursts of calls to the
// same contact.
type ContactCache struct {
	rdb *redis.Client
}

func NewContactCache(rdb *redis.Client) *ContactCache {
	return &ContactCache{rdb: rdb}
}

func contactCacheKey(orgID, phone string) string {
	return fmt.Sprintf("crm:contact:%s:%s", orgID, phone)
}

// Get returns the cached contact id, empty string on a miss. Cache errors
// are returned so callers can log them, but a miss is not an error.
func (c *ContactCache) Get(ctx context.Context, orgID, phone string) (string, error) {
	if c == nil || c.rdb == nil {
		return "", nil
	}
	id, err := c.rdb.Get(ctx, contactCacheKey(orgID, phone)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *ContactCache) Put(ctx context.Context, orgID, phone, contactID string) error {
	if c == nil || c.rdb == nil || contactID == "" {
		return nil
	}
	return c.rdb.Set(ctx, contactCacheKey(orgID, phone), contactID, contactCacheTTL).Err()
}

func (c *ContactCache) Invalidate(ctx context.Context, orgID, phone string) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, contactCacheKey(orgID, phone)).Err()
}
