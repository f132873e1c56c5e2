// internal/cache/click_dedup.go
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClickDeduper remembers the click id for (link, fingerprint) for the dedup
// window. A repeat visit extends the window, matching the sliding
// last-seen semantics of the click table.
type ClickDeduper struct {
	client *redis.Client
}

func NewClickDeduper(client *redis.Client) *ClickDeduper {
	return &ClickDeduper{client: client}
}

func dedupKey(linkID uuid.UUID, fingerprint string) string {
	return "pe:click:" + linkID.String() + ":" + fingerprint
}

func (d *ClickDeduper) Claim(ctx context.Context, linkID uuid.UUID, fingerprint string, clickID uuid.UUID, window time.Duration) (uuid.UUID, bool, error) {
	key := dedupKey(linkID, fingerprint)

	ok, err := d.client.SetNX(ctx, key, clickID.String(), window).Result()
	if err != nil {
		return uuid.Nil, false, err
	}
	if ok {
		return uuid.Nil, true, nil
	}

	raw, err := d.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; claim again
		if err := d.client.Set(ctx, key, clickID.String(), window).Err(); err != nil {
			return uuid.Nil, false, err
		}
		return uuid.Nil, true, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}

	existing, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, err
	}
	_ = d.client.Expire(ctx, key, window).Err()
	return existing, false, nil
}
