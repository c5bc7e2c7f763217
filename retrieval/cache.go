package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedRetriever memoises successful retrievals in Redis. Cache failures
// are logged and never fail a retrieval; failed retrievals are not cached.
type CachedRetriever struct {
	next   Retriever
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// CacheOptions configures a CachedRetriever.
type CacheOptions struct {
	Prefix string        // key prefix, default "kgsynth:retrieval:"
	TTL    time.Duration // zero keeps entries forever
}

// NewCachedRetriever wraps next with a Redis cache.
func NewCachedRetriever(next Retriever, client redis.Cmdable, opts CacheOptions) *CachedRetriever {
	if opts.Prefix == "" {
		opts.Prefix = "kgsynth:retrieval:"
	}
	return &CachedRetriever{next: next, client: client, prefix: opts.Prefix, ttl: opts.TTL}
}

func (c *CachedRetriever) key(query string) string {
	sum := sha256.Sum256([]byte(query))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *CachedRetriever) Retrieve(ctx context.Context, query string) (*Result, error) {
	key := c.key(query)
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var res Result
		jerr := json.Unmarshal(data, &res)
		if jerr == nil {
			slog.Debug("retrieval: cache hit", "key", key)
			return &res, nil
		}
		slog.Warn("retrieval: ignoring corrupt cache entry", "key", key, "error", jerr)
	case !errors.Is(err, redis.Nil):
		slog.Warn("retrieval: cache read failed", "error", err)
	}

	res, err := c.next.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(res); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			slog.Warn("retrieval: cache write failed", "error", err)
		}
	}
	return res, nil
}
