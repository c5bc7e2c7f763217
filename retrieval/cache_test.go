package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRetriever struct {
	calls int
	err   error
}

func (c *countingRetriever) Retrieve(_ context.Context, query string) (*Result, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &Result{Query: query, Prompt: query, Text: "text for " + query, Source: "stub"}, nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestCachedRetrieverHit(t *testing.T) {
	mr, client := newTestRedis(t)
	next := &countingRetriever{}
	c := NewCachedRetriever(next, client, CacheOptions{TTL: time.Minute})

	first, err := c.Retrieve(context.Background(), "syngas")
	require.NoError(t, err)
	second, err := c.Retrieve(context.Background(), "syngas")
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first, second)
	assert.Len(t, mr.Keys(), 1)
	assert.Contains(t, mr.Keys()[0], "kgsynth:retrieval:")

	mr.FastForward(2 * time.Minute)
	_, err = c.Retrieve(context.Background(), "syngas")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedRetrieverDoesNotCacheFailures(t *testing.T) {
	mr, client := newTestRedis(t)
	next := &countingRetriever{err: &RetrievalError{Query: "q", Stage: "search", Err: errors.New("down")}}
	c := NewCachedRetriever(next, client, CacheOptions{})

	_, err := c.Retrieve(context.Background(), "q")
	require.ErrorIs(t, err, ErrRetrieval)
	assert.Empty(t, mr.Keys())
}

func TestCachedRetrieverSurvivesRedisOutage(t *testing.T) {
	mr, client := newTestRedis(t)
	next := &countingRetriever{}
	c := NewCachedRetriever(next, client, CacheOptions{})
	mr.Close()

	res, err := c.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "text for q", res.Text)
	assert.Equal(t, 1, next.calls)
}

func TestCachedRetrieverIgnoresCorruptEntry(t *testing.T) {
	mr, client := newTestRedis(t)
	next := &countingRetriever{}
	c := NewCachedRetriever(next, client, CacheOptions{Prefix: "t:"})
	require.NoError(t, mr.Set(c.key("q"), "{not json"))

	res, err := c.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "text for q", res.Text)
	assert.Equal(t, 1, next.calls)
}
