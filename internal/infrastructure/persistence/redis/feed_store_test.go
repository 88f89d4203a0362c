package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedKey(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "ahe-ics:feed:42:2025-01-01:2025-03-02", newFeedStore(nil, cfg).Key("42:2025-01-01:2025-03-02"))

	cfg.KeyPrefix = "ahe-ics:feed:en:"
	assert.Equal(t, "ahe-ics:feed:en:1:a:b", newFeedStore(nil, cfg).Key("1:a:b"))
}

func TestNewFeedStoreRejectsBadConfig(t *testing.T) {
	testCases := []struct {
		name string
		cfg  func(c *Config)
	}{
		{name: "zero_ttl", cfg: func(c *Config) { c.TTL = 0 }},
		{name: "bad_url", cfg: func(c *Config) { c.URL = "http://nope" }},
		{name: "unreachable", cfg: func(c *Config) {
			c.URL = "redis://127.0.0.1:1/0"
			c.DialTimeout = 200 * time.Millisecond
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.cfg(&cfg)

			_, err := NewFeedStore(cfg)
			assert.Error(t, err)
		})
	}
}

func TestLookupSurfacesConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	store := newFeedStore(client, DefaultConfig())

	_, hit, err := store.Lookup(context.Background(), "1:2025-01-01:2025-01-31")
	require.Error(t, err)
	assert.False(t, hit)

	assert.Error(t, store.Store(context.Background(), "1:2025-01-01:2025-01-31", "BEGIN:VCALENDAR"))
}
