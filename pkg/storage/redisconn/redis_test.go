package redisconn

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/campus/pkg/storage"
)

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := storage.DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	client, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	assert.Equal(t, "v", mustGet(t, mr, "k"))
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestOptionsOverrides(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.RedisURL = "redis://localhost:6379/2"
	cfg.RedisPassword = "secret"
	cfg.RedisPoolSize = 7

	opts, err := Options(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB, "negative RedisDB keeps the URL's database")
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 7, opts.PoolSize)

	cfg.RedisDB = 4
	opts, err = Options(cfg)
	require.NoError(t, err)
	assert.Equal(t, 4, opts.DB)
}

func TestOpenInvalidURL(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.RedisURL = "not a url"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}
