package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spcal/internal/config"
)

func TestKey_StableAndDistinct(t *testing.T) {
	a := Key("https://sp.example.com/_vti_bin/Lists.asmx", "<envelope/>")
	assert.Len(t, a, 16)
	assert.Equal(t, a, Key("https://sp.example.com/_vti_bin/Lists.asmx", "<envelope/>"))
	assert.NotEqual(t, a, Key("https://sp.example.com/_vti_bin/Lists.asmx<envelope/>"))
}

func TestDisk_SaveLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	d := NewDisk(dir)

	_, err := d.Load(ctx, "abc")
	assert.True(t, errors.Is(err, ErrMiss))

	require.NoError(t, d.Save(ctx, "abc", []byte("<listitems/>")))

	body, err := d.Load(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "<listitems/>", string(body))

	updated, err := d.UpdatedAt("abc")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), updated, time.Minute)

	info, err := os.Stat(filepath.Join(dir, "abc", "body.xml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

type fakeRedis struct {
	data map[string]string
	ttls map[string]time.Duration
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedis_SaveLoad(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
	r := NewRedis(fake, 10*time.Minute)

	_, err := r.Load(ctx, "k")
	assert.True(t, errors.Is(err, ErrMiss))

	require.NoError(t, r.Save(ctx, "k", []byte("body")))
	assert.Equal(t, 10*time.Minute, fake.ttls["spcal:k"])

	body, err := r.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "body", string(body))
	assert.NoError(t, r.Close())
}

func TestOpen(t *testing.T) {
	s, err := Open(config.CacheConfig{Backend: "none"})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, s)

	s, err = Open(config.CacheConfig{Backend: "disk", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Disk{}, s)

	_, err = Open(config.CacheConfig{Backend: "redis"})
	assert.Error(t, err)

	s, err = Open(config.CacheConfig{Backend: "redis", RedisAddr: "127.0.0.1:6379", TTLMinutes: 5})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, s)
	assert.NoError(t, s.Close())

	_, err = Open(config.CacheConfig{Backend: "memcached"})
	assert.Error(t, err)
}
