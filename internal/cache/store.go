// Package cache keeps the last good SOAP response per query so the fetch
// stage can fall back to it when SharePoint is unreachable.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"spcal/internal/config"
)

// ErrMiss is returned by Load when nothing is stored under the key.
var ErrMiss = errors.New("cache: miss")

// Store is a response body cache.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, body []byte) error
	Close() error
}

// Key derives a stable cache key from request parts such as the endpoint
// URL and the SOAP envelope.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	// First 16 hex chars are plenty for a handful of queries.
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// Open builds the store selected by cfg.Backend.
func Open(cfg config.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "", "disk":
		return NewDisk(cfg.Dir), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("cache: redis backend needs an address")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedis(client, time.Duration(cfg.TTLMinutes)*time.Minute), nil
	case "none":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("cache: unknown backend %q", cfg.Backend)
}

// Nop stores nothing.
type Nop struct{}

func (Nop) Load(context.Context, string) ([]byte, error) { return nil, ErrMiss }
func (Nop) Save(context.Context, string, []byte) error   { return nil }
func (Nop) Close() error                                 { return nil }
