// Package redis provides a core.ArtifactStore backed by Redis. Each run's
// artifacts live in one hash (<prefix>:<runID>) keyed by filename, so saves
// are idempotent overwrites and listing a run is a single HKEYS.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/zuzya/try.idea-validator/artifact"
)

// DefaultPrefix namespaces artifact hashes.
const DefaultPrefix = "artifacts"

// Options configures a Store.
type Options struct {
	// Prefix is prepended to every run hash key.
	Prefix string
	// TTL expires a run's artifacts after the last save. Zero keeps them.
	TTL time.Duration
}

// Store is a Redis-backed artifact store.
type Store struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

// New wraps an existing client.
func New(client goredis.Cmdable, optFns ...func(o *Options)) *Store {
	opts := Options{Prefix: DefaultPrefix}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: opts.Prefix, ttl: opts.TTL}
}

// Connect dials addr and verifies the connection with PING.
func Connect(ctx context.Context, addr, password string, db int, optFns ...func(o *Options)) (*Store, *goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.Ping(pingCtx).Result(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return New(client, optFns...), client, nil
}

// Key returns the hash key holding runID's artifacts.
func (s *Store) Key(runID string) string { return s.prefix + ":" + runID }

// Save implements core.ArtifactStore.
func (s *Store) Save(ctx context.Context, runID, filename, content string) error {
	if err := artifact.ValidateName(runID, filename); err != nil {
		return err
	}
	key := s.Key(runID)
	if err := s.client.HSet(ctx, key, filename, content).Err(); err != nil {
		return err
	}
	if s.ttl > 0 {
		return s.client.Expire(ctx, key, s.ttl).Err()
	}
	return nil
}

// Get implements core.ArtifactStore.
func (s *Store) Get(ctx context.Context, runID, filename string) (string, error) {
	content, err := s.client.HGet(ctx, s.Key(runID), filename).Result()
	if errors.Is(err, goredis.Nil) {
		return "", artifact.ErrNotFound
	}
	return content, err
}

// List implements core.ArtifactStore.
func (s *Store) List(ctx context.Context, runID string) ([]string, error) {
	names, err := s.client.HKeys(ctx, s.Key(runID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
