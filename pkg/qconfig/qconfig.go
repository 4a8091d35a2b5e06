// Package qconfig exposes the queue's tunable settings.
//
// Settings live in the store alongside the jobs they govern, so every
// process sharing a queue database sees the same values. Reads always go
// to the store; nothing is cached, which lets a running worker pick up a
// changed backoff_base on its very next retry.
package qconfig

import (
	"context"
	"errors"
	"fmt"
	"slices"

	logging "github.com/ipfs/go-log/v2"

	"github.com/storacha/queuectl/pkg/store"
)

var log = logging.Logger("qconfig")

// Key identifies a recognized setting.
type Key string

const (
	// KeyMaxRetries bounds how many times a failed job is retried before
	// it is moved to the dead letter queue.
	KeyMaxRetries Key = "max_retries"
	// KeyBackoffBase is the base of the exponential retry delay, in
	// seconds.
	KeyBackoffBase Key = "backoff_base"
)

// schemas maps every recognized key to its validation schema. Writes for
// keys outside this map are rejected.
var schemas = map[Key]Schema{
	KeyMaxRetries:  IntSchema{Min: 0},
	KeyBackoffBase: IntSchema{Min: 1},
}

// defaults are the effective values for keys with no stored row.
var defaults = map[Key]int{
	KeyMaxRetries:  store.DefaultMaxRetries,
	KeyBackoffBase: store.DefaultBackoffBase,
}

// Settings validates and persists queue settings backed by a store.
type Settings struct {
	store *store.Store
}

// New returns a Settings view over the given store.
func New(s *store.Store) *Settings {
	return &Settings{store: s}
}

// Keys returns all recognized setting keys in stable order.
func Keys() []Key {
	keys := make([]Key, 0, len(schemas))
	for key := range schemas {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Describe returns the human-readable type description for a key, or an
// UnknownKeyError if the key is not recognized.
func Describe(key string) (string, error) {
	schema, ok := schemas[Key(key)]
	if !ok {
		return "", &UnknownKeyError{Key: key}
	}
	return schema.TypeDescription(), nil
}

// Set validates the raw value against the key's schema and persists it.
func (s *Settings) Set(ctx context.Context, key, raw string) error {
	k := Key(key)
	schema, ok := schemas[k]
	if !ok {
		return &UnknownKeyError{Key: key}
	}

	typed, err := schema.ParseAndValidate(raw)
	if err != nil {
		return &ValidationError{Key: k, Cause: err}
	}

	old, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	value := fmt.Sprintf("%v", typed)
	if err := s.store.ConfigSet(ctx, key, value); err != nil {
		return fmt.Errorf("persisting %s: %w", key, err)
	}

	log.Infow("setting changed", "key", key, "old_value", old, "new_value", value)
	return nil
}

// Get returns the stored value for a key, falling back to the default
// when no row exists.
func (s *Settings) Get(ctx context.Context, key string) (string, error) {
	k := Key(key)
	if _, ok := schemas[k]; !ok {
		return "", &UnknownKeyError{Key: key}
	}

	raw, err := s.store.ConfigGet(ctx, key)
	if errors.Is(err, store.ErrConfigNotFound) {
		return fmt.Sprintf("%d", defaults[k]), nil
	}
	if err != nil {
		return "", err
	}
	return raw, nil
}

// All returns the effective value of every recognized key.
func (s *Settings) All(ctx context.Context) (map[Key]string, error) {
	values := make(map[Key]string, len(schemas))
	for _, key := range Keys() {
		v, err := s.Get(ctx, string(key))
		if err != nil {
			return nil, err
		}
		values[key] = v
	}
	return values, nil
}

// MaxRetries returns the current retry budget applied to new jobs.
func (s *Settings) MaxRetries(ctx context.Context) (int, error) {
	return s.intValue(ctx, KeyMaxRetries)
}

// BackoffBase returns the current base of the exponential retry delay.
func (s *Settings) BackoffBase(ctx context.Context) (int, error) {
	return s.intValue(ctx, KeyBackoffBase)
}

func (s *Settings) intValue(ctx context.Context, key Key) (int, error) {
	raw, err := s.store.ConfigGet(ctx, string(key))
	if errors.Is(err, store.ErrConfigNotFound) {
		return defaults[key], nil
	}
	if err != nil {
		return 0, err
	}

	typed, err := schemas[key].ParseAndValidate(raw)
	if err != nil {
		return 0, &ValidationError{Key: key, Cause: err}
	}
	return typed.(int), nil
}
