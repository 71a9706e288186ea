/*
Copyright 2026 The slskd Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package tokencache implements the ExpiringTokenCache of §4.L3: a
// time-bounded key/value map used for authentication challenges and
// one-shot capability tokens (§3 "Capability token"). It is backed by an
// in-memory tidwall/buntdb database, which gives every Set its own TTL
// natively (SetOptions{Expires:true, TTL:...}) instead of a hand-rolled
// sweep goroutine — see SPEC_FULL.md's domain-stack table.
package tokencache

import (
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/buntdb"
)

// Cache is a TTL-bounded string -> string map. The zero value is not
// usable; construct with New.
type Cache struct {
	mu sync.Mutex // serializes get+remove so the pair is atomic per key
	db *buntdb.DB
}

// New opens an in-memory ExpiringTokenCache.
func New() (*Cache, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("tokencache: open: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying buntdb handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Set stores value under key with the given time-to-live. A zero or
// negative ttl is treated as "never" (no expiry set).
func (c *Cache) Set(key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Update(func(tx *buntdb.Tx) error {
		opts := &buntdb.SetOptions{}
		if ttl > 0 {
			opts.Expires = true
			opts.TTL = ttl
		}
		_, _, err := tx.Set(key, value, opts)
		return err
	})
}

// Get returns the value for key and whether it was present and unexpired.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var val string
	var ok bool
	c.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err == nil {
			val, ok = v, true
		}
		return nil
	})
	return val, ok
}

// Remove deletes key, if present. Removing an absent key is not an error.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		if err != nil && err != buntdb.ErrNotFound {
			return err
		}
		return nil
	})
}

// GetAndRemove atomically reads and deletes key in a single transaction,
// matching §5's "concurrent get+remove is atomic per key" requirement.
// This is the primitive one-shot token validation is built on: a single
// GetAndRemove call both checks whether the token is still live and
// consumes it, so two concurrent validations of the same token can never
// both succeed.
func (c *Cache) GetAndRemove(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var val string
	var ok bool
	c.db.Update(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return nil
		}
		val, ok = v, true
		_, err = tx.Delete(key)
		return err
	})
	return val, ok
}
