// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// cacheKeyPrefix versions the key space; bump it when parse output changes.
const cacheKeyPrefix = "imports/v1/"

// ImportCache memoises per-file import lists keyed by content.
//
// Implementations must be safe for concurrent use. A cache never changes
// results: a miss falls through to the parser.
type ImportCache interface {
	Get(key string) ([]string, bool)
	Put(key string, imports []string) error
}

// CacheKey derives the key for one spec file from its path and content.
func CacheKey(file string, content []byte) string {
	h := sha256.New()
	h.Write([]byte(file))
	h.Write([]byte{0})
	h.Write(content)
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// CacheConfig configures a BadgerCache.
type CacheConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps the cache in memory only.
	InMemory bool

	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// BadgerCache is an ImportCache stored in BadgerDB.
type BadgerCache struct {
	db *badger.DB
}

// badgerLogger adapts slog to badger.Logger. Badger is chatty at Info, so
// everything below Warning is demoted to Debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenCache opens or creates a BadgerCache.
//
// # Description
//
// Persistent caches live under the tool state directory, outside version
// control. Writes are asynchronous: losing the tail of the cache on a
// crash only costs a re-parse.
//
// # Outputs
//
//   - *BadgerCache: Open cache. Call Close when done.
//   - error: Non-nil if the directory cannot be created or another process
//     holds the database.
func OpenCache(cfg CacheConfig) (*BadgerCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("cache path is required for a persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(false).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open import cache: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

// Get returns the cached imports for key. Read errors are treated as misses.
func (c *BadgerCache) Get(key string) ([]string, bool) {
	var imports []string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &imports)
		})
	})
	if err != nil {
		return nil, false
	}
	return imports, true
}

// Put stores imports under key.
func (c *BadgerCache) Put(key string, imports []string) error {
	if imports == nil {
		imports = []string{}
	}
	val, err := json.Marshal(imports)
	if err != nil {
		return fmt.Errorf("encode imports: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), val)
	})
}

// Close releases the database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}
