// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger owns the lifecycle of the embedded BadgerDB instance that
// backs memory bank storage. Bank stores share one DB handle opened at
// startup; this package only opens, exposes, and closes it.
package badger

import (
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// Config holds the BadgerDB open options the service cares about.
type Config struct {
	// Path is the data directory. Ignored when InMemory is true.
	Path string

	// InMemory opens a non-persistent instance. Used by tests and by
	// deployments that explicitly opt out of durability.
	InMemory bool

	// SyncWrites forces fsync on every write. Off by default; bank data
	// is re-derivable from the caller's source of truth.
	SyncWrites bool

	// GCInterval is how often value-log garbage collection runs.
	// Zero disables the GC loop.
	GCInterval time.Duration
}

// DefaultConfig returns the standard configuration: on-disk, async writes,
// hourly value-log GC.
func DefaultConfig() Config {
	return Config{
		GCInterval: time.Hour,
	}
}

// DB wraps a BadgerDB instance with its GC loop.
//
// Thread Safety: DB is safe for concurrent use.
type DB struct {
	db     *dgbadger.DB
	stopGC chan struct{}
}

// OpenDB opens a BadgerDB instance with the given configuration.
//
// Outputs:
//   - *DB: The opened instance.
//   - error: Non-nil if the directory cannot be opened (e.g. locked by
//     another process, unwritable path).
func OpenDB(cfg Config) (*DB, error) {
	opts := dgbadger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: opening %q: %w", cfg.Path, err)
	}

	d := &DB{db: db, stopGC: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		go d.gcLoop(cfg.GCInterval)
	}

	slog.Info("BadgerDB opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
	)
	return d, nil
}

// Badger exposes the underlying instance for stores to run transactions on.
func (d *DB) Badger() *dgbadger.DB {
	return d.db
}

// Close stops the GC loop and closes the database.
func (d *DB) Close() error {
	close(d.stopGC)
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("badger: closing: %w", err)
	}
	return nil
}

// gcLoop periodically runs value-log garbage collection. ErrNoRewrite is
// the normal "nothing to collect" result and is not logged.
func (d *DB) gcLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			for {
				if err := d.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
		}
	}
}
