// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"testing"

	dgbadger "github.com/dgraph-io/badger/v4"
)

func TestOpenDB_ReadWriteRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = t.TempDir()

	db, err := OpenDB(cfg)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	key := []byte("bank/v1/test")
	want := []byte("value")

	err = db.Badger().Update(func(txn *dgbadger.Txn) error {
		return txn.Set(key, want)
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var got []byte
	err = db.Badger().View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		got, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestOpenDB_InMemory(t *testing.T) {
	cfg := Config{InMemory: true}

	db, err := OpenDB(cfg)
	if err != nil {
		t.Fatalf("OpenDB in-memory failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpenDB_BadPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = "/dev/null/not-a-directory"

	if _, err := OpenDB(cfg); err == nil {
		t.Error("expected an error for an unusable path")
	}
}
