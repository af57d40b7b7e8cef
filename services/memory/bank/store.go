// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bank

// =============================================================================
// Store — Bank Persistence
// =============================================================================
//
// Storage layout (versioned to allow future format changes):
//
//	bank/v1/profile/{bank}     →  JSON-encoded Profile
//	bank/v1/item/{bank}/{id}   →  JSON-encoded Item
//
// Keyword recall scans the bank's item prefix and scores in memory. Banks
// hold hundreds to low thousands of items; a prefix scan over an embedded
// store is microseconds per item and needs no index maintenance. The id
// is the key suffix, so point reads in Expand skip the scan entirely.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	badgerstore "github.com/AleutianAI/AleutianMemory/services/memory/storage/badger"
)

const (
	profileKeyPrefix = "bank/v1/profile/"
	itemKeyPrefix    = "bank/v1/item/"
)

// ErrNotFound reports a missing profile or item, as opposed to a storage
// failure.
var ErrNotFound = errors.New("not found")

func profileKey(bank string) []byte {
	return []byte(profileKeyPrefix + bank)
}

func itemPrefix(bank string) []byte {
	return []byte(itemKeyPrefix + bank + "/")
}

func itemKey(bank, id string) []byte {
	return []byte(itemKeyPrefix + bank + "/" + id)
}

// Store persists bank profiles and memory items in a shared BadgerDB
// instance.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	db *badgerstore.DB
}

// NewStore creates a Store over an opened database.
func NewStore(db *badgerstore.DB) *Store {
	return &Store{db: db}
}

// PutProfile creates or replaces a bank profile.
func (s *Store) PutProfile(ctx context.Context, profile Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if profile.Name == "" {
		return fmt.Errorf("bank: profile name is required")
	}
	profile.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("bank: encoding profile %q: %w", profile.Name, err)
	}
	err = s.db.Badger().Update(func(txn *dgbadger.Txn) error {
		return txn.Set(profileKey(profile.Name), data)
	})
	if err != nil {
		return fmt.Errorf("bank: storing profile %q: %w", profile.Name, err)
	}

	slog.Info("Bank profile stored", slog.String("bank", profile.Name))
	return nil
}

// GetProfile fetches a bank profile. Returns ErrNotFound for unknown banks.
func (s *Store) GetProfile(ctx context.Context, bankName string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var profile Profile
	err := s.db.Badger().View(func(txn *dgbadger.Txn) error {
		item, err := txn.Get(profileKey(bankName))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &profile)
		})
	})
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return nil, fmt.Errorf("bank: profile %q: %w", bankName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("bank: loading profile %q: %w", bankName, err)
	}
	return &profile, nil
}

// Retain stores memory items in a bank, assigning ids, kinds and
// timestamps where missing.
//
// Outputs:
//   - []Item: The stored items with all fields populated.
//   - error: Non-nil if any item has no text or an unknown kind; nothing
//     is written in that case.
func (s *Store) Retain(ctx context.Context, bankName string, items []Item) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	stored := make([]Item, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.Text) == "" {
			return nil, fmt.Errorf("bank: item %d has no text", i)
		}
		if item.Kind == "" {
			item.Kind = KindFact
		}
		if !item.Kind.Valid() {
			return nil, fmt.Errorf("bank: item %d has unknown kind %q", i, item.Kind)
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}
		item.Bank = bankName
		stored[i] = item
	}

	err := s.db.Badger().Update(func(txn *dgbadger.Txn) error {
		for _, item := range stored {
			data, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("encoding item %q: %w", item.ID, err)
			}
			if err := txn.Set(itemKey(bankName, item.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bank: retaining %d items in %q: %w", len(stored), bankName, err)
	}

	slog.Debug("Memory items retained",
		slog.String("bank", bankName),
		slog.Int("count", len(stored)),
	)
	return stored, nil
}

// Recall searches retained facts by keyword.
func (s *Store) Recall(ctx context.Context, bankName, query string, limit int) ([]ScoredItem, error) {
	return s.search(ctx, bankName, query, limit, KindFact)
}

// SearchReflections searches conclusions from earlier reflect runs.
func (s *Store) SearchReflections(ctx context.Context, bankName, query string, limit int) ([]ScoredItem, error) {
	return s.search(ctx, bankName, query, limit, KindReflection)
}

// SearchMentalModels searches the bank's durable beliefs.
func (s *Store) SearchMentalModels(ctx context.Context, bankName, query string, limit int) ([]ScoredItem, error) {
	return s.search(ctx, bankName, query, limit, KindMentalModel)
}

// search scans the bank's items of one kind and ranks them by keyword
// overlap with the query.
func (s *Store) search(ctx context.Context, bankName, query string, limit int, kind ItemKind) ([]ScoredItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, fmt.Errorf("bank: empty query")
	}
	if limit <= 0 {
		limit = 10
	}

	var hits []ScoredItem
	err := s.scanItems(bankName, func(item Item) {
		if item.Kind != kind {
			return
		}
		if score := scoreItem(item, terms); score > 0 {
			hits = append(hits, ScoredItem{Item: item, Score: score})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("bank: searching %q: %w", bankName, err)
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].CreatedAt.After(hits[j].CreatedAt)
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Expand fetches items by id plus up to maxNeighbors items per requested
// item that share an entity with it.
//
// Unknown ids are skipped rather than failing the whole call: the ids come
// from a model and may be hallucinated.
func (s *Store) Expand(ctx context.Context, bankName string, ids []string, maxNeighbors int) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxNeighbors < 0 {
		maxNeighbors = 0
	}

	seen := make(map[string]struct{}, len(ids))
	var requested []Item
	entities := make(map[string]struct{})

	err := s.db.Badger().View(func(txn *dgbadger.Txn) error {
		for _, id := range ids {
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			dbItem, err := txn.Get(itemKey(bankName, id))
			if errors.Is(err, dgbadger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			var item Item
			if err := dbItem.Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			}); err != nil {
				return err
			}
			seen[item.ID] = struct{}{}
			requested = append(requested, item)
			for _, entity := range item.Entities {
				entities[strings.ToLower(entity)] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bank: expanding items in %q: %w", bankName, err)
	}

	result := requested
	if len(entities) > 0 && maxNeighbors > 0 {
		budget := maxNeighbors * len(requested)
		var neighbors []Item
		err = s.scanItems(bankName, func(item Item) {
			if len(neighbors) >= budget {
				return
			}
			if _, dup := seen[item.ID]; dup {
				return
			}
			for _, entity := range item.Entities {
				if _, ok := entities[strings.ToLower(entity)]; ok {
					seen[item.ID] = struct{}{}
					neighbors = append(neighbors, item)
					return
				}
			}
		})
		if err != nil {
			return nil, fmt.Errorf("bank: expanding neighbors in %q: %w", bankName, err)
		}
		result = append(result, neighbors...)
	}

	return result, nil
}

// scanItems iterates every item in a bank.
func (s *Store) scanItems(bankName string, fn func(Item)) error {
	prefix := itemPrefix(bankName)
	return s.db.Badger().View(func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var item Item
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			})
			if err != nil {
				return err
			}
			fn(item)
		}
		return nil
	})
}

// queryTerms lowercases and splits a query, dropping one-letter noise.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, `.,;:!?"'()`)
		if len(f) > 1 {
			terms = append(terms, f)
		}
	}
	return terms
}

// scoreItem is the fraction of query terms present in the item, with
// entity matches weighted double.
func scoreItem(item Item, terms []string) float64 {
	text := strings.ToLower(item.Text)
	var score float64
	for _, term := range terms {
		matched := false
		for _, entity := range item.Entities {
			if strings.Contains(strings.ToLower(entity), term) {
				score += 2
				matched = true
				break
			}
		}
		if !matched && strings.Contains(text, term) {
			score++
		}
	}
	return score / float64(len(terms))
}
