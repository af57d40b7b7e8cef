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

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/AleutianMemory/services/memory/reflect"
)

// defaultExpandNeighbors bounds related items returned per expanded id.
const defaultExpandNeighbors = 5

// toolMemory is the wire shape of one memory in a tool payload. The
// reflect loop extracts the id field for evidence attribution.
type toolMemory struct {
	ID    string   `json:"id"`
	Kind  ItemKind `json:"kind"`
	Text  string   `json:"text"`
	Score float64  `json:"score,omitempty"`
}

type toolPayload struct {
	Memories []toolMemory `json:"memories"`
}

type searchToolArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type expandToolArgs struct {
	MemoryIDs []string `json:"memory_ids"`
}

func scoredPayload(hits []ScoredItem) toolPayload {
	payload := toolPayload{Memories: []toolMemory{}}
	for _, hit := range hits {
		payload.Memories = append(payload.Memories, toolMemory{
			ID:    hit.ID,
			Kind:  hit.Kind,
			Text:  hit.Text,
			Score: hit.Score,
		})
	}
	return payload
}

// ReflectRegistry builds the tool registry for reflect runs against one
// bank: recall, search_reflections, search_mental_models and expand, all
// backed by this store.
//
// Thread Safety: The returned registry is safe for concurrent use.
func (s *Store) ReflectRegistry(bankName string) *reflect.Registry {
	registry := reflect.NewRegistry()

	search := func(fn func(context.Context, string, string, int) ([]ScoredItem, error)) reflect.ToolFunc {
		return func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args searchToolArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			hits, err := fn(ctx, bankName, args.Query, args.Limit)
			if err != nil {
				return nil, err
			}
			return scoredPayload(hits), nil
		}
	}

	registry.Register(reflect.ToolRecall, search(s.Recall))
	registry.Register(reflect.ToolSearchReflections, search(s.SearchReflections))
	registry.Register(reflect.ToolSearchMentalModels, search(s.SearchMentalModels))
	registry.Register(reflect.ToolExpand, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args expandToolArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if len(args.MemoryIDs) == 0 {
			return nil, fmt.Errorf("memory_ids is required")
		}
		items, err := s.Expand(ctx, bankName, args.MemoryIDs, defaultExpandNeighbors)
		if err != nil {
			return nil, err
		}
		payload := toolPayload{Memories: []toolMemory{}}
		for _, item := range items {
			payload.Memories = append(payload.Memories, toolMemory{
				ID:   item.ID,
				Kind: item.Kind,
				Text: item.Text,
			})
		}
		return payload, nil
	})

	return registry
}
