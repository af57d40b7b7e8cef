// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bank persists memory banks: their profiles and the memory items
// reflect runs retrieve evidence from.
package bank

import "time"

// ItemKind classifies a memory item.
type ItemKind string

const (
	// KindFact is a retained observation or statement.
	KindFact ItemKind = "fact"

	// KindReflection is a conclusion drawn by an earlier reflect run.
	KindReflection ItemKind = "reflection"

	// KindMentalModel is a durable belief the bank holds about its world.
	KindMentalModel ItemKind = "mental_model"
)

// Valid reports whether k is a known kind.
func (k ItemKind) Valid() bool {
	switch k {
	case KindFact, KindReflection, KindMentalModel:
		return true
	default:
		return false
	}
}

// Profile describes a memory bank's identity.
//
// Thread Safety: Profile is safe for concurrent read access.
type Profile struct {
	// Name identifies the bank. Used as the storage key.
	Name string `json:"name"`

	// Mission is a short statement of what the bank is for.
	Mission string `json:"mission,omitempty"`

	// Disposition holds trait weights (1 low to 5 high) that shape the
	// register of reflect answers, e.g. "skepticism": 4.
	Disposition map[string]float64 `json:"disposition,omitempty"`

	// UpdatedAt is set by the store on every write.
	UpdatedAt time.Time `json:"updated_at"`
}

// Item is one stored memory.
//
// Thread Safety: Item is safe for concurrent read access.
type Item struct {
	// ID is assigned by the store on retain if empty.
	ID string `json:"id"`

	// Bank names the owning memory bank.
	Bank string `json:"bank"`

	// Kind classifies the item. Defaults to KindFact on retain.
	Kind ItemKind `json:"kind"`

	// Text is the memory content.
	Text string `json:"text"`

	// Entities are normalized names mentioned in the text. Expand uses
	// them to find related items.
	Entities []string `json:"entities,omitempty"`

	// CreatedAt is set by the store on retain if zero.
	CreatedAt time.Time `json:"created_at"`
}

// ScoredItem is a search hit with its relevance score.
type ScoredItem struct {
	Item
	Score float64 `json:"score"`
}
