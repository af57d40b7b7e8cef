// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reflect

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		want ToolKind
	}{
		{"recall", ToolRecall},
		{"call=recall", ToolRecall},
		{"functions.search_reflections", ToolSearchReflections},
		{"search_mental_models", ToolSearchMentalModels},
		{"call=functions.expand", ToolExpand},
		{"done", ToolDone},
		{"frobnicate", ToolUnregistered},
		{"", ToolUnregistered},
	}

	for _, tc := range cases {
		if got := KindOf(tc.name); got != tc.want {
			t.Errorf("KindOf(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRegistry_RegisterRejectsReservedKinds(t *testing.T) {
	r := NewRegistry()
	fn := func(context.Context, json.RawMessage) (any, error) { return nil, nil }

	if err := r.Register(ToolDone, fn); err == nil {
		t.Error("registering done should fail")
	}
	if err := r.Register(ToolUnregistered, fn); err == nil {
		t.Error("registering the unregistered kind should fail")
	}
	if err := r.Register(ToolRecall, nil); err == nil {
		t.Error("registering a nil func should fail")
	}
	if err := r.Register(ToolRecall, fn); err != nil {
		t.Errorf("registering recall failed: %v", err)
	}
}

func TestRegistry_ExecuteUnknownToolBecomesErrorObservation(t *testing.T) {
	r := NewRegistry()

	obs := r.Execute(context.Background(), "call_1", "functions.frobnicate", nil)

	if obs.OK() {
		t.Fatal("unknown tool must produce an error observation")
	}
	if obs.CallID != "call_1" {
		t.Errorf("call id = %q, want call_1", obs.CallID)
	}
	if !strings.Contains(obs.Error, "frobnicate") {
		t.Errorf("error %q should name the unknown tool", obs.Error)
	}
}

func TestRegistry_ExecuteToolErrorBecomesErrorObservation(t *testing.T) {
	r := NewRegistry()
	r.Register(ToolRecall, func(context.Context, json.RawMessage) (any, error) {
		return nil, errors.New("index unavailable")
	})

	obs := r.Execute(context.Background(), "call_2", "recall", json.RawMessage(`{"query": "x"}`))

	if obs.OK() {
		t.Fatal("tool error must produce an error observation")
	}
	if obs.Error != "index unavailable" {
		t.Errorf("error = %q, want the tool's message", obs.Error)
	}
	if !strings.Contains(obs.TranscriptContent(), `"error"`) {
		t.Errorf("transcript content %q should carry the error", obs.TranscriptContent())
	}
}

func TestRegistry_ExecutePanicBecomesErrorObservation(t *testing.T) {
	r := NewRegistry()
	r.Register(ToolExpand, func(context.Context, json.RawMessage) (any, error) {
		panic("nil map write")
	})

	obs := r.Execute(context.Background(), "call_3", "expand", nil)

	if obs.OK() {
		t.Fatal("a panicking tool must produce an error observation")
	}
	if !strings.Contains(obs.Error, "panicked") {
		t.Errorf("error = %q, want a panic description", obs.Error)
	}
}

func TestRegistry_ExecuteOKObservationCarriesPayload(t *testing.T) {
	r := NewRegistry()
	r.Register(ToolRecall, func(_ context.Context, args json.RawMessage) (any, error) {
		return map[string]any{
			"memories": []map[string]string{{"id": "m1", "text": "fact"}},
		}, nil
	})

	obs := r.Execute(context.Background(), "call_4", "call=recall", json.RawMessage(`{"query": "fact"}`))

	if !obs.OK() {
		t.Fatalf("unexpected error observation: %s", obs.Error)
	}
	if obs.Tool != "recall" {
		t.Errorf("tool = %q, want normalized name", obs.Tool)
	}

	var payload struct {
		Memories []struct {
			ID string `json:"id"`
		} `json:"memories"`
	}
	if err := json.Unmarshal(obs.Payload, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if len(payload.Memories) != 1 || payload.Memories[0].ID != "m1" {
		t.Errorf("payload = %s, want one memory m1", obs.Payload)
	}
	if obs.TranscriptContent() != string(obs.Payload) {
		t.Error("ok transcript content should be the raw payload")
	}
}

func TestRegistry_ExecuteDoneIsNotDispatchable(t *testing.T) {
	r := NewRegistry()

	obs := r.Execute(context.Background(), "call_5", "done", nil)

	if obs.OK() {
		t.Error("done must not execute through the registry")
	}
}
