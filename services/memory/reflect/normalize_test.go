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

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"recall", "recall"},
		{"call=recall", "recall"},
		{"functions.recall", "recall"},
		{"call=functions.recall", "recall"},
		{"  functions.expand  ", "expand"},
		{"done", "done"},
		{"call=done", "done"},
		{"frobnicate", "frobnicate"},
		{"functions.frobnicate", "frobnicate"},
		{"", ""},
		// Only the leading prefix is stripped; interior text is untouched.
		{"recall.functions", "recall.functions"},
	}

	for _, tc := range cases {
		if got := Normalize(tc.input); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"recall", "call=recall", "functions.recall", "call=functions.done",
		"frobnicate", " search_reflections ",
	}
	for _, input := range inputs {
		once := Normalize(input)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}

func TestIsDone(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"done", true},
		{"call=done", true},
		{"functions.done", true},
		{"call=functions.done", true},
		{"recall", false},
		{"done_extra", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := IsDone(tc.input); got != tc.want {
			t.Errorf("IsDone(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}
