// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import "regexp"

// redactionPattern pairs a compiled regex with a labeled replacement so the
// log reader knows what class of secret was removed without seeing it.
type redactionPattern struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// redactionPatterns is the ordered list of secret patterns to redact.
//
// IMPORTANT: Order matters. More specific patterns must appear before less
// specific ones to prevent partial redaction.
//
// Thread Safety: Initialized once, read-only thereafter.
var redactionPatterns = []redactionPattern{
	// Groq API key: gsk_<base62>
	{
		Pattern:     regexp.MustCompile(`gsk_[A-Za-z0-9]{20,}`),
		Replacement: "[REDACTED:groq_key]",
	},
	// OpenAI API key: sk-<base62, 20+ chars>. The length floor avoids
	// matching short strings like "sk-test".
	{
		Pattern:     regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`),
		Replacement: "[REDACTED:openai_key]",
	},
	// Bearer token in Authorization header values
	{
		Pattern:     regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`),
		Replacement: "[REDACTED:bearer_token]",
	},
	// API key in URL query parameter: key=<value>
	{
		Pattern:     regexp.MustCompile(`key=[A-Za-z0-9._-]{10,}`),
		Replacement: "key=[REDACTED]",
	},
	// Password in connection strings or config: password=<value>
	{
		Pattern:     regexp.MustCompile(`password=[^\s&]{3,}`),
		Replacement: "password=[REDACTED]",
	},
}

// SafeLogString redacts known secret patterns from a string before it is
// logged or embedded in an error.
//
// Description:
//
//	Provider error bodies sometimes echo request headers back. Every body
//	that ends up in a log line or an APIStatusError goes through here
//	first. Pattern-based only; secrets in unknown formats pass through.
//
// Inputs:
//   - s: The string to redact. Empty string returns empty string.
//
// Outputs:
//   - string: The input with all matched secret patterns replaced.
//
// Thread Safety: This function is safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range redactionPatterns {
		s = p.Pattern.ReplaceAllString(s, p.Replacement)
	}
	return s
}
