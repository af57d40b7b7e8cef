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

import (
	"fmt"
	"net/http"
)

// APIStatusError is returned when the provider answers with a non-200
// status. The retry loop branches on it; everything else propagates to the
// caller immediately.
//
// Thread Safety: APIStatusError is immutable after construction.
type APIStatusError struct {
	// Provider is the backend that produced the error.
	Provider Provider

	// StatusCode is the HTTP status the provider returned.
	StatusCode int

	// Body is the response body, already passed through SafeLogString.
	Body string
}

// Error implements the error interface.
func (e *APIStatusError) Error() string {
	return fmt.Sprintf("%s: API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the status is worth retrying: rate limits and
// server-side failures. Client errors (4xx other than 429) are not.
func (e *APIStatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
