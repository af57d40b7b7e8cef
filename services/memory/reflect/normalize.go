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

import "strings"

// Normalize canonicalizes a tool name as emitted by a model.
//
// Description:
//
//	Some models prefix emitted tool names with routing noise: "call=" from
//	grammar-constrained decoding, "functions." from namespaced function
//	calling. Normalize strips "call=" first, then "functions.", and trims
//	surrounding whitespace. Applying it twice yields the same result, and
//	it never fails: unrecognized names pass through for the registry to
//	reject at dispatch.
//
// Thread Safety: This function is safe for concurrent use.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "call=")
	name = strings.TrimPrefix(name, "functions.")
	return name
}

// IsDone reports whether a raw tool name is the loop-terminating "done"
// call, after normalization.
func IsDone(name string) bool {
	return Normalize(name) == "done"
}
