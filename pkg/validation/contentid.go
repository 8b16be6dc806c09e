// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided identifiers before they reach a
// remote URL path or a snapshot lookup.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// contentIDPattern matches a Notion object id: 32 hex digits, either bare
// or dashed as 8-4-4-4-12.
var contentIDPattern = regexp.MustCompile(
	`^(?:[0-9a-fA-F]{32}|[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})$`)

// ValidateContentID reports whether id is a well-formed content id.
//
// Ids are interpolated into request paths such as /v1/blocks/{id}/children,
// so anything outside the hex alphabet is rejected.
//
// Example:
//
//	if err := validation.ValidateContentID(rootID); err != nil {
//	    return fmt.Errorf("root_id: %w", err)
//	}
func ValidateContentID(id string) error {
	if id == "" {
		return fmt.Errorf("content id cannot be empty")
	}
	if !contentIDPattern.MatchString(id) {
		return fmt.Errorf("invalid content id %q (must be 32 hex digits, optionally dashed 8-4-4-4-12)", id)
	}
	return nil
}

// NormalizeContentID returns id in the dashed lowercase form the API
// returns in payloads, so an id copied from a page URL matches the
// snapshot.
//
//	NormalizeContentID("1A2B...") // "1a2b....-....-....-....-............"
func NormalizeContentID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if err := ValidateContentID(id); err != nil {
		return "", err
	}
	hex := strings.ToLower(strings.ReplaceAll(id, "-", ""))
	return hex[0:8] + "-" + hex[8:12] + "-" + hex[12:16] + "-" + hex[16:20] + "-" + hex[20:32], nil
}
