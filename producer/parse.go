/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package producer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseChangeSet extracts a ChangeSet from model output. Models frequently
// wrap JSON in markdown fences or surround it with prose, so this locates
// the outermost JSON object before unmarshaling.
func parseChangeSet(text string) (*ChangeSet, error) {
	raw := strings.TrimSpace(text)

	// Strip a markdown code fence if present.
	if strings.HasPrefix(raw, "```") {
		if _, rest, ok := strings.Cut(raw, "\n"); ok {
			raw = rest
		}
		if idx := strings.LastIndex(raw, "```"); idx >= 0 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
	}

	// Locate the outermost object.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var cs ChangeSet
	if err := json.Unmarshal([]byte(raw[start:end+1]), &cs); err != nil {
		return nil, fmt.Errorf("unmarshaling change set: %w", err)
	}

	for _, f := range cs.Files {
		if f.Path == "" {
			return nil, fmt.Errorf("change set contains a file with no path")
		}
		if strings.HasPrefix(f.Path, "/") || strings.Contains(f.Path, "..") {
			return nil, fmt.Errorf("change set contains an unsafe path %q", f.Path)
		}
	}

	if cs.Empty() {
		return nil, ErrEmptyChange
	}
	return &cs, nil
}
