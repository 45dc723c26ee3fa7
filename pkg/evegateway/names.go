package evegateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
)

// nameChunkSize is the upstream limit on IDs per /universe/names request.
const nameChunkSize = 1000

// ResolveNames resolves entity IDs to names. Input IDs are deduplicated and
// non-positive values dropped before batching; lookups go through both cache
// tiers and only the remaining misses hit the upstream. IDs the upstream does
// not know are simply absent from the result, which is not an error.
func (c *Client) ResolveNames(ctx context.Context, ids []int64) (map[int64]NameEntry, error) {
	result := make(map[int64]NameEntry, len(ids))

	seen := make(map[int64]struct{}, len(ids))
	var missing []int64
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if entry, ok := c.cachedName(ctx, id); ok {
			result[id] = entry
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) == 0 {
		return result, nil
	}

	// Deterministic request bodies make upstream logs and tests readable.
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })

	for start := 0; start < len(missing); start += nameChunkSize {
		end := start + nameChunkSize
		if end > len(missing) {
			end = len(missing)
		}
		chunk := missing[start:end]

		var entries []NameEntry
		if err := c.postJSON(ctx, "/universe/names/", chunk, &entries); err != nil {
			return nil, fmt.Errorf("failed to resolve names: %w", err)
		}

		for _, entry := range entries {
			result[entry.ID] = entry
			c.storeName(ctx, entry)
		}
	}

	slog.Debug("Resolved names from upstream", "requested", len(missing), "resolved", len(result))
	return result, nil
}

func nameKey(id int64) string {
	return fmt.Sprintf("%d", id)
}

func (c *Client) cachedName(ctx context.Context, id int64) (NameEntry, bool) {
	data, ok := c.names.Get(ctx, nameKey(id))
	if !ok {
		return NameEntry{}, false
	}
	var entry NameEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return NameEntry{}, false
	}
	return entry, true
}

func (c *Client) storeName(ctx context.Context, entry NameEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	c.names.Set(ctx, nameKey(entry.ID), data, nameCacheTTL)
}
