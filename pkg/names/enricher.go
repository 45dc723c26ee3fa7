// Package names provides the single point through which the rest of the
// application resolves entity IDs to display names. Consumers gather every ID
// they need and make one Lookup call per unit of work.
package names

import (
	"context"

	"go-battlewatch/pkg/evegateway"
)

// Names is a resolved ID-to-name mapping. Missing IDs resolve to "".
type Names map[int64]string

// Get returns the name for id, or "" when unknown.
func (n Names) Get(id int64) string {
	return n[id]
}

// GetPtr returns the name for a nullable id, or "" when nil or unknown.
func (n Names) GetPtr(id *int64) string {
	if id == nil {
		return ""
	}
	return n[*id]
}

// Collect gathers the non-nil, positive values from nullable ID fields.
func Collect(ids ...*int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != nil && *id > 0 {
			out = append(out, *id)
		}
	}
	return out
}

// Enricher resolves batches of IDs through an upstream resolver.
type Enricher struct {
	resolver evegateway.NameResolver
}

// NewEnricher creates an enricher over the given resolver.
func NewEnricher(resolver evegateway.NameResolver) *Enricher {
	return &Enricher{resolver: resolver}
}

// Lookup resolves all ids in one upstream round, modulo resolver caching and
// batching. Unknown IDs are absent from the result rather than an error.
func (e *Enricher) Lookup(ctx context.Context, ids []int64) (Names, error) {
	if len(ids) == 0 {
		return Names{}, nil
	}
	entries, err := e.resolver.ResolveNames(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(Names, len(entries))
	for id, entry := range entries {
		names[id] = entry.Name
	}
	return names, nil
}
