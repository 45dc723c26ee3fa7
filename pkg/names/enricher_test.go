package names

import (
	"context"
	"testing"

	"go-battlewatch/pkg/evegateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	calls   int
	entries map[int64]evegateway.NameEntry
}

func (f *fakeResolver) ResolveNames(_ context.Context, ids []int64) (map[int64]evegateway.NameEntry, error) {
	f.calls++
	out := make(map[int64]evegateway.NameEntry)
	for _, id := range ids {
		if entry, ok := f.entries[id]; ok {
			out[id] = entry
		}
	}
	return out, nil
}

func TestLookup(t *testing.T) {
	resolver := &fakeResolver{entries: map[int64]evegateway.NameEntry{
		100: {ID: 100, Name: "Pilot Alpha"},
		200: {ID: 200, Name: "Corp Beta"},
	}}
	enricher := NewEnricher(resolver)

	names, err := enricher.Lookup(context.Background(), []int64{100, 200, 300})
	require.NoError(t, err)

	assert.Equal(t, "Pilot Alpha", names.Get(100))
	assert.Equal(t, "", names.Get(300), "unknown IDs resolve to empty")
	assert.Equal(t, 1, resolver.calls)
}

func TestLookupEmptySkipsResolver(t *testing.T) {
	resolver := &fakeResolver{}
	enricher := NewEnricher(resolver)

	names, err := enricher.Lookup(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, names)
	assert.Equal(t, 0, resolver.calls)
}

func TestCollect(t *testing.T) {
	a := int64(10)
	b := int64(0)
	c := int64(-5)

	ids := Collect(&a, nil, &b, &c)
	assert.Equal(t, []int64{10}, ids)
}

func TestGetPtr(t *testing.T) {
	names := Names{7: "Seven"}
	id := int64(7)

	assert.Equal(t, "Seven", names.GetPtr(&id))
	assert.Equal(t, "", names.GetPtr(nil))
}
