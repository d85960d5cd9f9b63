package local

import (
	"context"
	"sort"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/stretchr/testify/require"
)

// search runs q against every index behind name and returns the hit ids.
func search(t *testing.T, b *Backend, name string, q query.Query) []string {
	t.Helper()
	b.mu.RLock()
	defer b.mu.RUnlock()

	targets, err := b.resolve(name)
	require.NoError(t, err)

	var ids []string
	for _, p := range targets {
		res, err := p.index.SearchInContext(context.Background(), bleve.NewSearchRequestOptions(q, 10, 0, false))
		require.NoError(t, err)
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
	}
	return ids
}

// settingsOf merges the settings of every index behind name.
func settingsOf(t *testing.T, b *Backend, name string) map[string]string {
	t.Helper()
	b.mu.RLock()
	defer b.mu.RUnlock()

	targets, err := b.resolve(name)
	require.NoError(t, err)
	out := make(map[string]string)
	for _, p := range targets {
		for k, v := range p.settings {
			out[k] = v
		}
	}
	return out
}

// indexNames returns the physical index names, sorted.
func indexNames(b *Backend) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.indices))
	for name := range b.indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
