package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcsync/internal/remote"
)

func identifiers(items []remote.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Identifier
	}
	return out
}

func TestPlanIncludesUnknownIdentifiers(t *testing.T) {
	catalog := []remote.Item{
		{Identifier: "alpha", Marker: "2024-01-01T00:00:00Z"},
		{Identifier: "beta", Marker: "2024-01-01T00:00:00Z"},
	}

	plan := Plan(catalog, map[string]string{"alpha": "2024-01-01T00:00:00Z"})
	assert.Equal(t, []string{"beta"}, identifiers(plan))
}

func TestPlanIncludesStrictlyNewerMarkers(t *testing.T) {
	recorded := map[string]string{
		"older":    "2024-01-01T00:00:00Z",
		"equal":    "2024-03-01T00:00:00Z",
		"newer":    "2024-03-01T00:00:00Z",
		"mixedfmt": "2024-03-01 00:00:00",
	}
	catalog := []remote.Item{
		{Identifier: "older", Marker: "2023-06-01T00:00:00Z"},
		{Identifier: "equal", Marker: "2024-03-01T00:00:00Z"},
		{Identifier: "newer", Marker: "2024-03-02T00:00:00Z"},
		{Identifier: "mixedfmt", Marker: "2024-03-01T00:00:01Z"},
	}

	plan := Plan(catalog, recorded)
	assert.Equal(t, []string{"newer", "mixedfmt"}, identifiers(plan))
}

func TestPlanIdempotentOnUnchangedCatalog(t *testing.T) {
	catalog := []remote.Item{
		{Identifier: "alpha", Marker: "2024-01-01T00:00:00Z"},
		{Identifier: "beta", Marker: "1700000000"},
	}

	// Simulate a completed first run: every planned item got recorded.
	recorded := make(map[string]string)
	for _, item := range Plan(catalog, recorded) {
		recorded[item.Identifier] = item.Marker
	}

	assert.Empty(t, Plan(catalog, recorded))
}

func TestPlanUnparseableMarkerConservatism(t *testing.T) {
	catalog := []remote.Item{
		{Identifier: "fresh", Marker: "not-a-date"},
		{Identifier: "known-bad-both", Marker: "not-a-date"},
		{Identifier: "known-valid-local", Marker: "not-a-date"},
	}
	recorded := map[string]string{
		"known-bad-both":    "also-not-a-date",
		"known-valid-local": "2024-01-01T00:00:00Z",
	}

	// Only the never-synced item is planned; existing entries win whenever
	// the remote marker cannot be ordered.
	plan := Plan(catalog, recorded)
	assert.Equal(t, []string{"fresh"}, identifiers(plan))
}

func TestPlanPreservesCatalogOrder(t *testing.T) {
	catalog := []remote.Item{
		{Identifier: "zeta"},
		{Identifier: "alpha"},
		{Identifier: "mid"},
	}

	plan := Plan(catalog, nil)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, identifiers(plan))
}

func TestPlanEmptyCatalog(t *testing.T) {
	plan := Plan(nil, map[string]string{"alpha": "2024-01-01T00:00:00Z"})
	require.NotNil(t, plan)
	assert.Empty(t, plan)
}

func TestParseEpoch(t *testing.T) {
	tests := []struct {
		marker string
		want   int64
	}{
		{"2024-01-02T03:04:05Z", 1704164645},
		{"2024-01-02T03:04:05.123456789Z", 1704164645},
		{"2024-01-02 03:04:05", 1704164645},
		{"2024-01-02T03:04:05", 1704164645},
		{"2024-01-02", 1704153600},
		{"1704164645", 1704164645},
		{"", 0},
		{"not-a-date", 0},
		{"-42", 0},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, parseEpoch(tc.marker), "marker %q", tc.marker)
	}
}
