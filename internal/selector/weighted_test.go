package selector

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultEntries() []Entry[string] {
	return []Entry[string]{
		{Name: "create_workbook", Weight: 1},
		{Name: "open_workbook", Weight: 3},
		{Name: "edit_cell", Weight: 5},
		{Name: "add_formula", Weight: 2},
		{Name: "create_chart", Weight: 1},
		{Name: "save_workbook", Weight: 2},
	}
}

func TestNew(t *testing.T) {
	w, err := New(defaultEntries())
	require.NoError(t, err)

	assert.Equal(t, 14, w.TotalWeight())
	assert.Equal(t, 6, w.Len())
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry[string]
		wantErr error
	}{
		{name: "empty", entries: nil, wantErr: ErrNoTasks},
		{name: "all zero", entries: []Entry[string]{{Name: "a"}, {Name: "b"}}, wantErr: ErrNoTasks},
		{name: "negative", entries: []Entry[string]{{Name: "a", Weight: -1}}, wantErr: ErrInvalidWeight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.entries)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPick_SkipsZeroWeight(t *testing.T) {
	w, err := New([]Entry[string]{
		{Name: "never", Weight: 0},
		{Name: "always", Weight: 4},
	})
	require.NoError(t, err)

	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		assert.Equal(t, "always", w.Pick(r).Name)
	}
	assert.Zero(t, w.Probability("never"))
}

func TestPick_CarriesValue(t *testing.T) {
	w, err := New([]Entry[int]{{Name: "only", Weight: 1, Value: 42}})
	require.NoError(t, err)

	assert.Equal(t, 42, w.Pick(rand.New(rand.NewPCG(3, 4))).Value)
}

func TestPick_FrequenciesFollowWeights(t *testing.T) {
	w, err := New(defaultEntries())
	require.NoError(t, err)

	const iterations = 140000
	r := rand.New(rand.NewPCG(42, 7))
	counts := make(map[string]int)
	for i := 0; i < iterations; i++ {
		counts[w.Pick(r).Name]++
	}

	for _, e := range defaultEntries() {
		expected := float64(e.Weight) / 14
		observed := float64(counts[e.Name]) / iterations
		// Five standard deviations of a binomial proportion.
		tolerance := 5 * math.Sqrt(expected*(1-expected)/iterations)
		assert.InDelta(t, expected, observed, tolerance, "task %s", e.Name)
	}
}

func TestProbability(t *testing.T) {
	w, err := New(defaultEntries())
	require.NoError(t, err)

	assert.InDelta(t, 5.0/14, w.Probability("edit_cell"), 1e-9)
	assert.InDelta(t, 1.0/14, w.Probability("create_chart"), 1e-9)
	assert.Zero(t, w.Probability("missing"))
}
