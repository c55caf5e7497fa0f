package vectorindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{M: 4, EfConstruction: 16, EfSearch: 8, MaxElements: 1000}
}

func unit(vals ...float64) []float64 {
	return vals
}

func TestIndex_InsertAndSearch(t *testing.T) {
	idx, err := Open("", 2, testParams())
	require.NoError(t, err)

	require.NoError(t, idx.Insert(PatternEntry{ID: "a", Vector: unit(1, 0)}))
	require.NoError(t, idx.Insert(PatternEntry{ID: "b", Vector: unit(0, 1)}))
	require.NoError(t, idx.Insert(PatternEntry{ID: "c", Vector: unit(0.99, 0.01)}))

	assert.Equal(t, 3, idx.Len())

	results, err := idx.Search(unit(1, 0), 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 0, results[0].Distance, 1e-9)
}

func TestIndex_SearchClampsKToEfSearch(t *testing.T) {
	idx, err := Open("", 2, Params{M: 4, EfConstruction: 16, EfSearch: 2, MaxElements: 100})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		v := unit(float64(i)+1, 1)
		require.NoError(t, idx.Insert(PatternEntry{ID: string(rune('a' + i)), Vector: v}))
	}

	results, err := idx.Search(unit(1, 1), 100)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	idx, err := Open("", 3, testParams())
	require.NoError(t, err)

	err = idx.Insert(PatternEntry{ID: "a", Vector: unit(1, 0)})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	require.NoError(t, idx.Insert(PatternEntry{ID: "b", Vector: unit(1, 0, 0)}))
	_, err = idx.Search(unit(1, 0), 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestIndex_DuplicateID(t *testing.T) {
	idx, err := Open("", 2, testParams())
	require.NoError(t, err)

	require.NoError(t, idx.Insert(PatternEntry{ID: "a", Vector: unit(1, 0)}))
	err = idx.Insert(PatternEntry{ID: "a", Vector: unit(0, 1)})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestIndex_MaxElements(t *testing.T) {
	idx, err := Open("", 2, Params{M: 4, EfConstruction: 16, EfSearch: 8, MaxElements: 1})
	require.NoError(t, err)

	require.NoError(t, idx.Insert(PatternEntry{ID: "a", Vector: unit(1, 0)}))
	err = idx.Insert(PatternEntry{ID: "b", Vector: unit(0, 1)})
	assert.ErrorIs(t, err, ErrMaxElements)
}

func TestIndex_EmptyIndexSearchReturnsNothing(t *testing.T) {
	idx, err := Open("", 2, testParams())
	require.NoError(t, err)

	results, err := idx.Search(unit(1, 0), 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, idx.Len())
}

func TestIndex_PersistAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob")

	idx, err := Open(path, 2, testParams())
	require.NoError(t, err)
	require.NoError(t, idx.Insert(PatternEntry{ID: "a", Vector: unit(1, 0), Metadata: map[string]string{"category": "test"}}))
	require.NoError(t, idx.Insert(PatternEntry{ID: "b", Vector: unit(0, 1)}))
	require.NoError(t, idx.Close())

	reopened, err := Open(path, 2, testParams())
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())

	results, err := reopened.Search(unit(1, 0), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "test", results[0].Metadata["category"])
}

func TestIndex_ReopenWithDifferentMFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob")

	idx, err := Open(path, 2, testParams())
	require.NoError(t, err)
	require.NoError(t, idx.Insert(PatternEntry{ID: "a", Vector: unit(1, 0)}))
	require.NoError(t, idx.Close())

	params := testParams()
	params.M = 8
	_, err = Open(path, 2, params)
	assert.ErrorIs(t, err, ErrFrozenParameterMismatch)
}

func TestIndex_ReopenWithDifferentDimFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob")

	idx, err := Open(path, 2, testParams())
	require.NoError(t, err)
	require.NoError(t, idx.Insert(PatternEntry{ID: "a", Vector: unit(1, 0)}))
	require.NoError(t, idx.Close())

	_, err = Open(path, 3, testParams())
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOpenOrEmpty_UnopenableDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.gob")
	require.NoError(t, os.WriteFile(path, []byte("not a gob stream"), 0o644))

	idx := OpenOrEmpty(path, 2, testParams())
	assert.Equal(t, 0, idx.Len())

	results, err := idx.Search(unit(1, 0), 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}
