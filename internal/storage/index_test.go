package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/kith/internal/graph"
)

// TestEqualityIndexPutIsIdempotent verifies that putting the same entry twice
// stores it once.
func TestEqualityIndexPutIsIdempotent(t *testing.T) {
	ix := NewEqualityIndex()
	name := graph.String("Ed Mauget")

	assert.True(t, ix.Put("name", name, 1))
	for i := 0; i < 5; i++ {
		assert.False(t, ix.Put("name", name, 1))
	}

	assert.Equal(t, []graph.ID{1}, ix.All("name", name))
	assert.Equal(t, 1, ix.Len())
}

// TestEqualityIndexLookups verifies All and the strict Single lookup.
func TestEqualityIndexLookups(t *testing.T) {
	ix := NewEqualityIndex()
	ix.Put("name", graph.String("Ed"), 1)
	ix.Put("name", graph.String("Molly"), 2)
	ix.Put("name", graph.String("Twin"), 4)
	ix.Put("name", graph.String("Twin"), 3)
	ix.Put("age", graph.Int(3), 2)

	t.Run("single hit", func(t *testing.T) {
		id, ok, err := ix.Single("name", graph.String("Molly"))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, graph.ID(2), id)
	})

	t.Run("single miss is not an error", func(t *testing.T) {
		_, ok, err := ix.Single("name", graph.String("Nobody"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("single is strict", func(t *testing.T) {
		_, ok, err := ix.Single("name", graph.String("Twin"))
		assert.False(t, ok)
		assert.True(t, errors.Is(err, graph.ErrAmbiguousResult))
	})

	t.Run("all comes back in id order", func(t *testing.T) {
		assert.Equal(t, []graph.ID{3, 4}, ix.All("name", graph.String("Twin")))
	})

	t.Run("values of different kinds do not collide", func(t *testing.T) {
		ix.Put("code", graph.String("3"), 7)
		assert.Empty(t, ix.All("code", graph.Int(3)))
		assert.Empty(t, ix.All("age", graph.String("3")))
	})
}

// TestEqualityIndexRemove verifies that removing an entry leaves other nodes
// under the same value.
func TestEqualityIndexRemove(t *testing.T) {
	ix := NewEqualityIndex()
	ix.Put("name", graph.String("Pixie"), 3)

	assert.True(t, ix.Remove("name", graph.String("Pixie"), 3))
	assert.False(t, ix.Remove("name", graph.String("Pixie"), 3))
	assert.Empty(t, ix.All("name", graph.String("Pixie")))
	assert.True(t, ix.Indexed("name"), "removing entries keeps the declaration")
}

// TestEqualityIndexDrop verifies that Drop clears one key and leaves the others.
func TestEqualityIndexDrop(t *testing.T) {
	ix := NewEqualityIndex()
	ix.Put("age", graph.Int(1), 9)
	ix.Put("name", graph.String("Ed"), 1)
	ix.Put("name", graph.String("Molly"), 2)
	ix.Put("nickname", graph.String("Ed"), 1)

	assert.Equal(t, 2, ix.Drop("name"))
	assert.False(t, ix.Indexed("name"))
	assert.Empty(t, ix.All("name", graph.String("Ed")))

	// neighbouring keys are untouched
	assert.Equal(t, []graph.ID{1}, ix.All("nickname", graph.String("Ed")))
	assert.Equal(t, []graph.ID{9}, ix.All("age", graph.Int(1)))
	assert.Equal(t, []string{"age", "nickname"}, ix.Keys())
}
