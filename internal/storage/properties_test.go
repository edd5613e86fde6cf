package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dreamware/kith/internal/graph"
)

// TestProperties verifies set, get, remove and removal of all properties of a record.
func TestProperties(t *testing.T) {
	t.Run("set and get", func(t *testing.T) {
		p := NewProperties()

		_, had := p.Set(1, "name", graph.String("Ed"))
		assert.False(t, had)

		v, ok := p.Get(1, "name")
		assert.True(t, ok)
		assert.Equal(t, graph.String("Ed"), v)

		_, ok = p.Get(1, "age")
		assert.False(t, ok)
		_, ok = p.Get(2, "name")
		assert.False(t, ok)
	})

	t.Run("overwrite returns old value", func(t *testing.T) {
		p := NewProperties()
		p.Set(1, "name", graph.String("Ed"))

		old, had := p.Set(1, "name", graph.String("Edward"))
		assert.True(t, had)
		assert.Equal(t, graph.String("Ed"), old)

		v, _ := p.Get(1, "name")
		assert.Equal(t, graph.String("Edward"), v)
	})

	t.Run("remove", func(t *testing.T) {
		p := NewProperties()
		p.Set(1, "name", graph.String("Ed"))

		old, had := p.Remove(1, "name")
		assert.True(t, had)
		assert.Equal(t, graph.String("Ed"), old)
		assert.Equal(t, 0, p.Len())

		_, had = p.Remove(1, "name")
		assert.False(t, had, "removing an absent key is a no-op")
	})

	t.Run("remove all", func(t *testing.T) {
		p := NewProperties()
		p.Set(1, "name", graph.String("Molly"))
		p.Set(1, "age", graph.Int(7))
		p.Set(2, "name", graph.String("Pixie"))

		removed := p.RemoveAll(1)
		assert.Equal(t, map[string]graph.Value{
			"name": graph.String("Molly"),
			"age":  graph.Int(7),
		}, removed)
		assert.Equal(t, 1, p.Len())
		assert.Empty(t, p.Keys(1))
	})

	t.Run("all returns a copy", func(t *testing.T) {
		p := NewProperties()
		p.Set(1, "name", graph.String("Nellie"))

		all := p.All(1)
		all["name"] = graph.String("changed")

		v, _ := p.Get(1, "name")
		assert.Equal(t, graph.String("Nellie"), v)
	})

	t.Run("keys are sorted", func(t *testing.T) {
		p := NewProperties()
		p.Set(1, "b", graph.Int(1))
		p.Set(1, "a", graph.Int(1))
		p.Set(1, "c", graph.Int(1))

		assert.Equal(t, []string{"a", "b", "c"}, p.Keys(1))
	})
}
