package storage

import (
	"maps"
	"slices"

	"github.com/dreamware/kith/internal/graph"
)

// Properties maps record ids to their key/value properties. It only holds
// ids, never records; the arena stays the owner of node and relationship
// lifetimes and the transaction layer keeps the two consistent.
//
// Not safe for concurrent use.
type Properties struct {
	owners map[graph.ID]map[string]graph.Value // Record id to key/value map; no empty maps
}

// NewProperties creates an empty property table.
func NewProperties() *Properties {
	return &Properties{owners: make(map[graph.ID]map[string]graph.Value)}
}

// Set stores value under key for owner and returns the value it replaced.
//
// Returns:
//   - graph.Value: The previous value, if any
//   - bool: Whether key was already set; callers use it to move the
//     matching index entry
func (p *Properties) Set(owner graph.ID, key string, value graph.Value) (graph.Value, bool) {
	props, ok := p.owners[owner]
	if !ok {
		props = make(map[string]graph.Value)
		p.owners[owner] = props
	}
	old, had := props[key]
	props[key] = value
	return old, had
}

// Get returns the value stored under key for owner.
func (p *Properties) Get(owner graph.ID, key string) (graph.Value, bool) {
	v, ok := p.owners[owner][key]
	return v, ok
}

// Remove deletes key from owner and returns the removed value.
// Removing an absent key is a no-op.
func (p *Properties) Remove(owner graph.ID, key string) (graph.Value, bool) {
	props, ok := p.owners[owner]
	if !ok {
		return graph.Value{}, false
	}
	old, had := props[key]
	delete(props, key)
	if len(props) == 0 {
		delete(p.owners, owner)
	}
	return old, had
}

// RemoveAll deletes every property of owner and returns them, so callers can
// clean up index entries for the removed values.
func (p *Properties) RemoveAll(owner graph.ID) map[string]graph.Value {
	props := p.owners[owner]
	delete(p.owners, owner)
	return props
}

// All returns a copy of owner's properties.
func (p *Properties) All(owner graph.ID) map[string]graph.Value {
	return maps.Clone(p.owners[owner])
}

// Keys returns owner's property keys in sorted order.
func (p *Properties) Keys(owner graph.ID) []string {
	return slices.Sorted(maps.Keys(p.owners[owner]))
}

// Len returns the total number of stored key/value pairs.
func (p *Properties) Len() int {
	n := 0
	for _, props := range p.owners {
		n += len(props)
	}
	return n
}
