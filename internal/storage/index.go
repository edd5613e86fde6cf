package storage

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/google/btree"

	"github.com/dreamware/kith/internal/graph"
)

// indexDegree is the B-tree fan-out. Entries are tiny, so a wide node keeps
// the tree shallow.
const indexDegree = 32

// indexItem is one (key, value, node) entry. The tree stores no payload; the
// item is its own key.
type indexItem struct {
	key   string
	value graph.Value
	node  graph.ID
}

// lessIndexItem orders entries by key, then value, then node id.
func lessIndexItem(a, b indexItem) bool {
	if c := cmp.Compare(a.key, b.key); c != 0 {
		return c < 0
	}
	if c := graph.Compare(a.value, b.value); c != 0 {
		return c < 0
	}
	return a.node < b.node
}

// EqualityIndex maps (property key, value) pairs to the set of nodes holding
// that value. Entries are kept in a single B-tree ordered by key, value and
// node id, so all nodes for a pair are adjacent and come back in id order,
// which is also insertion order because ids are monotonic.
//
// Indexes are declared per key. The index itself does not watch properties;
// the transaction layer calls Put and Remove as it applies property writes.
//
// Not safe for concurrent use.
type EqualityIndex struct {
	tree     *btree.BTreeG[indexItem] // All entries, every key in one tree
	declared map[string]struct{}      // Keys that are indexed
}

// NewEqualityIndex creates an index with no declared keys.
func NewEqualityIndex() *EqualityIndex {
	return &EqualityIndex{
		tree:     btree.NewG[indexItem](indexDegree, lessIndexItem),
		declared: make(map[string]struct{}),
	}
}

// Declare marks key as indexed and reports whether it was newly declared.
func (ix *EqualityIndex) Declare(key string) bool {
	if _, ok := ix.declared[key]; ok {
		return false
	}
	ix.declared[key] = struct{}{}
	return true
}

// Indexed reports whether key has been declared.
func (ix *EqualityIndex) Indexed(key string) bool {
	_, ok := ix.declared[key]
	return ok
}

// Keys returns the declared keys in sorted order.
func (ix *EqualityIndex) Keys() []string {
	return slices.Sorted(maps.Keys(ix.declared))
}

// Put adds node under (key, value), declaring key if needed. Putting an
// existing entry again has no effect; the return value reports whether the
// entry is new.
//
// Example:
//
//	ix.Put("name", graph.String("Ed Mauget"), ed)
//	ix.Put("name", graph.String("Ed Mauget"), ed) // no-op, returns false
func (ix *EqualityIndex) Put(key string, value graph.Value, node graph.ID) bool {
	ix.Declare(key)
	_, replaced := ix.tree.ReplaceOrInsert(indexItem{key: key, value: value, node: node})
	return !replaced
}

// Remove deletes node from (key, value) and reports whether it was present.
func (ix *EqualityIndex) Remove(key string, value graph.Value, node graph.ID) bool {
	_, ok := ix.tree.Delete(indexItem{key: key, value: value, node: node})
	return ok
}

// All returns every node indexed under (key, value) in ascending id order.
func (ix *EqualityIndex) All(key string, value graph.Value) []graph.ID {
	var ids []graph.ID
	ix.scan(key, value, func(id graph.ID) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// Single returns the only node indexed under (key, value). found is false
// when there is none; ErrAmbiguousResult is returned when there are several.
func (ix *EqualityIndex) Single(key string, value graph.Value) (id graph.ID, found bool, err error) {
	n := 0
	ix.scan(key, value, func(node graph.ID) bool {
		n++
		if n == 1 {
			id = node
			return true
		}
		return false
	})
	switch n {
	case 0:
		return 0, false, nil
	case 1:
		return id, true, nil
	}
	return 0, false, fmt.Errorf("lookup %s=%s: %w", key, value, graph.ErrAmbiguousResult)
}

// Drop removes every entry for key and the key's declaration. It returns the
// number of entries removed.
func (ix *EqualityIndex) Drop(key string) int {
	var doomed []indexItem
	ix.tree.AscendGreaterOrEqual(indexItem{key: key}, func(it indexItem) bool {
		if it.key != key {
			return false
		}
		doomed = append(doomed, it)
		return true
	})
	for _, it := range doomed {
		ix.tree.Delete(it)
	}
	delete(ix.declared, key)
	return len(doomed)
}

// Len returns the total number of entries across all keys.
func (ix *EqualityIndex) Len() int {
	return ix.tree.Len()
}

// scan calls fn for each node under (key, value) in id order until fn
// returns false.
func (ix *EqualityIndex) scan(key string, value graph.Value, fn func(graph.ID) bool) {
	ix.tree.AscendGreaterOrEqual(indexItem{key: key, value: value}, func(it indexItem) bool {
		if it.key != key || it.value != value {
			return false
		}
		return fn(it.node)
	})
}
