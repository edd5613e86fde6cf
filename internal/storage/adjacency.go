package storage

import (
	"iter"
	"slices"

	"github.com/dreamware/kith/internal/graph"
)

// adjEntry is one relationship in a node's adjacency list. seq is the global
// order in which relationships were added, used to merge per-type buckets
// back into creation order. loop marks self-loops so Both yields them once.
type adjEntry struct {
	rel  graph.ID // Relationship id
	seq  uint64   // Global insertion order
	loop bool     // Start and end are the same node
}

// buckets holds one node's entries in one direction, keyed by type.
type buckets map[graph.RelType][]adjEntry

// adjacency is one node's relationships, split by direction.
type adjacency struct {
	out buckets // Relationships the node starts
	in  buckets // Relationships the node ends
}

// Adjacency indexes, per node, the relationships it starts and ends, grouped
// by relationship type.
//
// Bucket slices are copy-on-write: removal builds a new slice and appends
// never touch elements an earlier reader can see. Sequences returned by
// Relationships therefore stay valid and lazy after the caller releases the
// store lock; they reflect the state at the time of the call.
//
// Not safe for concurrent mutation.
type Adjacency struct {
	nodes map[graph.ID]*adjacency // Per-node lists; absent for isolated nodes
	seq   uint64                  // Last sequence number handed to Add
}

// NewAdjacency creates an empty adjacency index.
func NewAdjacency() *Adjacency {
	return &Adjacency{nodes: make(map[graph.ID]*adjacency)}
}

// Add records rel on both of its endpoints. rel is appended after every
// relationship added before it, which is what keeps traversal in creation
// order.
func (a *Adjacency) Add(rel graph.Relationship) {
	a.seq++
	e := adjEntry{rel: rel.ID, seq: a.seq, loop: rel.Start == rel.End}

	from := a.node(rel.Start)
	from.out[rel.Type] = append(from.out[rel.Type], e)

	to := a.node(rel.End)
	to.in[rel.Type] = append(to.in[rel.Type], e)
}

// Remove deletes rel from both of its endpoints.
func (a *Adjacency) Remove(rel graph.Relationship) {
	if from, ok := a.nodes[rel.Start]; ok {
		without(from.out, rel.Type, rel.ID)
	}
	if to, ok := a.nodes[rel.End]; ok {
		without(to.in, rel.Type, rel.ID)
	}
}

// Drop forgets node entirely. The node must have no relationships left.
func (a *Adjacency) Drop(node graph.ID) {
	delete(a.nodes, node)
}

// Degree returns how many relationships touch node. A self-loop counts twice,
// matching the arena's bookkeeping.
func (a *Adjacency) Degree(node graph.ID) int {
	adj, ok := a.nodes[node]
	if !ok {
		return 0
	}
	n := 0
	for _, b := range adj.out {
		n += len(b)
	}
	for _, b := range adj.in {
		n += len(b)
	}
	return n
}

// Types returns the relationship types present on node in the given
// direction, sorted by name.
func (a *Adjacency) Types(node graph.ID, dir graph.Direction) []graph.RelType {
	adj, ok := a.nodes[node]
	if !ok {
		return nil
	}
	seen := make(map[graph.RelType]struct{})
	if dir != graph.Incoming {
		for t := range adj.out {
			seen[t] = struct{}{}
		}
	}
	if dir != graph.Outgoing {
		for t := range adj.in {
			seen[t] = struct{}{}
		}
	}
	types := make([]graph.RelType, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Relationships returns the ids of node's relationships in creation order.
//
// With a type filter only the buckets of the requested types are visited;
// relationships of other types are never looked at. The sequence is lazy and
// can be ranged over any number of times.
//
// Parameters:
//   - node: Node whose relationships are listed; unknown nodes yield nothing
//   - dir: graph.Outgoing, graph.Incoming or graph.Both
//   - types: Optional type filter; duplicates are ignored
//
// Returns:
//   - iter.Seq[graph.ID]: Relationship ids ordered by insertion. With
//     graph.Both a self-loop appears once.
//
// Example:
//
//	for id := range adj.Relationships(ed, graph.Both, graph.IsFriendOf) {
//	    fmt.Println(id)
//	}
func (a *Adjacency) Relationships(node graph.ID, dir graph.Direction, types ...graph.RelType) iter.Seq[graph.ID] {
	adj, ok := a.nodes[node]
	if !ok {
		return func(func(graph.ID) bool) {}
	}

	var lists [][]adjEntry
	collect := func(b buckets, skipLoops bool) {
		if len(types) == 0 {
			for _, l := range b {
				lists = append(lists, filterLoops(l, skipLoops))
			}
			return
		}
		for _, t := range dedupTypes(types) {
			if l := b[t]; len(l) > 0 {
				lists = append(lists, filterLoops(l, skipLoops))
			}
		}
	}

	if dir == graph.Outgoing || dir == graph.Both {
		collect(adj.out, false)
	}
	if dir == graph.Incoming || dir == graph.Both {
		collect(adj.in, dir == graph.Both)
	}

	return mergeBySeq(lists)
}

// node returns id's lists, creating them on first use.
func (a *Adjacency) node(id graph.ID) *adjacency {
	adj, ok := a.nodes[id]
	if !ok {
		adj = &adjacency{out: make(buckets), in: make(buckets)}
		a.nodes[id] = adj
	}
	return adj
}

// without replaces the typ bucket with a copy that omits rel.
func without(b buckets, typ graph.RelType, rel graph.ID) {
	l := b[typ]
	i := slices.IndexFunc(l, func(e adjEntry) bool { return e.rel == rel })
	if i < 0 {
		return
	}
	if len(l) == 1 {
		delete(b, typ)
		return
	}
	next := make([]adjEntry, 0, len(l)-1)
	next = append(next, l[:i]...)
	next = append(next, l[i+1:]...)
	b[typ] = next
}

// filterLoops drops self-loops from an incoming list when the outgoing side
// already yields them. Lists without loops are returned unchanged.
func filterLoops(l []adjEntry, skip bool) []adjEntry {
	if !skip || !slices.ContainsFunc(l, func(e adjEntry) bool { return e.loop }) {
		return l
	}
	return slices.DeleteFunc(slices.Clone(l), func(e adjEntry) bool { return e.loop })
}

// dedupTypes returns types without repeats so no bucket is visited twice.
func dedupTypes(types []graph.RelType) []graph.RelType {
	if len(types) < 2 {
		return types
	}
	out := slices.Clone(types)
	slices.Sort(out)
	return slices.Compact(out)
}

// mergeBySeq yields the union of lists ordered by seq. Each list is already
// sorted, so this is a plain k-way merge.
func mergeBySeq(lists [][]adjEntry) iter.Seq[graph.ID] {
	if len(lists) == 1 {
		l := lists[0]
		return func(yield func(graph.ID) bool) {
			for _, e := range l {
				if !yield(e.rel) {
					return
				}
			}
		}
	}
	return func(yield func(graph.ID) bool) {
		pos := make([]int, len(lists))
		for {
			best := -1
			for i, l := range lists {
				if pos[i] >= len(l) {
					continue
				}
				if best < 0 || l[pos[i]].seq < lists[best][pos[best]].seq {
					best = i
				}
			}
			if best < 0 {
				return
			}
			e := lists[best][pos[best]]
			pos[best]++
			if !yield(e.rel) {
				return
			}
		}
	}
}

// InOrder returns every relationship id in the order relationships were
// added. Snapshots use it so a rebuilt index traverses in the same order.
func (a *Adjacency) InOrder() []graph.ID {
	var all []adjEntry
	for _, adj := range a.nodes {
		for _, l := range adj.out {
			all = append(all, l...)
		}
	}
	slices.SortFunc(all, func(x, y adjEntry) int {
		switch {
		case x.seq < y.seq:
			return -1
		case x.seq > y.seq:
			return 1
		}
		return 0
	})
	ids := make([]graph.ID, len(all))
	for i, e := range all {
		ids[i] = e.rel
	}
	return ids
}
