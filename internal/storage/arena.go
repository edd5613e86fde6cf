package storage

import (
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/dreamware/kith/internal/graph"
)

// nodeRecord is the arena's record for a live node. degree counts the live
// relationships that use the node as start or end; a self-loop counts twice.
type nodeRecord struct {
	degree int // Live relationships touching the node
}

// Arena owns every node and relationship record and hands out identifiers.
//
// Identifiers come from a monotonic counter shared by nodes and
// relationships. Allocate is safe for concurrent use so that independent
// transactions can stage creations without coordination; every other method
// must be called with the owning store's lock held.
type Arena struct {
	next  atomic.Uint64                   // Next id Allocate returns
	nodes map[graph.ID]*nodeRecord        // Live nodes
	rels  map[graph.ID]graph.Relationship // Live relationships
}

// NewArena creates an empty arena. The first allocated id is 1; RootID (0)
// is reserved for the reference node.
func NewArena() *Arena {
	a := &Arena{
		nodes: make(map[graph.ID]*nodeRecord),
		rels:  make(map[graph.ID]graph.Relationship),
	}
	a.next.Store(uint64(graph.RootID) + 1)
	return a
}

// Allocate returns a fresh identifier that has never been returned before.
// Identifiers of rolled-back creations are simply skipped.
func (a *Arena) Allocate() graph.ID {
	return graph.ID(a.next.Add(1) - 1)
}

// Observe advances the allocator past id. Replay calls it for every id it
// reads back so that new allocations never collide with recorded ones.
func (a *Arena) Observe(id graph.ID) {
	for {
		cur := a.next.Load()
		if uint64(id) < cur {
			return
		}
		if a.next.CompareAndSwap(cur, uint64(id)+1) {
			return
		}
	}
}

// NextID reports the identifier the next Allocate call will return.
func (a *Arena) NextID() graph.ID {
	return graph.ID(a.next.Load())
}

// CreateNode adds a node record under id.
func (a *Arena) CreateNode(id graph.ID) error {
	if a.exists(id) {
		return fmt.Errorf("create node %d: id in use: %w", id, graph.ErrConstraintViolation)
	}
	a.nodes[id] = &nodeRecord{}
	a.Observe(id)
	return nil
}

// CreateRelationship adds a relationship record. Both endpoints must be live
// nodes.
//
// Parameters:
//   - id: Identifier from Allocate, not used by any live record
//   - typ: Non-empty relationship type
//   - start, end: Live endpoint nodes
//
// Returns:
//   - graph.Relationship: The stored record, for the adjacency index
//   - error: graph.ErrNotFound for a missing endpoint,
//     graph.ErrConstraintViolation for an empty type or an id in use
func (a *Arena) CreateRelationship(id graph.ID, typ graph.RelType, start, end graph.ID) (graph.Relationship, error) {
	if typ == "" {
		return graph.Relationship{}, fmt.Errorf("create relationship %d: empty type: %w", id, graph.ErrConstraintViolation)
	}
	if a.exists(id) {
		return graph.Relationship{}, fmt.Errorf("create relationship %d: id in use: %w", id, graph.ErrConstraintViolation)
	}
	from, ok := a.nodes[start]
	if !ok {
		return graph.Relationship{}, fmt.Errorf("create relationship %d: start node %d: %w", id, start, graph.ErrNotFound)
	}
	to, ok := a.nodes[end]
	if !ok {
		return graph.Relationship{}, fmt.Errorf("create relationship %d: end node %d: %w", id, end, graph.ErrNotFound)
	}

	rel := graph.Relationship{ID: id, Type: typ, Start: start, End: end}
	a.rels[id] = rel
	from.degree++
	to.degree++
	a.Observe(id)
	return rel, nil
}

// DeleteNode removes a node record. The node must have no relationships
// left and must not be the reference node.
func (a *Arena) DeleteNode(id graph.ID) error {
	rec, ok := a.nodes[id]
	if !ok {
		return fmt.Errorf("delete node %d: %w", id, graph.ErrNotFound)
	}
	if id == graph.RootID {
		return fmt.Errorf("delete node %d: reference node is permanent: %w", id, graph.ErrConstraintViolation)
	}
	if rec.degree > 0 {
		return fmt.Errorf("delete node %d: %d relationships still attached: %w", id, rec.degree, graph.ErrConstraintViolation)
	}
	delete(a.nodes, id)
	return nil
}

// DeleteRelationship removes a relationship record and returns it.
func (a *Arena) DeleteRelationship(id graph.ID) (graph.Relationship, error) {
	rel, ok := a.rels[id]
	if !ok {
		return graph.Relationship{}, fmt.Errorf("delete relationship %d: %w", id, graph.ErrNotFound)
	}
	delete(a.rels, id)
	a.nodes[rel.Start].degree--
	a.nodes[rel.End].degree--
	return rel, nil
}

// Node returns the node stored under id.
func (a *Arena) Node(id graph.ID) (graph.Node, bool) {
	_, ok := a.nodes[id]
	return graph.Node{ID: id}, ok
}

// Relationship returns the relationship stored under id.
func (a *Arena) Relationship(id graph.ID) (graph.Relationship, bool) {
	rel, ok := a.rels[id]
	return rel, ok
}

// Degree returns the number of live relationships attached to node.
func (a *Arena) Degree(node graph.ID) int {
	if rec, ok := a.nodes[node]; ok {
		return rec.degree
	}
	return 0
}

// NodeCount returns the number of live nodes, including the reference node
// once it exists.
func (a *Arena) NodeCount() int { return len(a.nodes) }

// RelationshipCount returns the number of live relationships.
func (a *Arena) RelationshipCount() int { return len(a.rels) }

// Nodes returns the ids of all live nodes in ascending order.
func (a *Arena) Nodes() []graph.ID {
	ids := make([]graph.ID, 0, len(a.nodes))
	for id := range a.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// exists reports whether id names a live node or relationship.
func (a *Arena) exists(id graph.ID) bool {
	if _, ok := a.nodes[id]; ok {
		return true
	}
	_, ok := a.rels[id]
	return ok
}
