package graphdb

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/dreamware/kith/internal/graph"
	"github.com/dreamware/kith/internal/wal"
)

// overlay is a transaction's private view: the committed state plus the ops
// staged so far. stage validates an op against that view and records its
// effect without touching the committed state, so the same checks run while
// a transaction is open and again, against fresh state, at commit.
//
// Callers must hold the store's read lock while using an overlay.
type overlay struct {
	base *state

	nodes   map[graph.ID]bool                    // true: created here, false: deleted here
	rels    map[graph.ID]*graph.Relationship     // nil: deleted here
	degree  map[graph.ID]int                     // degree change per node
	props   map[graph.ID]map[string]*graph.Value // nil value: removed here
	indexes map[string]bool                      // true: declared, false: dropped

	// created lists relationships created here, in op order.
	created []graph.ID
}

func newOverlay(base *state) *overlay {
	return &overlay{
		base:    base,
		nodes:   make(map[graph.ID]bool),
		rels:    make(map[graph.ID]*graph.Relationship),
		degree:  make(map[graph.ID]int),
		props:   make(map[graph.ID]map[string]*graph.Value),
		indexes: make(map[string]bool),
	}
}

func (o *overlay) nodeLive(id graph.ID) bool {
	if live, ok := o.nodes[id]; ok {
		return live
	}
	return o.base.isNode(id)
}

func (o *overlay) relationship(id graph.ID) (graph.Relationship, bool) {
	if rel, ok := o.rels[id]; ok {
		if rel == nil {
			return graph.Relationship{}, false
		}
		return *rel, true
	}
	return o.base.arena.Relationship(id)
}

func (o *overlay) live(id graph.ID) bool {
	if o.nodeLive(id) {
		return true
	}
	_, ok := o.relationship(id)
	return ok
}

func (o *overlay) nodeDegree(id graph.ID) int {
	return o.base.arena.Degree(id) + o.degree[id]
}

// property resolves key on id, staged writes first.
func (o *overlay) property(id graph.ID, key string) (graph.Value, bool) {
	if !o.live(id) {
		return graph.Value{}, false
	}
	if staged, ok := o.props[id]; ok {
		if v, ok := staged[key]; ok {
			if v == nil {
				return graph.Value{}, false
			}
			return *v, true
		}
	}
	return o.base.props.Get(id, key)
}

func (o *overlay) indexed(key string) bool {
	if declared, ok := o.indexes[key]; ok {
		return declared
	}
	return o.base.index.Indexed(key)
}

func (o *overlay) setProp(id graph.ID, key string, v *graph.Value) {
	staged, ok := o.props[id]
	if !ok {
		staged = make(map[string]*graph.Value)
		o.props[id] = staged
	}
	staged[key] = v
}

// stage validates op against the view and records it.
func (o *overlay) stage(op wal.Op) error {
	switch op.Kind {
	case wal.OpCreateNode:
		if o.live(op.ID) {
			return fmt.Errorf("create node %d: id in use: %w", op.ID, graph.ErrConstraintViolation)
		}
		o.nodes[op.ID] = true

	case wal.OpDeleteNode:
		if !o.nodeLive(op.ID) {
			return fmt.Errorf("delete node %d: %w", op.ID, graph.ErrNotFound)
		}
		if op.ID == graph.RootID {
			return fmt.Errorf("delete node %d: reference node is permanent: %w", op.ID, graph.ErrConstraintViolation)
		}
		if d := o.nodeDegree(op.ID); d > 0 {
			return fmt.Errorf("delete node %d: %d relationships still attached: %w", op.ID, d, graph.ErrConstraintViolation)
		}
		o.nodes[op.ID] = false

	case wal.OpCreateRelationship:
		if !validName(string(op.Type)) {
			return fmt.Errorf("create relationship: invalid type %q: %w", op.Type, graph.ErrConstraintViolation)
		}
		if !o.nodeLive(op.Start) {
			return fmt.Errorf("create relationship: start node %d: %w", op.Start, graph.ErrNotFound)
		}
		if !o.nodeLive(op.End) {
			return fmt.Errorf("create relationship: end node %d: %w", op.End, graph.ErrNotFound)
		}
		if o.live(op.ID) {
			return fmt.Errorf("create relationship %d: id in use: %w", op.ID, graph.ErrConstraintViolation)
		}
		o.rels[op.ID] = &graph.Relationship{ID: op.ID, Type: op.Type, Start: op.Start, End: op.End}
		o.degree[op.Start]++
		o.degree[op.End]++
		o.created = append(o.created, op.ID)

	case wal.OpDeleteRelationship:
		rel, ok := o.relationship(op.ID)
		if !ok {
			return fmt.Errorf("delete relationship %d: %w", op.ID, graph.ErrNotFound)
		}
		o.rels[op.ID] = nil
		o.degree[rel.Start]--
		o.degree[rel.End]--

	case wal.OpSetProperty:
		if !validName(op.Key) {
			return fmt.Errorf("set property on %d: invalid key %q: %w", op.ID, op.Key, graph.ErrConstraintViolation)
		}
		if !op.Value.IsValid() {
			return fmt.Errorf("set property %q on %d: invalid value: %w", op.Key, op.ID, graph.ErrConstraintViolation)
		}
		if !o.live(op.ID) {
			return fmt.Errorf("set property %q on %d: %w", op.Key, op.ID, graph.ErrNotFound)
		}
		v := op.Value
		o.setProp(op.ID, op.Key, &v)

	case wal.OpRemoveProperty:
		if !o.live(op.ID) {
			return fmt.Errorf("remove property %q on %d: %w", op.Key, op.ID, graph.ErrNotFound)
		}
		o.setProp(op.ID, op.Key, nil)

	case wal.OpCreateIndex:
		if !validName(op.Key) {
			return fmt.Errorf("create index: invalid key %q: %w", op.Key, graph.ErrConstraintViolation)
		}
		o.indexes[op.Key] = true

	case wal.OpIndexPut:
		if !o.nodeLive(op.ID) {
			return fmt.Errorf("index %s on %d: %w", op.Key, op.ID, graph.ErrNotFound)
		}
		if current, ok := o.property(op.ID, op.Key); !ok || current != op.Value {
			return fmt.Errorf("index %s=%s on %d: node does not hold value: %w", op.Key, op.Value, op.ID, graph.ErrConstraintViolation)
		}
		o.indexes[op.Key] = true

	case wal.OpDropIndex:
		o.indexes[op.Key] = false

	default:
		return fmt.Errorf("unknown op kind %q: %w", op.Kind, graph.ErrConstraintViolation)
	}
	return nil
}

// validName reports whether s can be used as a property key or relationship
// type: non-empty and valid UTF-8, so it is written to the log unchanged.
func validName(s string) bool {
	return s != "" && utf8.ValidString(s)
}

// relationships lists node's relationships as seen by the transaction:
// committed ones that were not deleted here, followed by ones created here.
func (o *overlay) relationships(node graph.ID, dir graph.Direction, types []graph.RelType) []graph.ID {
	var out []graph.ID
	for id := range o.base.adj.Relationships(node, dir, types...) {
		if _, ok := o.relationship(id); ok {
			out = append(out, id)
		}
	}
	for _, id := range o.created {
		rel, ok := o.relationship(id)
		if !ok || !matches(rel, node, dir, types) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func matches(rel graph.Relationship, node graph.ID, dir graph.Direction, types []graph.RelType) bool {
	if len(types) > 0 && !slices.Contains(types, rel.Type) {
		return false
	}
	switch dir {
	case graph.Outgoing:
		return rel.Start == node
	case graph.Incoming:
		return rel.End == node
	}
	return rel.Start == node || rel.End == node
}

// lookup returns the nodes that would be indexed under (key, value) if the
// transaction committed now, in ascending id order.
func (o *overlay) lookup(key string, value graph.Value) []graph.ID {
	if !o.indexed(key) {
		return nil
	}
	seen := make(map[graph.ID]bool)
	var ids []graph.ID
	add := func(id graph.ID) {
		if seen[id] {
			return
		}
		seen[id] = true
		if v, ok := o.property(id, key); ok && v == value && o.nodeLive(id) {
			ids = append(ids, id)
		}
	}

	if o.base.index.Indexed(key) {
		for _, id := range o.base.index.All(key, value) {
			add(id)
		}
	} else {
		// declared in this transaction: the committed index has no entries
		// yet, so scan holders the same way the commit will backfill
		for _, id := range o.base.arena.Nodes() {
			add(id)
		}
	}
	for id := range o.props {
		add(id)
	}
	for id, live := range o.nodes {
		if live {
			add(id)
		}
	}
	slices.Sort(ids)
	return ids
}
