package graphdb

import (
	"fmt"

	"github.com/dreamware/kith/internal/graph"
	"github.com/dreamware/kith/internal/storage"
	"github.com/dreamware/kith/internal/wal"
)

// state is the committed graph. It is mutated only by apply, which runs with
// the store's write lock held and only after the ops have been validated.
type state struct {
	arena *storage.Arena
	props *storage.Properties
	adj   *storage.Adjacency
	index *storage.EqualityIndex
}

func newState() *state {
	return &state{
		arena: storage.NewArena(),
		props: storage.NewProperties(),
		adj:   storage.NewAdjacency(),
		index: storage.NewEqualityIndex(),
	}
}

func (s *state) isNode(id graph.ID) bool {
	_, ok := s.arena.Node(id)
	return ok
}

func (s *state) exists(id graph.ID) bool {
	if s.isNode(id) {
		return true
	}
	_, ok := s.arena.Relationship(id)
	return ok
}

// apply performs one op against every structure it touches. Properties,
// adjacency and index entries of a deleted record are removed in the same
// call, so the structures never disagree between two ops.
func (s *state) apply(op wal.Op) error {
	switch op.Kind {
	case wal.OpCreateNode:
		return s.arena.CreateNode(op.ID)

	case wal.OpDeleteNode:
		if err := s.arena.DeleteNode(op.ID); err != nil {
			return err
		}
		for key, value := range s.props.RemoveAll(op.ID) {
			s.index.Remove(key, value, op.ID)
		}
		s.adj.Drop(op.ID)
		return nil

	case wal.OpCreateRelationship:
		rel, err := s.arena.CreateRelationship(op.ID, op.Type, op.Start, op.End)
		if err != nil {
			return err
		}
		s.adj.Add(rel)
		return nil

	case wal.OpDeleteRelationship:
		rel, err := s.arena.DeleteRelationship(op.ID)
		if err != nil {
			return err
		}
		s.adj.Remove(rel)
		s.props.RemoveAll(op.ID)
		return nil

	case wal.OpSetProperty:
		if !s.exists(op.ID) {
			return fmt.Errorf("set property %q on %d: %w", op.Key, op.ID, graph.ErrNotFound)
		}
		old, had := s.props.Set(op.ID, op.Key, op.Value)
		if s.isNode(op.ID) && s.index.Indexed(op.Key) {
			if had {
				s.index.Remove(op.Key, old, op.ID)
			}
			s.index.Put(op.Key, op.Value, op.ID)
		}
		return nil

	case wal.OpRemoveProperty:
		if !s.exists(op.ID) {
			return fmt.Errorf("remove property %q on %d: %w", op.Key, op.ID, graph.ErrNotFound)
		}
		if old, had := s.props.Remove(op.ID, op.Key); had {
			s.index.Remove(op.Key, old, op.ID)
		}
		return nil

	case wal.OpCreateIndex:
		s.declareIndex(op.Key)
		return nil

	case wal.OpIndexPut:
		current, ok := s.props.Get(op.ID, op.Key)
		if !s.isNode(op.ID) || !ok || current != op.Value {
			return fmt.Errorf("index %s=%s on %d: node does not hold value: %w", op.Key, op.Value, op.ID, graph.ErrConstraintViolation)
		}
		s.declareIndex(op.Key)
		s.index.Put(op.Key, op.Value, op.ID)
		return nil

	case wal.OpDropIndex:
		s.index.Drop(op.Key)
		return nil
	}
	return fmt.Errorf("unknown op kind %q: %w", op.Kind, graph.ErrConstraintViolation)
}

// declareIndex declares key and backfills entries for every node that
// already holds it.
func (s *state) declareIndex(key string) {
	if !s.index.Declare(key) {
		return
	}
	for _, id := range s.arena.Nodes() {
		if v, ok := s.props.Get(id, key); ok {
			s.index.Put(key, v, id)
		}
	}
}

// snapshot renders the state as ops that rebuild it from empty. The output is
// deterministic: nodes by id, relationships in adjacency order, property keys
// sorted.
func (s *state) snapshot() []wal.Op {
	var ops []wal.Op
	nodes := s.arena.Nodes()
	for _, id := range nodes {
		ops = append(ops, wal.Op{Kind: wal.OpCreateNode, ID: id})
	}
	rels := s.adj.InOrder()
	for _, id := range rels {
		rel, _ := s.arena.Relationship(id)
		ops = append(ops, wal.Op{Kind: wal.OpCreateRelationship, ID: rel.ID, Type: rel.Type, Start: rel.Start, End: rel.End})
	}
	for _, ids := range [][]graph.ID{nodes, rels} {
		for _, id := range ids {
			for _, key := range s.props.Keys(id) {
				v, _ := s.props.Get(id, key)
				ops = append(ops, wal.Op{Kind: wal.OpSetProperty, ID: id, Key: key, Value: v})
			}
		}
	}
	for _, key := range s.index.Keys() {
		ops = append(ops, wal.Op{Kind: wal.OpCreateIndex, Key: key})
	}
	return ops
}
