package graphdb

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/kith/internal/graph"
	"github.com/dreamware/kith/internal/wal"
)

// TxState is a transaction's position in its lifecycle:
//
//	Active ──Commit──▶ Committing ──▶ Committed
//	   │                   │
//	   │                   └─(validation or log failure)─┐
//	   └──Rollback/Finish──▶ RollingBack ──▶ RolledBack ◀┘
//
// Committed and RolledBack are terminal.
type TxState int32

const (
	// TxActive accepts mutations and reads. Every Tx starts here.
	TxActive TxState = iota
	// TxCommitting is held while the staged ops are revalidated, logged and
	// applied. Other calls on the Tx wait for it to finish.
	TxCommitting
	// TxCommitted means every staged op is applied and durable.
	TxCommitted
	// TxRollingBack is held while staged ops are discarded.
	TxRollingBack
	// TxRolledBack means nothing the transaction staged was applied.
	TxRolledBack
)

// String returns the lower-case state name used in logs and errors.
func (s TxState) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitting:
		return "committing"
	case TxCommitted:
		return "committed"
	case TxRollingBack:
		return "rolling_back"
	case TxRolledBack:
		return "rolled_back"
	}
	return fmt.Sprintf("TxState(%d)", int32(s))
}

// Tx buffers mutations until Commit. Mutations are validated as they are
// staged, so errors surface at the call that caused them, and validated
// again at commit against whatever other transactions committed meanwhile.
//
// A mutation that fails marks the transaction failed: Commit will then roll
// back and return that error instead of committing the remaining ops.
//
// A Tx is meant to be used from one goroutine, but its methods are
// serialized so misuse cannot corrupt it.
type Tx struct {
	mu      sync.Mutex // Serializes calls on this Tx
	id      string     // Random uuid, logged with every commit
	store   *Store     // Store the Tx commits to
	state   TxState    // Lifecycle position
	ops     []wal.Op   // Staged ops in call order
	view    *overlay   // Committed state plus ops; nil once finished
	failed  error      // First staging error; makes Commit roll back
	started time.Time  // Begin time, for the commit log line
}

// ID returns the transaction's unique identifier.
func (t *Tx) ID() string { return t.id }

// State returns the current lifecycle state.
func (t *Tx) State() TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Len returns the number of staged ops.
func (t *Tx) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

func newTx(s *Store) *Tx {
	return &Tx{
		id:      uuid.NewString(),
		store:   s,
		state:   TxActive,
		view:    newOverlay(s.state),
		started: time.Now(),
	}
}

// stage validates op against the transaction's view and buffers it.
func (t *Tx) stage(op wal.Op) error {
	if t.state != TxActive {
		return t.invalid()
	}
	t.store.mu.RLock()
	err := t.view.stage(op)
	t.store.mu.RUnlock()
	if err != nil {
		if t.failed == nil {
			t.failed = err
		}
		return err
	}
	t.ops = append(t.ops, op)
	return nil
}

// invalid reports an operation on a finished transaction.
func (t *Tx) invalid() error {
	return fmt.Errorf("transaction %s is %s: %w", t.id, t.state, graph.ErrInvalidState)
}

// CreateNode stages a new node and returns its id.
func (t *Tx) CreateNode() (graph.ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxActive {
		return 0, t.invalid()
	}
	id := t.store.state.arena.Allocate()
	if err := t.stage(wal.Op{Kind: wal.OpCreateNode, ID: id}); err != nil {
		return 0, err
	}
	return id, nil
}

// CreateRelationship stages a relationship of type typ from start to end.
// Both nodes must exist in the transaction's view.
//
// Parameters:
//   - start, end: Endpoint nodes; equal values make a self-loop
//   - typ: Non-empty relationship type, such as graph.IsFriendOf
//
// Returns:
//   - graph.ID: Identifier of the staged relationship
//   - error: graph.ErrNotFound for a missing endpoint,
//     graph.ErrConstraintViolation for an invalid type,
//     graph.ErrInvalidState once the transaction has ended
func (t *Tx) CreateRelationship(start, end graph.ID, typ graph.RelType) (graph.ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxActive {
		return 0, t.invalid()
	}
	id := t.store.state.arena.Allocate()
	op := wal.Op{Kind: wal.OpCreateRelationship, ID: id, Type: typ, Start: start, End: end}
	if err := t.stage(op); err != nil {
		return 0, err
	}
	return id, nil
}

// DeleteNode stages the deletion of a node. Every relationship of the node
// must have been deleted first, otherwise graph.ErrConstraintViolation is
// returned. Its properties and index entries go with it.
func (t *Tx) DeleteNode(id graph.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage(wal.Op{Kind: wal.OpDeleteNode, ID: id})
}

// DeleteRelationship stages the deletion of a relationship.
func (t *Tx) DeleteRelationship(id graph.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage(wal.Op{Kind: wal.OpDeleteRelationship, ID: id})
}

// SetProperty stages a property write on a node or relationship. If key is
// indexed, the index entry follows the new value at commit.
//
// Keys must be non-empty UTF-8. Values must satisfy graph.Value.IsValid;
// anything else fails with graph.ErrConstraintViolation.
func (t *Tx) SetProperty(id graph.ID, key string, value graph.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage(wal.Op{Kind: wal.OpSetProperty, ID: id, Key: key, Value: value})
}

// RemoveProperty stages the removal of a property. Removing an absent key
// is allowed.
func (t *Tx) RemoveProperty(id graph.ID, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage(wal.Op{Kind: wal.OpRemoveProperty, ID: id, Key: key})
}

// CreateIndex declares an equality index on key. Nodes already holding key
// are indexed at commit.
func (t *Tx) CreateIndex(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage(wal.Op{Kind: wal.OpCreateIndex, Key: key})
}

// IndexPut indexes node under (key, value), declaring the index if needed.
// The node must hold that value. Putting the same entry twice has no
// further effect.
//
// Example:
//
//	if err := tx.SetProperty(id, "name", graph.String(name)); err != nil {
//	    return err
//	}
//	return tx.IndexPut("name", graph.String(name), id)
func (t *Tx) IndexPut(key string, value graph.Value, node graph.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage(wal.Op{Kind: wal.OpIndexPut, ID: node, Key: key, Value: value})
}

// DropIndex removes the index on key and all of its entries.
func (t *Tx) DropIndex(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stage(wal.Op{Kind: wal.OpDropIndex, Key: key})
}

// Node reports whether id is a live node in the transaction's view.
func (t *Tx) Node(id graph.ID) (graph.Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxActive {
		return graph.Node{}, t.invalid()
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	if !t.view.nodeLive(id) {
		return graph.Node{}, fmt.Errorf("node %d: %w", id, graph.ErrNotFound)
	}
	return graph.Node{ID: id}, nil
}

// Relationship returns a relationship from the transaction's view.
func (t *Tx) Relationship(id graph.ID) (graph.Relationship, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxActive {
		return graph.Relationship{}, t.invalid()
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	rel, ok := t.view.relationship(id)
	if !ok {
		return graph.Relationship{}, fmt.Errorf("relationship %d: %w", id, graph.ErrNotFound)
	}
	return rel, nil
}

// Property reads a property from the transaction's view.
func (t *Tx) Property(id graph.ID, key string) (graph.Value, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxActive {
		return graph.Value{}, false, t.invalid()
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	v, ok := t.view.property(id, key)
	return v, ok, nil
}

// Relationships lists node's relationships in the transaction's view:
// committed ones in creation order, then ones created in this transaction.
func (t *Tx) Relationships(node graph.ID, dir graph.Direction, types ...graph.RelType) ([]graph.ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxActive {
		return nil, t.invalid()
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.view.relationships(node, dir, types), nil
}

// Lookup is the transactional form of Store.LookupSingle.
func (t *Tx) Lookup(key string, value graph.Value) (graph.ID, bool, error) {
	ids, err := t.LookupAll(key, value)
	if err != nil {
		return 0, false, err
	}
	return single(key, value, ids)
}

// LookupAll is the transactional form of Store.LookupAll.
func (t *Tx) LookupAll(key string, value graph.Value) ([]graph.ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxActive {
		return nil, t.invalid()
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.view.lookup(key, value), nil
}

// Commit validates and applies every staged op atomically. On any failure
// nothing is applied, the transaction ends RolledBack and the cause is
// returned. Errors wrapping graph.ErrIOFailure mean the commit log could not
// be written.
func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxActive {
		return t.invalid()
	}
	if t.failed != nil {
		t.rollbackLocked()
		return fmt.Errorf("transaction %s rolled back after failed operation: %w", t.id, t.failed)
	}

	t.state = TxCommitting
	if err := t.store.commit(t.id, t.ops); err != nil {
		t.rollbackLocked()
		return err
	}
	t.state = TxCommitted
	t.release()
	t.store.stats.commits.Add(1)
	t.store.logger.Debug("Transaction committed",
		zap.String("tx", t.id),
		zap.Duration("elapsed", time.Since(t.started)))
	return nil
}

// Rollback discards every staged op. The committed state is never touched by
// an open transaction, so there is nothing to undo.
func (t *Tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TxActive {
		return t.invalid()
	}
	t.rollbackLocked()
	return nil
}

// Finish ends the transaction if it is still active by rolling it back. It
// is meant to be deferred right after Begin so every exit path, including a
// panic, finalizes the transaction:
//
//	tx, err := store.Begin()
//	if err != nil { ... }
//	defer tx.Finish()
//	...
//	return tx.Commit()
func (t *Tx) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == TxActive {
		t.rollbackLocked()
	}
}

// rollbackLocked discards the staged ops. t.mu must be held.
func (t *Tx) rollbackLocked() {
	t.state = TxRollingBack
	t.release()
	t.state = TxRolledBack
	t.store.stats.rollbacks.Add(1)
	t.store.logger.Debug("Transaction rolled back", zap.String("tx", t.id))
}

// release drops the staged ops and view so a finished Tx holds no memory.
func (t *Tx) release() {
	t.ops = nil
	t.view = nil
}
