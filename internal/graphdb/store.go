package graphdb

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/juju/fslock"
	"go.uber.org/zap"

	"github.com/dreamware/kith/internal/graph"
	"github.com/dreamware/kith/internal/wal"
)

// Files inside a store directory.
const (
	logFileName  = "commit.log"
	lockFileName = "LOCK"
)

// lookupKey identifies one cached LookupAll result.
type lookupKey struct {
	key   string
	value graph.Value
}

// counters are updated without locks and read by Stats.
type counters struct {
	commits   atomic.Uint64 // Transactions committed, bootstrap included
	rollbacks atomic.Uint64 // Transactions rolled back for any reason
	lookups   atomic.Uint64 // LookupAll and LookupSingle calls
	cacheHits atomic.Uint64 // Lookups answered from the cache
}

// Store is an embedded property graph.
//
// Locking: commitMu serializes commits and compactions; mu guards the
// committed state. A commit validates under mu's read lock, appends to the
// log holding only commitMu, and takes mu's write lock just for the
// in-memory apply. Readers therefore see either the state before a commit
// or the state after it, and are only blocked while ops are applied.
//
// Thread-safe: every exported method may be called from any goroutine. A Tx
// belongs to the goroutine that began it.
type Store struct {
	path   string      // Store directory; empty for in-memory stores
	logger *zap.Logger // Named "graphdb"
	opts   options     // Options resolved at Open

	commitMu sync.Mutex   // Serializes commits, compaction and Close
	mu       sync.RWMutex // Guards state
	state    *state       // Committed graph
	closed   atomic.Bool  // Set by Close; checked before every commit

	log       *wal.Log                          // Commit log; nil in memory
	lock      *fslock.Lock                      // Directory lock; nil in memory
	cache     *lru.Cache[lookupKey, []graph.ID] // Lookup results; purged per commit
	compactor *compactor                        // Background compaction; may be nil
	stats     counters                          // Operation counters for Stats
	closeOnce sync.Once                         // Makes Close idempotent
	closeErr  error                             // Result of the first Close
}

// Open opens the store kept in directory path, creating it if needed, and
// replays its commit log. An empty path opens a volatile in-memory store.
//
// Only one process may have a directory open; a second Open fails while the
// first holds the lock. The returned store must be closed with Close.
//
// Parameters:
//   - path: Store directory, created if missing; "" for an in-memory store
//   - opts: Logger, sync policy, compaction and cache settings
//
// Returns:
//   - *Store: Open store with the reference node in place
//   - error: Lock contention, or graph.ErrIOFailure if the log cannot be
//     opened or replayed
//
// Example:
//
//	store, err := graphdb.Open("var/kith",
//	    graphdb.WithLogger(logger),
//	    graphdb.WithCompaction(10*time.Minute, 1<<20))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{
		path:   path,
		opts:   o,
		logger: o.logger.Named("graphdb"),
		state:  newState(),
	}
	if o.cacheSize > 0 {
		cache, err := lru.New[lookupKey, []graph.ID](o.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("lookup cache: %w", err)
		}
		s.cache = cache
	}

	if path != "" {
		if err := s.openLog(); err != nil {
			s.release()
			return nil, err
		}
	}

	if !s.state.isNode(graph.RootID) {
		if err := s.commit("bootstrap", []wal.Op{{Kind: wal.OpCreateNode, ID: graph.RootID}}); err != nil {
			s.release()
			return nil, fmt.Errorf("create reference node: %w", err)
		}
	}

	if path != "" && o.compactInterval > 0 {
		s.compactor = newCompactor(s, o.compactInterval, o.compactMinBytes)
		s.compactor.Start()
	}

	s.logger.Info("Store opened",
		zap.String("path", path),
		zap.Int("nodes", s.state.arena.NodeCount()-1),
		zap.Int("relationships", s.state.arena.RelationshipCount()))
	return s, nil
}

// openLog creates the store directory, takes its lock and rebuilds the state
// from the commit log. A snapshot record discards everything before it.
func (s *Store) openLog() error {
	if err := os.MkdirAll(s.path, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w: %w", graph.ErrIOFailure, err)
	}

	lock := fslock.New(filepath.Join(s.path, lockFileName))
	if err := lock.TryLock(); err != nil {
		return fmt.Errorf("lock store %s: %w", s.path, err)
	}
	s.lock = lock

	l, err := wal.Open(filepath.Join(s.path, logFileName), wal.Options{Sync: s.opts.sync, Logger: s.logger})
	if err != nil {
		return err
	}
	s.log = l

	return l.Replay(func(rec wal.Record) error {
		if rec.Snapshot {
			s.state = newState()
		}
		for i, op := range rec.Ops {
			if err := s.state.apply(op); err != nil {
				return fmt.Errorf("replay record %d op %d: %w", rec.LSN, i, err)
			}
			if op.Kind == wal.OpCreateNode || op.Kind == wal.OpCreateRelationship {
				s.state.arena.Observe(op.ID)
			}
		}
		if rec.Next > 0 {
			s.state.arena.Observe(rec.Next - 1)
		}
		return nil
	})
}

// Close stops background work, waits for an in-flight commit, then syncs and
// closes the commit log and releases the directory lock. Transactions still
// open fail with graph.ErrClosed when they commit. Close is idempotent.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if s.compactor != nil {
			s.compactor.Stop()
		}
		s.commitMu.Lock()
		s.closed.Store(true)
		s.commitMu.Unlock()

		s.closeErr = s.release()
		s.logger.Info("Store closed", zap.String("path", s.path))
	})
	return s.closeErr
}

// release closes the log and drops the directory lock.
func (s *Store) release() error {
	var errs []error
	if s.log != nil {
		errs = append(errs, s.log.Close())
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Unlock())
	}
	return errors.Join(errs...)
}

// Begin starts a transaction. The caller must end it with Commit, Rollback
// or a deferred Finish; Update and View do that automatically.
//
// Example:
//
//	tx, err := store.Begin()
//	if err != nil {
//	    return err
//	}
//	defer tx.Finish()
//	id, err := tx.CreateNode()
//	if err != nil {
//	    return err
//	}
//	return tx.Commit()
func (s *Store) Begin() (*Tx, error) {
	if s.closed.Load() {
		return nil, graph.ErrClosed
	}
	return newTx(s), nil
}

// Update runs fn in a transaction and commits it if fn returns nil. If fn
// returns an error or panics, or ctx is done before the commit, the
// transaction is rolled back and the error returned; a panic is re-raised
// after the rollback.
//
// Example:
//
//	err := store.Update(ctx, func(tx *graphdb.Tx) error {
//	    ed, err := tx.CreateNode()
//	    if err != nil {
//	        return err
//	    }
//	    return tx.SetProperty(ed, "name", graph.String("Ed Mauget"))
//	})
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Finish()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.Commit()
}

// View runs fn in a transaction that is always rolled back. It gives fn a
// stable read API with the same methods Update offers.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Finish()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(tx)
}

// commit validates ops against the current committed state, makes them
// durable and applies them. Nothing is applied unless every op validates
// and the log append succeeds.
//
// Order: validate under the read lock, append to the log with no state lock
// held, then apply under the write lock and purge the lookup cache.
func (s *Store) commit(txID string, ops []wal.Op) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if s.closed.Load() {
		return fmt.Errorf("commit %s: %w", txID, graph.ErrClosed)
	}
	if len(ops) == 0 {
		return nil
	}

	// commitMu excludes every other writer, so the state validated here is
	// the state apply will see.
	s.mu.RLock()
	check := newOverlay(s.state)
	for i, op := range ops {
		if err := check.stage(op); err != nil {
			s.mu.RUnlock()
			return fmt.Errorf("commit %s: op %d (%s): %w", txID, i, op.Kind, err)
		}
	}
	next := s.state.arena.NextID()
	s.mu.RUnlock()

	if s.log != nil {
		rec := &wal.Record{TxID: txID, Time: time.Now().UnixNano(), Next: next, Ops: ops}
		if err := s.log.Append(rec); err != nil {
			s.logger.Error("Commit log append failed", zap.String("tx", txID), zap.Error(err))
			return fmt.Errorf("commit %s: %w", txID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, op := range ops {
		if err := s.state.apply(op); err != nil {
			// validation mirrors apply, so this is a bug, and the log
			// already holds the record
			s.logger.DPanic("Apply failed after validation",
				zap.String("tx", txID), zap.Int("op", i), zap.Error(err))
			return fmt.Errorf("commit %s: apply op %d: %w", txID, i, err)
		}
	}
	if s.cache != nil {
		s.cache.Purge()
	}
	return nil
}

// Node reports whether id is a live node.
func (s *Store) Node(id graph.ID) (graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.state.arena.Node(id)
	if !ok {
		return graph.Node{}, fmt.Errorf("node %d: %w", id, graph.ErrNotFound)
	}
	return n, nil
}

// Relationship returns the relationship stored under id.
func (s *Store) Relationship(id graph.ID) (graph.Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rel, ok := s.state.arena.Relationship(id)
	if !ok {
		return graph.Relationship{}, fmt.Errorf("relationship %d: %w", id, graph.ErrNotFound)
	}
	return rel, nil
}

// Property returns the value of key on record id.
func (s *Store) Property(id graph.ID, key string) (graph.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.props.Get(id, key)
}

// Properties returns a copy of every property of record id.
func (s *Store) Properties(id graph.ID) (map[string]graph.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.state.exists(id) {
		return nil, fmt.Errorf("record %d: %w", id, graph.ErrNotFound)
	}
	props := s.state.props.All(id)
	if props == nil {
		props = map[string]graph.Value{}
	}
	return props, nil
}

// Traverse returns the ids of node's relationships in creation order,
// optionally restricted to the given types. The sequence is lazy and
// restartable and reflects the committed state at the time of the call.
//
// Example:
//
//	for id := range store.Traverse(ed, graph.Outgoing, graph.IsFriendOf) {
//	    rel, _ := store.Relationship(id)
//	    fmt.Println(rel.End)
//	}
func (s *Store) Traverse(node graph.ID, dir graph.Direction, types ...graph.RelType) iter.Seq[graph.ID] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.adj.Relationships(node, dir, types...)
}

// Neighbors returns the nodes at the other end of node's relationships, in
// traversal order.
func (s *Store) Neighbors(node graph.ID, dir graph.Direction, types ...graph.RelType) ([]graph.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.state.isNode(node) {
		return nil, fmt.Errorf("node %d: %w", node, graph.ErrNotFound)
	}
	var out []graph.ID
	for id := range s.state.adj.Relationships(node, dir, types...) {
		rel, _ := s.state.arena.Relationship(id)
		out = append(out, rel.Other(node))
	}
	return out, nil
}

// RelationshipTypes returns the relationship types present on node in the
// given direction, sorted by name.
func (s *Store) RelationshipTypes(node graph.ID, dir graph.Direction) ([]graph.RelType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.state.isNode(node) {
		return nil, fmt.Errorf("node %d: %w", node, graph.ErrNotFound)
	}
	return s.state.adj.Types(node, dir), nil
}

// LookupAll returns every node indexed under (key, value), in ascending id
// order. A key that is not indexed yields no nodes.
func (s *Store) LookupAll(key string, value graph.Value) []graph.ID {
	s.stats.lookups.Add(1)

	// the cache is filled under the read lock so a concurrent commit, which
	// purges under the write lock, cannot be overtaken by a stale fill
	s.mu.RLock()
	defer s.mu.RUnlock()

	k := lookupKey{key: key, value: value}
	if s.cache != nil {
		if ids, ok := s.cache.Get(k); ok {
			s.stats.cacheHits.Add(1)
			return append([]graph.ID(nil), ids...)
		}
	}
	ids := s.state.index.All(key, value)
	if s.cache != nil {
		s.cache.Add(k, ids)
	}
	return append([]graph.ID(nil), ids...)
}

// LookupSingle returns the node indexed under (key, value). found is false
// when no node matches, which is not an error. More than one match fails
// with graph.ErrAmbiguousResult.
//
// Example:
//
//	id, found, err := store.LookupSingle("name", graph.String("Molly Mauget"))
//	switch {
//	case err != nil:
//	    return err
//	case !found:
//	    fmt.Println("no such user")
//	}
func (s *Store) LookupSingle(key string, value graph.Value) (id graph.ID, found bool, err error) {
	return single(key, value, s.LookupAll(key, value))
}

// single applies the strict single-result rule to a lookup result.
func single(key string, value graph.Value, ids []graph.ID) (graph.ID, bool, error) {
	switch len(ids) {
	case 0:
		return 0, false, nil
	case 1:
		return ids[0], true, nil
	}
	return 0, false, fmt.Errorf("lookup %s=%s matched %d nodes: %w", key, value, len(ids), graph.ErrAmbiguousResult)
}

// Indexes returns the indexed property keys.
func (s *Store) Indexes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.index.Keys()
}

// Compact rewrites the commit log as a single snapshot of the current state.
// It is a no-op for in-memory stores. Commits wait while the snapshot is
// taken and written; readers are only blocked while it is taken.
func (s *Store) Compact() error {
	if s.log == nil {
		return nil
	}
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if s.closed.Load() {
		return graph.ErrClosed
	}

	s.mu.RLock()
	rec := &wal.Record{
		TxID: "compaction",
		Time: time.Now().UnixNano(),
		Next: s.state.arena.NextID(),
		Ops:  s.state.snapshot(),
	}
	s.mu.RUnlock()

	return s.log.Rewrite(rec)
}
