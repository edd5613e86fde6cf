// Package storage holds the in-memory structures behind a kith graph: the
// record arena, the property table, the adjacency index and the equality
// index. Together they are the committed state of a store; the graphdb
// package keeps them consistent with one another and serializes access.
//
// # Overview
//
// Every structure here is a plain data structure. None of them performs
// locking, logging or persistence, and none of them knows about
// transactions. That keeps each piece small enough to test exhaustively and
// leaves the consistency rules in one place, the transaction apply step.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│       graphdb.Store / graphdb.Tx    │
//	│  (locking, validation, commit log)  │
//	└─────────────────────────────────────┘
//	                 │ apply
//	    ┌────────────┼────────────┬────────────┐
//	    ▼            ▼            ▼            ▼
//	┌────────┐  ┌──────────┐  ┌─────────┐  ┌──────────┐
//	│ Arena  │  │Properties│  │Adjacency│  │ Equality │
//	│records │  │ id→k→v   │  │ id→type │  │  Index   │
//	└────────┘  └──────────┘  └─────────┘  └──────────┘
//
// # Components
//
// Arena: owns node and relationship records
//   - Allocate() hands out monotonic ids, safe for concurrent use
//   - CreateNode / CreateRelationship / DeleteNode / DeleteRelationship
//   - Tracks each node's degree so deleting a node with relationships
//     fails with graph.ErrConstraintViolation
//   - Ids are never reused
//
// Properties: key/value scalars for any record id
//   - Set returns the replaced value so the caller can fix index entries
//   - RemoveAll runs when a record is deleted
//
// Adjacency: per-node incident relationships grouped by type
//   - Relationships(node, dir, types...) returns a lazy iter.Seq in
//     creation order
//   - A type filter only visits the requested buckets
//   - Copy-on-write buckets keep returned sequences stable
//
// EqualityIndex: (key, value) → node ids
//   - Backed by github.com/google/btree, ordered by key, value, id
//   - Put is idempotent, Single is strict (graph.ErrAmbiguousResult)
//   - Drop removes a whole key in one call
//
// # Ownership
//
// Only the arena owns records. The other three structures hold ids and are
// weak references: the apply step in graphdb removes properties, adjacency
// entries and index entries in the same pass that deletes a record, so no
// structure ever points at a dead id after a commit.
//
// # Concurrency
//
// All structures assume a single writer. graphdb holds its write lock while
// applying a commit and its read lock while answering queries. The one
// exception is Arena.Allocate, which is atomic so that concurrently open
// transactions can stage creations without taking the store lock.
//
// # Usage
//
//	arena := storage.NewArena()
//	adj := storage.NewAdjacency()
//
//	ed, molly := arena.Allocate(), arena.Allocate()
//	_ = arena.CreateNode(ed)
//	_ = arena.CreateNode(molly)
//
//	rel, _ := arena.CreateRelationship(arena.Allocate(), graph.IsFriendOf, ed, molly)
//	adj.Add(rel)
//
//	for id := range adj.Relationships(ed, graph.Outgoing, graph.IsFriendOf) {
//	    r, _ := arena.Relationship(id)
//	    fmt.Println(r.End)
//	}
//
// # See Also
//
//   - internal/graphdb: transactions and the public store API
//   - internal/wal: the commit log that makes committed state durable
package storage
