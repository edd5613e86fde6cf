// Package graphdb is kith's embedded property-graph database. It combines the
// structures in internal/storage with transactions and the commit log in
// internal/wal.
//
// # Overview
//
// A Store holds nodes and typed, directed relationships, each carrying
// string or number properties, plus equality indexes over node properties.
// Every mutation goes through a Tx. A Tx sees its own staged writes on top of
// the committed state; other readers see none of them until Commit, and then
// all of them at once.
//
// # Architecture
//
//	        Begin                 Commit
//	Store ────────▶ Tx ──stage──▶ overlay ──────┐
//	  ▲                                          ▼
//	  │ reads (RLock)                  validate (RLock)
//	  │                                append + fsync (wal)
//	  └──────────── state ◀──────────── apply (Lock)
//
// Commits are serialized. The commit log is written before the in-memory
// state changes, so a commit that returns an error has changed nothing and a
// commit that returns nil survives a crash.
//
// # Reference node
//
// Every store has a permanent node with id graph.RootID, created when the
// store is first opened. Applications hang their top-level structure off it.
// It cannot be deleted and is not included in Stats().Nodes.
//
// # Errors
//
// Failures wrap the sentinels in internal/graph and are tested with
// errors.Is:
//
//   - graph.ErrNotFound: a record does not exist
//   - graph.ErrConstraintViolation: deleting a node that still has
//     relationships, indexing a value a node does not hold, invalid input
//   - graph.ErrAmbiguousResult: LookupSingle matched more than one node
//   - graph.ErrInvalidState: using a transaction after it ended
//   - graph.ErrIOFailure: the commit log could not be written
//   - graph.ErrClosed: the store was closed
//
// # Usage
//
//	db, err := graphdb.Open("/var/lib/kith", graphdb.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	err = db.Update(ctx, func(tx *graphdb.Tx) error {
//	    ed, err := tx.CreateNode()
//	    if err != nil {
//	        return err
//	    }
//	    if err := tx.SetProperty(ed, "name", graph.String("Ed")); err != nil {
//	        return err
//	    }
//	    return tx.IndexPut("name", graph.String("Ed"), ed)
//	})
//
//	id, found, err := db.LookupSingle("name", graph.String("Ed"))
//
// # See Also
//
//   - internal/social: the friends directory built on this package
//   - internal/server: HTTP access to a Store
package graphdb
