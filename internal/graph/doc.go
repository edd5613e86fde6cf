// Package graph defines the vocabulary shared by every layer of kith:
// record identifiers, relationship types, traversal directions, scalar
// property values and the sentinel errors returned by the store.
//
// The package has no behaviour of its own beyond value comparison and
// encoding. Storage structures live in internal/storage, transactions and
// the public store API live in internal/graphdb.
//
// # Identifiers
//
// Nodes and relationships share a single identifier space (ID). Identifiers
// are assigned monotonically by the storage arena and are never reused while
// a store is open, so an ID held by a caller can never silently start
// referring to a different record. RootID is reserved for the reference node
// that every store creates when it is first opened.
//
// # Errors
//
// Callers should test errors with errors.Is against the sentinels declared in
// errors.go. Every layer wraps them with context but never replaces them.
package graph
