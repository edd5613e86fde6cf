package wal

import (
	"github.com/dreamware/kith/internal/graph"
)

// OpKind names a mutation in the commit log.
type OpKind string

// The values are written to disk; renaming one breaks existing logs.
const (
	// OpCreateNode adds a node under ID.
	OpCreateNode OpKind = "create_node"
	// OpDeleteNode removes a node with no relationships left, along with its
	// properties and index entries.
	OpDeleteNode OpKind = "delete_node"
	// OpCreateRelationship adds a relationship of Type from Start to End.
	OpCreateRelationship OpKind = "create_rel"
	// OpDeleteRelationship removes a relationship and its properties.
	OpDeleteRelationship OpKind = "delete_rel"
	// OpSetProperty stores Value under Key on any record.
	OpSetProperty OpKind = "set_prop"
	// OpRemoveProperty deletes Key from a record. Absent keys are ignored.
	OpRemoveProperty OpKind = "remove_prop"
	// OpCreateIndex declares Key as indexed and backfills existing holders.
	OpCreateIndex OpKind = "create_index"
	// OpIndexPut indexes one node under (Key, Value); the node must hold it.
	OpIndexPut OpKind = "index_put"
	// OpDropIndex removes Key's declaration and all of its entries.
	OpDropIndex OpKind = "drop_index"
)

// Op is one buffered mutation. Only the fields relevant to Kind are set:
//
//	create_node, delete_node, delete_rel   ID
//	create_rel                             ID, Type, Start, End
//	set_prop                               ID, Key, Value
//	remove_prop                            ID, Key
//	create_index, drop_index               Key
//	index_put                              ID, Key, Value
type Op struct {
	Kind  OpKind        `json:"k"`
	ID    graph.ID      `json:"id,omitempty"`
	Type  graph.RelType `json:"t,omitempty"`
	Start graph.ID      `json:"s,omitempty"`
	End   graph.ID      `json:"e,omitempty"`
	Key   string        `json:"key,omitempty"`
	Value graph.Value   `json:"v"`
}

// Record is the unit of durability: the ops of one committed transaction,
// or a full snapshot written by compaction.
type Record struct {
	// LSN is assigned by Append and increases by one per record.
	LSN uint64 `json:"lsn"`
	// TxID identifies the transaction that produced the record.
	TxID string `json:"tx,omitempty"`
	// Time is the commit time in Unix nanoseconds.
	Time int64 `json:"ts"`
	// Next is a lower bound for the store's next identifier. Replay uses it
	// so ids of deleted records are not handed out again after a restart.
	Next graph.ID `json:"next"`
	// Snapshot marks a compaction record; its ops rebuild the whole state
	// from empty.
	Snapshot bool `json:"snap,omitempty"`
	// Ops are applied in order; a record is applied entirely or not at all.
	Ops []Op `json:"ops"`
}
