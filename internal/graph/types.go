package graph

import (
	"fmt"
	"strconv"
)

// ID identifies a node or a relationship.
type ID uint64

// RootID is the reserved identifier of the reference node. It is created
// together with the store and can never be deleted.
const RootID ID = 0

// String renders the id in decimal.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID parses a decimal identifier.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ID(n), nil
}

// RelType tags a relationship. The set is open: any non-empty name is a
// valid type, the constants below are the ones the social directory uses.
type RelType string

const (
	// IsFriendOf links two users; friendship is modelled as one
	// relationship in each direction.
	IsFriendOf RelType = "IS_FRIEND_OF"
	// HasSeen records that a user has seen another record.
	HasSeen RelType = "HAS_SEEN"
	// User links the reference node to every user node.
	User RelType = "USER"
	// UsersReference links the reference node to a users sub-root.
	UsersReference RelType = "USERS_REFERENCE"
)

// Direction selects which side of a node's relationships a traversal visits.
type Direction uint8

const (
	// Outgoing visits relationships whose start node is the traversed node.
	Outgoing Direction = iota + 1
	// Incoming visits relationships whose end node is the traversed node.
	Incoming
	// Both visits all incident relationships. Self-loops are visited once.
	Both
)

// String returns the short lowercase name used on the wire.
func (d Direction) String() string {
	switch d {
	case Outgoing:
		return "out"
	case Incoming:
		return "in"
	case Both:
		return "both"
	default:
		return "Direction(" + strconv.Itoa(int(d)) + ")"
	}
}

// ParseDirection accepts "out", "in" and "both". An empty string means Both.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "out", "outgoing":
		return Outgoing, nil
	case "in", "incoming":
		return Incoming, nil
	case "", "both":
		return Both, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Node is a vertex record. Properties are held by the property table and
// read through the store, not embedded here.
type Node struct {
	ID ID `json:"id"`
}

// Relationship is a directed, typed edge record.
type Relationship struct {
	ID    ID      `json:"id"`
	Type  RelType `json:"type"`
	Start ID      `json:"start"`
	End   ID      `json:"end"`
}

// Other returns the endpoint opposite to node. For a self-loop it returns
// node itself.
func (r Relationship) Other(node ID) ID {
	if r.Start == node {
		return r.End
	}
	return r.Start
}
