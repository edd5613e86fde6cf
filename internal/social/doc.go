// Package social is the friends directory: users indexed by name, hung off
// the store's reference node, with friendship modeled as a pair of
// IS_FRIEND_OF relationships created in one transaction.
//
//	root ──USER──▶ Ed ◀──IS_FRIEND_OF──▶ Molly
//	  │                                    ▲
//	  └───USER─────────────────────────────┘
package social
