package server

import (
	"github.com/dreamware/kith/internal/graph"
	"github.com/dreamware/kith/internal/social"
)

// Wire types shared with internal/client.

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeBadRequest          = "bad_request"
	CodeNotFound            = "not_found"
	CodeConstraintViolation = "constraint_violation"
	CodeAmbiguousResult     = "ambiguous_result"
	CodeInvalidState        = "invalid_state"
	CodeIOFailure           = "io_failure"
	CodeClosed              = "closed"
	CodeInternal            = "internal"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Name string `json:"name"`
}

// UsersResponse is returned by GET /users.
type UsersResponse struct {
	Users []social.User `json:"users"`
	Count int           `json:"count"`
}

// FriendsResponse is returned by GET /users/{name}/friends.
type FriendsResponse struct {
	User    string        `json:"user"`
	Friends []social.User `json:"friends"`
}

// RemoveAllResponse is returned by DELETE /users.
type RemoveAllResponse struct {
	Removed int `json:"removed"`
}

// NodeResponse is returned by GET /nodes/{id}.
type NodeResponse struct {
	ID         graph.ID               `json:"id"`
	Properties map[string]graph.Value `json:"properties"`
	Outgoing   []graph.RelType        `json:"outgoing"`
	Incoming   []graph.RelType        `json:"incoming"`
}

// RelationshipsResponse is returned by GET /nodes/{id}/relationships.
type RelationshipsResponse struct {
	Node          graph.ID             `json:"node"`
	Direction     string               `json:"direction"`
	Relationships []graph.Relationship `json:"relationships"`
}
