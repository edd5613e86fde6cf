package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dreamware/kith/internal/graph"
	"github.com/dreamware/kith/internal/social"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Stats())
}

func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	users := s.dir.Users()
	if users == nil {
		users = []social.User{}
	}
	s.writeJSON(w, http.StatusOK, UsersResponse{Users: users, Count: len(users)})
}

// handleCreateUser creates a user.
//
// Response:
//   - 201 Created: the new user
//   - 400 Bad Request: malformed body
//   - 409 Conflict: the name is empty or taken
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	u, err := s.dir.CreateUser(r.Context(), req.Name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, u)
}

// handleRemoveAll wipes every user, their relationships and the name index
// in one transaction.
func (s *Server) handleRemoveAll(w http.ResponseWriter, r *http.Request) {
	n, err := s.dir.RemoveAll(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RemoveAllResponse{Removed: n})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	u, found, err := s.dir.FindUser(name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, CodeNotFound, fmt.Errorf("user %q not found", name))
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}

// handleFriends lists a user's friends in the order the friendships were
// made.
//
// Response:
//   - 200 OK: FriendsResponse, possibly with no friends
//   - 404 Not Found: no such user
func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	friends, found, err := s.dir.FriendsOf(name)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, CodeNotFound, fmt.Errorf("user %q not found", name))
		return
	}
	s.writeJSON(w, http.StatusOK, FriendsResponse{User: name, Friends: friends})
}

// handleBefriend links two users in both directions.
//
// Response:
//   - 204 No Content: both relationships exist
//   - 404 Not Found: either user is unknown
//   - 409 Conflict: a user cannot befriend themselves
func (s *Server) handleBefriend(w http.ResponseWriter, r *http.Request) {
	var req social.Friendship
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, CodeBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.dir.Befriend(r.Context(), req.A, req.B); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	id, err := graph.ParseID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, CodeBadRequest, err)
		return
	}
	if _, err := s.store.Node(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	props, err := s.store.Properties(id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	resp := NodeResponse{ID: id, Properties: props}
	if resp.Outgoing, err = s.store.RelationshipTypes(id, graph.Outgoing); err != nil {
		s.writeStoreError(w, err)
		return
	}
	if resp.Incoming, err = s.store.RelationshipTypes(id, graph.Incoming); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleRelationships lists a node's relationships in creation order.
//
// Query parameters:
//   - dir: out, in or both (default both)
//   - type: relationship type, may be repeated; absent means all types
func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	id, err := graph.ParseID(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, CodeBadRequest, err)
		return
	}
	query := r.URL.Query()
	dir, err := graph.ParseDirection(query.Get("dir"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, CodeBadRequest, err)
		return
	}
	var types []graph.RelType
	for _, t := range query["type"] {
		types = append(types, graph.RelType(t))
	}

	if _, err := s.store.Node(id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	rels := []graph.Relationship{}
	for relID := range s.store.Traverse(id, dir, types...) {
		rel, err := s.store.Relationship(relID)
		if errors.Is(err, graph.ErrNotFound) {
			continue
		}
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		rels = append(rels, rel)
	}
	s.writeJSON(w, http.StatusOK, RelationshipsResponse{Node: id, Direction: dir.String(), Relationships: rels})
}

func (s *Server) handleCompact(w http.ResponseWriter, _ *http.Request) {
	if err := s.store.Compact(); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
