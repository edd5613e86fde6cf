// Package client is a Go client for the kithd HTTP API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/dreamware/kith/internal/graph"
	"github.com/dreamware/kith/internal/graphdb"
	"github.com/dreamware/kith/internal/server"
	"github.com/dreamware/kith/internal/social"
)

// APIError is a non-2xx response. It unwraps to the graph error matching
// its code, so callers can use errors.Is(err, graph.ErrNotFound).
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kithd: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case server.CodeNotFound:
		return graph.ErrNotFound
	case server.CodeConstraintViolation:
		return graph.ErrConstraintViolation
	case server.CodeAmbiguousResult:
		return graph.ErrAmbiguousResult
	case server.CodeInvalidState:
		return graph.ErrInvalidState
	case server.CodeIOFailure:
		return graph.ErrIOFailure
	case server.CodeClosed:
		return graph.ErrClosed
	}
	return nil
}

// Client talks to one kithd instance.
type Client struct {
	base string
	http *http.Client
}

// New returns a client for the daemon at addr, e.g. "http://127.0.0.1:7474".
// A zero timeout means no timeout.
func New(addr string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Health checks that the daemon is up.
func (c *Client) Health(ctx context.Context) error {
	var out server.HealthResponse
	return c.do(ctx, http.MethodGet, "/health", nil, &out)
}

// Stats returns the daemon's store statistics.
func (c *Client) Stats(ctx context.Context) (graphdb.Stats, error) {
	var out graphdb.Stats
	err := c.do(ctx, http.MethodGet, "/stats", nil, &out)
	return out, err
}

// CreateUser creates a user.
func (c *Client) CreateUser(ctx context.Context, name string) (social.User, error) {
	var out social.User
	err := c.do(ctx, http.MethodPost, "/users", server.CreateUserRequest{Name: name}, &out)
	return out, err
}

// Users lists every user.
func (c *Client) Users(ctx context.Context) ([]social.User, error) {
	var out server.UsersResponse
	err := c.do(ctx, http.MethodGet, "/users", nil, &out)
	return out.Users, err
}

// User looks a user up by name. found is false when there is no such user.
func (c *Client) User(ctx context.Context, name string) (u social.User, found bool, err error) {
	err = c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(name), nil, &u)
	return absent(u, err)
}

// Friends lists name's friends. found is false when there is no such user.
func (c *Client) Friends(ctx context.Context, name string) (friends []social.User, found bool, err error) {
	var out server.FriendsResponse
	err = c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(name)+"/friends", nil, &out)
	return absent(out.Friends, err)
}

// Befriend links two users in both directions.
func (c *Client) Befriend(ctx context.Context, a, b string) error {
	return c.do(ctx, http.MethodPost, "/friendships", social.Friendship{A: a, B: b}, nil)
}

// RemoveAll wipes every user and returns how many were removed.
func (c *Client) RemoveAll(ctx context.Context) (int, error) {
	var out server.RemoveAllResponse
	err := c.do(ctx, http.MethodDelete, "/users", nil, &out)
	return out.Removed, err
}

// Node returns a node's properties.
func (c *Client) Node(ctx context.Context, id graph.ID) (server.NodeResponse, error) {
	var out server.NodeResponse
	err := c.do(ctx, http.MethodGet, "/nodes/"+id.String(), nil, &out)
	return out, err
}

// Relationships lists a node's relationships in creation order.
func (c *Client) Relationships(ctx context.Context, id graph.ID, dir graph.Direction, types ...graph.RelType) ([]graph.Relationship, error) {
	q := url.Values{}
	q.Set("dir", dir.String())
	for _, t := range types {
		q.Add("type", string(t))
	}
	var out server.RelationshipsResponse
	err := c.do(ctx, http.MethodGet, "/nodes/"+id.String()+"/relationships?"+q.Encode(), nil, &out)
	return out.Relationships, err
}

// Compact asks the daemon to rewrite its commit log.
func (c *Client) Compact(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/compact", nil, nil)
}

// absent turns a not-found error into found=false.
func absent[T any](v T, err error) (T, bool, error) {
	var zero T
	var apiErr *APIError
	if err != nil {
		if errors.As(err, &apiErr) && apiErr.Code == server.CodeNotFound {
			return zero, false, nil
		}
		return zero, false, err
	}
	return v, true, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(reqBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e server.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil {
			apiErr.Code, apiErr.Message = e.Code, e.Error
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
