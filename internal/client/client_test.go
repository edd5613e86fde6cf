package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/kith/internal/graph"
	"github.com/dreamware/kith/internal/graphdb"
	"github.com/dreamware/kith/internal/server"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	store, err := graphdb.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ts := httptest.NewServer(server.New(store, nil))
	t.Cleanup(ts.Close)
	return New(ts.URL+"/", 5*time.Second)
}

// TestClientRoundTrip verifies the client against a live server from user creation
// to the raw node view.
func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	require.NoError(t, c.Health(ctx))

	for _, name := range []string{"Ed Mauget", "Molly Mauget", "Pixie Mauget"} {
		u, err := c.CreateUser(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, name, u.Name)
	}
	require.NoError(t, c.Befriend(ctx, "Ed Mauget", "Molly Mauget"))
	require.NoError(t, c.Befriend(ctx, "Ed Mauget", "Pixie Mauget"))

	friends, found, err := c.Friends(ctx, "Ed Mauget")
	require.NoError(t, err)
	assert.True(t, found)
	require.Len(t, friends, 2)
	assert.Equal(t, "Molly Mauget", friends[0].Name)
	assert.Equal(t, "Pixie Mauget", friends[1].Name)

	ed, found, err := c.User(ctx, "Ed Mauget")
	require.NoError(t, err)
	require.True(t, found)

	node, err := c.Node(ctx, ed.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.String("Ed Mauget"), node.Properties["name"])
	assert.Equal(t, []graph.RelType{graph.IsFriendOf}, node.Outgoing)
	assert.Contains(t, node.Incoming, graph.User)

	rels, err := c.Relationships(ctx, ed.ID, graph.Incoming, graph.IsFriendOf)
	require.NoError(t, err)
	assert.Len(t, rels, 2)

	users, err := c.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 3)

	st, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Nodes)

	require.NoError(t, c.Compact(ctx))

	removed, err := c.RemoveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
}

// TestClientNotFoundIsAbsent verifies that unknown users come back as absent results.
func TestClientNotFoundIsAbsent(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, found, err := c.User(ctx, "Nobody")
	require.NoError(t, err)
	assert.False(t, found)

	friends, found, err := c.Friends(ctx, "Nobody")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, friends)
}

// TestClientErrorsUnwrapToGraphErrors verifies that API errors match the graph
// sentinels with errors.Is.
func TestClientErrorsUnwrapToGraphErrors(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	_, err := c.CreateUser(ctx, "Ed")
	require.NoError(t, err)

	_, err = c.CreateUser(ctx, "Ed")
	assert.ErrorIs(t, err, graph.ErrConstraintViolation)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	err = c.Befriend(ctx, "Ed", "Ghost")
	assert.ErrorIs(t, err, graph.ErrNotFound)

	_, err = c.Node(ctx, 424242)
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

// TestClientUnreachable verifies that a dead server produces an error.
func TestClientUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	err := New(addr, time.Second).Health(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
