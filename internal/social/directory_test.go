package social

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dreamware/kith/internal/graph"
	"github.com/dreamware/kith/internal/graphdb"
)

var (
	demoUsers       = []string{"Ed", "Molly", "Pixie", "Nellie"}
	demoFriendships = []Friendship{
		{"Ed", "Molly"},
		{"Ed", "Pixie"},
		{"Ed", "Nellie"},
		{"Molly", "Pixie"},
	}
)

func newDirectory(t *testing.T) (*Directory, *graphdb.Store, *observer.ObservedLogs) {
	t.Helper()
	store, err := graphdb.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	core, logs := observer.New(zapcore.InfoLevel)
	return NewDirectory(store, zap.New(core)), store, logs
}

func names(users []User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.Name
	}
	return out
}

// TestFriendsScenario verifies the Ed, Molly, Pixie and Nellie scenario end to end.
func TestFriendsScenario(t *testing.T) {
	d, _, logs := newDirectory(t)
	require.NoError(t, d.Populate(context.Background(), demoUsers, demoFriendships))

	tests := []struct {
		user string
		want []string
	}{
		{"Ed", []string{"Molly", "Pixie", "Nellie"}},
		{"Molly", []string{"Ed", "Pixie"}},
		{"Pixie", []string{"Ed", "Molly"}},
		{"Nellie", []string{"Ed"}},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			friends, found, err := d.FriendsOf(tt.user)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, tt.want, names(friends))
		})
	}

	assert.Equal(t, demoUsers, names(d.Users()))
	assert.Equal(t, len(demoUsers), logs.FilterMessage("Created user").Len())
}

// TestFriendsOfUnknownUser verifies that an unknown name is reported as absent,
// not as an error.
func TestFriendsOfUnknownUser(t *testing.T) {
	d, _, _ := newDirectory(t)

	friends, found, err := d.FriendsOf("Nobody")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, friends)

	_, err = d.CreateUser(context.Background(), "Loner")
	require.NoError(t, err)
	friends, found, err = d.FriendsOf("Loner")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, friends)
}

// TestCreateUser verifies user creation and rejection of empty or duplicate names.
func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	d, store, _ := newDirectory(t)

	ed, err := d.CreateUser(ctx, "Ed")
	require.NoError(t, err)
	assert.Equal(t, "Ed", ed.Name)

	found, ok, err := d.FindUser("Ed")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ed, found)

	_, err = d.CreateUser(ctx, "Ed")
	assert.ErrorIs(t, err, graph.ErrConstraintViolation)
	_, err = d.CreateUser(ctx, "")
	assert.ErrorIs(t, err, graph.ErrConstraintViolation)

	assert.Equal(t, 1, store.Stats().Nodes)
}

// TestBefriend verifies friendship creation, idempotence and rejection of
// self-friendship.
func TestBefriend(t *testing.T) {
	ctx := context.Background()
	d, store, _ := newDirectory(t)
	require.NoError(t, d.Populate(ctx, []string{"Ed", "Molly"}, nil))
	base := store.Stats().Relationships

	require.NoError(t, d.Befriend(ctx, "Ed", "Molly"))
	assert.Equal(t, base+2, store.Stats().Relationships, "one relationship each way")

	require.NoError(t, d.Befriend(ctx, "Ed", "Molly"))
	assert.Equal(t, base+2, store.Stats().Relationships, "befriending twice is a no-op")

	assert.ErrorIs(t, d.Befriend(ctx, "Ed", "Ed"), graph.ErrConstraintViolation)
	assert.ErrorIs(t, d.Befriend(ctx, "Ed", "Nobody"), graph.ErrNotFound)
}

// TestFriendshipIsBothOrNeither verifies that a failed befriend leaves neither
// direction behind.
func TestFriendshipIsBothOrNeither(t *testing.T) {
	ctx := context.Background()
	d, store, _ := newDirectory(t)
	require.NoError(t, d.Populate(ctx, []string{"Ed", "Molly"}, nil))
	before := store.Stats()

	// the second friendship fails, so the first must not survive either
	err := d.Populate(ctx, []string{"Pixie"}, []Friendship{{"Ed", "Pixie"}, {"Pixie", "Ghost"}})
	require.ErrorIs(t, err, graph.ErrNotFound)

	after := store.Stats()
	assert.Equal(t, before.Nodes, after.Nodes)
	assert.Equal(t, before.Relationships, after.Relationships)
	_, found, err := d.FindUser("Pixie")
	require.NoError(t, err)
	assert.False(t, found)
}

// TestRemoveAll verifies that RemoveAll deletes every user with their
// relationships and drops the name index.
func TestRemoveAll(t *testing.T) {
	ctx := context.Background()
	d, store, logs := newDirectory(t)
	require.NoError(t, d.Populate(ctx, demoUsers, demoFriendships))

	removed, err := d.RemoveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(demoUsers), removed)

	_, found, err := d.FindUser("Ed")
	require.NoError(t, err)
	assert.False(t, found)

	st := store.Stats()
	assert.Zero(t, st.Nodes)
	assert.Zero(t, st.Relationships)
	assert.Zero(t, st.IndexEntries)
	assert.Empty(t, st.Indexes)
	assert.Empty(t, d.Users())
	assert.Equal(t, len(demoUsers), logs.FilterMessage("Deleted user").Len())

	// the directory is usable again after a wipe
	require.NoError(t, d.Populate(ctx, demoUsers, demoFriendships))
	friends, found, err := d.FriendsOf("Molly")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []string{"Ed", "Pixie"}, names(friends))
}

// TestRemoveAllEmpty verifies that RemoveAll on an empty store is a no-op.
func TestRemoveAllEmpty(t *testing.T) {
	d, _, _ := newDirectory(t)
	removed, err := d.RemoveAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
