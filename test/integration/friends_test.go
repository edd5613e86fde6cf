package integration

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/kith/internal/client"
	"github.com/dreamware/kith/internal/graph"
	"github.com/dreamware/kith/internal/graphdb"
	"github.com/dreamware/kith/internal/server"
)

// TestSystem is a kithd instance under test: an on-disk store served over
// HTTP, reached through the Go client. It can be restarted to check what
// survives on disk.
type TestSystem struct {
	t      *testing.T
	dir    string
	store  *graphdb.Store
	http   *httptest.Server
	client *client.Client
	logs   *observer.ObservedLogs
}

// NewTestSystem creates a stopped system with a fresh store directory.
func NewTestSystem(t *testing.T) *TestSystem {
	return &TestSystem{t: t, dir: filepath.Join(t.TempDir(), "store")}
}

// Start opens the store and starts serving it.
func (ts *TestSystem) Start() {
	ts.t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	store, err := graphdb.Open(ts.dir, graphdb.WithLogger(zap.New(core)))
	require.NoError(ts.t, err)

	ts.store = store
	ts.logs = logs
	ts.http = httptest.NewServer(server.New(store, zap.New(core)))
	ts.client = client.New(ts.http.URL, 5*time.Second)
}

// Stop shuts the server down and closes the store.
func (ts *TestSystem) Stop() {
	ts.t.Helper()
	if ts.http != nil {
		ts.http.Close()
		ts.http = nil
	}
	if ts.store != nil {
		require.NoError(ts.t, ts.store.Close())
		ts.store = nil
	}
}

// Restart stops and starts the system on the same directory.
func (ts *TestSystem) Restart() {
	ts.Stop()
	ts.Start()
}

func (ts *TestSystem) friendNames(name string) []string {
	ts.t.Helper()
	friends, found, err := ts.client.Friends(context.Background(), name)
	require.NoError(ts.t, err)
	require.True(ts.t, found, "user %s", name)
	names := make([]string, len(friends))
	for i, f := range friends {
		names[i] = f.Name
	}
	return names
}

// TestFriendsSystem runs the store, server and client together through
// restarts, compaction, concurrent writers and a torn log tail.
func TestFriendsSystem(t *testing.T) {
	ts := NewTestSystem(t)
	ts.Start()
	defer ts.Stop()

	t.Run("Populate", func(t *testing.T) { testPopulate(t, ts) })
	t.Run("SurvivesRestart", func(t *testing.T) { testSurvivesRestart(t, ts) })
	t.Run("SurvivesCompaction", func(t *testing.T) { testSurvivesCompaction(t, ts) })
	t.Run("ConcurrentUsers", func(t *testing.T) { testConcurrentUsers(t, ts) })
	t.Run("Wipe", func(t *testing.T) { testWipe(t, ts) })
	t.Run("TornTail", func(t *testing.T) { testTornTail(t, ts) })
}

func testPopulate(t *testing.T, ts *TestSystem) {
	ctx := context.Background()
	for _, name := range []string{"Ed", "Molly", "Pixie", "Nellie"} {
		_, err := ts.client.CreateUser(ctx, name)
		require.NoError(t, err)
	}
	for _, pair := range [][2]string{{"Ed", "Molly"}, {"Ed", "Pixie"}, {"Ed", "Nellie"}, {"Molly", "Pixie"}} {
		require.NoError(t, ts.client.Befriend(ctx, pair[0], pair[1]))
	}

	assert.Equal(t, []string{"Molly", "Pixie", "Nellie"}, ts.friendNames("Ed"))
	assert.Equal(t, []string{"Ed", "Pixie"}, ts.friendNames("Molly"))

	_, found, err := ts.client.Friends(ctx, "Nobody")
	require.NoError(t, err)
	assert.False(t, found)
}

func testSurvivesRestart(t *testing.T, ts *TestSystem) {
	before, err := ts.client.Stats(context.Background())
	require.NoError(t, err)

	ts.Restart()

	after, err := ts.client.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before.Nodes, after.Nodes)
	assert.Equal(t, before.Relationships, after.Relationships)
	assert.Equal(t, before.Log.LSN, after.Log.LSN)
	assert.Equal(t, []string{"Molly", "Pixie", "Nellie"}, ts.friendNames("Ed"))
}

func testSurvivesCompaction(t *testing.T, ts *TestSystem) {
	ctx := context.Background()
	require.NoError(t, ts.client.Compact(ctx))
	ts.Restart()

	assert.Equal(t, []string{"Molly", "Pixie", "Nellie"}, ts.friendNames("Ed"))
	assert.Equal(t, []string{"Ed", "Molly"}, ts.friendNames("Pixie"))
	assert.Equal(t, 1, ts.logs.FilterMessage("Store opened").Len())
}

func testConcurrentUsers(t *testing.T, ts *TestSystem) {
	ctx := context.Background()
	const n = 40

	var mu sync.Mutex
	created := make(map[string]graph.ID)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			name := fmt.Sprintf("user-%02d", i)
			u, err := ts.client.CreateUser(gctx, name)
			if err != nil {
				return err
			}
			if err := ts.client.Befriend(gctx, "Ed", name); err != nil {
				return err
			}
			mu.Lock()
			created[name] = u.ID
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, created, n)

	// every id is distinct
	seen := make(map[graph.ID]bool)
	for _, id := range created {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, ts.friendNames("Ed"), 3+n)

	ed, found, err := ts.client.User(ctx, "Ed")
	require.NoError(t, err)
	require.True(t, found)
	incoming, err := ts.client.Relationships(ctx, ed.ID, graph.Incoming, graph.IsFriendOf)
	require.NoError(t, err)
	assert.Len(t, incoming, 3+n, "every friendship has both directions")
}

func testWipe(t *testing.T, ts *TestSystem) {
	ctx := context.Background()
	removed, err := ts.client.RemoveAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 44, removed)

	ts.Restart()

	_, found, err := ts.client.User(ctx, "Ed")
	require.NoError(t, err)
	assert.False(t, found)
	st, err := ts.client.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Nodes)
	assert.Zero(t, st.Relationships)
	assert.Empty(t, st.Indexes)
}

func testTornTail(t *testing.T, ts *TestSystem) {
	ctx := context.Background()
	_, err := ts.client.CreateUser(ctx, "Survivor")
	require.NoError(t, err)
	ts.Stop()

	// simulate a crash halfway through writing the next record
	f, err := os.OpenFile(filepath.Join(ts.dir, "commit.log"), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x40, 0x00, 0x00, 0x00, 0xde, 0xad})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ts.Start()
	assert.Equal(t, 1, ts.logs.FilterMessage("Truncating commit log at damaged frame").Len())

	_, found, err := ts.client.User(ctx, "Survivor")
	require.NoError(t, err)
	assert.True(t, found)

	// the log accepts new commits after recovery
	_, err = ts.client.CreateUser(ctx, "After")
	require.NoError(t, err)
	ts.Restart()
	_, found, err = ts.client.User(ctx, "After")
	require.NoError(t, err)
	assert.True(t, found)
}
