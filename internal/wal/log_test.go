package wal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dreamware/kith/internal/graph"
)

func openTestLog(t *testing.T, path string) *Log {
	t.Helper()
	l, err := Open(path, Options{Sync: true})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func replayAll(t *testing.T, l *Log) []Record {
	t.Helper()
	var recs []Record
	require.NoError(t, l.Replay(func(r Record) error {
		recs = append(recs, r)
		return nil
	}))
	return recs
}

func sampleRecord(name string) *Record {
	return &Record{
		TxID: "tx-" + name,
		Next: 4,
		Ops: []Op{
			{Kind: OpCreateNode, ID: 1},
			{Kind: OpSetProperty, ID: 1, Key: "name", Value: graph.String(name)},
			{Kind: OpCreateRelationship, ID: 2, Type: graph.User, Start: graph.RootID, End: 1},
			{Kind: OpSetProperty, ID: 1, Key: "age", Value: graph.Int(7)},
		},
	}
}

// TestLogAppendAndReplay verifies that appended records replay in order.
func TestLogAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commit.log")

	l := openTestLog(t, path)
	assert.Empty(t, replayAll(t, l))

	require.NoError(t, l.Append(sampleRecord("Ed")))
	require.NoError(t, l.Append(sampleRecord("Molly")))
	assert.Equal(t, uint64(2), l.LSN())
	size := l.Size()
	require.NoError(t, l.Close())

	reopened := openTestLog(t, path)
	recs := replayAll(t, reopened)
	require.Len(t, recs, 2)

	assert.Equal(t, uint64(1), recs[0].LSN)
	assert.Equal(t, uint64(2), recs[1].LSN)
	assert.Equal(t, "tx-Molly", recs[1].TxID)
	assert.Equal(t, sampleRecord("Ed").Ops, recs[0].Ops)
	assert.Equal(t, graph.ID(4), recs[0].Next)
	assert.Equal(t, size, reopened.Size())

	// appends continue the sequence
	require.NoError(t, reopened.Append(sampleRecord("Pixie")))
	assert.Equal(t, uint64(3), reopened.LSN())
}

// TestLogTruncatesTornTail verifies that a partially written final record is cut
// off on open and later appends still replay.
func TestLogTruncatesTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commit.log")

	l := openTestLog(t, path)
	replayAll(t, l)
	require.NoError(t, l.Append(sampleRecord("Ed")))
	good := l.Size()
	require.NoError(t, l.Append(sampleRecord("Molly")))
	require.NoError(t, l.Close())

	// chop the second record in half, as a crash mid-append would
	require.NoError(t, os.Truncate(path, good+10))

	core, logs := observer.New(zapcore.WarnLevel)
	reopened, err := Open(path, Options{Sync: true, Logger: zap.New(core)})
	require.NoError(t, err)
	defer reopened.Close()

	recs := replayAll(t, reopened)
	require.Len(t, recs, 1)
	assert.Equal(t, "tx-Ed", recs[0].TxID)
	assert.Equal(t, good, reopened.Size())
	assert.Equal(t, 1, logs.FilterMessage("Truncating commit log at damaged frame").Len())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, good, info.Size(), "damaged tail is removed from disk")
}

// TestLogDetectsCorruption verifies that a checksum mismatch ends replay at the
// corrupt record.
func TestLogDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commit.log")

	l := openTestLog(t, path)
	replayAll(t, l)
	require.NoError(t, l.Append(sampleRecord("Ed")))
	good := l.Size()
	require.NoError(t, l.Append(sampleRecord("Molly")))
	require.NoError(t, l.Close())

	// flip a byte inside the second record's body
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[good+headerSize+2] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0o644))

	reopened := openTestLog(t, path)
	recs := replayAll(t, reopened)
	assert.Len(t, recs, 1)
}

// TestLogReplayStopsOnCallbackError verifies that a replay callback error is returned
// and stops replay.
func TestLogReplayStopsOnCallbackError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commit.log")
	l := openTestLog(t, path)
	replayAll(t, l)
	require.NoError(t, l.Append(sampleRecord("Ed")))

	boom := errors.New("boom")
	err := l.Replay(func(Record) error { return boom })
	assert.ErrorIs(t, err, boom)
}

// TestLogRewrite verifies that Rewrite atomically replaces the log with a
// single snapshot record.
func TestLogRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commit.log")

	l := openTestLog(t, path)
	replayAll(t, l)
	for _, name := range []string{"Ed", "Molly", "Pixie", "Nellie"} {
		require.NoError(t, l.Append(sampleRecord(name)))
	}
	before := l.Size()

	snap := &Record{Next: 10, Ops: []Op{{Kind: OpCreateNode, ID: graph.RootID}}}
	require.NoError(t, l.Rewrite(snap))
	assert.Less(t, l.Size(), before)
	assert.Equal(t, uint64(5), l.LSN())

	require.NoError(t, l.Append(sampleRecord("after")))
	require.NoError(t, l.Close())

	reopened := openTestLog(t, path)
	recs := replayAll(t, reopened)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].Snapshot)
	assert.Equal(t, graph.ID(10), recs[0].Next)
	assert.Equal(t, "tx-after", recs[1].TxID)
	assert.Equal(t, uint64(6), recs[1].LSN)

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")
}

// TestLogAppendFailureIsIOFailure verifies that write failures surface as
// graph.ErrIOFailure.
func TestLogAppendFailureIsIOFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commit.log")
	l := openTestLog(t, path)
	replayAll(t, l)

	// close the file underneath the log
	require.NoError(t, l.f.Close())

	err := l.Append(sampleRecord("Ed"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrIOFailure))
	assert.Equal(t, uint64(0), l.LSN(), "failed append does not consume an LSN")
}
