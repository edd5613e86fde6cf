// Package wal implements kith's commit log: an append-only file of framed,
// checksummed records, one per committed transaction.
//
// Frame layout (little endian):
//
//	+----------+-------------+----------------------------+
//	| len u32  | xxhash64 u64| snappy(json(Record)) [len] |
//	+----------+-------------+----------------------------+
//
// A record is durable once Append returns. On open the log is replayed from
// the start; the first frame that is short or fails its checksum ends the
// log and everything after it is truncated, which is how a crash during an
// append is recovered.
package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dreamware/kith/internal/graph"
)

const (
	// headerSize is the frame header: a u32 body length and a u64 checksum.
	headerSize = 12
	// maxFrame bounds a single record. Anything larger is treated as a
	// corrupt length field.
	maxFrame = 64 << 20
)

// Options configures a Log.
type Options struct {
	// Sync fsyncs the file after every append. Disabling it trades
	// durability for speed and is meant for tests and bulk loads.
	Sync bool
	// Logger receives replay and rewrite diagnostics.
	Logger *zap.Logger
}

// Log is an open commit log file.
// Thread-safe: all methods serialize on an internal mutex, although the store
// only ever appends from its commit path.
type Log struct {
	mu     sync.Mutex  // Guards every field below
	f      *os.File    // Open file; nil once closed
	path   string      // Location of the log file
	size   int64       // Bytes of valid frames; appends write here
	lsn    uint64      // LSN of the last record read or written
	sync   bool        // Fsync after each append
	logger *zap.Logger // Named "wal"
}

// Open opens or creates the log at path. Call Replay before the first Append
// so the log knows where valid data ends.
//
// Parameters:
//   - path: Log file location; the directory must exist
//   - opts: Sync policy and logger
//
// Returns:
//   - *Log: Open log positioned at the start of the file
//   - error: Wraps graph.ErrIOFailure if the file cannot be opened
//
// Example:
//
//	log, err := wal.Open(filepath.Join(dir, "commit.log"), wal.Options{Sync: true})
//	if err != nil {
//	    return err
//	}
//	defer log.Close()
//	err = log.Replay(func(rec wal.Record) error {
//	    return apply(rec)
//	})
func Open(path string, opts Options) (*Log, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, ioFailure(errors.Wrapf(err, "open commit log %s", path))
	}
	return &Log{
		f:      f,
		path:   path,
		sync:   opts.Sync,
		logger: logger.Named("wal"),
	}, nil
}

// Path returns the file the log writes to.
func (l *Log) Path() string { return l.path }

// Size returns the number of valid bytes in the log.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// LSN returns the sequence number of the last record read or written.
func (l *Log) LSN() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lsn
}

// Replay decodes every valid record in order and passes it to fn. A torn or
// corrupt tail is truncated. An error from fn stops the replay and is
// returned unchanged.
//
// After Replay the log's size and LSN point just past the last good record,
// so the next Append overwrites whatever was truncated.
//
// Parameters:
//   - fn: Called once per record, oldest first
//
// Returns:
//   - error: fn's error, or one wrapping graph.ErrIOFailure if the file
//     could not be read or truncated
func (l *Log) Replay(fn func(Record) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return ioFailure(errors.Wrap(err, "seek commit log"))
	}
	r := bufio.NewReader(l.f)

	var offset int64
	var records int
	for {
		rec, n, err := readFrame(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			l.logger.Warn("Truncating commit log at damaged frame",
				zap.String("path", l.path),
				zap.Int64("offset", offset),
				zap.Error(err))
			if terr := l.f.Truncate(offset); terr != nil {
				return ioFailure(errors.Wrap(terr, "truncate damaged commit log"))
			}
			break
		}
		if err := fn(rec); err != nil {
			return err
		}
		offset += n
		records++
		l.lsn = rec.LSN
	}

	if _, err := l.f.Seek(offset, io.SeekStart); err != nil {
		return ioFailure(errors.Wrap(err, "seek commit log"))
	}
	l.size = offset
	l.logger.Debug("Commit log replayed",
		zap.String("path", l.path),
		zap.Int("records", records),
		zap.Uint64("lsn", l.lsn),
		zap.Int64("bytes", offset))
	return nil
}

// Append assigns the next LSN to rec and writes it. When Append returns nil
// the record is on disk (if Sync is set). On failure the log is rolled back
// to its previous length and an error wrapping graph.ErrIOFailure is
// returned.
//
// Parameters:
//   - rec: Record to write; its LSN field is overwritten
//
// Example:
//
//	rec := &wal.Record{TxID: tx, Ops: ops, Next: next}
//	if err := log.Append(rec); err != nil {
//	    return err // nothing was applied
//	}
func (l *Log) Append(rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return ioFailure(errors.New("commit log is closed"))
	}
	rec.LSN = l.lsn + 1
	frame, err := encodeFrame(rec)
	if err != nil {
		return ioFailure(err)
	}

	if _, err := l.f.WriteAt(frame, l.size); err != nil {
		_ = l.f.Truncate(l.size)
		return ioFailure(errors.Wrapf(err, "append record %d", rec.LSN))
	}
	if l.sync {
		if err := l.f.Sync(); err != nil {
			_ = l.f.Truncate(l.size)
			return ioFailure(errors.Wrapf(err, "sync record %d", rec.LSN))
		}
	}

	l.size += int64(len(frame))
	l.lsn = rec.LSN
	return nil
}

// Rewrite atomically replaces the whole log with a single snapshot record.
// The new file is written next to the old one, synced and renamed over it,
// so a crash leaves either the old log or the new one.
func (l *Log) Rewrite(snapshot *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return ioFailure(errors.New("commit log is closed"))
	}
	snapshot.LSN = l.lsn + 1
	snapshot.Snapshot = true
	frame, err := encodeFrame(snapshot)
	if err != nil {
		return ioFailure(err)
	}

	tmpPath := l.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return ioFailure(errors.Wrap(err, "create compacted log"))
	}
	if _, err := tmp.Write(frame); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return ioFailure(errors.Wrap(err, "write compacted log"))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return ioFailure(errors.Wrap(err, "sync compacted log"))
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return ioFailure(errors.Wrap(err, "install compacted log"))
	}
	syncDir(filepath.Dir(l.path))

	before := l.size
	l.f.Close()
	l.f = tmp
	l.size = int64(len(frame))
	l.lsn = snapshot.LSN
	l.logger.Info("Commit log compacted",
		zap.String("path", l.path),
		zap.Int64("before_bytes", before),
		zap.Int64("after_bytes", l.size))
	return nil
}

// Close syncs and closes the file. Calling Close twice is safe.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	serr := l.f.Sync()
	cerr := l.f.Close()
	l.f = nil
	if serr != nil {
		return ioFailure(errors.Wrap(serr, "sync commit log"))
	}
	if cerr != nil {
		return ioFailure(errors.Wrap(cerr, "close commit log"))
	}
	return nil
}

// encodeFrame renders rec as one frame: header, then the snappy-compressed
// JSON body.
func encodeFrame(rec *Record) ([]byte, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, errors.Wrapf(err, "encode record %d", rec.LSN)
	}
	body := snappy.Encode(nil, payload)
	if len(body) > maxFrame {
		return nil, errors.Errorf("record %d is %d bytes, limit is %d", rec.LSN, len(body), maxFrame)
	}

	frame := make([]byte, headerSize+len(body))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(body)))
	binary.LittleEndian.PutUint64(frame[4:12], xxhash.Sum64(body))
	copy(frame[headerSize:], body)
	return frame, nil
}

// readFrame reads one frame and returns the record and the number of bytes
// consumed. io.EOF means a clean end of log; any other error means the frame
// at the current offset is unusable.
func readFrame(r io.Reader) (Record, int64, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Record{}, 0, io.EOF
		}
		return Record{}, 0, errors.Wrap(err, "short frame header")
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	sum := binary.LittleEndian.Uint64(header[4:12])
	if length > maxFrame {
		return Record{}, 0, errors.Errorf("frame length %d exceeds limit", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Record{}, 0, errors.Wrap(err, "short frame body")
	}
	if xxhash.Sum64(body) != sum {
		return Record{}, 0, errors.New("frame checksum mismatch")
	}

	payload, err := snappy.Decode(nil, body)
	if err != nil {
		return Record{}, 0, errors.Wrap(err, "decompress frame")
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, 0, errors.Wrap(err, "decode frame")
	}
	return rec, int64(headerSize) + int64(length), nil
}

// syncDir makes a rename in dir durable. Failures are ignored: not every
// platform can fsync a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}

// ioFailure tags err as graph.ErrIOFailure while keeping its cause.
func ioFailure(err error) error {
	return fmt.Errorf("%w: %w", graph.ErrIOFailure, err)
}
