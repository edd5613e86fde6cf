package graphdb

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// compactor periodically rewrites the commit log once it has grown past a
// threshold. It runs in its own goroutine between Start and Stop.
type compactor struct {
	store    *Store
	interval time.Duration
	minBytes int64
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// newCompactor creates a compactor for s that checks the log size every
// interval and compacts when it exceeds minBytes.
//
// Example:
//
//	c := newCompactor(store, time.Minute, 64<<20)
//	c.Start()
//	defer c.Stop()
func newCompactor(s *Store, interval time.Duration, minBytes int64) *compactor {
	ctx, cancel := context.WithCancel(context.Background())
	return &compactor{
		store:    s,
		interval: interval,
		minBytes: minBytes,
		ctx:      ctx,
		cancel:   cancel,
		logger:   s.logger.Named("compactor"),
	}
}

// Start launches the compaction loop.
func (c *compactor) Start() {
	c.wg.Add(1)
	go c.run()
}

func (c *compactor) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("Compactor started",
		zap.Duration("interval", c.interval),
		zap.String("threshold", humanize.IBytes(uint64(c.minBytes))))

	for {
		select {
		case <-ticker.C:
			c.maybeCompact()
		case <-c.ctx.Done():
			return
		}
	}
}

// maybeCompact compacts when the log is over the threshold. Failures are
// logged and retried on the next tick; the log is left untouched.
func (c *compactor) maybeCompact() {
	before := c.store.log.Size()
	if before < c.minBytes {
		return
	}
	start := time.Now()
	if err := c.store.Compact(); err != nil {
		c.logger.Warn("Compaction failed", zap.Error(err))
		return
	}
	c.logger.Info("Compaction finished",
		zap.String("before", humanize.IBytes(uint64(before))),
		zap.String("after", humanize.IBytes(uint64(c.store.log.Size()))),
		zap.Duration("elapsed", time.Since(start)))
}

// Stop cancels the loop and waits for an in-flight compaction to finish.
func (c *compactor) Stop() {
	c.cancel()
	c.wg.Wait()
	c.logger.Info("Compactor stopped")
}
