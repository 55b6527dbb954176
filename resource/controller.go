// Package resource bounds the memory, concurrency and I/O bandwidth that
// merge tasks may use.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a single reservation can never fit
// under the configured limit.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes caps the memory estimated by admitted mergers.
	// Zero tracks usage without a limit.
	MemoryLimitBytes int64

	// MaxConcurrentMerges bounds how many index mergers run at once.
	// Zero means one.
	MaxConcurrentMerges int64

	// IOLimitBytesPerSec throttles merge output. Zero is unlimited.
	IOLimitBytesPerSec int64
}

// Controller hands out memory, merge slots and write bandwidth.
// A nil *Controller grants everything.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted
	memUsed atomic.Int64

	mergeSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a controller for cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentMerges <= 0 {
		cfg.MaxConcurrentMerges = 1
	}

	c := &Controller{
		cfg:      cfg,
		mergeSem: semaphore.NewWeighted(cfg.MaxConcurrentMerges),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// Config returns the limits the controller was built with.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireMemory reserves bytes, blocking until they fit or ctx is done.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil {
		if bytes > c.cfg.MemoryLimitBytes {
			return fmt.Errorf("%w: need %d bytes, limit %d", ErrMemoryLimitExceeded, bytes, c.cfg.MemoryLimitBytes)
		}
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory reserves bytes if they fit right now.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return false
	}
	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory returns a reservation.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireMerge takes a merge slot, blocking while all are busy.
func (c *Controller) AcquireMerge(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.mergeSem.Acquire(ctx, 1)
}

// TryAcquireMerge takes a merge slot if one is free.
func (c *Controller) TryAcquireMerge() bool {
	if c == nil {
		return true
	}
	return c.mergeSem.TryAcquire(1)
}

// ReleaseMerge frees a merge slot.
func (c *Controller) ReleaseMerge() {
	if c == nil {
		return
	}
	c.mergeSem.Release(1)
}

// Admit reserves a merge slot and its estimated memory. The returned func
// releases both.
func (c *Controller) Admit(ctx context.Context, memBytes int64) (func(), error) {
	if err := c.AcquireMerge(ctx); err != nil {
		return nil, err
	}
	if err := c.AcquireMemory(ctx, memBytes); err != nil {
		c.ReleaseMerge()
		return nil, err
	}
	return func() {
		c.ReleaseMemory(memBytes)
		c.ReleaseMerge()
	}, nil
}

// AcquireIO waits until bytes may be written.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	// WaitN rejects requests larger than the burst.
	burst := c.ioLimiter.Burst()
	for bytes > burst {
		if err := c.ioLimiter.WaitN(ctx, burst); err != nil {
			return err
		}
		bytes -= burst
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}
