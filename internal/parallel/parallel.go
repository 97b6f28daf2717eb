// Package parallel provides the data-parallel execution primitives used by the
// solvers: a fixed-size worker pool with stable worker ids, lock-free float64
// accumulation and a spin lock.
package parallel

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	NumWorkers   int // Number of worker goroutines to use.
	MinChunkSize int // Items claimed at once by a worker in dynamic loops.
}

// DefaultConfig returns sensible defaults based on GOMAXPROCS.
func DefaultConfig() Config {
	return Config{
		NumWorkers:   runtime.GOMAXPROCS(0),
		MinChunkSize: 64,
	}
}

// Pool runs data-parallel loops over a fixed number of workers.
//
// Every loop hands its body a worker id in [0, Workers()). The id is stable
// for the duration of a loop, so callers can keep per-worker scratch state
// in a slice indexed by it. A nil *Pool runs everything sequentially on
// worker 0.
type Pool struct {
	workers int
	chunk   int
}

// NewPool creates a pool from cfg. Non-positive values fall back to
// DefaultConfig.
func NewPool(cfg Config) *Pool {
	def := DefaultConfig()
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = def.NumWorkers
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = def.MinChunkSize
	}
	return &Pool{workers: cfg.NumWorkers, chunk: cfg.MinChunkSize}
}

// Workers returns the number of workers in the pool.
func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// Static executes f(wid, i) for i in [0, n). The index space is split into
// one contiguous block per worker. The first error returned by any call stops
// all workers at their next iteration and is returned.
func (p *Pool) Static(n int, f func(wid, i int) error) error {
	workers := p.Workers()
	if workers == 1 || n <= 1 {
		return sequential(n, f)
	}

	var stop atomic.Bool
	var g errgroup.Group
	block := (n + workers - 1) / workers

	for wid := 0; wid < workers; wid++ {
		start := wid * block
		end := min(start+block, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if stop.Load() {
					return nil
				}
				if err := f(wid, i); err != nil {
					stop.Store(true)
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Dynamic executes f(wid, i) for i in [0, n). Workers repeatedly claim the
// next chunk of indices from a shared cursor, so uneven per-item cost is
// balanced across workers.
func (p *Pool) Dynamic(n int, f func(wid, i int) error) error {
	workers := p.Workers()
	if workers == 1 || n <= 1 {
		return sequential(n, f)
	}

	chunk := p.chunk
	var cursor atomic.Int64
	var stop atomic.Bool
	var g errgroup.Group

	for wid := 0; wid < workers; wid++ {
		g.Go(func() error {
			for !stop.Load() {
				start := int(cursor.Add(int64(chunk))) - chunk
				if start >= n {
					return nil
				}
				end := min(start+chunk, n)
				for i := start; i < end; i++ {
					if err := f(wid, i); err != nil {
						stop.Store(true)
						return err
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func sequential(n int, f func(wid, i int) error) error {
	for i := 0; i < n; i++ {
		if err := f(0, i); err != nil {
			return err
		}
	}
	return nil
}
