package meshing

import (
	"context"
	"errors"
	"sync"

	"voxelrender/internal/logging"
	"voxelrender/internal/world"
)

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("meshing: pool closed")

// BuildFunc meshes one chunk.
type BuildFunc func(coord world.ChunkCoord) (*ChunkMesh, error)

// Result is the outcome of one job.
type Result struct {
	Coord world.ChunkCoord
	Mesh  *ChunkMesh
	Err   error
}

// WorkerPool runs mesh builds on a fixed set of goroutines.
type WorkerPool struct {
	jobQueue chan world.ChunkCoord
	results  chan Result
	build    BuildFunc
	workers  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewWorkerPool starts workers goroutines. Up to queueSize jobs wait for a
// worker. The results channel holds queueSize+workers results, so a caller
// keeping at most that many jobs outstanding never blocks a worker.
func NewWorkerPool(workers, queueSize int, build BuildFunc) *WorkerPool {
	workers = max(workers, 1)
	queueSize = max(queueSize, 1)
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		jobQueue: make(chan world.ChunkCoord, queueSize),
		results:  make(chan Result, queueSize+workers),
		build:    build,
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
	}
	for range workers {
		p.wg.Add(1)
		go p.worker()
	}
	logging.Logger().Info("mesh pool started", "workers", workers, "queue", queueSize)
	return p
}

// Submit queues a job without blocking. It returns false when the queue is
// full, or ErrPoolClosed after Shutdown.
func (p *WorkerPool) Submit(coord world.ChunkCoord) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, ErrPoolClosed
	}
	select {
	case p.jobQueue <- coord:
		return true, nil
	default:
		return false, nil
	}
}

// Results delivers finished jobs in completion order.
func (p *WorkerPool) Results() <-chan Result {
	return p.results
}

// Capacity returns the number of jobs that may be outstanding at once
// without a worker blocking on the results channel.
func (p *WorkerPool) Capacity() int {
	return cap(p.jobQueue)
}

// Workers returns the number of worker goroutines.
func (p *WorkerPool) Workers() int {
	return p.workers
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for {
		select {
		case coord, ok := <-p.jobQueue:
			if !ok {
				return
			}
			mesh, err := p.build(coord)
			select {
			case p.results <- Result{Coord: coord, Mesh: mesh, Err: err}:
			case <-p.ctx.Done():
				return
			}
		case <-p.ctx.Done():
			return
		}
	}
}

// Shutdown stops the workers and waits for them to exit. Queued jobs that
// have not started are dropped.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cancel()
	close(p.jobQueue)
	p.mu.Unlock()

	p.wg.Wait()
	logging.Logger().Info("mesh pool stopped")
}

// QueueLength returns the number of jobs waiting for a worker.
func (p *WorkerPool) QueueLength() int {
	return len(p.jobQueue)
}
