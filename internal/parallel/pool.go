// Package parallel provides the worker pool, tile grid and buffer
// accounting shared by the splat rendering stages.
//
// The pipeline has three kinds of parallel work: one item per Gaussian
// (projection, overlap counting), one item per tile (forward and backward
// compositing) and the global sort in between. WorkerPool runs the first
// two; the sort is a barrier executed by the caller between pool runs.
//
// Thread safety: WorkerPool and BufferPool are safe for concurrent use.
// Grid is immutable after construction.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool is a fixed set of goroutines with per-worker queues.
//
// Work items are distributed round-robin; an idle worker steals from the
// other queues before blocking on its own. Tiles with many overlapping
// Gaussians are far slower than empty ones, so stealing keeps the cores
// busy without a central queue.
type WorkerPool struct {
	workers int

	// queues holds one buffered channel per worker.
	queues []chan func()

	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}

	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	own := p.queues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case work := <-own:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			select {
			case <-p.done:
				p.drain(own)
				return
			case work := <-own:
				work()
			}
		}
	}
}

func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case work := <-p.queues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll runs every item and blocks until all of them have returned.
// If the pool is closed the items run on the calling goroutine instead,
// so callers never observe partially executed work.
//
// ExecuteAll must not be called from inside a work item.
func (p *WorkerPool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var pending sync.WaitGroup
	pending.Add(len(work))

	for i, fn := range work {
		item := fn
		wrapped := func() {
			defer pending.Done()
			item()
		}
		select {
		case p.queues[i%p.workers] <- wrapped:
		case <-p.done:
			wrapped()
		}
	}

	pending.Wait()
}

// Run calls fn(i) for every i in [0, n) and waits for completion.
// Indices are grouped into contiguous chunks, at most a few per worker,
// so per-item closures are not allocated for large n.
func (p *WorkerPool) Run(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if n == 1 || p.workers == 1 {
		for i := range n {
			fn(i)
		}
		return
	}

	chunks := min(n, p.workers*4)
	size := (n + chunks - 1) / chunks

	work := make([]func(), 0, chunks)
	for start := 0; start < n; start += size {
		s, e := start, min(start+size, n)
		work = append(work, func() {
			for i := s; i < e; i++ {
				fn(i)
			}
		})
	}
	p.ExecuteAll(work)
}

// Close stops the workers after draining queued work.
// Close is safe to call multiple times, but not concurrently with
// ExecuteAll or Run.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of worker goroutines.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool still dispatches to its workers.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
