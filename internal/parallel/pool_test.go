package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// WorkerPool Creation Tests
// =============================================================================

func TestWorkerPool_Create(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("pool should be running after creation")
	}
}

func TestWorkerPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -5} {
		pool := NewWorkerPool(n)
		if got, want := pool.Workers(), runtime.GOMAXPROCS(0); got != want {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want %d (GOMAXPROCS)", n, got, want)
		}
		pool.Close()
	}
}

// =============================================================================
// ExecuteAll Tests
// =============================================================================

func TestWorkerPool_ExecuteAll(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}

	pool.ExecuteAll(work)

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100", counter.Load())
	}
}

func TestWorkerPool_ExecuteAll_Empty(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	pool.ExecuteAll(nil)
	pool.ExecuteAll([]func(){})
}

func TestWorkerPool_ExecuteAll_MoreThanQueueCapacity(t *testing.T) {
	pool := NewWorkerPool(2)
	defer pool.Close()

	var counter atomic.Int64
	work := make([]func(), 1000)
	for i := range work {
		work[i] = func() { counter.Add(1) }
	}
	pool.ExecuteAll(work)

	if counter.Load() != 1000 {
		t.Errorf("counter = %d, want 1000", counter.Load())
	}
}

func TestWorkerPool_UnevenWork(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var slow, fast atomic.Int64
	work := make([]func(), 100)
	for i := range work {
		if i%10 == 0 {
			work[i] = func() {
				time.Sleep(5 * time.Millisecond)
				slow.Add(1)
			}
		} else {
			work[i] = func() { fast.Add(1) }
		}
	}
	pool.ExecuteAll(work)

	if slow.Load() != 10 || fast.Load() != 90 {
		t.Errorf("slow = %d, fast = %d, want 10, 90", slow.Load(), fast.Load())
	}
}

// =============================================================================
// Run Tests
// =============================================================================

func TestWorkerPool_Run(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		n       int
	}{
		{"empty", 4, 0},
		{"single item", 4, 1},
		{"single worker", 1, 50},
		{"fewer items than workers", 8, 3},
		{"many items", 4, 10007},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.workers)
			defer pool.Close()

			hits := make([]int32, tt.n)
			pool.Run(tt.n, func(i int) {
				atomic.AddInt32(&hits[i], 1)
			})
			for i, h := range hits {
				if h != 1 {
					t.Fatalf("index %d ran %d times, want 1", i, h)
				}
			}
		})
	}
}

func TestWorkerPool_RunAfterClose(t *testing.T) {
	pool := NewWorkerPool(4)
	pool.Close()

	var counter atomic.Int64
	pool.Run(100, func(int) { counter.Add(1) })

	if counter.Load() != 100 {
		t.Errorf("counter = %d, want 100 (inline execution after close)", counter.Load())
	}
}

// =============================================================================
// Close Tests
// =============================================================================

func TestWorkerPool_CloseIdempotent(t *testing.T) {
	pool := NewWorkerPool(4)

	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("pool should not be running after close")
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestWorkerPool_ConcurrentCallers(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Close()

	var counter atomic.Int64
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Run(50, func(int) { counter.Add(1) })
		}()
	}
	wg.Wait()

	if counter.Load() != 500 {
		t.Errorf("counter = %d, want 500", counter.Load())
	}
}

func TestWorkerPool_NoGoroutineLeak(t *testing.T) {
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	baseline := runtime.NumGoroutine()

	for range 5 {
		pool := NewWorkerPool(4)
		pool.Run(100, func(int) {})
		pool.Close()
	}

	runtime.GC()
	time.Sleep(100 * time.Millisecond)

	if final := runtime.NumGoroutine(); final > baseline+2 {
		t.Errorf("goroutine count: baseline=%d, final=%d (leak detected)", baseline, final)
	}
}

// =============================================================================
// Benchmarks
// =============================================================================

func BenchmarkWorkerPool_Run(b *testing.B) {
	pool := NewWorkerPool(0)
	defer pool.Close()

	data := make([]float32, 1<<16)
	for b.Loop() {
		pool.Run(len(data), func(i int) {
			data[i] = data[i]*0.5 + 1
		})
	}
}
