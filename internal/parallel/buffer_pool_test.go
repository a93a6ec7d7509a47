package parallel

import (
	"errors"
	"sync"
	"testing"
)

func TestBufferPool_Float32sZeroedAndAccounted(t *testing.T) {
	p := NewBufferPool(0)

	buf := p.Float32s(100)
	if len(buf) != 100 {
		t.Fatalf("len = %d, want 100", len(buf))
	}
	if cap(buf) != 128 {
		t.Errorf("cap = %d, want size class 128", cap(buf))
	}
	if p.MemoryUsed() != 128*4 {
		t.Errorf("MemoryUsed = %d, want %d", p.MemoryUsed(), 128*4)
	}

	for i := range buf {
		buf[i] = 7
	}
	p.PutFloat32s(buf)
	if p.MemoryUsed() != 0 {
		t.Errorf("MemoryUsed after put = %d, want 0", p.MemoryUsed())
	}

	again := p.Float32s(90)
	for i, v := range again {
		if v != 0 {
			t.Fatalf("reused buffer[%d] = %v, want 0", i, v)
		}
	}
	p.PutFloat32s(again)
}

func TestBufferPool_Int32s(t *testing.T) {
	p := NewBufferPool(0)

	buf := p.Int32s(33)
	if len(buf) != 33 || cap(buf) != 64 {
		t.Fatalf("len, cap = %d, %d, want 33, 64", len(buf), cap(buf))
	}
	buf[0] = -1
	p.PutInt32s(buf)

	if got := p.Int32s(64); got[0] != 0 {
		t.Errorf("reused buffer not cleared: %v", got[0])
	}
}

func TestBufferPool_ZeroLength(t *testing.T) {
	p := NewBufferPool(0)
	if buf := p.Float32s(0); buf != nil {
		t.Errorf("Float32s(0) = %v, want nil", buf)
	}
	if p.MemoryUsed() != 0 {
		t.Errorf("MemoryUsed = %d, want 0", p.MemoryUsed())
	}
}

func TestBufferPool_PutForeignSlice(t *testing.T) {
	p := NewBufferPool(0)
	p.PutFloat32s(make([]float32, 100))
	p.PutInt32s(nil)
	if p.MemoryUsed() != 0 {
		t.Errorf("MemoryUsed = %d, want 0", p.MemoryUsed())
	}
}

func TestBufferPool_Reserve(t *testing.T) {
	p := NewBufferPool(1024)

	release, err := p.Reserve(1024)
	if err != nil {
		t.Fatalf("Reserve(limit) = %v, want nil", err)
	}
	if p.MemoryUsed() != 1024 {
		t.Errorf("MemoryUsed with reservation = %d, want 1024", p.MemoryUsed())
	}
	release()
	release()
	if p.MemoryUsed() != 0 {
		t.Fatalf("MemoryUsed after double release = %d, want 0", p.MemoryUsed())
	}

	buf := p.Float32s(128) // 512 bytes
	defer p.PutFloat32s(buf)

	_, err = p.Reserve(600)
	var limitErr *MemoryLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Reserve over limit = %v, want *MemoryLimitExceededError", err)
	}
	if limitErr.Requested != 600 || limitErr.Current != 512 || limitErr.Limit != 1024 {
		t.Errorf("error = %+v", limitErr)
	}

	if prev := p.SetMemoryLimit(0); prev != 1024 {
		t.Errorf("SetMemoryLimit returned %d, want 1024", prev)
	}
	release, err = p.Reserve(1 << 40)
	if err != nil {
		t.Fatalf("Reserve with no limit = %v, want nil", err)
	}
	release()
}

func TestBufferPool_ReservationsAccumulate(t *testing.T) {
	p := NewBufferPool(1000)

	first, err := p.Reserve(600)
	if err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	// Each request fits on its own; together they do not.
	if _, err := p.Reserve(600); err == nil {
		t.Fatal("second Reserve(600) under limit 1000 succeeded with 600 booked")
	}
	first()
	second, err := p.Reserve(600)
	if err != nil {
		t.Fatalf("Reserve after release: %v", err)
	}
	second()
}

func TestBufferPool_ReserveConcurrent(t *testing.T) {
	const (
		limit   = 1000
		request = 100
		callers = 64
	)
	p := NewBufferPool(limit)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		releases []func()
	)
	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if release, err := p.Reserve(request); err == nil {
				mu.Lock()
				releases = append(releases, release)
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := len(releases); got != limit/request {
		t.Errorf("%d reservations granted, want %d", got, limit/request)
	}
	if p.MemoryUsed() > limit {
		t.Errorf("MemoryUsed = %d exceeds limit %d", p.MemoryUsed(), limit)
	}
	for _, release := range releases {
		release()
	}
	if p.MemoryUsed() != 0 {
		t.Errorf("MemoryUsed after releases = %d, want 0", p.MemoryUsed())
	}
}

func TestBufferPool_Concurrent(t *testing.T) {
	p := NewBufferPool(0)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				n := 1 + (g*37+i*13)%500
				f := p.Float32s(n)
				ids := p.Int32s(n)
				f[n-1], ids[n-1] = 1, 1
				p.PutFloat32s(f)
				p.PutInt32s(ids)
			}
		}()
	}
	wg.Wait()

	if p.MemoryUsed() != 0 {
		t.Errorf("MemoryUsed = %d after balanced get/put, want 0", p.MemoryUsed())
	}
}
