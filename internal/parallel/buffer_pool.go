package parallel

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
)

// MemoryLimitExceededError is returned when a render would need more
// buffer memory than the pool's limit allows.
type MemoryLimitExceededError struct {
	Requested int64
	Current   int64
	Limit     int64
}

func (e *MemoryLimitExceededError) Error() string {
	return fmt.Sprintf("parallel: memory limit exceeded: requested %d bytes with %d in use (limit %d)",
		e.Requested, e.Current, e.Limit)
}

// BufferPool recycles the per-render float32 and int32 buffers (images,
// transmittance, final indices, overlap lists) and accounts the bytes
// handed out against an optional limit.
//
// Buffers are grouped in power-of-two size classes, one sync.Pool per
// class, so a 512x512 render reuses the buffers of the previous 512x512
// render without reallocation.
//
// Thread safety: BufferPool is safe for concurrent use.
type BufferPool struct {
	floats sync.Map // size class -> *sync.Pool of *[]float32
	ints   sync.Map // size class -> *sync.Pool of *[]int32

	used  atomic.Int64
	limit atomic.Int64
}

// NewBufferPool creates a pool. A limit of 0 disables the memory check.
func NewBufferPool(limit int64) *BufferPool {
	p := &BufferPool{}
	p.limit.Store(limit)
	return p
}

// SetMemoryLimit replaces the limit and returns the previous one.
func (p *BufferPool) SetMemoryLimit(limit int64) int64 {
	return p.limit.Swap(limit)
}

// MemoryLimit returns the limit in bytes (0 = unlimited).
func (p *BufferPool) MemoryLimit() int64 {
	return p.limit.Load()
}

// MemoryUsed returns the bytes currently handed out or reserved.
func (p *BufferPool) MemoryUsed() int64 {
	return p.used.Load()
}

// Reserve books bytes against the limit and returns a func that gives them
// back. Callers reserve a render's working memory up front so an oversized
// request fails before any work is done; concurrent reservations never
// share the same headroom. The release func is idempotent.
//
// With no limit set the bytes are still booked, so MemoryUsed reflects
// in-flight renders.
func (p *BufferPool) Reserve(bytes int64) (release func(), err error) {
	for {
		cur := p.used.Load()
		if limit := p.limit.Load(); limit > 0 && cur+bytes > limit {
			return nil, &MemoryLimitExceededError{Requested: bytes, Current: cur, Limit: limit}
		}
		if p.used.CompareAndSwap(cur, cur+bytes) {
			break
		}
	}
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			p.used.Add(-bytes)
		}
	}, nil
}

// Float32s returns a zeroed slice of length n.
func (p *BufferPool) Float32s(n int) []float32 {
	if n <= 0 {
		return nil
	}
	buf := *p.floatPool(sizeClass(n)).Get().(*[]float32)
	p.used.Add(int64(cap(buf)) * 4)
	buf = buf[:n]
	clear(buf)
	return buf
}

// PutFloat32s returns a buffer obtained from Float32s.
// Slices that did not come from the pool are ignored.
func (p *BufferPool) PutFloat32s(buf []float32) {
	class, ok := ownedClass(cap(buf))
	if !ok {
		return
	}
	p.used.Add(-int64(cap(buf)) * 4)
	buf = buf[:cap(buf)]
	p.floatPool(class).Put(&buf)
}

// Int32s returns a zeroed slice of length n.
func (p *BufferPool) Int32s(n int) []int32 {
	if n <= 0 {
		return nil
	}
	buf := *p.intPool(sizeClass(n)).Get().(*[]int32)
	p.used.Add(int64(cap(buf)) * 4)
	buf = buf[:n]
	clear(buf)
	return buf
}

// PutInt32s returns a buffer obtained from Int32s.
// Slices that did not come from the pool are ignored.
func (p *BufferPool) PutInt32s(buf []int32) {
	class, ok := ownedClass(cap(buf))
	if !ok {
		return
	}
	p.used.Add(-int64(cap(buf)) * 4)
	buf = buf[:cap(buf)]
	p.intPool(class).Put(&buf)
}

func (p *BufferPool) floatPool(class int) *sync.Pool {
	if v, ok := p.floats.Load(class); ok {
		return v.(*sync.Pool)
	}
	v, _ := p.floats.LoadOrStore(class, &sync.Pool{New: func() any {
		s := make([]float32, 1<<class)
		return &s
	}})
	return v.(*sync.Pool)
}

func (p *BufferPool) intPool(class int) *sync.Pool {
	if v, ok := p.ints.Load(class); ok {
		return v.(*sync.Pool)
	}
	v, _ := p.ints.LoadOrStore(class, &sync.Pool{New: func() any {
		s := make([]int32, 1<<class)
		return &s
	}})
	return v.(*sync.Pool)
}

// sizeClass returns the smallest class c with 1<<c >= n.
func sizeClass(n int) int {
	return bits.Len(uint(n - 1))
}

// ownedClass reports the size class of a pooled capacity.
func ownedClass(c int) (int, bool) {
	if c <= 0 || c&(c-1) != 0 {
		return 0, false
	}
	return bits.Len(uint(c)) - 1, true
}
