package composite

import (
	"math"
	"sync/atomic"
	"unsafe"
)

// AtomicAdd adds delta to *addr with a compare-and-swap loop on the bit
// pattern. Concurrent adds to the same address are all applied, in an
// unspecified order.
func AtomicAdd(addr *float32, delta float32) {
	if delta == 0 {
		return
	}
	bits := (*uint32)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint32(bits)
		sum := math.Float32bits(math.Float32frombits(old) + delta)
		if atomic.CompareAndSwapUint32(bits, old, sum) {
			return
		}
	}
}
