package splat

import (
	"fmt"
	"sync"
)

// RadiusTracker records the maximum screen radius each Gaussian reached
// across renders, the statistic density control uses to split or prune
// Gaussians between optimization steps.
//
// Thread safety: RadiusTracker is safe for concurrent use.
type RadiusTracker struct {
	mu  sync.Mutex
	max []int32
}

// NewRadiusTracker creates a tracker for n Gaussians.
func NewRadiusTracker(n int) *RadiusTracker {
	return &RadiusTracker{max: make([]int32, n)}
}

// Update folds the radii of one render (Output.Radii) into the maxima.
func (t *RadiusTracker) Update(radii []int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(radii) != len(t.max) {
		return fmt.Errorf("%w: %d radii for %d Gaussians", ErrShapeMismatch, len(radii), len(t.max))
	}
	for i, r := range radii {
		t.max[i] = max(t.max[i], r)
	}
	return nil
}

// Max returns a copy of the per-Gaussian maxima.
func (t *RadiusTracker) Max() []int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int32(nil), t.max...)
}

// Visible returns the number of Gaussians that were visible at least once.
func (t *RadiusTracker) Visible() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, r := range t.max {
		if r > 0 {
			n++
		}
	}
	return n
}

// Reset clears the maxima and resizes the tracker to n Gaussians.
func (t *RadiusTracker) Reset(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cap(t.max) >= n {
		t.max = t.max[:n]
		clear(t.max)
		return
	}
	t.max = make([]int32, n)
}
