package splat

import (
	"sync"

	"github.com/gogpu/splat/internal/composite"
	"github.com/gogpu/splat/internal/parallel"
)

// SavedState retains everything the backward pass needs from one Forward
// call: copies of the colors and opacities, the sorted overlap list, the
// per-tile ranges, screen-space centers and conics, and the per-pixel
// final transmittance and index.
//
// A SavedState pairs with exactly one Backward call. Backward consumes it;
// Release discards it without differentiating. Either way its buffers go
// back to the engine's pool, and further use returns ErrStateReleased.
//
// Thread safety: SavedState is safe for concurrent use, but only one
// Backward or Release call wins.
type SavedState struct {
	mu       sync.Mutex
	released bool

	buffers *parallel.BufferPool

	scene    composite.Scene
	finalT   []float32
	finalIdx []int32

	threshold   float32
	params      Params
	numRendered int

	// accelerated marks forward results produced by an Accelerator; the
	// per-pixel state is recomputed on the CPU before backward.
	accelerated bool
}

// Width returns the image width of the paired render.
func (s *SavedState) Width() int { return s.scene.Grid.Width() }

// Height returns the image height of the paired render.
func (s *SavedState) Height() int { return s.scene.Grid.Height() }

// Channels returns the number of color channels of the paired render.
func (s *SavedState) Channels() int { return s.scene.Channels }

// Len returns the number of Gaussians of the paired render.
func (s *SavedState) Len() int { return len(s.scene.XY) }

// NumRendered returns the number of (Gaussian, tile) overlaps.
func (s *SavedState) NumRendered() int { return s.numRendered }

// Released reports whether the state was consumed or discarded.
func (s *SavedState) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Release discards the state and returns its buffers. Calling Release
// after Backward, more than once, or on a nil state is a no-op.
func (s *SavedState) Release() {
	if s == nil {
		return
	}
	if s.acquire() == nil {
		s.free()
	}
}

// acquire marks the state as consumed. Exactly one caller succeeds.
func (s *SavedState) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrStateReleased
	}
	s.released = true
	return nil
}

// free returns the pooled buffers. Only the caller that acquired the
// state may call it.
func (s *SavedState) free() {
	s.buffers.PutFloat32s(s.scene.Colors)
	s.buffers.PutFloat32s(s.scene.Opacity)
	s.buffers.PutInt32s(s.scene.SortedIDs)
	s.buffers.PutFloat32s(s.finalT)
	s.buffers.PutInt32s(s.finalIdx)
	s.scene.Colors, s.scene.Opacity, s.scene.SortedIDs = nil, nil, nil
	s.finalT, s.finalIdx = nil, nil
}
