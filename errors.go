package splat

import (
	"errors"
	"fmt"

	"github.com/gogpu/splat/internal/parallel"
)

// Sentinel errors returned by engines and by Rasterize. Use errors.Is.
var (
	// ErrShapeMismatch reports a per-Gaussian input whose shape does not
	// match the batch. Returned before any work is done.
	ErrShapeMismatch = errors.New("splat: input shape mismatch")

	// ErrInvalidCameraMatrix reports a view or projection matrix that is
	// neither 3x4 nor 4x4.
	ErrInvalidCameraMatrix = errors.New("splat: camera matrix must be 3x4 or 4x4")

	// ErrInvalidCamera reports non-positive image dimensions or focal lengths.
	ErrInvalidCamera = errors.New("splat: invalid camera")

	// ErrAllocation reports that a render needs more buffer memory than
	// the engine's limit. The render is aborted; retry with fewer
	// Gaussians or a smaller image.
	ErrAllocation = errors.New("splat: allocation failed")

	// ErrClosed is returned by engine methods called after Close.
	ErrClosed = errors.New("splat: engine closed")

	// ErrStateReleased is returned when a SavedState is used after
	// Backward consumed it or Release discarded it.
	ErrStateReleased = errors.New("splat: saved state already released")

	// ErrGradientShape reports an image gradient whose length does not
	// match the rendered image.
	ErrGradientShape = errors.New("splat: image gradient shape mismatch")

	// ErrNotDifferentiable reports a request for gradients the engine
	// cannot produce.
	ErrNotDifferentiable = errors.New("splat: parameter not differentiable")

	// ErrFallbackToCPU indicates the accelerator cannot handle a job.
	// The engine transparently composites on the CPU instead.
	ErrFallbackToCPU = errors.New("splat: falling back to CPU compositing")

	// ErrInvalidFrame is returned by DecodeFrame for streams that are not
	// float frames.
	ErrInvalidFrame = errors.New("splat: invalid float frame")
)

// MemoryLimitExceededError carries the sizes of a rejected allocation.
// Errors of this type are always wrapped together with ErrAllocation.
type MemoryLimitExceededError = parallel.MemoryLimitExceededError

// ShapeMismatchError describes an input tensor with the wrong shape.
type ShapeMismatchError struct {
	Input string
	Rows  int // actual
	Cols  int
	Want  [2]int // expected rows, cols; -1 means any
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("splat: input %s has shape %dx%d, want %s",
		e.Input, e.Rows, e.Cols, dims(e.Want))
}

// Unwrap returns ErrShapeMismatch.
func (e *ShapeMismatchError) Unwrap() error { return ErrShapeMismatch }

func dims(d [2]int) string {
	f := func(v int) string {
		if v < 0 {
			return "*"
		}
		return fmt.Sprint(v)
	}
	return f(d[0]) + "x" + f(d[1])
}

// allocationError wraps a buffer limit failure so that both
// errors.Is(err, ErrAllocation) and errors.As(err, **MemoryLimitExceededError)
// hold.
func allocationError(op string, err error) error {
	return fmt.Errorf("splat: %s: %w: %w", op, ErrAllocation, err)
}
