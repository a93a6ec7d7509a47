package splat

import (
	"log/slog"

	"github.com/gogpu/splat/internal/composite"
)

// Option configures a Rasterizer during creation.
//
// Example:
//
//	r, err := splat.NewRasterizer(
//	    splat.WithWorkers(8),
//	    splat.WithBackground(1, 1, 1),
//	    splat.WithMemoryLimit(1<<30),
//	)
type Option func(*options)

type options struct {
	workers     int
	threshold   float32
	background  []float32
	memoryLimit int64
	params      Params
	accel       Accelerator
	logger      *slog.Logger
}

func defaultOptions() options {
	return options{
		threshold: composite.DefaultThreshold,
		params:    ParamColors | ParamOpacity,
	}
}

// WithWorkers sets the number of worker goroutines.
// Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithThreshold sets the transmittance below which a pixel stops
// compositing. The default is 1/255. Zero disables early termination;
// negative values are treated as zero.
func WithThreshold(t float32) Option {
	return func(o *options) {
		o.threshold = max(t, 0)
	}
}

// WithBackground sets the color behind all Gaussians, one value per
// channel. The default is black.
func WithBackground(c ...float32) Option {
	return func(o *options) {
		o.background = append([]float32(nil), c...)
	}
}

// WithMemoryLimit caps the buffer memory, in bytes, that one engine holds
// for renders and unreleased saved states. Zero means unlimited.
// Exceeding it fails the render with ErrAllocation.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithDifferentiable selects the parameters Backward produces gradients
// for. The default is ParamColors|ParamOpacity. Zero disables the
// backward pass: Forward then returns a nil SavedState.
func WithDifferentiable(p Params) Option {
	return func(o *options) {
		o.params = p
	}
}

// WithAccelerator attaches an accelerator for forward compositing.
// The engine initializes it and closes it on Close.
func WithAccelerator(a Accelerator) Option {
	return func(o *options) {
		o.accel = a
	}
}

// WithLogger sets an engine-specific logger instead of the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
