package splat

// Engine is the forward/backward contract of a differentiable splat
// rasterizer. Callers depend on Engine rather than on a concrete backend.
//
// A Forward call returns a SavedState that pairs it with at most one
// Backward call. Engines are safe for concurrent use; every render is an
// independent unit of work and the caller blocks until it completes.
type Engine interface {
	// Name identifies the engine.
	Name() string

	// Capabilities returns the parameters the engine can differentiate.
	Capabilities() Params

	// Forward renders g from cam. state is nil when the engine was
	// configured without differentiable parameters.
	Forward(g *Gaussians, globScale float32, cam *Camera) (out *Output, state *SavedState, err error)

	// Backward consumes state and returns the gradients of the loss given
	// dImage, the gradient of the loss with respect to every output
	// pixel, laid out like Output.Image.
	Backward(state *SavedState, dImage []float32) (*Gradients, error)

	// Close releases the engine's workers and devices.
	Close()
}

var _ Engine = (*Rasterizer)(nil)
