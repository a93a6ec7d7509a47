package splat

// Accelerator is an optional forward-compositing backend, such as the GPU
// compositor in the gpu package.
//
// An accelerator is owned by the engine it is attached to with
// WithAccelerator: the engine calls Init once at creation and Close when
// it is closed. If Composite returns ErrFallbackToCPU or any other error,
// the engine composites the job on the CPU instead.
//
// Accelerators only produce forward results. When a render composited by
// an accelerator is differentiated, the engine re-derives the per-pixel
// state on the CPU so the backward pass replays exactly the arithmetic it
// inverts.
type Accelerator interface {
	// Name returns the accelerator name (e.g., "wgpu").
	Name() string

	// Init acquires device resources.
	Init() error

	// Close releases device resources.
	Close()

	// Composite fills job.Image, job.FinalT and job.FinalIdx.
	// Returns ErrFallbackToCPU if the job cannot be accelerated.
	Composite(job *CompositeJob) error
}

// CompositeJob is the input and output of one forward compositing pass.
// Input slices must not be modified; output slices are preallocated.
type CompositeJob struct {
	Width, Height, Channels int

	// Threshold is the early-exit transmittance; 0 disables early exit.
	Threshold float32

	// Background holds Channels values.
	Background []float32

	// Per-Gaussian inputs, indexed by Gaussian id.
	XY      [][2]float32
	Conics  [][3]float32
	Colors  []float32 // N*Channels
	Opacity []float32 // N

	SortedIDs []int32
	TileBins  []TileRange

	// Outputs.
	Image    []float32 // H*W*Channels
	FinalT   []float32 // H*W
	FinalIdx []int32   // H*W
}

// DeviceProviderAware is an optional interface for accelerators that can
// share a GPU device with an external provider (e.g., a gogpu window).
// The provider is typically a gpucontext.DeviceProvider.
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}
