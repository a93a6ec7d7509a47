package splat

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/splat/internal/binning"
	"github.com/gogpu/splat/internal/composite"
	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/parallel"
	"github.com/gogpu/splat/internal/project"
)

// Rasterizer is the software engine. Every stage runs on a worker pool:
// projection one task per Gaussian, compositing one task per tile.
// Forward compositing may be delegated to an Accelerator.
//
// Create with NewRasterizer and shut down with Close.
//
// Thread safety: Forward and Backward may be called concurrently from
// multiple goroutines. Close waits for in-flight calls to finish.
type Rasterizer struct {
	mu     sync.RWMutex
	closed bool

	opts    options
	pool    *parallel.WorkerPool
	buffers *parallel.BufferPool
	accel   Accelerator
}

// NewRasterizer creates a software engine and starts its workers.
//
// It returns ErrNotDifferentiable if WithDifferentiable requests
// parameters outside Capabilities. An accelerator whose Init fails is
// closed and dropped with a warning; the engine then composites on the CPU.
func NewRasterizer(opts ...Option) (*Rasterizer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if extra := o.params &^ softwareCaps; extra != 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotDifferentiable, extra)
	}

	r := &Rasterizer{
		opts:    o,
		pool:    parallel.NewWorkerPool(o.workers),
		buffers: parallel.NewBufferPool(o.memoryLimit),
	}
	if o.accel != nil {
		r.attach(o.accel)
	}

	r.logger().Info("splat: rasterizer created",
		"workers", r.pool.Workers(),
		"accelerator", r.acceleratorName(),
		"differentiable", o.params.String())
	return r, nil
}

// softwareCaps are the parameters the compositor differentiates.
const softwareCaps = ParamColors | ParamOpacity

func (r *Rasterizer) attach(a Accelerator) {
	if r.opts.logger != nil {
		propagateLogger(a, r.opts.logger)
	} else {
		followLogger(a)
	}
	if err := a.Init(); err != nil {
		r.logger().Warn("splat: accelerator init failed, using CPU",
			"accelerator", a.Name(), "err", err)
		unfollowLogger(a)
		a.Close()
		return
	}
	r.accel = a
}

func (r *Rasterizer) logger() *slog.Logger {
	if r.opts.logger != nil {
		return r.opts.logger
	}
	return Logger()
}

func (r *Rasterizer) acceleratorName() string {
	if r.accel == nil {
		return "none"
	}
	return r.accel.Name()
}

// Name returns "software", or "software+<accelerator>" when an
// accelerator is attached.
func (r *Rasterizer) Name() string {
	if r.accel == nil {
		return "software"
	}
	return "software+" + r.accel.Name()
}

// Capabilities returns ParamColors|ParamOpacity.
func (r *Rasterizer) Capabilities() Params { return softwareCaps }

// Accelerator returns the attached accelerator, or nil.
func (r *Rasterizer) Accelerator() Accelerator { return r.accel }

// MemoryUsed returns the bytes held by unreleased saved states and
// in-flight renders.
func (r *Rasterizer) MemoryUsed() int64 { return r.buffers.MemoryUsed() }

// SetDeviceProvider passes a device provider to the attached accelerator,
// enabling GPU device sharing. It is a no-op without an accelerator or if
// the accelerator does not support device sharing.
func (r *Rasterizer) SetDeviceProvider(provider any) error {
	if r.accel == nil {
		return nil
	}
	if dpa, ok := r.accel.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}

// Close stops the workers and closes the accelerator. Close is safe to
// call multiple times. Outstanding saved states may still be released.
func (r *Rasterizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	r.pool.Close()
	if r.accel != nil {
		unfollowLogger(r.accel)
		r.accel.Close()
	}
	r.logger().Info("splat: rasterizer closed")
}

// Forward renders g from cam.
//
// Invalid shapes fail with ErrShapeMismatch and invalid cameras with
// ErrInvalidCamera before any work is done. Degenerate Gaussians are
// culled, never reported. If the render does not fit the memory limit it
// fails with ErrAllocation. The render buffers and the overlap list are
// booked together with the memory of outstanding saved states and of
// concurrent renders.
func (r *Rasterizer) Forward(g *Gaussians, globScale float32, cam *Camera) (*Output, *SavedState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, nil, ErrClosed
	}

	if g == nil {
		return nil, nil, fmt.Errorf("%w: nil Gaussians", ErrShapeMismatch)
	}
	if err := g.validate(); err != nil {
		return nil, nil, err
	}
	if cam == nil {
		return nil, nil, ErrInvalidCamera
	}
	if err := cam.validate(); err != nil {
		return nil, nil, err
	}
	n, ch := g.Len(), g.channels()
	bg := r.opts.background
	if bg != nil && len(bg) != ch {
		return nil, nil, &ShapeMismatchError{Input: "background", Rows: 1, Cols: len(bg), Want: [2]int{1, ch}}
	}

	pixels := cam.Width * cam.Height
	release, err := r.buffers.Reserve(r.renderBytes(n, ch, pixels))
	if err != nil {
		return nil, nil, allocationError("forward", err)
	}
	defer release()

	// Project.
	pcam := project.Camera{
		View:   geom.Mat4(cam.View),
		Proj:   geom.Mat4(cam.Proj),
		Width:  cam.Width,
		Height: cam.Height,
		Fx:     cam.Fx,
		Fy:     cam.Fy,
	}
	projected := make([]project.Projected, n)
	project.ProjectAll(r.pool, toProjectInputs(g), globScale, &pcam, projected)

	// Bin.
	grid := parallel.NewGrid(cam.Width, cam.Height)
	bins, err := binning.Bin(r.pool, r.buffers, projected, grid)
	if err != nil {
		return nil, nil, allocationError("forward", err)
	}
	defer bins.Release()

	// Composite.
	scene := composite.Scene{
		Grid:       grid,
		Channels:   ch,
		XY:         make([][2]float32, n),
		Conics:     make([][3]float32, n),
		Colors:     g.Colors,
		Opacity:    g.Opacity,
		SortedIDs:  bins.SortedIDs,
		TileBins:   bins.TileBins,
		Background: bg,
	}
	out := &Output{
		Width:       cam.Width,
		Height:      cam.Height,
		Channels:    ch,
		NumRendered: bins.NumRendered(),
		Image:       make([]float32, pixels*ch),
		Radii:       make([]int32, n),
		FinalT:      make([]float32, pixels),
		FinalIdx:    make([]int32, pixels),
		SortedIDs:   bins.SortedIDs,
		TileBins:    bins.TileBins,
		XY:          make([]float32, n*2),
		Conics:      make([]float32, n*3),
	}
	visible := 0
	for i := range projected {
		p := &projected[i]
		scene.XY[i], scene.Conics[i] = p.XY, p.Conic
		out.Radii[i] = p.Radius
		copy(out.XY[i*2:], p.XY[:])
		copy(out.Conics[i*3:], p.Conic[:])
		if !p.Culled {
			visible++
		}
	}

	frame := composite.Frame{Image: out.Image, FinalT: out.FinalT, FinalIdx: out.FinalIdx}
	accelerated := r.composite(&scene, &frame)

	r.logger().Debug("splat: forward",
		"gaussians", n,
		"visible", visible,
		"rendered", out.NumRendered,
		"size", fmt.Sprintf("%dx%dx%d", cam.Width, cam.Height, ch),
		"accelerated", accelerated)

	if r.opts.params == 0 {
		return out, nil, nil
	}
	return out, r.save(&scene, &frame, accelerated), nil
}

// renderBytes estimates the buffer memory of one render: the output
// image and per-pixel state, plus the saved copies held until backward.
func (r *Rasterizer) renderBytes(n, ch, pixels int) int64 {
	perPixel := int64(ch + 2)
	perGaussian := int64(ch + 1 + 2 + 3 + 1)
	if r.opts.params != 0 {
		perPixel += 2
		perGaussian += int64(ch + 1)
	}
	return 4 * (int64(pixels)*perPixel + int64(n)*perGaussian)
}

func toProjectInputs(g *Gaussians) []project.Gaussian {
	ch := g.channels()
	gs := make([]project.Gaussian, g.Len())
	for i := range gs {
		m, s, q := g.Means[i*3:i*3+3], g.Scales[i*3:i*3+3], g.Quats[i*4:i*4+4]
		gs[i] = project.Gaussian{
			Mean:    geom.Vec3{X: m[0], Y: m[1], Z: m[2]},
			Scale:   geom.Vec3{X: s[0], Y: s[1], Z: s[2]},
			Quat:    [4]float32{q[0], q[1], q[2], q[3]},
			Color:   g.Colors[i*ch : (i+1)*ch],
			Opacity: g.Opacity[i],
		}
	}
	return gs
}

// composite runs forward compositing on the accelerator if one is attached
// and accepts the job, and on the worker pool otherwise.
func (r *Rasterizer) composite(s *composite.Scene, f *composite.Frame) (accelerated bool) {
	if r.accel != nil {
		job := &CompositeJob{
			Width:      s.Grid.Width(),
			Height:     s.Grid.Height(),
			Channels:   s.Channels,
			Threshold:  r.opts.threshold,
			Background: s.Background,
			XY:         s.XY,
			Conics:     s.Conics,
			Colors:     s.Colors,
			Opacity:    s.Opacity,
			SortedIDs:  s.SortedIDs,
			TileBins:   s.TileBins,
			Image:      f.Image,
			FinalT:     f.FinalT,
			FinalIdx:   f.FinalIdx,
		}
		err := r.accel.Composite(job)
		if err == nil {
			return true
		}
		if errors.Is(err, ErrFallbackToCPU) {
			r.logger().Debug("splat: accelerator declined job", "accelerator", r.accel.Name(), "err", err)
		} else {
			r.logger().Warn("splat: accelerator failed, using CPU", "accelerator", r.accel.Name(), "err", err)
		}
	}
	composite.Forward(r.pool, s, r.opts.threshold, f)
	return false
}

// save copies the inputs of backward into pooled buffers.
func (r *Rasterizer) save(s *composite.Scene, f *composite.Frame, accelerated bool) *SavedState {
	st := &SavedState{
		buffers:     r.buffers,
		scene:       *s,
		threshold:   r.opts.threshold,
		params:      r.opts.params,
		numRendered: len(s.SortedIDs),
		accelerated: accelerated,
	}
	st.scene.Colors = r.copyFloats(s.Colors)
	st.scene.Opacity = r.copyFloats(s.Opacity)
	st.scene.SortedIDs = r.copyInts(s.SortedIDs)
	st.scene.TileBins = append([]TileRange(nil), s.TileBins...)
	st.finalT = r.copyFloats(f.FinalT)
	st.finalIdx = r.copyInts(f.FinalIdx)
	return st
}

func (r *Rasterizer) copyFloats(src []float32) []float32 {
	dst := r.buffers.Float32s(len(src))
	copy(dst, src)
	return dst
}

func (r *Rasterizer) copyInts(src []int32) []int32 {
	dst := r.buffers.Int32s(len(src))
	copy(dst, src)
	return dst
}

// Backward consumes state and returns the gradients of the requested
// parameters. dImage must hold Width*Height*Channels values.
//
// A wrong-sized dImage returns ErrGradientShape and leaves state usable.
// A consumed or released state returns ErrStateReleased.
func (r *Rasterizer) Backward(state *SavedState, dImage []float32) (*Gradients, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	if state == nil {
		return nil, ErrStateReleased
	}

	pixels := state.Width() * state.Height()
	if want := pixels * state.Channels(); len(dImage) != want {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrGradientShape, len(dImage), want)
	}
	if err := state.acquire(); err != nil {
		return nil, err
	}
	defer state.free()

	frame := composite.Frame{FinalT: state.finalT, FinalIdx: state.finalIdx}
	if state.accelerated {
		frame.Image = r.buffers.Float32s(pixels * state.Channels())
		defer r.buffers.PutFloat32s(frame.Image)
		composite.Forward(r.pool, &state.scene, state.threshold, &frame)
	}

	n, ch := state.Len(), state.Channels()
	grads := composite.Gradients{
		Colors:  make([]float32, n*ch),
		Opacity: make([]float32, n),
	}
	composite.Backward(r.pool, &state.scene, &frame, dImage, &grads)

	out := &Gradients{}
	if state.params.Has(ParamColors) {
		out.Colors = grads.Colors
	}
	if state.params.Has(ParamOpacity) {
		out.Opacity = grads.Opacity
	}
	return out, nil
}
