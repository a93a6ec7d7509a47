//go:build nogpu

package gpu

import (
	"errors"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/splat"
)

// Available reports whether this build includes the GPU compositor.
const Available = false

var errDisabled = errors.New("gpu: built with the nogpu tag")

type disabled struct{}

func (disabled) Name() string                        { return "wgpu" }
func (disabled) Init() error                         { return errDisabled }
func (disabled) Close()                              {}
func (disabled) Composite(*splat.CompositeJob) error { return splat.ErrFallbackToCPU }

// NewAccelerator returns an accelerator whose Init always fails, so the
// engine composites on the CPU.
func NewAccelerator() splat.Accelerator { return disabled{} }

// SetDeviceProvider is a no-op in nogpu builds.
func SetDeviceProvider(r *splat.Rasterizer, provider gpucontext.DeviceProvider) error {
	return r.SetDeviceProvider(provider)
}
