//go:build !nogpu

// Package gpu provides the GPU compositing accelerator.
//
// Attach it to an engine with splat.WithAccelerator. If GPU
// initialization fails (no Vulkan device available), the engine logs a
// warning and composites on the CPU.
//
// Usage:
//
//	r, err := splat.NewRasterizer(splat.WithAccelerator(gpu.NewAccelerator()))
package gpu

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/splat"
	gpuimpl "github.com/gogpu/splat/internal/gpu"
)

// Available reports whether this build includes the GPU compositor.
const Available = true

// NewAccelerator returns an uninitialized GPU compositor. The engine it is
// attached to initializes and closes it.
func NewAccelerator() splat.Accelerator {
	return gpuimpl.NewCompositor()
}

// SetDeviceProvider configures the engine's GPU accelerator to use a
// shared GPU device from an external provider (e.g., gogpu). This avoids
// creating a separate GPU instance.
//
// The provider must also implement gpucontext.HalProvider-style
// HalDevice/HalQueue accessors for direct HAL access.
func SetDeviceProvider(r *splat.Rasterizer, provider gpucontext.DeviceProvider) error {
	return r.SetDeviceProvider(provider)
}
