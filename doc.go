// Package splat renders 3D Gaussians into images and differentiates the
// result with respect to their colors and opacities.
//
// # Overview
//
// splat is a tile-based, differentiable Gaussian splatting rasterizer in
// pure Go. A render projects every Gaussian to a screen-space ellipse,
// bins the ellipses into 16x16 pixel tiles sorted front to back, and
// alpha-composites each pixel with early termination. The backward pass
// replays each pixel's walk in reverse and accumulates exact gradients for
// every Gaussian's color and opacity.
//
// # Quick Start
//
//	r, err := splat.NewRasterizer()
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	out, state, err := r.Forward(gaussians, 1, camera)
//	if err != nil {
//	    return err
//	}
//	defer state.Release()
//
//	// dImage is dLoss/dImage, laid out like out.Image.
//	grads, err := r.Backward(state, dImage)
//
// # Engines
//
// Callers depend on the [Engine] interface. [Rasterizer] is the software
// engine; it runs every stage on a worker pool and can delegate forward
// compositing to an optional [Accelerator] such as the GPU compositor in
// the gpu package. Engines are explicit objects with a Close method; there
// is no process-wide device state.
//
// # Tensors
//
// [Rasterize] accepts row-major 2-D tensors, validates their shapes, pads
// 3x4 camera matrices and normalizes 8-bit colors before calling an
// engine. Engines themselves take flat float32 slices ([Gaussians]).
//
// # Coordinate System
//
// The camera looks down +z in view space. Pixel (0, 0) is the top-left
// pixel and pixel centers sit on integer coordinates.
//
// # Gradients
//
// Only colors and opacities are differentiated. Means, scales, rotations
// and camera matrices report "no gradient" through [Gradients.Grad].
package splat

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0
)
