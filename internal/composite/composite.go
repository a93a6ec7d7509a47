// Package composite implements front-to-back alpha compositing of binned
// 2D Gaussians and its exact reverse-mode derivative.
//
// Forward and backward evaluate every Gaussian at a pixel through the same
// function, Alpha, so the backward pass replays the forward arithmetic
// exactly. Per-pixel intermediate transmittance is never stored: backward
// recovers it from the final transmittance by dividing out (1 - alpha)
// step by step, walking from the pixel's final index back to its tile's
// first entry.
//
// Thread safety: Forward writes disjoint pixels from each tile task.
// Backward accumulates gradients with AtomicAdd; summation order across
// tiles is unspecified.
package composite

import (
	"math"

	"github.com/gogpu/splat/internal/binning"
	"github.com/gogpu/splat/internal/parallel"
)

const (
	// MaxAlpha caps a single Gaussian's alpha so that 1 - alpha never
	// reaches zero and transmittance can always be recovered in backward.
	MaxAlpha = 0.99

	// MinAlpha is the smallest alpha that is composited. Weaker
	// contributions are skipped in both passes.
	MinAlpha = 1.0 / 255

	// DefaultThreshold is the transmittance below which a pixel's walk
	// stops early.
	DefaultThreshold = 1.0 / 255
)

// Alpha evaluates Gaussian opacity at offset (dx, dy) from its center.
// vis is the unnormalized Gaussian weight exp(-σ). ok is false when the
// Gaussian does not contribute at this pixel. clamped reports whether alpha
// was limited to MaxAlpha, in which case it does not depend on opacity.
func Alpha(conic [3]float32, opacity, dx, dy float32) (alpha, vis float32, clamped, ok bool) {
	sigma := 0.5*(conic[0]*dx*dx+conic[2]*dy*dy) + conic[1]*dx*dy
	if sigma < 0 {
		return 0, 0, false, false
	}
	vis = float32(math.Exp(float64(-sigma)))
	alpha = opacity * vis
	if alpha > MaxAlpha {
		alpha, clamped = MaxAlpha, true
	}
	if !(alpha >= MinAlpha) {
		return 0, 0, false, false
	}
	return alpha, vis, clamped, true
}

// Scene is the read-only input shared by all compositing tasks of one
// render. Per-Gaussian slices are indexed by Gaussian id.
type Scene struct {
	Grid     parallel.Grid
	Channels int

	XY      [][2]float32
	Conics  [][3]float32
	Colors  []float32 // len N*Channels
	Opacity []float32 // len N

	SortedIDs []int32
	TileBins  []binning.Range

	// Background is added behind the last composited Gaussian, weighted by
	// the remaining transmittance. Nil means black.
	Background []float32
}

// Frame holds the forward outputs for an H x W image.
type Frame struct {
	Image    []float32 // len H*W*Channels, row-major, channels interleaved
	FinalT   []float32 // len H*W
	FinalIdx []int32   // len H*W, index into Scene.SortedIDs
}

// background returns channel c of the background color.
func (s *Scene) background(c int) float32 {
	if s.Background == nil {
		return 0
	}
	return s.Background[c]
}

// alphaAt evaluates sorted entry i at pixel (px, py).
func (s *Scene) alphaAt(i int32, px, py int) (id int32, alpha, vis float32, clamped, ok bool) {
	id = s.SortedIDs[i]
	xy := s.XY[id]
	alpha, vis, clamped, ok = Alpha(s.Conics[id], s.Opacity[id], xy[0]-float32(px), xy[1]-float32(py))
	return id, alpha, vis, clamped, ok
}
