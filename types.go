package splat

import (
	"math"

	"github.com/gogpu/splat/internal/binning"
	"github.com/gogpu/splat/internal/geom"
)

// Gaussians is a batch of N Gaussians in flat, row-major slices.
//
// The slices are read during Forward only; the engine copies what the
// backward pass needs into the SavedState.
type Gaussians struct {
	Means   []float32 // N*3 world-space centers
	Scales  []float32 // N*3 per-axis standard deviations
	Quats   []float32 // N*4 rotations as (w, x, y, z), normalized on use
	Colors  []float32 // N*Channels, nominally in [0, 1]
	Opacity []float32 // N, in [0, 1]

	// Channels is the number of color channels (C). Zero means 3.
	Channels int
}

// Len returns N, the number of Gaussians.
func (g *Gaussians) Len() int { return len(g.Opacity) }

func (g *Gaussians) channels() int {
	if g.Channels == 0 {
		return 3
	}
	return g.Channels
}

// validate checks that every slice holds N rows of the expected width.
func (g *Gaussians) validate() error {
	n, ch := g.Len(), g.channels()
	if ch < 0 {
		return &ShapeMismatchError{Input: "colors", Rows: n, Cols: ch, Want: [2]int{n, -1}}
	}
	for _, in := range []struct {
		name  string
		data  []float32
		width int
	}{
		{"means", g.Means, 3},
		{"scales", g.Scales, 3},
		{"quats", g.Quats, 4},
		{"colors", g.Colors, ch},
	} {
		if len(in.data) != n*in.width {
			return &ShapeMismatchError{
				Input: in.name,
				Rows:  len(in.data) / max(in.width, 1),
				Cols:  in.width,
				Want:  [2]int{n, in.width},
			}
		}
	}
	return nil
}

// Camera holds the per-render view parameters. Matrices are 4x4 row-major
// and transform column vectors.
type Camera struct {
	// View maps world space to view space (a rigid transform).
	View [16]float32

	// Proj maps world space to clip space. It usually includes the view
	// transform, that is Proj = projection * View.
	Proj [16]float32

	Width, Height int
	Fx, Fy        float32
}

func (c *Camera) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return ErrInvalidCamera
	}
	if !(c.Fx > 0) || !(c.Fy > 0) || math.IsInf(float64(c.Fx), 0) || math.IsInf(float64(c.Fy), 0) {
		return ErrInvalidCamera
	}
	return nil
}

// LookAlongZ returns a camera at eye looking down +z with a perspective
// projection of the given horizontal field of view in radians.
func LookAlongZ(eye [3]float32, fovX float64, width, height int) Camera {
	f := float32(0.5 * float64(width) / math.Tan(0.5*fovX))
	view := geom.Translation(geom.Vec3{X: -eye[0], Y: -eye[1], Z: -eye[2]})
	proj := geom.Perspective(f, f, width, height, 0.01, 1000).Mul(view)
	return Camera{
		View:   view,
		Proj:   proj,
		Width:  width,
		Height: height,
		Fx:     f,
		Fy:     f,
	}
}

// TileRange is the half-open range [Start, End) of Output.SortedIDs that
// belongs to one tile.
type TileRange = binning.Range

// Output holds the results of one forward render. All slices are owned
// by the caller.
type Output struct {
	Width, Height, Channels int

	// NumRendered is the number of (Gaussian, tile) overlaps, the length
	// of SortedIDs.
	NumRendered int

	Image    []float32 // H*W*C, row-major, channels interleaved
	Radii    []int32   // N, screen radius in pixels, 0 when culled
	FinalT   []float32 // H*W, transmittance left after each pixel's walk
	FinalIdx []int32   // H*W, last entry of SortedIDs walked per pixel

	SortedIDs []int32     // Gaussian ids ordered by (tile, depth)
	TileBins  []TileRange // one per tile, row-major

	XY     []float32 // N*2 screen-space centers
	Conics []float32 // N*3 inverse screen covariances (a, b, c)
}

// Params is a set of differentiable Gaussian parameters.
type Params uint32

const (
	ParamMeans Params = 1 << iota
	ParamScales
	ParamRotations
	ParamColors
	ParamOpacity
)

// AllParams is the set of every Gaussian parameter.
const AllParams = ParamMeans | ParamScales | ParamRotations | ParamColors | ParamOpacity

// Has reports whether every parameter in q is in p.
func (p Params) Has(q Params) bool { return p&q == q }

func (p Params) String() string {
	if p == 0 {
		return "none"
	}
	names := []string{"means", "scales", "rotations", "colors", "opacity"}
	s := ""
	for i, name := range names {
		if p&(1<<i) != 0 {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	return s
}

// Gradients holds the loss gradients produced by one Backward call.
type Gradients struct {
	Colors  []float32 // N*C, nil unless ParamColors was requested
	Opacity []float32 // N, nil unless ParamOpacity was requested
}

// Grad returns the gradient for p. ok is false, the "no gradient" signal,
// for parameters that were not differentiated.
func (g *Gradients) Grad(p Params) (grad []float32, ok bool) {
	switch p {
	case ParamColors:
		return g.Colors, g.Colors != nil
	case ParamOpacity:
		return g.Opacity, g.Opacity != nil
	default:
		return nil, false
	}
}
