// Package project maps 3D Gaussians to screen-space 2D Gaussians.
//
// Each Gaussian is projected independently: its 3D covariance is built
// from scale and rotation, pushed through the local affine approximation
// (Jacobian) of the perspective transform, and inverted into a conic.
// Gaussians that are behind the camera, off screen, degenerate or
// non-finite are culled; culling is never an error.
package project

import (
	"math"

	"github.com/gogpu/splat/internal/geom"
	"github.com/gogpu/splat/internal/parallel"
)

const (
	// NearPlane is the minimum view-space depth of a visible mean.
	NearPlane = 0.1

	// lowPass is added to the diagonal of every screen covariance so each
	// splat covers at least about one pixel.
	lowPass = 0.3

	// frustumSlack widens the field of view used to clamp the Jacobian, so
	// splats centered just outside the image are still projected stably.
	frustumSlack = 1.3
)

// Camera holds the per-render view parameters.
type Camera struct {
	// View maps world space to camera space (rigid transform).
	View geom.Mat4

	// Proj maps world space to clip space, usually projection·view.
	Proj geom.Mat4

	Width, Height int
	Fx, Fy        float32
}

// Gaussian is one input splat.
type Gaussian struct {
	Mean  geom.Vec3
	Scale geom.Vec3
	Quat  [4]float32 // w, x, y, z

	// Color and Opacity are not projected; a non-finite value culls the
	// Gaussian so it never reaches a tile list.
	Color   []float32
	Opacity float32
}

// Projected is the screen-space form of one Gaussian.
type Projected struct {
	XY     [2]float32
	Conic  [3]float32 // inverse 2x2 covariance as (a, b, c)
	Radius int32      // bounding radius in pixels, 0 when culled
	Depth  float32    // view-space z
	Culled bool
}

// Project projects a single Gaussian. grid is used for the off-screen test.
func Project(g Gaussian, globScale float32, cam *Camera, grid parallel.Grid) Projected {
	culled := Projected{Culled: true}

	if !g.Mean.Finite() || !g.Scale.Finite() || !geom.Finite(globScale) {
		return culled
	}
	if !geom.Finite(g.Opacity) || !allFinite(g.Color) {
		return culled
	}

	pView := cam.View.TransformPoint(g.Mean)
	if !(pView.Z > NearPlane) {
		return culled
	}

	cov3d, ok := Covariance3D(g.Scale, globScale, g.Quat)
	if !ok {
		return culled
	}

	a, b, c := projectCovariance(pView, cov3d, cam)
	conic, radius, ok := conicAndRadius(a, b, c)
	if !ok {
		return culled
	}

	hx, hy, _, hw := cam.Proj.TransformHomogeneous(g.Mean)
	invW := 1 / (hw + 1e-6)
	xy := [2]float32{
		ndcToPixel(hx*invW, cam.Width),
		ndcToPixel(hy*invW, cam.Height),
	}
	if !geom.Finite(xy[0]) || !geom.Finite(xy[1]) {
		return culled
	}

	if !grid.CircleVisible(xy[0], xy[1], int(radius)) {
		return culled
	}

	return Projected{
		XY:     xy,
		Conic:  conic,
		Radius: radius,
		Depth:  pView.Z,
	}
}

// ProjectAll projects every Gaussian on the pool, one item per Gaussian.
// out must have the same length as gs.
func ProjectAll(pool *parallel.WorkerPool, gs []Gaussian, globScale float32, cam *Camera, out []Projected) {
	grid := parallel.NewGrid(cam.Width, cam.Height)
	pool.Run(len(gs), func(i int) {
		out[i] = Project(gs[i], globScale, cam, grid)
	})
}

// Covariance3D returns globScale² · R·diag(scale²)·Rᵗ as the six unique
// entries (xx, xy, xz, yy, yz, zz). ok is false for degenerate rotations
// and non-finite results.
func Covariance3D(scale geom.Vec3, globScale float32, quat [4]float32) (cov [6]float32, ok bool) {
	r, ok := geom.QuatToMat3(quat)
	if !ok {
		return cov, false
	}
	s := scale.Mul(globScale)
	// M = R·S, Σ = M·Mᵗ.
	m := r.Mul(geom.Mat3{
		s.X, 0, 0,
		0, s.Y, 0,
		0, 0, s.Z,
	})
	sigma := m.Mul(m.Transpose())
	if !sigma.Finite() {
		return cov, false
	}
	return [6]float32{
		sigma[0], sigma[1], sigma[2],
		sigma[4], sigma[5],
		sigma[8],
	}, true
}

// projectCovariance applies the EWA splatting approximation and returns the
// 2x2 screen covariance (a, b, c) = [[a, b], [b, c]].
func projectCovariance(t geom.Vec3, cov3d [6]float32, cam *Camera) (a, b, c float32) {
	tanFovX := 0.5 * float32(cam.Width) / cam.Fx
	tanFovY := 0.5 * float32(cam.Height) / cam.Fy
	limX := frustumSlack * tanFovX
	limY := frustumSlack * tanFovY

	tx := clamp(t.X/t.Z, -limX, limX) * t.Z
	ty := clamp(t.Y/t.Z, -limY, limY) * t.Z
	tz := t.Z

	j := geom.Mat3{
		cam.Fx / tz, 0, -cam.Fx * tx / (tz * tz),
		0, cam.Fy / tz, -cam.Fy * ty / (tz * tz),
		0, 0, 0,
	}
	w := cam.View.Rotation()
	m := j.Mul(w)

	v := geom.Mat3{
		cov3d[0], cov3d[1], cov3d[2],
		cov3d[1], cov3d[3], cov3d[4],
		cov3d[2], cov3d[4], cov3d[5],
	}
	cov := m.Mul(v).Mul(m.Transpose())

	return cov[0] + lowPass, cov[1], cov[4] + lowPass
}

// conicAndRadius inverts the screen covariance and derives the 3-sigma
// bounding radius from its largest eigenvalue.
func conicAndRadius(a, b, c float32) (conic [3]float32, radius int32, ok bool) {
	det := a*c - b*b
	if det == 0 || !geom.Finite(det) {
		return conic, 0, false
	}
	inv := 1 / det
	conic = [3]float32{c * inv, -b * inv, a * inv}

	mid := 0.5 * (a + c)
	disc := float32(math.Sqrt(float64(max(0.1, mid*mid-det))))
	lambda := max(mid+disc, mid-disc)
	if !(lambda > 0) || !geom.Finite(lambda) {
		return conic, 0, false
	}
	r := math.Ceil(3 * math.Sqrt(float64(lambda)))
	if r > math.MaxInt32 || !geom.Finite(conic[0]) || !geom.Finite(conic[1]) || !geom.Finite(conic[2]) {
		return conic, 0, false
	}
	return conic, int32(r), true
}

func allFinite(v []float32) bool {
	for _, x := range v {
		if !geom.Finite(x) {
			return false
		}
	}
	return true
}

func ndcToPixel(v float32, size int) float32 {
	return ((v+1)*float32(size) - 1) * 0.5
}

func clamp(v, lo, hi float32) float32 {
	return min(max(v, lo), hi)
}
