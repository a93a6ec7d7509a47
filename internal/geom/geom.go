// Package geom provides the small float32 linear algebra used by the
// splat projector: 3-vectors, 3x3 and 4x4 row-major matrices, and
// quaternion rotations.
package geom

import "math"

// Vec3 is a 3-component vector.
type Vec3 struct {
	X, Y, Z float32
}

// Add returns v + w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{X: v.X + w.X, Y: v.Y + w.Y, Z: v.Z + w.Z}
}

// Mul returns v scaled by s.
func (v Vec3) Mul(s float32) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Finite reports whether every component is finite.
func (v Vec3) Finite() bool {
	return Finite(v.X) && Finite(v.Y) && Finite(v.Z)
}

// Mat3 is a 3x3 matrix in row-major order.
//
//	| 0 1 2 |
//	| 3 4 5 |
//	| 6 7 8 |
type Mat3 [9]float32

// At returns the element at row r, column c.
func (m Mat3) At(r, c int) float32 {
	return m[r*3+c]
}

// Mul returns the product m * n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = m[r*3]*n[c] + m[r*3+1]*n[3+c] + m[r*3+2]*n[6+c]
		}
	}
	return out
}

// Transpose returns mᵗ.
func (m Mat3) Transpose() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Finite reports whether every element is finite.
func (m Mat3) Finite() bool {
	for _, v := range m {
		if !Finite(v) {
			return false
		}
	}
	return true
}

// Mat4 is a 4x4 matrix in row-major order. Points are column vectors,
// so the translation lives in elements 3, 7 and 11.
type Mat4 [16]float32

// Identity4 returns the 4x4 identity matrix.
func Identity4() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// TransformPoint applies the upper 3x4 block of m to p (w = 1).
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	return Vec3{
		X: m[0]*p.X + m[1]*p.Y + m[2]*p.Z + m[3],
		Y: m[4]*p.X + m[5]*p.Y + m[6]*p.Z + m[7],
		Z: m[8]*p.X + m[9]*p.Y + m[10]*p.Z + m[11],
	}
}

// TransformHomogeneous applies m to (p, 1) and returns all four components.
func (m Mat4) TransformHomogeneous(p Vec3) (x, y, z, w float32) {
	x = m[0]*p.X + m[1]*p.Y + m[2]*p.Z + m[3]
	y = m[4]*p.X + m[5]*p.Y + m[6]*p.Z + m[7]
	z = m[8]*p.X + m[9]*p.Y + m[10]*p.Z + m[11]
	w = m[12]*p.X + m[13]*p.Y + m[14]*p.Z + m[15]
	return x, y, z, w
}

// Mul returns m·n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m[r*4+k] * n[k*4+c]
			}
			out[r*4+c] = sum
		}
	}
	return out
}

// Perspective returns a projection looking down +z whose clip-space x and
// y map the focal lengths fx, fy onto an image of width x height pixels.
// Depth is mapped to [-1, 1] between near and far.
func Perspective(fx, fy float32, width, height int, near, far float32) Mat4 {
	return Mat4{
		2 * fx / float32(width), 0, 0, 0,
		0, 2 * fy / float32(height), 0, 0,
		0, 0, (far + near) / (far - near), -2 * far * near / (far - near),
		0, 0, 1, 0,
	}
}

// Translation returns a transform that moves points by t.
func Translation(t Vec3) Mat4 {
	m := Identity4()
	m[3], m[7], m[11] = t.X, t.Y, t.Z
	return m
}

// Rotation returns the upper-left 3x3 block of m.
func (m Mat4) Rotation() Mat3 {
	return Mat3{
		m[0], m[1], m[2],
		m[4], m[5], m[6],
		m[8], m[9], m[10],
	}
}

// QuatToMat3 converts a quaternion in [w, x, y, z] order to a rotation
// matrix. The quaternion is normalized first; ok is false when it has zero
// or non-finite length.
func QuatToMat3(q [4]float32) (m Mat3, ok bool) {
	n2 := float64(q[0])*float64(q[0]) + float64(q[1])*float64(q[1]) +
		float64(q[2])*float64(q[2]) + float64(q[3])*float64(q[3])
	if n2 == 0 || math.IsNaN(n2) || math.IsInf(n2, 0) {
		return Mat3{}, false
	}
	inv := float32(1 / math.Sqrt(n2))
	w, x, y, z := q[0]*inv, q[1]*inv, q[2]*inv, q[3]*inv

	return Mat3{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}, true
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
