package splat

import (
	"fmt"
)

// Tensor is a row-major 2-D float32 tensor.
type Tensor struct {
	Rows, Cols int
	Data       []float32
}

// ByteTensor is a row-major 2-D tensor of 8-bit values.
type ByteTensor struct {
	Rows, Cols int
	Data       []uint8
}

// RasterizeInput is the tensor form of one render call.
type RasterizeInput struct {
	Means   Tensor // N x 3
	Scales  Tensor // N x 3
	Quats   Tensor // N x 4, (w, x, y, z)
	Colors  Tensor // N x C; ignored when Colors8 is set
	Opacity Tensor // N x 1

	// Colors8 optionally supplies N x C colors in 0..255. They are
	// divided by 255 before rendering.
	Colors8 *ByteTensor

	GlobScale float32

	// View and Proj are 4x4 or 3x4; a 3x4 matrix gets the row [0 0 0 1].
	View, Proj Tensor

	Width, Height int
	Fx, Fy        float32
}

// Rasterize validates and normalizes tensor inputs and renders them with
// engine.
//
// Every per-Gaussian tensor must be a true 2-D tensor whose row count is
// N, the number of means; otherwise a *ShapeMismatchError is returned. A
// camera matrix that is neither 3x4 nor 4x4 returns
// ErrInvalidCameraMatrix. No rendering work happens on either failure.
func Rasterize(engine Engine, in *RasterizeInput) (*Output, *SavedState, error) {
	g, cam, err := prepare(in)
	if err != nil {
		return nil, nil, err
	}
	return engine.Forward(g, in.GlobScale, cam)
}

func prepare(in *RasterizeInput) (*Gaussians, *Camera, error) {
	n := in.Means.Rows

	colors := in.Colors
	if in.Colors8 != nil {
		c8 := in.Colors8
		if err := checkByteTensor("colors", c8, n); err != nil {
			return nil, nil, err
		}
		colors = Tensor{Rows: c8.Rows, Cols: c8.Cols, Data: make([]float32, len(c8.Data))}
		for i, v := range c8.Data {
			colors.Data[i] = float32(v) / 255
		}
	}

	for _, t := range []struct {
		name string
		t    *Tensor
		cols int
	}{
		{"means", &in.Means, 3},
		{"scales", &in.Scales, 3},
		{"quats", &in.Quats, 4},
		{"colors", &colors, -1},
		{"opacity", &in.Opacity, 1},
	} {
		if err := checkTensor(t.name, t.t, n, t.cols); err != nil {
			return nil, nil, err
		}
	}
	if colors.Cols < 1 {
		return nil, nil, &ShapeMismatchError{Input: "colors", Rows: colors.Rows, Cols: colors.Cols, Want: [2]int{n, -1}}
	}

	view, err := cameraMatrix("view", &in.View)
	if err != nil {
		return nil, nil, err
	}
	proj, err := cameraMatrix("proj", &in.Proj)
	if err != nil {
		return nil, nil, err
	}

	g := &Gaussians{
		Means:    in.Means.Data,
		Scales:   in.Scales.Data,
		Quats:    in.Quats.Data,
		Colors:   colors.Data,
		Opacity:  in.Opacity.Data,
		Channels: colors.Cols,
	}
	cam := &Camera{
		View:   view,
		Proj:   proj,
		Width:  in.Width,
		Height: in.Height,
		Fx:     in.Fx,
		Fy:     in.Fy,
	}
	return g, cam, nil
}

// checkTensor verifies rows == n, the column count (cols < 0 accepts any)
// and that Data holds exactly Rows*Cols values.
func checkTensor(name string, t *Tensor, n, cols int) error {
	if t.Rows != n || (cols >= 0 && t.Cols != cols) || len(t.Data) != t.Rows*t.Cols {
		return &ShapeMismatchError{Input: name, Rows: t.Rows, Cols: t.Cols, Want: [2]int{n, cols}}
	}
	return nil
}

func checkByteTensor(name string, t *ByteTensor, n int) error {
	if t.Rows != n || len(t.Data) != t.Rows*t.Cols {
		return &ShapeMismatchError{Input: name, Rows: t.Rows, Cols: t.Cols, Want: [2]int{n, -1}}
	}
	return nil
}

// cameraMatrix returns m as 4x4, padding a 3x4 matrix with [0 0 0 1].
func cameraMatrix(name string, m *Tensor) ([16]float32, error) {
	var out [16]float32
	if len(m.Data) != m.Rows*m.Cols || m.Cols != 4 || (m.Rows != 3 && m.Rows != 4) {
		return out, fmt.Errorf("%w: %s is %dx%d", ErrInvalidCameraMatrix, name, m.Rows, m.Cols)
	}
	copy(out[:], m.Data)
	if m.Rows == 3 {
		out[15] = 1
	}
	return out, nil
}

// NoGradient reports the inputs of Rasterize that never receive a
// gradient from the given engine: everything outside its capabilities,
// plus the camera, which no engine differentiates.
func NoGradient(engine Engine) []string {
	caps := engine.Capabilities()
	var out []string
	for _, p := range []struct {
		param Params
		name  string
	}{
		{ParamMeans, "means"},
		{ParamScales, "scales"},
		{ParamRotations, "quats"},
		{ParamColors, "colors"},
		{ParamOpacity, "opacity"},
	} {
		if !caps.Has(p.param) {
			out = append(out, p.name)
		}
	}
	return append(out, "glob_scale", "view", "proj")
}
