package splat

import (
	"errors"
	"testing"
)

// tensorInput converts a Gaussians batch and camera into tensor form.
func tensorInput(g *Gaussians, cam *Camera) *RasterizeInput {
	n, ch := g.Len(), g.channels()
	return &RasterizeInput{
		Means:     Tensor{Rows: n, Cols: 3, Data: g.Means},
		Scales:    Tensor{Rows: n, Cols: 3, Data: g.Scales},
		Quats:     Tensor{Rows: n, Cols: 4, Data: g.Quats},
		Colors:    Tensor{Rows: n, Cols: ch, Data: g.Colors},
		Opacity:   Tensor{Rows: n, Cols: 1, Data: g.Opacity},
		GlobScale: 1,
		View:      Tensor{Rows: 4, Cols: 4, Data: cam.View[:]},
		Proj:      Tensor{Rows: 4, Cols: 4, Data: cam.Proj[:]},
		Width:     cam.Width,
		Height:    cam.Height,
		Fx:        cam.Fx,
		Fy:        cam.Fy,
	}
}

func TestRasterize_MatchesForward(t *testing.T) {
	r := newTestRasterizer(t, WithDifferentiable(0))
	g := randomScene(20, 30, 3)
	cam := testCamera(24, 16)

	want, _, err := r.Forward(g, 1, cam)
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := Rasterize(r, tensorInput(g, cam))
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	for i := range want.Image {
		if got.Image[i] != want.Image[i] {
			t.Fatalf("image[%d] = %v, want %v", i, got.Image[i], want.Image[i])
		}
	}
}

func TestRasterize_ShapeMismatch(t *testing.T) {
	r := newTestRasterizer(t)
	g := randomScene(21, 4, 3)
	cam := testCamera(8, 8)

	tests := []struct {
		name   string
		modify func(in *RasterizeInput)
		input  string
	}{
		{"scales rows", func(in *RasterizeInput) {
			in.Scales = Tensor{Rows: 3, Cols: 3, Data: in.Scales.Data[:9]}
		}, "scales"},
		{"quats cols", func(in *RasterizeInput) {
			in.Quats = Tensor{Rows: 4, Cols: 3, Data: in.Quats.Data[:12]}
		}, "quats"},
		{"opacity flat", func(in *RasterizeInput) {
			in.Opacity = Tensor{Rows: 1, Cols: 4, Data: in.Opacity.Data}
		}, "opacity"},
		{"colors data short", func(in *RasterizeInput) {
			in.Colors.Data = in.Colors.Data[:6]
		}, "colors"},
		{"colors zero cols", func(in *RasterizeInput) {
			in.Colors = Tensor{Rows: 4, Cols: 0}
		}, "colors"},
		{"colors8 rows", func(in *RasterizeInput) {
			in.Colors8 = &ByteTensor{Rows: 2, Cols: 3, Data: make([]uint8, 6)}
		}, "colors"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tensorInput(g, cam)
			tt.modify(in)
			_, _, err := Rasterize(r, in)
			var shapeErr *ShapeMismatchError
			if !errors.As(err, &shapeErr) {
				t.Fatalf("Rasterize() error = %v, want *ShapeMismatchError", err)
			}
			if shapeErr.Input != tt.input {
				t.Errorf("Input = %q, want %q", shapeErr.Input, tt.input)
			}
			if !errors.Is(err, ErrShapeMismatch) {
				t.Error("error does not match ErrShapeMismatch")
			}
		})
	}
}

func TestRasterize_CameraMatrix(t *testing.T) {
	r := newTestRasterizer(t, WithDifferentiable(0))
	g := randomScene(22, 10, 3)
	cam := testCamera(16, 16)

	want, _, err := r.Forward(g, 1, cam)
	if err != nil {
		t.Fatal(err)
	}

	// The view is rigid: its top 3x4 block determines it.
	in := tensorInput(g, cam)
	in.View = Tensor{Rows: 3, Cols: 4, Data: cam.View[:12]}
	got, _, err := Rasterize(r, in)
	if err != nil {
		t.Fatalf("3x4 view: %v", err)
	}
	for i := range want.Image {
		if got.Image[i] != want.Image[i] {
			t.Fatalf("3x4 view: image[%d] = %v, want %v", i, got.Image[i], want.Image[i])
		}
	}

	for _, bad := range []Tensor{
		{Rows: 2, Cols: 4, Data: make([]float32, 8)},
		{Rows: 4, Cols: 3, Data: make([]float32, 12)},
		{Rows: 4, Cols: 4, Data: make([]float32, 12)},
	} {
		in := tensorInput(g, cam)
		in.Proj = bad
		if _, _, err := Rasterize(r, in); !errors.Is(err, ErrInvalidCameraMatrix) {
			t.Errorf("proj %dx%d (%d values): error = %v, want ErrInvalidCameraMatrix",
				bad.Rows, bad.Cols, len(bad.Data), err)
		}
	}
}

func TestCameraMatrix_PadsLastRow(t *testing.T) {
	data := make([]float32, 12)
	for i := range data {
		data[i] = float32(i + 1)
	}
	m, err := cameraMatrix("view", &Tensor{Rows: 3, Cols: 4, Data: data})
	if err != nil {
		t.Fatal(err)
	}
	for i := range 12 {
		if m[i] != data[i] {
			t.Errorf("m[%d] = %v, want %v", i, m[i], data[i])
		}
	}
	if m[12] != 0 || m[13] != 0 || m[14] != 0 || m[15] != 1 {
		t.Errorf("last row = %v, want [0 0 0 1]", m[12:])
	}
}

func TestRasterize_Colors8(t *testing.T) {
	r := newTestRasterizer(t, WithDifferentiable(0))
	g := sheet([]float32{0}, []float32{1}, []float32{1, 0, 0})
	cam := testCamera(4, 4)

	in := tensorInput(g, cam)
	in.Colors = Tensor{}
	in.Colors8 = &ByteTensor{Rows: 1, Cols: 3, Data: []uint8{255, 51, 0}}

	out, _, err := Rasterize(r, in)
	if err != nil {
		t.Fatalf("Rasterize: %v", err)
	}
	rgb := out.Image[5*3 : 5*3+3]
	if !near(rgb[0], 0.99, 0.01) || !near(rgb[1], 0.2*0.99, 0.01) || rgb[2] != 0 {
		t.Errorf("pixel = %v, want ~(0.99, 0.198, 0)", rgb)
	}
}

func TestNoGradient(t *testing.T) {
	r := newTestRasterizer(t)
	got := NoGradient(r)
	want := []string{"means", "scales", "quats", "glob_scale", "view", "proj"}
	if len(got) != len(want) {
		t.Fatalf("NoGradient() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("NoGradient()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
