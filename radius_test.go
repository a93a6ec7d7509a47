package splat

import (
	"errors"
	"sync"
	"testing"
)

func TestRadiusTracker(t *testing.T) {
	rt := NewRadiusTracker(4)

	steps := [][]int32{
		{0, 3, 0, 1},
		{2, 1, 0, 5},
		{1, 7, 0, 0},
	}
	for _, radii := range steps {
		if err := rt.Update(radii); err != nil {
			t.Fatalf("Update(%v) = %v", radii, err)
		}
	}

	want := []int32{2, 7, 0, 5}
	got := rt.Max()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Max()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if v := rt.Visible(); v != 3 {
		t.Errorf("Visible() = %d, want 3", v)
	}

	got[0] = 100
	if rt.Max()[0] != 2 {
		t.Error("Max() returned the internal slice")
	}
}

func TestRadiusTracker_ShapeMismatch(t *testing.T) {
	rt := NewRadiusTracker(3)
	if err := rt.Update([]int32{1, 2}); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Update with 2 radii = %v, want ErrShapeMismatch", err)
	}
}

func TestRadiusTracker_Reset(t *testing.T) {
	rt := NewRadiusTracker(3)
	_ = rt.Update([]int32{4, 4, 4})

	rt.Reset(2)
	if m := rt.Max(); len(m) != 2 || m[0] != 0 || m[1] != 0 {
		t.Errorf("after Reset(2): Max() = %v, want [0 0]", m)
	}
	rt.Reset(5)
	if m := rt.Max(); len(m) != 5 {
		t.Errorf("after Reset(5): len = %d, want 5", len(m))
	}
}

func TestRadiusTracker_FromRender(t *testing.T) {
	r := newTestRasterizer(t, WithDifferentiable(0))
	g := randomScene(30, 20, 3)
	g.Means[2] = -50 // behind the camera

	rt := NewRadiusTracker(g.Len())
	out, _, err := r.Forward(g, 1, testCamera(32, 32))
	if err != nil {
		t.Fatal(err)
	}
	if err := rt.Update(out.Radii); err != nil {
		t.Fatal(err)
	}
	if rt.Max()[0] != 0 {
		t.Errorf("culled Gaussian has radius %d", rt.Max()[0])
	}
	if rt.Visible() == 0 {
		t.Error("no Gaussian visible")
	}
}

func TestRadiusTracker_Concurrent(t *testing.T) {
	rt := NewRadiusTracker(8)
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			radii := make([]int32, 8)
			for k := range radii {
				radii[k] = int32(i)
			}
			_ = rt.Update(radii)
		}()
	}
	wg.Wait()
	for k, m := range rt.Max() {
		if m != 15 {
			t.Errorf("Max()[%d] = %d, want 15", k, m)
		}
	}
}
