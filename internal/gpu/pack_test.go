//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/splat"
)

func testJob() *splat.CompositeJob {
	return &splat.CompositeJob{
		Width: 20, Height: 10, Channels: 3,
		Threshold:  1.0 / 255,
		Background: []float32{0.1, 0.2, 0.3},
		XY:         [][2]float32{{1, 2}, {15, 7}},
		Conics:     [][3]float32{{0.5, 0.1, 0.25}, {1, 0, 1}},
		Colors:     []float32{1, 0, 0, 0, 1, 0},
		Opacity:    []float32{0.5, 0.9},
		SortedIDs:  []int32{1, 0, 1},
		TileBins:   []splat.TileRange{{Start: 0, End: 2}, {Start: 2, End: 3}},
		Image:      make([]float32, 20*10*3),
		FinalT:     make([]float32, 20*10),
		FinalIdx:   make([]int32, 20*10),
	}
}

func f32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func u32At(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

func TestPackJob_Config(t *testing.T) {
	p, err := packJob(testJob())
	if err != nil {
		t.Fatalf("packJob: %v", err)
	}
	if len(p.config) != configSize {
		t.Fatalf("config size = %d, want %d", len(p.config), configSize)
	}

	if f32At(p.config, 0) != 0.1 || f32At(p.config, 8) != 0.3 || f32At(p.config, 12) != 0 {
		t.Error("background not packed into the first vec4")
	}
	checks := []struct {
		name string
		off  int
		want uint32
	}{
		{"width", 16, 20},
		{"height", 20, 10},
		{"channels", 24, 3},
		{"tiles_x", 28, 2},
		{"pixel_count", 36, 200},
	}
	for _, c := range checks {
		if got := u32At(p.config, c.off); got != c.want {
			t.Errorf("%s = %d, want %d", c.name, got, c.want)
		}
	}
	if f32At(p.config, 32) != float32(1.0/255) {
		t.Errorf("threshold = %v", f32At(p.config, 32))
	}
	if p.tilesX != 2 || p.tilesY != 1 {
		t.Errorf("dispatch = %dx%d, want 2x1", p.tilesX, p.tilesY)
	}
}

func TestPackJob_Buffers(t *testing.T) {
	p, err := packJob(testJob())
	if err != nil {
		t.Fatalf("packJob: %v", err)
	}

	// Splat 1: xy (15, 7), opacity 0.9, conic (1, 0, 1).
	s := p.splats[splatSize:]
	if f32At(s, 0) != 15 || f32At(s, 4) != 7 || f32At(s, 8) != 0.9 || f32At(s, 16) != 1 || f32At(s, 24) != 1 {
		t.Error("splat 1 packed incorrectly")
	}
	// Colors are padded to vec4.
	if len(p.colors) != 2*colorSize || f32At(p.colors, colorSize+4) != 1 || f32At(p.colors, colorSize+12) != 0 {
		t.Error("colors packed incorrectly")
	}
	if u32At(p.sortedIDs, 0) != 1 || u32At(p.sortedIDs, 8) != 1 {
		t.Error("sorted ids packed incorrectly")
	}
	if u32At(p.tileBins, 8) != 2 || u32At(p.tileBins, 12) != 3 {
		t.Error("tile bins packed incorrectly")
	}
	if p.layout.size() != uint64(200*3+2*200)*4 {
		t.Errorf("frame size = %d", p.layout.size())
	}
}

func TestPackJob_EmptyScene(t *testing.T) {
	job := testJob()
	job.XY, job.Conics, job.Colors, job.Opacity = nil, nil, nil, nil
	job.SortedIDs = nil
	job.TileBins = []splat.TileRange{{}, {}}

	p, err := packJob(job)
	if err != nil {
		t.Fatalf("packJob: %v", err)
	}
	if len(p.splats) == 0 || len(p.colors) == 0 || len(p.sortedIDs) == 0 {
		t.Error("empty inputs produced zero-sized buffers")
	}
}

func TestPackJob_Rejects(t *testing.T) {
	tooWide := testJob()
	tooWide.Channels = MaxChannels + 1
	if _, err := packJob(tooWide); !errors.Is(err, splat.ErrFallbackToCPU) {
		t.Errorf("%d channels: error = %v, want ErrFallbackToCPU", tooWide.Channels, err)
	}

	badBins := testJob()
	badBins.TileBins = badBins.TileBins[:1]
	if _, err := packJob(badBins); err == nil || !strings.Contains(err.Error(), "tile bins") {
		t.Errorf("short tile bins: error = %v", err)
	}
}

func TestUnpackFrame(t *testing.T) {
	job := testJob()
	l := frameLayout{pixels: 200, channels: 3}
	data := make([]byte, l.words()*4)
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(0.75))
	binary.LittleEndian.PutUint32(data[(600+5)*4:], math.Float32bits(0.25))
	binary.LittleEndian.PutUint32(data[(800+5)*4:], uint32(0xFFFFFFFF))

	if err := unpackFrame(data, l, job); err != nil {
		t.Fatalf("unpackFrame: %v", err)
	}
	if job.Image[1] != 0.75 {
		t.Errorf("Image[1] = %v, want 0.75", job.Image[1])
	}
	if job.FinalT[5] != 0.25 {
		t.Errorf("FinalT[5] = %v, want 0.25", job.FinalT[5])
	}
	if job.FinalIdx[5] != -1 {
		t.Errorf("FinalIdx[5] = %d, want -1", job.FinalIdx[5])
	}

	if err := unpackFrame(data[:8], l, job); err == nil {
		t.Error("short readback accepted")
	}
}
