package main

import (
	"bytes"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/splat"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	cfg := config{
		width: 48, height: 32, points: 64, seed: 3,
		steps: 3, lr: 0.5,
		output:  filepath.Join(dir, "out.png"),
		preview: 24,
	}
	var logs bytes.Buffer
	if err := run(cfg, slog.New(slog.NewTextHandler(&logs, nil))); err != nil {
		t.Fatalf("run: %v", err)
	}

	f, err := os.Open(cfg.output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 48 || b.Dy() != 32 {
		t.Errorf("output size = %v, want 48x32", b)
	}
	if _, err := os.Stat(filepath.Join(dir, "out_preview.png")); err != nil {
		t.Errorf("preview missing: %v", err)
	}
}

func TestRun_TIFF(t *testing.T) {
	cfg := config{width: 16, height: 16, points: 8, seed: 1, output: filepath.Join(t.TempDir(), "out.tiff")}
	if err := run(cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRun_Frame(t *testing.T) {
	cfg := config{width: 24, height: 16, points: 16, seed: 2, output: filepath.Join(t.TempDir(), "out.zst")}
	if err := run(cfg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))); err != nil {
		t.Fatalf("run: %v", err)
	}
	f, err := os.Open(cfg.output)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	out, err := splat.DecodeFrame(f)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if out.Width != 24 || out.Height != 16 || out.Channels != 3 {
		t.Errorf("frame = %dx%dx%d, want 24x16x3", out.Width, out.Height, out.Channels)
	}
}

func TestFit_ReducesLoss(t *testing.T) {
	mse := func(steps int) float64 {
		cfg := config{width: 32, height: 32, points: 128, seed: 5, steps: steps, lr: 0.5, output: filepath.Join(t.TempDir(), "x.png")}
		var logs bytes.Buffer
		if err := run(cfg, slog.New(slog.NewTextHandler(&logs, nil))); err != nil {
			t.Fatal(err)
		}
		f, err := os.Open(cfg.output)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		img, err := png.Decode(f)
		if err != nil {
			t.Fatal(err)
		}
		var sum float64
		b := img.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				for _, v := range []uint32{r, g, bl} {
					d := float64(v)/0xffff - 1
					sum += d * d
				}
			}
		}
		return sum
	}
	if before, after := mse(0), mse(10); after >= before {
		t.Errorf("loss did not decrease: %v -> %v", before, after)
	}
}

func TestRandomScene(t *testing.T) {
	g := randomScene(9, 100)
	if g.Len() != 100 || len(g.Means) != 300 || len(g.Quats) != 400 {
		t.Fatalf("unexpected shapes: %d gaussians", g.Len())
	}
	for i, v := range g.Means {
		if v < -1 || v > 1 {
			t.Fatalf("Means[%d] = %v outside the cube", i, v)
		}
	}
}
