// Command splatdemo renders a random cloud of Gaussians and optionally
// fits its colors and opacities to a constant target image by gradient
// descent.
package main

import (
	"flag"
	"fmt"
	"image/png"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/gogpu/splat"
	"github.com/gogpu/splat/gpu"
)

func main() {
	var (
		width   = flag.Int("width", 256, "image width")
		height  = flag.Int("height", 256, "image height")
		points  = flag.Int("points", 2048, "number of Gaussians")
		seed    = flag.Uint64("seed", 1, "random seed")
		steps   = flag.Int("steps", 0, "optimization steps towards a white image")
		lr      = flag.Float64("lr", 0.5, "learning rate")
		useGPU  = flag.Bool("gpu", false, "composite on the GPU when available")
		output  = flag.String("output", "splat.png", "output file (.png, .tiff, or .zst for a float frame)")
		preview = flag.Int("preview", 0, "also write a preview scaled to this width")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	splat.SetLogger(logger)

	if err := run(config{
		width: *width, height: *height, points: *points, seed: *seed,
		steps: *steps, lr: float32(*lr), gpu: *useGPU,
		output: *output, preview: *preview,
	}, logger); err != nil {
		logger.Error("splatdemo failed", "err", err)
		os.Exit(1)
	}
}

type config struct {
	width, height int
	points        int
	seed          uint64
	steps         int
	lr            float32
	gpu           bool
	output        string
	preview       int
}

func run(cfg config, logger *slog.Logger) error {
	var opts []splat.Option
	if cfg.gpu {
		opts = append(opts, splat.WithAccelerator(gpu.NewAccelerator()))
	}
	if cfg.steps == 0 {
		opts = append(opts, splat.WithDifferentiable(0))
	}
	r, err := splat.NewRasterizer(opts...)
	if err != nil {
		return err
	}
	defer r.Close()

	g := randomScene(cfg.seed, cfg.points)
	cam := splat.LookAlongZ([3]float32{0, 0, -8}, math.Pi/2, cfg.width, cfg.height)
	radii := splat.NewRadiusTracker(g.Len())

	out, err := fit(r, g, &cam, cfg, radii, logger)
	if err != nil {
		return err
	}
	logger.Info("rendered",
		"engine", r.Name(),
		"overlaps", out.NumRendered,
		"visible", radii.Visible(),
		"gaussians", g.Len())

	if err := save(out, cfg.output); err != nil {
		return err
	}
	logger.Info("saved", "path", cfg.output, "size", fmt.Sprintf("%dx%d", out.Width, out.Height))

	if cfg.preview > 0 {
		h := max(1, cfg.preview*out.Height/out.Width)
		path := strings.TrimSuffix(cfg.output, filepath.Ext(cfg.output)) + "_preview.png"
		f, err := os.Create(path) //nolint:gosec // path derives from a user flag
		if err != nil {
			return err
		}
		if err := png.Encode(f, out.Scaled(cfg.preview, h)); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		logger.Info("saved preview", "path", path)
	}
	return nil
}

// fit runs cfg.steps gradient steps on colors and opacities against a
// white target, then returns a final render.
func fit(r *splat.Rasterizer, g *splat.Gaussians, cam *splat.Camera, cfg config, radii *splat.RadiusTracker, logger *slog.Logger) (*splat.Output, error) {
	for step := range cfg.steps {
		out, state, err := r.Forward(g, 1, cam)
		if err != nil {
			return nil, err
		}
		if err := radii.Update(out.Radii); err != nil {
			state.Release()
			return nil, err
		}

		// d(MSE)/d(pixel) against an all-ones target.
		scale := 2 / float32(len(out.Image))
		dImage := make([]float32, len(out.Image))
		var loss float64
		for i, v := range out.Image {
			d := v - 1
			loss += float64(d * d)
			dImage[i] = scale * d
		}
		loss /= float64(len(out.Image))

		grads, err := r.Backward(state, dImage)
		if err != nil {
			return nil, err
		}
		// Per-pixel gradients are tiny; rescale by the pixel count so the
		// learning rate is resolution independent.
		lr := cfg.lr * float32(out.Width*out.Height) / float32(g.Len())
		for i, d := range grads.Colors {
			g.Colors[i] = clamp01(g.Colors[i] - lr*d)
		}
		for i, d := range grads.Opacity {
			g.Opacity[i] = clamp01(g.Opacity[i] - lr*d)
		}
		logger.Info("step", "n", step, "mse", loss)
	}

	out, state, err := r.Forward(g, 1, cam)
	if err != nil {
		return nil, err
	}
	if state != nil {
		state.Release()
	}
	return out, radii.Update(out.Radii)
}

func save(out *splat.Output, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		return out.SaveTIFF(path)
	case ".zst":
		return out.SaveFrame(path)
	default:
		return out.SavePNG(path)
	}
}

// randomScene places n Gaussians in a cube of side 2 around the origin,
// with random scales, colors and uniformly distributed rotations.
func randomScene(seed uint64, n int) *splat.Gaussians {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	g := &splat.Gaussians{
		Means:   make([]float32, n*3),
		Scales:  make([]float32, n*3),
		Quats:   make([]float32, n*4),
		Colors:  make([]float32, n*3),
		Opacity: make([]float32, n),
	}
	const bd = 2
	for i := range n {
		for k := range 3 {
			g.Means[i*3+k] = bd * (rng.Float32() - 0.5)
			g.Scales[i*3+k] = rng.Float32()
			g.Colors[i*3+k] = rng.Float32()
		}
		u, v, w := rng.Float64(), rng.Float64(), rng.Float64()
		g.Quats[i*4+0] = float32(math.Sqrt(1-u) * math.Sin(2*math.Pi*v))
		g.Quats[i*4+1] = float32(math.Sqrt(1-u) * math.Cos(2*math.Pi*v))
		g.Quats[i*4+2] = float32(math.Sqrt(u) * math.Sin(2*math.Pi*w))
		g.Quats[i*4+3] = float32(math.Sqrt(u) * math.Cos(2*math.Pi*w))
		g.Opacity[i] = 0.9
	}
	return g
}

func clamp01(v float32) float32 {
	return min(max(v, 0), 1)
}
