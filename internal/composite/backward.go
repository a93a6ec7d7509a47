package composite

import (
	"github.com/gogpu/splat/internal/parallel"
)

// Gradients receives the per-Gaussian derivatives of the loss.
// Both slices must be zeroed by the caller; Backward only adds to them.
type Gradients struct {
	Colors  []float32 // len N*Channels
	Opacity []float32 // len N
}

// Backward propagates dImage, the loss gradient for every output pixel
// (same layout as Frame.Image), back to the colors and opacities of the
// Gaussians composited by the forward pass that produced frame.
func Backward(pool *parallel.WorkerPool, s *Scene, frame *Frame, dImage []float32, grads *Gradients) {
	pool.Run(s.Grid.TileCount(), func(tile int) {
		backwardTile(s, tile, frame, dImage, grads)
	})
}

func backwardTile(s *Scene, tile int, frame *Frame, dImage []float32, grads *Gradients) {
	rng := s.TileBins[tile]
	bounds := s.Grid.TileBounds(tile)
	width := s.Grid.Width()
	ch := s.Channels
	acc := make([]float32, ch)

	for py := bounds.Y0; py < bounds.Y1; py++ {
		for px := bounds.X0; px < bounds.X1; px++ {
			pix := py*width + px
			dPix := dImage[pix*ch : (pix+1)*ch]
			if allZero(dPix) {
				continue
			}
			clear(acc)
			backwardPixel(s, rng.Start, frame.FinalIdx[pix], px, py, frame.FinalT[pix], dPix, acc, grads)
		}
	}
}

// backwardPixel walks entries last, last-1, ..., start at pixel (px, py).
// acc holds, per channel, the color composited behind the current entry.
func backwardPixel(s *Scene, start, last int32, px, py int, finalT float32, dPix, acc []float32, grads *Gradients) {
	ch := int32(s.Channels)
	t := finalT

	for i := last; i >= start; i-- {
		id, alpha, vis, clamped, ok := s.alphaAt(i, px, py)
		if !ok {
			continue
		}

		// Transmittance in front of entry i.
		ra := 1 / (1 - alpha)
		t *= ra

		rgb := s.Colors[id*ch : (id+1)*ch]
		dColor := grads.Colors[id*ch : (id+1)*ch]
		w := t * alpha

		var dAlpha float32
		for c := range acc {
			AtomicAdd(&dColor[c], w*dPix[c])
			dAlpha += (rgb[c]*t - acc[c]*ra - finalT*s.background(c)*ra) * dPix[c]
			acc[c] += rgb[c] * w
		}

		if !clamped {
			AtomicAdd(&grads.Opacity[id], vis*dAlpha)
		}
	}
}

func allZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
