package composite

import (
	"github.com/gogpu/splat/internal/parallel"
)

// Forward composites every pixel of the scene into frame, one pool task
// per tile. threshold is the early-exit transmittance; 0 walks every
// tile range to completion.
func Forward(pool *parallel.WorkerPool, s *Scene, threshold float32, frame *Frame) {
	pool.Run(s.Grid.TileCount(), func(tile int) {
		forwardTile(s, tile, threshold, frame)
	})
}

func forwardTile(s *Scene, tile int, threshold float32, frame *Frame) {
	rng := s.TileBins[tile]
	bounds := s.Grid.TileBounds(tile)
	width := s.Grid.Width()
	ch := s.Channels

	for py := bounds.Y0; py < bounds.Y1; py++ {
		for px := bounds.X0; px < bounds.X1; px++ {
			pix := py*width + px
			color := frame.Image[pix*ch : (pix+1)*ch]
			clear(color)

			t, last := walkPixel(s, rng.Start, rng.End, px, py, threshold, color, nil)

			for c := range color {
				color[c] += t * s.background(c)
			}
			frame.FinalT[pix] = t
			frame.FinalIdx[pix] = last
		}
	}
}

// walkPixel composites entries [start, end) at pixel (px, py) into color
// and returns the final transmittance and the index of the last entry
// walked (start-1 when the range is empty). visit, if non-nil, is called
// with the transmittance after every composited entry.
func walkPixel(s *Scene, start, end int32, px, py int, threshold float32, color []float32, visit func(i int32, t float32)) (float32, int32) {
	t := float32(1)
	last := start - 1
	ch := int32(s.Channels)

	for i := start; i < end; i++ {
		last = i
		id, alpha, _, _, ok := s.alphaAt(i, px, py)
		if !ok {
			continue
		}

		w := t * alpha
		rgb := s.Colors[id*ch : (id+1)*ch]
		for c := range color {
			color[c] += w * rgb[c]
		}
		t *= 1 - alpha

		if visit != nil {
			visit(i, t)
		}
		if t < threshold {
			break
		}
	}
	return t, last
}
