// Package binning assigns projected Gaussians to screen tiles and orders
// each tile's list front to back.
//
// Binning is a scatter, sort, gather pipeline: overlaps are counted and
// written per Gaussian in parallel, then sorted globally by (tile, depth),
// then the per-tile ranges are recovered from the sorted keys. The sort is
// a barrier; no compositing may start before Bin returns.
package binning

import (
	"cmp"
	"errors"
	"math"
	"slices"

	"github.com/gogpu/splat/internal/parallel"
	"github.com/gogpu/splat/internal/project"
)

// Entry is one (Gaussian, tile) overlap.
type Entry struct {
	Tile  int32
	Depth float32
	ID    int32
}

// Range is a half-open index range [Start, End) into Bins.SortedIDs.
type Range struct {
	Start, End int32
}

// Len returns the number of entries in the range.
func (r Range) Len() int { return int(r.End - r.Start) }

// Bins is the result of binning one render.
type Bins struct {
	// SortedIDs holds Gaussian ids ordered by (tile, depth).
	SortedIDs []int32

	// TileBins[tile] is the range of SortedIDs belonging to tile.
	// Tiles without overlaps have an empty range.
	TileBins []Range

	release func()
}

// Release returns the overlap list's reservation to the buffer pool.
// Call it once compositing is done. Safe to call more than once.
func (b *Bins) Release() {
	if b.release != nil {
		b.release()
	}
}

// NumRendered returns the total number of (Gaussian, tile) overlaps.
func (b *Bins) NumRendered() int { return len(b.SortedIDs) }

// ErrTooManyOverlaps is returned when the overlap list cannot be indexed
// with 32-bit offsets.
var ErrTooManyOverlaps = errors.New("binning: overlap list exceeds 2^31 entries")

// EntryBytes is the memory held per overlap while binning: the sort entry
// plus its slot in SortedIDs.
const EntryBytes = 16

// Bin computes the sorted overlap list for the projected Gaussians.
// Culled Gaussians contribute no entries.
//
// When buffers is non-nil the overlap list is reserved against its memory
// limit, on top of whatever the caller already holds, before it is
// allocated. A *parallel.MemoryLimitExceededError is returned if it does
// not fit; otherwise the reservation lasts until Bins.Release.
func Bin(pool *parallel.WorkerPool, buffers *parallel.BufferPool, projected []project.Projected, grid parallel.Grid) (*Bins, error) {
	n := len(projected)

	// Count.
	counts := make([]int32, n+1)
	pool.Run(n, func(i int) {
		counts[i] = int32(countOverlaps(&projected[i], grid))
	})

	// Exclusive prefix sum: counts[i] becomes the first slot of Gaussian i.
	var total int64
	for i := range n {
		c := counts[i]
		counts[i] = int32(total)
		total += int64(c)
		if total > math.MaxInt32 {
			return nil, ErrTooManyOverlaps
		}
	}
	counts[n] = int32(total)

	var release func()
	if buffers != nil {
		var err error
		if release, err = buffers.Reserve(total * EntryBytes); err != nil {
			return nil, err
		}
	}

	// Scatter.
	entries := make([]Entry, total)
	pool.Run(n, func(i int) {
		p := &projected[i]
		if p.Culled {
			return
		}
		out := entries[counts[i]:counts[i+1]]
		k := 0
		forEachTile(p, grid, func(tile int) {
			out[k] = Entry{Tile: int32(tile), Depth: p.Depth, ID: int32(i)}
			k++
		})
	})

	// Sort (barrier).
	slices.SortFunc(entries, compareEntries)

	return &Bins{
		SortedIDs: sortedIDs(entries),
		TileBins:  tileRanges(entries, grid.TileCount()),
		release:   release,
	}, nil
}

func compareEntries(a, b Entry) int {
	if c := cmp.Compare(a.Tile, b.Tile); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Depth, b.Depth); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func countOverlaps(p *project.Projected, grid parallel.Grid) int {
	if p.Culled {
		return 0
	}
	n := 0
	forEachTile(p, grid, func(int) { n++ })
	return n
}

// forEachTile calls fn for every tile whose rectangle intersects the
// bounding circle of p, in row-major order.
func forEachTile(p *project.Projected, grid parallel.Grid, fn func(tile int)) {
	r := int(p.Radius)
	span := grid.TileRange(p.XY[0], p.XY[1], r)
	for ty := span.Y0; ty < span.Y1; ty++ {
		for tx := span.X0; tx < span.X1; tx++ {
			if grid.CircleTouchesTile(p.XY[0], p.XY[1], r, tx, ty) {
				fn(ty*grid.TilesX() + tx)
			}
		}
	}
}

func sortedIDs(entries []Entry) []int32 {
	ids := make([]int32, len(entries))
	for i := range entries {
		ids[i] = entries[i].ID
	}
	return ids
}

// tileRanges scans tile boundaries in the sorted entries.
func tileRanges(entries []Entry, tiles int) []Range {
	bins := make([]Range, tiles)
	n := int32(len(entries))
	for i := int32(0); i < n; i++ {
		tile := entries[i].Tile
		if i == 0 || entries[i-1].Tile != tile {
			bins[tile].Start = i
		}
		if i == n-1 || entries[i+1].Tile != tile {
			bins[tile].End = i + 1
		}
	}
	return bins
}
