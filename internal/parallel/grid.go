package parallel

import "math"

// TileSize is the edge length of a square compositing tile in pixels.
// A 16x16 tile is 256 pixels, one GPU workgroup of one thread per pixel.
const TileSize = 16

// Rect is a half-open pixel rectangle [X0, X1) x [Y0, Y1).
type Rect struct {
	X0, Y0, X1, Y1 int
}

// Empty reports whether the rectangle contains no pixels.
func (r Rect) Empty() bool {
	return r.X0 >= r.X1 || r.Y0 >= r.Y1
}

// Grid divides an image into TileSize x TileSize tiles.
//
// Tiles are numbered in row-major order: id = ty*TilesX + tx. Edge tiles
// are clipped to the image when the size is not a multiple of TileSize.
type Grid struct {
	width, height  int
	tilesX, tilesY int
}

// NewGrid returns the tile grid for an image of the given size.
// Non-positive dimensions produce an empty grid.
func NewGrid(width, height int) Grid {
	if width <= 0 || height <= 0 {
		return Grid{}
	}
	return Grid{
		width:  width,
		height: height,
		tilesX: (width + TileSize - 1) / TileSize,
		tilesY: (height + TileSize - 1) / TileSize,
	}
}

// Width returns the image width in pixels.
func (g Grid) Width() int { return g.width }

// Height returns the image height in pixels.
func (g Grid) Height() int { return g.height }

// TilesX returns the number of tile columns.
func (g Grid) TilesX() int { return g.tilesX }

// TilesY returns the number of tile rows.
func (g Grid) TilesY() int { return g.tilesY }

// TileCount returns the total number of tiles.
func (g Grid) TileCount() int { return g.tilesX * g.tilesY }

// TileBounds returns the pixel rectangle covered by tile id, clipped to
// the image.
func (g Grid) TileBounds(id int) Rect {
	tx, ty := id%g.tilesX, id/g.tilesX
	return Rect{
		X0: tx * TileSize,
		Y0: ty * TileSize,
		X1: min((tx+1)*TileSize, g.width),
		Y1: min((ty+1)*TileSize, g.height),
	}
}

// TileRange returns the range of tile coordinates [tx0, tx1) x [ty0, ty1)
// touched by the axis-aligned square of half-width radius around (x, y).
// The range is clamped to the grid and may be empty.
func (g Grid) TileRange(x, y float32, radius int) Rect {
	// Shift by half a pixel so tile edges fall on multiples of TileSize.
	r := float64(radius)
	u, v := float64(x)+0.5, float64(y)+0.5
	tx0 := clampTile(math.Floor((u-r)/TileSize), g.tilesX)
	ty0 := clampTile(math.Floor((v-r)/TileSize), g.tilesY)
	tx1 := clampTile(math.Floor((u+r)/TileSize)+1, g.tilesX)
	ty1 := clampTile(math.Floor((v+r)/TileSize)+1, g.tilesY)
	return Rect{X0: tx0, Y0: ty0, X1: tx1, Y1: ty1}
}

// CircleTouchesTile reports whether the disc of the given radius centered
// at (x, y) intersects the pixel rectangle of tile (tx, ty). Pixel centers
// sit on integer coordinates, so a tile spans [x0-0.5, x1-0.5] in
// continuous space.
func (g Grid) CircleTouchesTile(x, y float32, radius int, tx, ty int) bool {
	lox := float32(tx*TileSize) - 0.5
	loy := float32(ty*TileSize) - 0.5
	hix := float32(min((tx+1)*TileSize, g.width)) - 0.5
	hiy := float32(min((ty+1)*TileSize, g.height)) - 0.5

	dx := max(lox-x, 0, x-hix)
	dy := max(loy-y, 0, y-hiy)
	r := float32(radius)
	return dx*dx+dy*dy <= r*r
}

// CircleVisible reports whether the disc of the given radius centered at
// (x, y) intersects the image, that is, touches at least one tile.
func (g Grid) CircleVisible(x, y float32, radius int) bool {
	if g.TileCount() == 0 {
		return false
	}
	hix := float32(g.width) - 0.5
	hiy := float32(g.height) - 0.5
	dx := max(-0.5-x, 0, x-hix)
	dy := max(-0.5-y, 0, y-hiy)
	r := float32(radius)
	return dx*dx+dy*dy <= r*r
}

// clampTile clamps in floating point so far off-screen splats cannot
// overflow the int conversion.
func clampTile(v float64, n int) int {
	if !(v > 0) {
		return 0
	}
	if v > float64(n) {
		return n
	}
	return int(v)
}
