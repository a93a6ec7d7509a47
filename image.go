package splat

import (
	"image"
	"image/png"
	"io"
	"os"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// RGBA converts the rendered image to 8-bit RGBA. Values are clamped to
// [0, 1]. One channel is written as gray; with two channels the second is
// ignored; channels beyond the third are ignored. Alpha is opaque.
func (o *Output) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, o.Width, o.Height))
	ch := o.Channels
	for pix := range o.Width * o.Height {
		src := o.Image[pix*ch : (pix+1)*ch]
		dst := img.Pix[pix*4 : pix*4+4]
		if ch >= 3 {
			dst[0], dst[1], dst[2] = to8(src[0]), to8(src[1]), to8(src[2])
		} else {
			v := to8(src[0])
			dst[0], dst[1], dst[2] = v, v, v
		}
		dst[3] = 255
	}
	return img
}

func to8(v float32) uint8 {
	return uint8(min(max(v, 0), 1)*255 + 0.5)
}

// Scaled returns the image resampled to width x height with a Catmull-Rom
// filter, for previews of small renders.
func (o *Output) Scaled(width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), o.RGBA(), image.Rect(0, 0, o.Width, o.Height), draw.Src, nil)
	return dst
}

// EncodePNG writes the image as PNG.
func (o *Output) EncodePNG(w io.Writer) error {
	return png.Encode(w, o.RGBA())
}

// EncodeTIFF writes the image as Deflate-compressed TIFF.
func (o *Output) EncodeTIFF(w io.Writer) error {
	return tiff.Encode(w, o.RGBA(), &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// SavePNG saves the image to a PNG file.
func (o *Output) SavePNG(path string) error {
	return saveFile(path, o.EncodePNG)
}

// SaveTIFF saves the image to a TIFF file.
func (o *Output) SaveTIFF(path string) error {
	return saveFile(path, o.EncodeTIFF)
}

func saveFile(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path) //nolint:gosec // path is user-provided intentionally
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
