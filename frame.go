package splat

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
)

// frameMagic starts every float frame stream.
const frameMagic = "SPLATF32"

// maxFrameValues bounds the image size accepted by DecodeFrame.
const maxFrameValues = 1 << 30

// EncodeFrame writes the unquantized float32 image as a zstd-compressed
// stream: the magic "SPLATF32", width, height and channels as little-endian
// uint32, then the H*W*C values. Unlike PNG and TIFF it keeps values outside
// [0, 1], which makes it suitable for golden images and for comparing
// engines.
func (o *Output) EncodeFrame(w io.Writer) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(enc)

	var hdr [len(frameMagic) + 12]byte
	copy(hdr[:], frameMagic)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(o.Width))     //nolint:gosec // image sizes fit uint32
	binary.LittleEndian.PutUint32(hdr[12:], uint32(o.Height))   //nolint:gosec // image sizes fit uint32
	binary.LittleEndian.PutUint32(hdr[16:], uint32(o.Channels)) //nolint:gosec // image sizes fit uint32
	if _, err := bw.Write(hdr[:]); err != nil {
		_ = enc.Close()
		return err
	}

	var word [4]byte
	for _, v := range o.Image {
		binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
		if _, err := bw.Write(word[:]); err != nil {
			_ = enc.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// SaveFrame saves the float image to a file with EncodeFrame.
func (o *Output) SaveFrame(path string) error {
	return saveFile(path, o.EncodeFrame)
}

// DecodeFrame reads a stream written by EncodeFrame. The returned Output
// has Width, Height, Channels and Image set.
func DecodeFrame(r io.Reader) (*Output, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var hdr [len(frameMagic) + 12]byte
	if _, err := io.ReadFull(dec, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrInvalidFrame, err)
	}
	if string(hdr[:len(frameMagic)]) != frameMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidFrame)
	}
	w := int(binary.LittleEndian.Uint32(hdr[8:]))
	h := int(binary.LittleEndian.Uint32(hdr[12:]))
	ch := int(binary.LittleEndian.Uint32(hdr[16:]))
	if w <= 0 || h <= 0 || ch <= 0 || int64(w)*int64(h)*int64(ch) > maxFrameValues {
		return nil, fmt.Errorf("%w: size %dx%dx%d", ErrInvalidFrame, w, h, ch)
	}

	data := make([]byte, w*h*ch*4)
	if _, err := io.ReadFull(dec, data); err != nil {
		return nil, fmt.Errorf("%w: pixels: %w", ErrInvalidFrame, err)
	}
	out := &Output{Width: w, Height: h, Channels: ch, Image: make([]float32, w*h*ch)}
	for i := range out.Image {
		out.Image[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}
