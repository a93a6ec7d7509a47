// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/splat"
	"github.com/gogpu/splat/internal/parallel"
)

// MaxChannels is the largest channel count the shader composites. Jobs
// with more channels are left to the CPU.
const MaxChannels = 4

// Byte sizes of the shader structs.
const (
	configSize = 48
	splatSize  = 32
	colorSize  = 16
)

// frameLayout describes the output buffer: the image, then the final
// transmittance, then the final index, one 32-bit word each.
type frameLayout struct {
	pixels   int
	channels int
}

func (l frameLayout) imageWords() int { return l.pixels * l.channels }
func (l frameLayout) words() int      { return l.imageWords() + 2*l.pixels }
func (l frameLayout) size() uint64    { return uint64(l.words()) * 4 } //nolint:gosec // non-negative

// packedJob holds the storage buffer contents of one dispatch.
type packedJob struct {
	config    []byte
	splats    []byte
	colors    []byte
	sortedIDs []byte
	tileBins  []byte

	tilesX, tilesY uint32
	layout         frameLayout
}

// packJob serializes a job into the little-endian layouts of
// shaders/composite.wgsl. Empty inputs get a single zero element, since
// zero-sized storage bindings are invalid.
func packJob(job *splat.CompositeJob) (*packedJob, error) {
	if job.Channels < 1 || job.Channels > MaxChannels {
		return nil, fmt.Errorf("%w: %d channels (max %d)", splat.ErrFallbackToCPU, job.Channels, MaxChannels)
	}
	grid := parallel.NewGrid(job.Width, job.Height)
	if len(job.TileBins) != grid.TileCount() {
		return nil, fmt.Errorf("gpu: %d tile bins for %d tiles", len(job.TileBins), grid.TileCount())
	}

	p := &packedJob{
		tilesX: uint32(grid.TilesX()), //nolint:gosec // tile counts fit uint32
		tilesY: uint32(grid.TilesY()), //nolint:gosec // tile counts fit uint32
		layout: frameLayout{pixels: job.Width * job.Height, channels: job.Channels},
	}
	p.config = packConfig(job, p.tilesX, p.layout)

	n := len(job.Opacity)
	p.splats = make([]byte, max(n, 1)*splatSize)
	p.colors = make([]byte, max(n, 1)*colorSize)
	for i := range n {
		s := p.splats[i*splatSize:]
		putFloat(s[0:], job.XY[i][0])
		putFloat(s[4:], job.XY[i][1])
		putFloat(s[8:], job.Opacity[i])
		putFloat(s[16:], job.Conics[i][0])
		putFloat(s[20:], job.Conics[i][1])
		putFloat(s[24:], job.Conics[i][2])

		c := p.colors[i*colorSize:]
		for k, v := range job.Colors[i*job.Channels : (i+1)*job.Channels] {
			putFloat(c[k*4:], v)
		}
	}

	p.sortedIDs = make([]byte, max(len(job.SortedIDs), 1)*4)
	for i, id := range job.SortedIDs {
		binary.LittleEndian.PutUint32(p.sortedIDs[i*4:], uint32(id)) //nolint:gosec // ids are non-negative
	}

	p.tileBins = make([]byte, len(job.TileBins)*8)
	for i, r := range job.TileBins {
		binary.LittleEndian.PutUint32(p.tileBins[i*8:], uint32(r.Start)) //nolint:gosec // ranges are non-negative
		binary.LittleEndian.PutUint32(p.tileBins[i*8+4:], uint32(r.End)) //nolint:gosec // ranges are non-negative
	}
	return p, nil
}

func packConfig(job *splat.CompositeJob, tilesX uint32, l frameLayout) []byte {
	b := make([]byte, configSize)
	for c, v := range job.Background {
		if c < MaxChannels {
			putFloat(b[c*4:], v)
		}
	}
	binary.LittleEndian.PutUint32(b[16:], uint32(job.Width))    //nolint:gosec // validated positive
	binary.LittleEndian.PutUint32(b[20:], uint32(job.Height))   //nolint:gosec // validated positive
	binary.LittleEndian.PutUint32(b[24:], uint32(job.Channels)) //nolint:gosec // at most MaxChannels
	binary.LittleEndian.PutUint32(b[28:], tilesX)
	putFloat(b[32:], job.Threshold)
	binary.LittleEndian.PutUint32(b[36:], uint32(l.pixels)) //nolint:gosec // pixel count fits uint32
	return b
}

// unpackFrame copies a read-back output buffer into the job's outputs.
func unpackFrame(data []byte, l frameLayout, job *splat.CompositeJob) error {
	if len(data) < l.words()*4 {
		return fmt.Errorf("gpu: readback has %d bytes, want %d", len(data), l.words()*4)
	}
	word := func(i int) uint32 { return binary.LittleEndian.Uint32(data[i*4:]) }

	for i := range l.imageWords() {
		job.Image[i] = math.Float32frombits(word(i))
	}
	base := l.imageWords()
	for p := range l.pixels {
		job.FinalT[p] = math.Float32frombits(word(base + p))
		job.FinalIdx[p] = int32(word(base + l.pixels + p)) //nolint:gosec // bit-preserving
	}
	return nil
}

func putFloat(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}
