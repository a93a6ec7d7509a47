// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package gpu implements forward compositing of binned Gaussians on the
// GPU via the gogpu/wgpu Pure Go WebGPU implementation (zero CGO).
//
// The Compositor consumes the projection and binning results of the CPU
// pipeline. The WGSL shader in shaders/composite.wgsl is compiled to
// SPIR-V with naga and runs one 16x16 workgroup per tile, evaluating the
// same alpha function as the CPU compositor. The image, final
// transmittance and final index are read back into the caller's buffers.
//
// Only the forward pass runs here. The engine re-derives per-pixel state
// on the CPU before differentiating an accelerated render.
//
// This is an internal package; use github.com/gogpu/splat/gpu.
package gpu
