// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/composite.wgsl
var compositeShaderWGSL string

// compileShader compiles WGSL to SPIR-V words.
func compileShader(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	if len(spirvBytes)%4 != 0 {
		return nil, fmt.Errorf("compile shader: SPIR-V length %d is not word aligned", len(spirvBytes))
	}

	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}

func createShaderModule(device hal.Device, label string, code []uint32) (hal.ShaderModule, error) {
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: code},
	})
}
