// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// TexelBytes is the size of one RGBA32F texel in bytes.
const TexelBytes = 16

// TextureStagingData holds float pixel data for a texture binding pending GPU upload.
// This is primarily used in the BindGroupProvider to stage texture data before creating the GPU texture and bind group.
type TextureStagingData struct {
	// Pixels is the byte slice representing the actual pixel data for the texture. It is RGBA32F, 16 bytes per texel, little-endian.
	Pixels []byte
	// Width is the width of the texture in texels. This is required to correctly create the GPU texture and interpret the pixel data.
	Width uint32
	// Height is the height of the texture in texels. This is required to correctly create the GPU texture and interpret the pixel data.
	Height uint32
	// Label is forwarded to the GPU texture descriptor for debugging.
	Label string
}

// BytesPerRow returns the row pitch of the staged data.
func (t TextureStagingData) BytesPerRow() uint32 {
	return t.Width * TexelBytes
}

// Validate checks that the pixel payload matches the declared dimensions.
//
// Returns:
//   - error: non-nil if the dimensions are zero or the payload size does not match
func (t TextureStagingData) Validate() error {
	if t.Width == 0 || t.Height == 0 {
		return fmt.Errorf("texture staging data %q has zero dimension %dx%d", t.Label, t.Width, t.Height)
	}
	if want := int(t.BytesPerRow()) * int(t.Height); len(t.Pixels) != want {
		return fmt.Errorf("texture staging data %q has %d bytes, want %d", t.Label, len(t.Pixels), want)
	}
	return nil
}

// SamplerStagingData holds the configuration for a sampler binding pending GPU creation.
// This is primarily used in the BindGroupProvider to stage sampler data before creating the GPU sampler and bind group.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range in each dimension (U, V, W).
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail (LOD) for mipmapping.
	LodMinClamp, LodMaxClamp float32
	// MaxAnisotropy specifies the maximum anisotropy level. Must stay 1 for nearest filtering.
	MaxAnisotropy uint16
}

// NearestClampSampler returns the sampler configuration a baked animation texture requires:
// nearest filtering in every dimension, clamped addressing, and a single mip level.
// Interpolating between texels would blend unrelated matrix columns.
//
// Returns:
//   - SamplerStagingData: the sampler configuration
func NearestClampSampler() SamplerStagingData {
	return SamplerStagingData{
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeNearest,
		MinFilter:     wgpu.FilterModeNearest,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMinClamp:   0,
		LodMaxClamp:   0,
		MaxAnisotropy: 1,
	}
}
