package vat

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// ShaderContractVersion identifies the frame selection formula and texel layout the embedded WGSL
// implements. Bump it whenever either changes so stale shader caches can be detected.
const ShaderContractVersion = 1

// GPUPlaybackParamsSource is the canonical WGSL definition of the VATPlaybackParams struct.
// Matches GPUPlaybackParams layout exactly (16 bytes, std430 aligned).
//
//go:embed assets/vat_playback_params.wgsl
var GPUPlaybackParamsSource string

// GPUVATGlobalsSource is the canonical WGSL definition of the VATGlobals struct.
// Matches GPUVATGlobals layout exactly (16 bytes, std140 aligned).
//
//go:embed assets/vat_globals.wgsl
var GPUVATGlobalsSource string

// ShaderSource holds vat_frame_index, vat_read_matrix and vat_skin_matrix. It depends on
// GPUPlaybackParamsSource being included first.
//
//go:embed assets/vat_sampling.wgsl
var ShaderSource string

// GPUPlaybackParams is the GPU-aligned per-instance playback record.
// Size: 16 bytes (one vec4<f32>).
type GPUPlaybackParams struct {
	StartFrame  float32 // offset 0
	EndFrame    float32 // offset 4
	OffsetFrame float32 // offset 8
	Speed       float32 // offset 12
}

// Size returns the size of the GPUPlaybackParams struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUPlaybackParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUPlaybackParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload.
func (g *GPUPlaybackParams) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.StartFrame))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.EndFrame))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.OffsetFrame))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(g.Speed))
	return buf
}

// GPUVATGlobals is the uniform shared by every instance sampling one texture.
// Size: 16 bytes.
type GPUVATGlobals struct {
	Time         float32 // offset 0: playback clock in seconds
	FrameCount   uint32  // offset 4: texture height
	TextureWidth uint32  // offset 8: texels per row
	BoneCount    uint32  // offset 12
}

// Size returns the size of the GPUVATGlobals struct in bytes.
//
// Returns:
//   - int: The size of the struct in bytes.
func (g *GPUVATGlobals) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUVATGlobals struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload.
func (g *GPUVATGlobals) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.Time))
	binary.LittleEndian.PutUint32(buf[4:8], g.FrameCount)
	binary.LittleEndian.PutUint32(buf[8:12], g.TextureWidth)
	binary.LittleEndian.PutUint32(buf[12:16], g.BoneCount)
	return buf
}

// GlobalsFor returns the uniform values for tex at time.
func GlobalsFor(tex *Texture, time float32) GPUVATGlobals {
	return GPUVATGlobals{
		Time:         time,
		FrameCount:   uint32(tex.FrameCount),
		TextureWidth: uint32(tex.Width),
		BoneCount:    uint32(tex.BoneCount),
	}
}
