package vat

import (
	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// TexelsPerMatrix is the number of RGBA texels one 4x4 matrix occupies, one per column.
const TexelsPerMatrix = 4

// Texture is a baked animation texture: width (boneCount+1)*4 texels, height totalFrames rows,
// RGBA32F, nearest filtering, one mip level. Texel (x, y) holds column x%4 of matrix x/4 for global frame y.
type Texture struct {
	Label      string
	Width      int
	Height     int
	BoneCount  int
	FrameCount int
	// Pixels holds Width*Height*4 floats in row-major order. It is the baked buffer reinterpreted, not a copy.
	Pixels []float32
}

// EncodeTexture reinterprets a fully written frame buffer as a texture.
// Frame-major packing means the buffer already is the texel stream, so no reordering happens.
//
// Parameters:
//   - buf: the baked buffer
//
// Returns:
//   - *Texture: the texture, sharing buf's data
//   - error: an *EmptyBufferError if buf is nil or incomplete
func EncodeTexture(buf *FrameBuffer) (*Texture, error) {
	if buf == nil {
		return nil, &EmptyBufferError{}
	}
	if !buf.Complete() {
		return nil, &EmptyBufferError{Written: buf.Written(), Total: buf.TotalFrames()}
	}
	return &Texture{
		Width:      (buf.BoneCount() + 1) * TexelsPerMatrix,
		Height:     buf.TotalFrames(),
		BoneCount:  buf.BoneCount(),
		FrameCount: buf.TotalFrames(),
		Pixels:     buf.Floats(),
	}, nil
}

// NewTexture builds a texture from decoded buffer data.
//
// Parameters:
//   - data: (boneCount+1)*16*totalFrames floats
//   - boneCount: bones per pose
//   - totalFrames: rows
//
// Returns:
//   - *Texture: the texture
//   - error: a *CorruptEncodingError if the data length does not match
func NewTexture(data []float32, boneCount, totalFrames int) (*Texture, error) {
	buf, err := frameBufferFrom(data, boneCount, totalFrames)
	if err != nil {
		return nil, err
	}
	return EncodeTexture(buf)
}

// Format returns the GPU format the texture must be uploaded as.
func (t *Texture) Format() wgpu.TextureFormat {
	return wgpu.TextureFormatRGBA32Float
}

// FilterMode returns the only valid sampling filter.
func (t *Texture) FilterMode() wgpu.FilterMode {
	return wgpu.FilterModeNearest
}

// MipLevelCount is always 1.
func (t *Texture) MipLevelCount() uint32 {
	return 1
}

// Texel returns the RGBA value at (x, y).
func (t *Texture) Texel(x, y int) [4]float32 {
	i := (y*t.Width + x) * 4
	return [4]float32{t.Pixels[i], t.Pixels[i+1], t.Pixels[i+2], t.Pixels[i+3]}
}

// Matrix reconstructs the column-major matrix of bone for a global frame from its four texels.
// Bone index BoneCount addresses the reserved slot.
func (t *Texture) Matrix(bone, frame int) [16]float32 {
	var m [16]float32
	for c := range TexelsPerMatrix {
		px := t.Texel(bone*TexelsPerMatrix+c, frame)
		copy(m[c*4:], px[:])
	}
	return m
}

// Row returns the pose stored in a row.
func (t *Texture) Row(frame int) PoseMatrixSet {
	n := t.Width * 4
	return PoseMatrixSet(t.Pixels[frame*n : (frame+1)*n])
}

// BytesPerRow returns the upload row pitch.
func (t *Texture) BytesPerRow() uint32 {
	return uint32(t.Width * common.TexelBytes)
}

// Bytes returns the little-endian upload payload.
func (t *Texture) Bytes() []byte {
	return common.Float32sToBytes(t.Pixels)
}

// StagingData returns the texture as GPU staging data.
func (t *Texture) StagingData() common.TextureStagingData {
	return common.TextureStagingData{
		Pixels: t.Bytes(),
		Width:  uint32(t.Width),
		Height: uint32(t.Height),
		Label:  t.Label,
	}
}

// TexelUV returns the normalized coordinate of the texel center holding column col of bone's matrix
// in frame. Filtered samplers must address texel centers or they blend neighbouring columns.
//
// Parameters:
//   - bone: the bone index, BoneCount for the reserved slot
//   - col: the matrix column, 0..3
//   - frame: the global frame
//
// Returns:
//   - u, v: the texel center in [0, 1]
func (t *Texture) TexelUV(bone, col, frame int) (u, v float32) {
	x := bone*TexelsPerMatrix + col
	return (float32(x) + 0.5) / float32(t.Width), (float32(frame) + 0.5) / float32(t.Height)
}
