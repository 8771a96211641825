package bind_group_provider

import (
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
)

// playbackRecordSize is the std430 stride of one VATPlaybackParams record and the size of VATGlobals.
const playbackRecordSize = 16

// VATBindings names the binding indices of a baked animation texture group.
// A negative index leaves that resource out of the layout.
type VATBindings struct {
	Texture int
	Sampler int
	Params  int
	Globals int
}

// DefaultVATBindings is texture, sampler, params, globals at bindings 0 through 3.
var DefaultVATBindings = VATBindings{Texture: 0, Sampler: 1, Params: 2, Globals: 3}

// VATLayoutEntries builds the layout entries a vertex shader needs to sample a baked animation texture.
// The texture is bound as unfilterable float and the sampler as non-filtering, because RGBA32F
// cannot be filtered without an optional device feature and filtering would blend matrix columns.
//
// Parameters:
//   - b: the binding indices
//   - visibility: the shader stages that read the resources
//
// Returns:
//   - []wgpu.BindGroupLayoutEntry: the entries ordered by binding index
func VATLayoutEntries(b VATBindings, visibility wgpu.ShaderStage) []wgpu.BindGroupLayoutEntry {
	var entries []wgpu.BindGroupLayoutEntry
	if b.Texture >= 0 {
		e := wgpu.BindGroupLayoutEntry{Binding: uint32(b.Texture), Visibility: visibility}
		e.Texture.SampleType = wgpu.TextureSampleTypeUnfilterableFloat
		e.Texture.ViewDimension = wgpu.TextureViewDimension2D
		entries = append(entries, e)
	}
	if b.Sampler >= 0 {
		e := wgpu.BindGroupLayoutEntry{Binding: uint32(b.Sampler), Visibility: visibility}
		e.Sampler.Type = wgpu.SamplerBindingTypeNonFiltering
		entries = append(entries, e)
	}
	if b.Params >= 0 {
		e := wgpu.BindGroupLayoutEntry{Binding: uint32(b.Params), Visibility: visibility}
		e.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		e.Buffer.MinBindingSize = playbackRecordSize
		entries = append(entries, e)
	}
	if b.Globals >= 0 {
		e := wgpu.BindGroupLayoutEntry{Binding: uint32(b.Globals), Visibility: visibility}
		e.Buffer.Type = wgpu.BufferBindingTypeUniform
		e.Buffer.MinBindingSize = playbackRecordSize
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Binding < entries[j].Binding })
	return entries
}

// VATLayoutDescriptor wraps VATLayoutEntries in a layout descriptor labelled after the provider.
//
// Parameters:
//   - label: the descriptor label
//   - b: the binding indices
//   - visibility: the shader stages that read the resources
//
// Returns:
//   - wgpu.BindGroupLayoutDescriptor: the descriptor
func VATLayoutDescriptor(label string, b VATBindings, visibility wgpu.ShaderStage) wgpu.BindGroupLayoutDescriptor {
	return wgpu.BindGroupLayoutDescriptor{
		Label:   label + " Layout",
		Entries: VATLayoutEntries(b, visibility),
	}
}
