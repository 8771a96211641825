package renderer

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/Carmen-Shannon/oxy-vat/engine/renderer/animator"
	"github.com/Carmen-Shannon/oxy-vat/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bindGroupCall struct {
	label string
	sizes map[int]uint64
}

// fakeBackend records calls instead of touching a device.
type fakeBackend struct {
	textures  map[int]common.TextureStagingData
	samplers  map[int]common.SamplerStagingData
	groups    []bindGroupCall
	released  []int
	writes    []bind_group_provider.BufferWrite
	destroyed bool
	maxDim    uint32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		textures: make(map[int]common.TextureStagingData),
		samplers: make(map[int]common.SamplerStagingData),
		maxDim:   DefaultMaxTextureDimension2D,
	}
}

func (f *fakeBackend) Device() *wgpu.Device { return nil }
func (f *fakeBackend) Queue() *wgpu.Queue   { return nil }

func (f *fakeBackend) MaxTextureDimension2D() uint32 { return f.maxDim }

func (f *fakeBackend) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, _ map[int]wgpu.BufferUsage, sizes map[int]uint64) error {
	f.groups = append(f.groups, bindGroupCall{label: descriptor.Label, sizes: sizes})
	return nil
}

func (f *fakeBackend) InitTextureView(_ bind_group_provider.BindGroupProvider, binding int, s common.TextureStagingData) error {
	if err := s.Validate(); err != nil {
		return err
	}
	f.textures[binding] = s
	return nil
}

func (f *fakeBackend) InitSampler(_ bind_group_provider.BindGroupProvider, binding int, s common.SamplerStagingData) error {
	f.samplers[binding] = s
	return nil
}

func (f *fakeBackend) ReleaseBuffer(_ bind_group_provider.BindGroupProvider, binding int) {
	f.released = append(f.released, binding)
}

func (f *fakeBackend) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	f.writes = append(f.writes, writes...)
}

func (f *fakeBackend) Release() { f.destroyed = true }

func testTexture(t *testing.T, bones, frames int) *vat.Texture {
	t.Helper()
	tex, err := vat.NewTexture(make([]float32, vat.PoseFloats(bones)*frames), bones, frames)
	require.NoError(t, err)
	tex.Label = "crowd"
	return tex
}

func TestNewRendererRejectsUnknownBackend(t *testing.T) {
	_, err := NewRenderer(RendererBackendType(42))
	require.Error(t, err)
}

func TestNewRendererUsesInjectedBackend(t *testing.T) {
	fb := newFakeBackend()
	r, err := NewRenderer(BackendTypeWGPU, WithBackend(fb), WithPowerPreference(PowerPreferenceLowPower))
	require.NoError(t, err)

	r.Release()
	assert.True(t, fb.destroyed)
	// second release is a no-op
	r.Release()
}

func TestInitVATTexture(t *testing.T) {
	fb := newFakeBackend()
	r, err := NewRenderer(BackendTypeWGPU, WithBackend(fb))
	require.NoError(t, err)
	provider := bind_group_provider.NewBindGroupProvider("crowd")

	require.Error(t, r.InitVATTexture(provider, bind_group_provider.DefaultVATBindings, nil))
	require.Error(t, r.InitVATTexture(provider, bind_group_provider.VATBindings{Texture: -1, Sampler: 1}, testTexture(t, 2, 3)))

	require.NoError(t, r.InitVATTexture(provider, bind_group_provider.DefaultVATBindings, testTexture(t, 2, 3)))
	staging, ok := fb.textures[0]
	require.True(t, ok)
	assert.Equal(t, uint32(12), staging.Width)
	assert.Equal(t, uint32(3), staging.Height)
	assert.Len(t, staging.Pixels, 12*3*16)
	assert.Equal(t, common.NearestClampSampler(), fb.samplers[1])

	fb2 := newFakeBackend()
	r2, err := NewRenderer(BackendTypeWGPU, WithBackend(fb2))
	require.NoError(t, err)
	require.NoError(t, r2.InitVATTexture(provider, bind_group_provider.VATBindings{Texture: 4, Sampler: -1}, testTexture(t, 1, 2)))
	assert.Contains(t, fb2.textures, 4)
	assert.Empty(t, fb2.samplers)
}

func TestInitVATTextureChecksDeviceLimit(t *testing.T) {
	fb := newFakeBackend()
	r, err := NewRenderer(BackendTypeWGPU, WithBackend(fb))
	require.NoError(t, err)
	provider := bind_group_provider.NewBindGroupProvider("crowd")

	// (2047+1)*4 = 8192 texels fits exactly, one more bone does not
	require.NoError(t, r.InitVATTexture(provider, bind_group_provider.DefaultVATBindings, testTexture(t, 2047, 1)))
	err = r.InitVATTexture(provider, bind_group_provider.DefaultVATBindings, testTexture(t, 2048, 1))
	require.ErrorIs(t, err, ErrTextureTooLarge)
	assert.Contains(t, err.Error(), "2048 bones")

	fb.maxDim = 4
	assert.ErrorIs(t, r.InitVATTexture(provider, bind_group_provider.DefaultVATBindings, testTexture(t, 0, 5)), ErrTextureTooLarge)
	assert.NoError(t, r.InitVATTexture(provider, bind_group_provider.DefaultVATBindings, testTexture(t, 0, 4)))
}

func TestInitAnimator(t *testing.T) {
	fb := newFakeBackend()
	r, err := NewRenderer(BackendTypeWGPU, WithBackend(fb))
	require.NoError(t, err)

	a := animator.NewAnimator(animator.WithMaxInstances(8))
	require.ErrorIs(t, r.InitAnimator(a, wgpu.ShaderStageVertex), vat.ErrTextureNotReady)

	require.NoError(t, a.ApplyVAT(testTexture(t, 1, 16)))
	require.NoError(t, r.InitAnimator(a, wgpu.ShaderStageVertex))
	require.Len(t, fb.groups, 1)
	assert.Equal(t, "vat_animator Layout", fb.groups[0].label)
	assert.Equal(t, uint64(8*16), fb.groups[0].sizes[bind_group_provider.DefaultVATBindings.Params])
	assert.False(t, a.NeedsRebuild())
}

func TestSyncAnimatorFlushesAndRebuilds(t *testing.T) {
	fb := newFakeBackend()
	r, err := NewRenderer(BackendTypeWGPU, WithBackend(fb))
	require.NoError(t, err)

	a := animator.NewAnimator(animator.WithMaxInstances(2), animator.WithTexture(testTexture(t, 1, 16)))
	require.NoError(t, r.InitAnimator(a, wgpu.ShaderStageVertex))

	params := vat.PlaybackParams{StartFrame: 0, EndFrame: 15, Speed: 1}
	for range 2 {
		_, err := a.AddInstance(params)
		require.NoError(t, err)
	}
	a.PrepareFrame(0.5)
	n, err := r.SyncAnimator(a)
	require.NoError(t, err)
	// globals plus one contiguous params run
	assert.Equal(t, 2, n)
	assert.Len(t, fb.writes, 2)

	// the third instance forces a grow
	_, err = a.AddInstance(params)
	require.NoError(t, err)
	require.True(t, a.NeedsRebuild())

	n, err = r.SyncAnimator(a)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{bind_group_provider.DefaultVATBindings.Params}, fb.released)
	require.Len(t, fb.groups, 2)
	assert.Equal(t, uint64(a.MaxInstances())*16, fb.groups[1].sizes[bind_group_provider.DefaultVATBindings.Params])
	assert.False(t, a.NeedsRebuild())

	n, err = r.SyncAnimator(a)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBufferUsageFor(t *testing.T) {
	uniform := wgpu.BindGroupLayoutEntry{Binding: 3, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}}
	storage := wgpu.BindGroupLayoutEntry{Binding: 2, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage, MinBindingSize: 16}}

	assert.Equal(t, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst, bufferUsageFor(uniform, nil))
	assert.Equal(t, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst, bufferUsageFor(storage, nil))
	assert.Equal(t,
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst|wgpu.BufferUsageCopySrc,
		bufferUsageFor(storage, map[int]wgpu.BufferUsage{2: wgpu.BufferUsageCopySrc}),
	)

	assert.Equal(t, uint64(16), bufferSizeFor(storage, nil))
	assert.Equal(t, uint64(4096), bufferSizeFor(storage, map[int]uint64{2: 4096}))
}

func TestBindingKind(t *testing.T) {
	entries := bind_group_provider.VATLayoutEntries(bind_group_provider.DefaultVATBindings, wgpu.ShaderStageVertex)
	require.Len(t, entries, 4)
	assert.Equal(t, kindTexture, bindingKind(entries[0]))
	assert.Equal(t, kindSampler, bindingKind(entries[1]))
	assert.Equal(t, kindBuffer, bindingKind(entries[2]))
	assert.Equal(t, kindBuffer, bindingKind(entries[3]))
}

func TestTextureDescriptors(t *testing.T) {
	staging := testTexture(t, 3, 5).StagingData()

	desc := textureDescriptor("fallback", staging)
	assert.Equal(t, "crowd Texture", desc.Label)
	assert.Equal(t, wgpu.TextureFormatRGBA32Float, desc.Format)
	assert.Equal(t, uint32(1), desc.MipLevelCount)
	assert.Equal(t, uint32(16), desc.Size.Width)
	assert.Equal(t, uint32(5), desc.Size.Height)
	assert.Equal(t, uint32(1), desc.Size.DepthOrArrayLayers)

	staging.Label = ""
	assert.Equal(t, "fallback Texture", textureDescriptor("fallback", staging).Label)

	layout := textureDataLayout(staging)
	assert.Equal(t, uint32(16*16), layout.BytesPerRow)
	assert.Equal(t, uint32(5), layout.RowsPerImage)
}

func TestSamplerDescriptorKeepsNearest(t *testing.T) {
	s := common.NearestClampSampler()
	s.MaxAnisotropy = 0

	desc := samplerDescriptor("crowd", s)
	assert.Equal(t, "crowd Sampler", desc.Label)
	assert.Equal(t, wgpu.FilterModeNearest, desc.MagFilter)
	assert.Equal(t, wgpu.FilterModeNearest, desc.MinFilter)
	assert.Equal(t, wgpu.MipmapFilterModeNearest, desc.MipmapFilter)
	assert.Equal(t, wgpu.AddressModeClampToEdge, desc.AddressModeU)
	assert.Equal(t, uint16(1), desc.MaxAnisotropy)
}
