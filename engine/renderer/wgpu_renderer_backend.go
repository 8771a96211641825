package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/Carmen-Shannon/oxy-vat/engine/renderer/bind_group_provider"
	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue
	maxDim uint32

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
}

type wgpuRendererBackend interface {
	Device() *wgpu.Device
	Queue() *wgpu.Queue

	// MaxTextureDimension2D retrieves the largest width or height a 2D texture may have on the device.
	//
	// Returns:
	//   - uint32: the device limit in texels
	MaxTextureDimension2D() uint32

	// InitBindGroup is a high-level function that creates GPU buffers and a bind group based on a layout descriptor.
	// Texture and sampler entries must already be stored on the provider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created buffers, layout and bind group on
	//   - descriptor: the BindGroupLayoutDescriptor describing the layout of the bind group
	//   - bufferUsageOverrides: a map of binding indices to extra buffer usage flags
	//   - bufferSizeOverrides: a map of binding indices to buffer sizes used instead of MinBindingSize
	//
	// Returns:
	//   - error: an error if the bind group could not be initialized, otherwise nil
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error

	// InitTextureView creates an RGBA32Float GPU texture from the staging data, uploads it, and stores the
	// texture and its view on the given BindGroupProvider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created texture view on
	//   - bindingKey: the binding index of the texture
	//   - stagingData: the raw texel data and dimensions
	//
	// Returns:
	//   - error: an error if the texture could not be created
	InitTextureView(provider bind_group_provider.BindGroupProvider, bindingKey int, stagingData common.TextureStagingData) error

	// InitSampler creates a GPU sampler from staging data and stores it on the given BindGroupProvider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the sampler on
	//   - bindingKey: the binding index of the sampler
	//   - samplerStagingData: the sampler configuration
	//
	// Returns:
	//   - error: an error if the sampler could not be created
	InitSampler(provider bind_group_provider.BindGroupProvider, bindingKey int, samplerStagingData common.SamplerStagingData) error

	// ReleaseBuffer frees the buffer at a binding so the next InitBindGroup recreates it.
	//
	// Parameters:
	//   - provider: the BindGroupProvider owning the buffer
	//   - binding: the binding index
	ReleaseBuffer(provider bind_group_provider.BindGroupProvider, binding int)

	// WriteBuffers submits each write to the queue. Writes whose buffer does not exist are skipped.
	//
	// Parameters:
	//   - writes: the staged writes
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// Release frees the device, adapter and instance.
	Release()
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(forceFallbackAdapter bool, pref PowerPreference) (wgpuRendererBackend, error) {
	w := &wgpuRendererBackendImpl{
		mu:       &sync.Mutex{},
		instance: wgpu.CreateInstance(nil),
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		PowerPreference:      wgpuPowerPreference(pref),
	})
	if err != nil {
		w.instance.Release()
		return nil, fmt.Errorf("requesting adapter: %w", err)
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "VAT Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		w.adapter.Release()
		w.instance.Release()
		return nil, fmt.Errorf("requesting device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()
	w.maxDim = d.GetLimits().Limits.MaxTextureDimension2D
	if w.maxDim == 0 || w.maxDim == wgpu.LimitU32Undefined {
		w.maxDim = DefaultMaxTextureDimension2D
	}
	return w, nil
}

func wgpuPowerPreference(pref PowerPreference) wgpu.PowerPreference {
	switch pref {
	case PowerPreferenceLowPower:
		return wgpu.PowerPreferenceLowPower
	case PowerPreferenceHighPerformance:
		return wgpu.PowerPreferenceHighPerformance
	default:
		return wgpu.PowerPreferenceUndefined
	}
}

func (b *wgpuRendererBackendImpl) Device() *wgpu.Device {
	return b.device
}

func (b *wgpuRendererBackendImpl) Queue() *wgpu.Queue {
	return b.queue
}

func (b *wgpuRendererBackendImpl) MaxTextureDimension2D() uint32 {
	return b.maxDim
}

func (b *wgpuRendererBackendImpl) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(descriptor.Entries) == 0 {
		return nil
	}

	layout := provider.BindGroupLayout()
	if layout == nil {
		var err error
		layout, err = b.device.CreateBindGroupLayout(&descriptor)
		if err != nil {
			return err
		}
		provider.SetBindGroupLayout(layout)
	}

	bindGroupEntries := make([]wgpu.BindGroupEntry, len(descriptor.Entries))
	for i, entry := range descriptor.Entries {
		binding := int(entry.Binding)

		switch bindingKind(entry) {
		case kindTexture:
			tv := provider.TextureView(binding)
			if tv == nil {
				return fmt.Errorf("texture binding %d has no texture view, call InitTextureView first", binding)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding:     entry.Binding,
				TextureView: tv,
			}
		case kindSampler:
			samp := provider.Sampler(binding)
			if samp == nil {
				return fmt.Errorf("sampler binding %d has no sampler, call InitSampler first", binding)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Sampler: samp,
			}
		default:
			buf := provider.Buffer(binding)
			if buf == nil {
				var bufErr error
				buf, bufErr = b.device.CreateBuffer(&wgpu.BufferDescriptor{
					Label: fmt.Sprintf("%s Buffer %d", provider.Label(), binding),
					Size:  bufferSizeFor(entry, bufferSizeOverrides),
					Usage: bufferUsageFor(entry, bufferUsageOverrides),
				})
				if bufErr != nil {
					return bufErr
				}
				provider.SetBuffer(binding, buf)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Buffer:  buf,
				Offset:  0,
				Size:    wgpu.WholeSize,
			}
		}
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label() + " Bind Group",
		Layout:  layout,
		Entries: bindGroupEntries,
	})
	if err != nil {
		return err
	}
	provider.SetBindGroup(bindGroup)

	return nil
}

func (b *wgpuRendererBackendImpl) InitTextureView(provider bind_group_provider.BindGroupProvider, bindingKey int, stagingData common.TextureStagingData) error {
	if err := stagingData.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tex, err := b.device.CreateTexture(textureDescriptor(provider.Label(), stagingData))
	if err != nil {
		return err
	}

	extent := textureExtent(stagingData)
	layout := textureDataLayout(stagingData)
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		stagingData.Pixels,
		&layout,
		&extent,
	)

	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return err
	}
	provider.SetTexture(bindingKey, tex, view)

	return nil
}

func (b *wgpuRendererBackendImpl) InitSampler(provider bind_group_provider.BindGroupProvider, bindingKey int, samplerStagingData common.SamplerStagingData) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	samp, err := b.device.CreateSampler(samplerDescriptor(provider.Label(), samplerStagingData))
	if err != nil {
		return err
	}
	if old := provider.Sampler(bindingKey); old != nil {
		old.Release()
	}
	provider.SetSampler(bindingKey, samp)

	return nil
}

func (b *wgpuRendererBackendImpl) ReleaseBuffer(provider bind_group_provider.BindGroupProvider, binding int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if buf := provider.Buffer(binding); buf != nil {
		buf.Release()
	}
	provider.SetBuffer(binding, nil)
}

func (b *wgpuRendererBackendImpl) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, w := range writes {
		buf := w.Provider.Buffer(w.Binding)
		if buf == nil {
			continue
		}
		b.queue.WriteBuffer(buf, w.Offset, w.Data)
	}
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	// reverse order of creation
	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

type resourceKind int

const (
	kindBuffer resourceKind = iota
	kindTexture
	kindSampler
)

func bindingKind(entry wgpu.BindGroupLayoutEntry) resourceKind {
	switch {
	case entry.Texture.SampleType != wgpu.TextureSampleTypeUndefined:
		return kindTexture
	case entry.Sampler.Type != wgpu.SamplerBindingTypeUndefined:
		return kindSampler
	default:
		return kindBuffer
	}
}

func bufferUsageFor(entry wgpu.BindGroupLayoutEntry, overrides map[int]wgpu.BufferUsage) wgpu.BufferUsage {
	var usage wgpu.BufferUsage
	switch entry.Buffer.Type {
	case wgpu.BufferBindingTypeUniform:
		usage = wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	case wgpu.BufferBindingTypeStorage, wgpu.BufferBindingTypeReadOnlyStorage:
		usage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	}
	if extra, ok := overrides[int(entry.Binding)]; ok {
		usage |= extra
	}
	return usage
}

func bufferSizeFor(entry wgpu.BindGroupLayoutEntry, overrides map[int]uint64) uint64 {
	if size, ok := overrides[int(entry.Binding)]; ok {
		return size
	}
	return entry.Buffer.MinBindingSize
}

func textureExtent(s common.TextureStagingData) wgpu.Extent3D {
	return wgpu.Extent3D{
		Width:              s.Width,
		Height:             s.Height,
		DepthOrArrayLayers: 1,
	}
}

func textureDescriptor(label string, s common.TextureStagingData) *wgpu.TextureDescriptor {
	return &wgpu.TextureDescriptor{
		Label:         common.Coalesce(s.Label, label) + " Texture",
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension2D,
		Size:          textureExtent(s),
		Format:        wgpu.TextureFormatRGBA32Float,
		MipLevelCount: 1,
		SampleCount:   1,
	}
}

func textureDataLayout(s common.TextureStagingData) wgpu.TextureDataLayout {
	return wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  s.BytesPerRow(),
		RowsPerImage: s.Height,
	}
}

func samplerDescriptor(label string, s common.SamplerStagingData) *wgpu.SamplerDescriptor {
	return &wgpu.SamplerDescriptor{
		Label:         label + " Sampler",
		AddressModeU:  s.AddressModeU,
		AddressModeV:  s.AddressModeV,
		AddressModeW:  s.AddressModeW,
		MagFilter:     s.MagFilter,
		MinFilter:     s.MinFilter,
		MipmapFilter:  s.MipmapFilter,
		LodMinClamp:   s.LodMinClamp,
		LodMaxClamp:   s.LodMaxClamp,
		MaxAnisotropy: common.Coalesce(s.MaxAnisotropy, 1),
	}
}
