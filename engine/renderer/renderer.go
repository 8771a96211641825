package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/Carmen-Shannon/oxy-vat/engine/renderer/animator"
	"github.com/Carmen-Shannon/oxy-vat/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrTextureTooLarge is returned when a baked texture exceeds the device's 2D texture limit.
// Width grows by four texels per bone and height by one row per frame.
var ErrTextureTooLarge = errors.New("renderer: texture exceeds device limits")

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	backendType RendererBackendType
	backend     RendererBackend

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	powerPreference      PowerPreference
}

// Renderer uploads baked animation textures and per-instance playback state to the GPU.
//
// This is a high-level API over a headless device: no surface or pipelines are created, only the
// texture, sampler and buffers a vertex shader needs to sample a baked animation texture.
// The Renderer implements a backend which allows for multiple backend API implementations to exist.
type Renderer interface {
	// InitBindGroup creates GPU buffers and a bind group from a layout descriptor.
	// Texture and sampler bindings must be initialized first.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the created resources on
	//   - descriptor: the layout of the bind group
	//   - bufferUsageOverrides: extra buffer usage flags by binding index
	//   - bufferSizeOverrides: buffer sizes by binding index, used instead of MinBindingSize
	//
	// Returns:
	//   - error: an error if the bind group could not be initialized
	InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error

	// InitTextureView uploads raw RGBA32Float texel data and stores the texture on the provider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the texture on
	//   - bindingKey: the binding index of the texture
	//   - stagingData: the texel data and dimensions
	//
	// Returns:
	//   - error: an error if the staging data is malformed or the texture could not be created
	InitTextureView(provider bind_group_provider.BindGroupProvider, bindingKey int, stagingData common.TextureStagingData) error

	// InitSampler creates a sampler and stores it on the provider.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the sampler on
	//   - bindingKey: the binding index of the sampler
	//   - samplerStagingData: the sampler configuration
	//
	// Returns:
	//   - error: an error if the sampler could not be created
	InitSampler(provider bind_group_provider.BindGroupProvider, bindingKey int, samplerStagingData common.SamplerStagingData) error

	// WriteBuffers submits staged buffer writes to the queue.
	//
	// Parameters:
	//   - writes: the staged writes
	WriteBuffers(writes []bind_group_provider.BufferWrite)

	// InitVATTexture uploads a baked texture and a nearest clamp sampler at the given bindings.
	// A negative sampler binding skips the sampler.
	//
	// Parameters:
	//   - provider: the BindGroupProvider to store the texture and sampler on
	//   - bindings: the binding indices
	//   - tex: the baked texture
	//
	// Returns:
	//   - error: an error if tex is nil or an upload fails
	InitVATTexture(provider bind_group_provider.BindGroupProvider, bindings bind_group_provider.VATBindings, tex *vat.Texture) error

	// InitAnimator uploads the animator's texture and builds its bind group with a params buffer
	// sized for MaxInstances records.
	//
	// Parameters:
	//   - a: the animator, which must already have a texture applied
	//   - visibility: the shader stages that read the group
	//
	// Returns:
	//   - error: an error if the animator has no texture or an upload fails
	InitAnimator(a animator.Animator, visibility wgpu.ShaderStage) error

	// SyncAnimator rebuilds the params buffer if the animator grew, then flushes dirty
	// instances and submits the resulting writes.
	//
	// Parameters:
	//   - a: the animator, previously passed to InitAnimator
	//
	// Returns:
	//   - int: the number of writes submitted
	//   - error: an error if the rebuild fails
	SyncAnimator(a animator.Animator) (int, error)

	// Release frees the backend device.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer with a headless backend of the given type.
//
// Parameters:
//   - backendType: the backend API to use
//   - options: functional options applied before the backend is created
//
// Returns:
//   - Renderer: the renderer
//   - error: an error if no adapter or device could be acquired
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:          &sync.Mutex{},
		backendType: backendType,
	}

	for _, opt := range options {
		opt(r)
	}

	if r.backend != nil {
		return r, nil
	}

	switch backendType {
	case BackendTypeWGPU:
		b, err := newWGPURendererBackend(r.forceFallbackAdapter, r.powerPreference)
		if err != nil {
			return nil, err
		}
		r.backend = b
	default:
		return nil, fmt.Errorf("unsupported renderer backend type %d", backendType)
	}

	common.Logger().Debug("renderer created", "backend", backendType, "fallback", r.forceFallbackAdapter)
	return r, nil
}

func (r *renderer) InitBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, bufferUsageOverrides map[int]wgpu.BufferUsage, bufferSizeOverrides map[int]uint64) error {
	return r.backend.InitBindGroup(provider, descriptor, bufferUsageOverrides, bufferSizeOverrides)
}

func (r *renderer) InitTextureView(provider bind_group_provider.BindGroupProvider, bindingKey int, stagingData common.TextureStagingData) error {
	return r.backend.InitTextureView(provider, bindingKey, stagingData)
}

func (r *renderer) InitSampler(provider bind_group_provider.BindGroupProvider, bindingKey int, samplerStagingData common.SamplerStagingData) error {
	return r.backend.InitSampler(provider, bindingKey, samplerStagingData)
}

func (r *renderer) WriteBuffers(writes []bind_group_provider.BufferWrite) {
	if len(writes) == 0 {
		return
	}
	r.backend.WriteBuffers(writes)
}

func (r *renderer) InitVATTexture(provider bind_group_provider.BindGroupProvider, bindings bind_group_provider.VATBindings, tex *vat.Texture) error {
	if tex == nil {
		return fmt.Errorf("nil VAT texture for %q", provider.Label())
	}
	if bindings.Texture < 0 {
		return fmt.Errorf("VAT bindings for %q have no texture slot", provider.Label())
	}
	if limit := int(r.backend.MaxTextureDimension2D()); tex.Width > limit || tex.Height > limit {
		return fmt.Errorf("%w: VAT texture %q is %dx%d (%d bones, %d frames), the device allows %d per side",
			ErrTextureTooLarge, tex.Label, tex.Width, tex.Height, tex.BoneCount, tex.FrameCount, limit)
	}

	if err := r.backend.InitTextureView(provider, bindings.Texture, tex.StagingData()); err != nil {
		return fmt.Errorf("uploading VAT texture %q: %w", tex.Label, err)
	}
	if bindings.Sampler >= 0 {
		if err := r.backend.InitSampler(provider, bindings.Sampler, common.NearestClampSampler()); err != nil {
			return fmt.Errorf("creating VAT sampler: %w", err)
		}
	}

	common.Logger().Debug("VAT texture uploaded",
		"provider", provider.Label(),
		"width", tex.Width,
		"height", tex.Height,
		"bytes", len(tex.Pixels)*4,
	)
	return nil
}

func (r *renderer) InitAnimator(a animator.Animator, visibility wgpu.ShaderStage) error {
	tex := a.Texture()
	if tex == nil {
		return vat.ErrTextureNotReady
	}

	provider := a.Provider()
	bindings := a.Bindings()
	if err := r.InitVATTexture(provider, bindings, tex); err != nil {
		return err
	}
	if err := r.initAnimatorBindGroup(a, visibility); err != nil {
		return err
	}
	a.ClearNeedsRebuild()
	return nil
}

func (r *renderer) SyncAnimator(a animator.Animator) (int, error) {
	if a.NeedsRebuild() {
		provider := a.Provider()
		bindings := a.Bindings()
		if bindings.Params >= 0 {
			r.backend.ReleaseBuffer(provider, bindings.Params)
		}
		if err := r.initAnimatorBindGroup(a, wgpu.ShaderStageVertex); err != nil {
			return 0, err
		}
		a.ClearNeedsRebuild()
		common.Logger().Debug("animator rebuilt", "provider", provider.Label(), "max_instances", a.MaxInstances())
	}

	a.Flush()
	writes := a.StagedWriteData()
	r.WriteBuffers(writes)
	return len(writes), nil
}

func (r *renderer) initAnimatorBindGroup(a animator.Animator, visibility wgpu.ShaderStage) error {
	provider := a.Provider()
	bindings := a.Bindings()
	return r.backend.InitBindGroup(
		provider,
		bind_group_provider.VATLayoutDescriptor(provider.Label(), bindings, visibility),
		nil,
		paramsSizeOverride(bindings, a.MaxInstances()),
	)
}

func paramsSizeOverride(bindings bind_group_provider.VATBindings, maxInstances uint32) map[int]uint64 {
	if bindings.Params < 0 {
		return nil
	}
	size := uint64((&vat.GPUPlaybackParams{}).Size()) * uint64(max(maxInstances, 1))
	return map[int]uint64{bindings.Params: size}
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backend != nil {
		r.backend.Release()
		r.backend = nil
	}
}
