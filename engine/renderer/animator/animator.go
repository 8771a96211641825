package animator

import (
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/Carmen-Shannon/oxy-vat/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
	"github.com/pkg/errors"
)

// defaultMaxInstances is the initial instance capacity when WithMaxInstances is not given.
const defaultMaxInstances = 1024

// animator is the implementation of the Animator interface.
type animator struct {
	mu *sync.Mutex

	// provider holds the texture view, sampler and playback buffers the vertex shader binds.
	provider bind_group_provider.BindGroupProvider
	bindings bind_group_provider.VATBindings

	// texture is the applied bake, nil until ApplyVAT succeeds.
	texture *vat.Texture

	// stagedWriteData accumulates BufferWrites between StagedWriteData calls.
	stagedWriteData []bind_group_provider.BufferWrite

	maxInstances, instanceCount uint32

	// params is the CPU source of truth, gpuParams its upload mirror.
	params    []vat.PlaybackParams
	gpuParams []vat.GPUPlaybackParams

	// time is the accumulated playback clock in seconds.
	time float64

	// Sparse dirty tracking: dirtyIndices holds instance indices mutated since the last Flush,
	// dirtyBitset dedups them. Word = index/64, bit = index%64.
	dirtyIndices []uint32
	dirtyBitset  []uint64

	// needsRebuild is set by Grow, the params buffer must be recreated before the next Flush.
	needsRebuild bool

	// Reusable staging buffers. wgpu's queue.WriteBuffer copies before returning,
	// so one buffer reused every frame is safe.
	stagingParams, stagingGlobals []byte
}

// Animator plays a baked animation texture on many instances.
//
// Each instance carries its own PlaybackParams. The animator accumulates a shared playback clock,
// stages the params of mutated instances and the per-frame globals as GPU buffer writes, and
// evaluates the same frame selection on the CPU that the vertex shader runs on the GPU.
// An Animator is a vat.Renderable, so applying a bake binds its texture here.
type Animator interface {
	vat.Renderable

	// Provider returns the BindGroupProvider that holds the texture, sampler and playback buffers.
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the provider
	Provider() bind_group_provider.BindGroupProvider

	// Bindings returns the binding indices the animator stages writes against.
	//
	// Returns:
	//   - bind_group_provider.VATBindings: the binding indices
	Bindings() bind_group_provider.VATBindings

	// Texture returns the applied texture, or nil before ApplyVAT.
	//
	// Returns:
	//   - *vat.Texture: the texture or nil
	Texture() *vat.Texture

	// MaxInstances returns the current instance capacity.
	//
	// Returns:
	//   - uint32: the capacity
	MaxInstances() uint32

	// InstanceCount returns the current number of registered instances.
	//
	// Returns:
	//   - uint32: the number of active instances
	InstanceCount() uint32

	// AddInstance registers a new instance playing params.
	// If the current capacity is exceeded, the animator grows automatically.
	//
	// Parameters:
	//   - params: the playback parameters of the instance
	//
	// Returns:
	//   - uint32: the index of the newly registered instance
	//   - error: wraps vat.ErrInvalidParams if params cannot select a frame of the applied texture
	AddInstance(params vat.PlaybackParams) (uint32, error)

	// SetInstance replaces the playback parameters of an instance.
	//
	// Parameters:
	//   - index: the instance index
	//   - params: the new playback parameters
	//
	// Returns:
	//   - error: an error if index is out of range or params are invalid
	SetInstance(index uint32, params vat.PlaybackParams) error

	// Instance returns the playback parameters of an instance.
	//
	// Parameters:
	//   - index: the instance index
	//
	// Returns:
	//   - vat.PlaybackParams: the parameters
	//   - bool: false if index is out of range
	Instance(index uint32) (vat.PlaybackParams, bool)

	// RemoveInstance removes the instance at the given index using a swap-remove strategy.
	// Returns the old last index that was swapped and whether a swap occurred.
	//
	// Parameters:
	//   - index: the instance index to remove
	//
	// Returns:
	//   - uint32: the old last index that was swapped into the removed slot (only meaningful when bool is true)
	//   - bool: true if the last instance was swapped into the removed slot
	RemoveInstance(index uint32) (uint32, bool)

	// Grow increases the maximum instance capacity to newMax, preserving all existing params.
	// Every live instance is marked dirty and NeedsRebuild reports true until cleared, so the render
	// thread recreates the params buffer before the next Flush.
	// No-op if newMax is less than or equal to the current capacity.
	//
	// Parameters:
	//   - newMax: the new maximum number of instances to support
	Grow(newMax uint32)

	// NeedsRebuild reports whether the params buffer needs to be recreated after a Grow.
	//
	// Returns:
	//   - bool: true if a rebuild is pending
	NeedsRebuild() bool

	// ClearNeedsRebuild resets the needsRebuild flag.
	ClearNeedsRebuild()

	// Time returns the accumulated playback clock in seconds.
	//
	// Returns:
	//   - float64: the clock
	Time() float64

	// SetTime moves the playback clock.
	//
	// Parameters:
	//   - t: the new clock value in seconds
	SetTime(t float64)

	// PrepareFrame advances the playback clock by deltaTime and stages the globals uniform.
	// Nothing is staged before a texture is applied or while a rebuild is pending.
	//
	// Parameters:
	//   - deltaTime: elapsed time since the last frame in seconds
	PrepareFrame(deltaTime float32)

	// Flush stages the params of dirty instances as GPU buffer writes, one write per contiguous run.
	//
	// Returns:
	//   - uint32: the number of instances that were flushed
	Flush() uint32

	// StagedWriteData returns and clears the pending GPU buffer writes.
	// The Renderer should call this to drain staged writes and submit them via WriteBuffers.
	//
	// Returns:
	//   - []bind_group_provider.BufferWrite: the slice of pending buffer writes
	StagedWriteData() []bind_group_provider.BufferWrite

	// FrameFor returns the texture row an instance samples at the current clock. The clock is
	// rounded to the float32 uploaded in the globals uniform, so the result is the value
	// vat_frame_index produces in the shader.
	//
	// Parameters:
	//   - index: the instance index
	//
	// Returns:
	//   - int: the global frame
	//   - error: vat.ErrTextureNotReady before ApplyVAT, or an error if index is out of range
	FrameFor(index uint32) (int, error)

	// Release frees all GPU resources held by this animator and its provider.
	Release()
}

var _ Animator = &animator{}

// NewAnimator creates a new Animator with the specified options applied.
//
// Parameters:
//   - options: a variadic list of AnimatorBuilderOption functions to configure the animator
//
// Returns:
//   - Animator: the animator
func NewAnimator(options ...AnimatorBuilderOption) Animator {
	a := &animator{
		mu:       &sync.Mutex{},
		bindings: bind_group_provider.DefaultVATBindings,
	}
	a.resize(defaultMaxInstances)
	for _, opt := range options {
		opt(a)
	}
	if a.provider == nil {
		a.provider = bind_group_provider.NewBindGroupProvider("vat_animator")
	}
	a.stagingGlobals = make([]byte, (&vat.GPUVATGlobals{}).Size())
	return a
}

// resize reallocates every per-instance slice for maxInstances and drops existing instances.
func (a *animator) resize(maxInstances uint32) {
	a.maxInstances = maxInstances
	a.instanceCount = 0
	a.params = make([]vat.PlaybackParams, maxInstances)
	a.gpuParams = make([]vat.GPUPlaybackParams, maxInstances)
	a.dirtyIndices = make([]uint32, 0, maxInstances)
	a.dirtyBitset = make([]uint64, (maxInstances+63)/64)
	a.stagingParams = make([]byte, int(maxInstances)*(&vat.GPUPlaybackParams{}).Size())
}

func (a *animator) Provider() bind_group_provider.BindGroupProvider {
	return a.provider
}

func (a *animator) Bindings() bind_group_provider.VATBindings {
	return a.bindings
}

func (a *animator) ApplyVAT(tex *vat.Texture) error {
	if tex == nil {
		return errors.Wrap(vat.ErrTextureNotReady, "applying a nil texture")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.instanceCount {
		if err := checkRange(a.params[i], tex); err != nil {
			return errors.Wrapf(err, "instance %d", i)
		}
	}
	a.texture = tex
	common.Logger().Debug("animation texture applied", "label", tex.Label, "width", tex.Width, "frames", tex.FrameCount)
	return nil
}

func (a *animator) Texture() *vat.Texture {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.texture
}

func (a *animator) MaxInstances() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxInstances
}

func (a *animator) InstanceCount() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.instanceCount
}

func (a *animator) AddInstance(params vat.PlaybackParams) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := checkRange(params, a.texture); err != nil {
		return 0, err
	}
	for a.instanceCount >= a.maxInstances {
		a.growLocked(max(a.maxInstances*2, 8))
	}
	idx := a.instanceCount
	a.instanceCount++
	a.set(idx, params)
	return idx, nil
}

func (a *animator) SetInstance(index uint32, params vat.PlaybackParams) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index >= a.instanceCount {
		return fmt.Errorf("animator: instance %d out of range [0, %d)", index, a.instanceCount)
	}
	if err := checkRange(params, a.texture); err != nil {
		return err
	}
	a.set(index, params)
	return nil
}

func (a *animator) Instance(index uint32) (vat.PlaybackParams, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index >= a.instanceCount {
		return vat.PlaybackParams{}, false
	}
	return a.params[index], true
}

func (a *animator) RemoveInstance(index uint32) (uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.instanceCount == 0 || index >= a.instanceCount {
		return 0, false
	}

	last := a.instanceCount - 1
	swapped := index != last
	if swapped {
		a.set(index, a.params[last])
	}
	a.params[last] = vat.PlaybackParams{}
	a.gpuParams[last] = vat.GPUPlaybackParams{}
	a.instanceCount--
	return last, swapped
}

func (a *animator) Grow(newMax uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.growLocked(newMax)
}

// growLocked reallocates for newMax instances, keeping existing ones. The caller holds a.mu.
func (a *animator) growLocked(newMax uint32) {
	if newMax <= a.maxInstances {
		return
	}

	params := a.params[:a.instanceCount]
	count := a.instanceCount
	a.resize(newMax)
	copy(a.params, params)
	a.instanceCount = count
	for i := range count {
		a.set(i, a.params[i])
	}
	a.stagedWriteData = a.stagedWriteData[:0]
	a.needsRebuild = true
	common.Logger().Debug("animator grown", "capacity", newMax, "instances", count)
}

func (a *animator) NeedsRebuild() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.needsRebuild
}

func (a *animator) ClearNeedsRebuild() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.needsRebuild = false
}

func (a *animator) Time() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.time
}

func (a *animator) SetTime(t float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.time = t
}

func (a *animator) PrepareFrame(deltaTime float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.time += float64(deltaTime)
	if a.texture == nil || a.needsRebuild || a.bindings.Globals < 0 {
		return
	}

	globals := vat.GlobalsFor(a.texture, float32(a.time))
	copy(a.stagingGlobals, globals.Marshal())
	a.stagedWriteData = append(a.stagedWriteData, bind_group_provider.BufferWrite{
		Provider: a.provider,
		Binding:  a.bindings.Globals,
		Offset:   0,
		Data:     a.stagingGlobals,
	})
}

func (a *animator) Flush() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.dirtyIndices) == 0 || a.needsRebuild {
		return 0
	}

	slices.Sort(a.dirtyIndices)
	recordSize := uint64((&vat.GPUPlaybackParams{}).Size())
	count := uint32(len(a.dirtyIndices))

	runStart := a.dirtyIndices[0]
	runEnd := runStart + 1
	for _, idx := range a.dirtyIndices[1:] {
		if idx == runEnd {
			runEnd++
			continue
		}
		a.flushRange(runStart, runEnd, recordSize)
		runStart, runEnd = idx, idx+1
	}
	a.flushRange(runStart, runEnd, recordSize)

	a.dirtyIndices = a.dirtyIndices[:0]
	clear(a.dirtyBitset)
	return count
}

func (a *animator) StagedWriteData() []bind_group_provider.BufferWrite {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := a.stagedWriteData
	a.stagedWriteData = nil
	return w
}

func (a *animator) FrameFor(index uint32) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.texture == nil {
		return 0, vat.ErrTextureNotReady
	}
	if index >= a.instanceCount {
		return 0, fmt.Errorf("animator: instance %d out of range [0, %d)", index, a.instanceCount)
	}
	return a.params[index].FrameAt(float32(a.time)), nil
}

func (a *animator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.provider != nil {
		a.provider.Release()
	}
	a.texture = nil
	a.params = nil
	a.gpuParams = nil
	a.stagedWriteData = nil
	a.stagingParams = nil
	a.stagingGlobals = nil
	a.dirtyIndices = nil
	a.dirtyBitset = nil
	a.instanceCount = 0
	a.maxInstances = 0
}

// set stores params at index and marks it dirty. Callers hold the lock.
func (a *animator) set(index uint32, params vat.PlaybackParams) {
	a.params[index] = params
	a.gpuParams[index] = params.GPU()
	a.enqueueDirty(index)
}

func (a *animator) enqueueDirty(index uint32) {
	word := index / 64
	bit := uint64(1) << (index % 64)
	if a.dirtyBitset[word]&bit != 0 {
		return
	}
	a.dirtyBitset[word] |= bit
	a.dirtyIndices = append(a.dirtyIndices, index)
}

func (a *animator) flushRange(start, end uint32, recordSize uint64) {
	if a.bindings.Params < 0 {
		return
	}
	offset := uint64(start) * recordSize
	raw := common.SliceToBytes(a.gpuParams[start:end])
	buf := a.stagingParams[offset : offset+uint64(len(raw))]
	copy(buf, raw)

	a.stagedWriteData = append(a.stagedWriteData, bind_group_provider.BufferWrite{
		Provider: a.provider,
		Binding:  a.bindings.Params,
		Offset:   offset,
		Data:     buf,
	})
}

// checkRange validates params on their own and, once a texture is applied, against its rows.
func checkRange(params vat.PlaybackParams, tex *vat.Texture) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if tex != nil && (params.StartFrame < 0 || int(params.EndFrame) >= tex.FrameCount) {
		return errors.Wrapf(vat.ErrInvalidParams, "frames [%g, %g] outside texture rows [0, %d)", params.StartFrame, params.EndFrame, tex.FrameCount)
	}
	return nil
}
