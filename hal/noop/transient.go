// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package noop

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/hal"
)

// RegistryOptions configure the noop transient registry.
type RegistryOptions struct {
	// UseHeapAliasing simulates a single shared heap: every allocation is
	// reported as aliased, and the disposal fences of the most recent
	// dispose that carried any guard the whole heap.
	UseHeapAliasing bool

	// MemorylessTargets reports memoryless render target support.
	MemorylessTargets bool
}

// pooledAlloc is one pooled backing allocation with its reuse tag.
type pooledAlloc struct {
	backing   hal.Resource
	waitEvent hal.WaitEvent
	fences    []hal.FenceDependency

	// poolKey is the free-pool bucket the allocation returns to.
	poolKey any
}

// bufferPoolKey groups compatible buffer allocations.
type bufferPoolKey struct {
	size  uint64
	usage gputypes.BufferUsage
}

// texturePoolKey groups compatible texture allocations.
type texturePoolKey struct {
	size   gputypes.Extent3D
	format gputypes.TextureFormat
	usage  gputypes.TextureUsage
}

// TransientRegistry implements hal.TransientRegistry with descriptor-keyed
// free pools. Mutation is single-threaded, serialized by the frame
// boundary.
type TransientRegistry struct {
	opts RegistryOptions

	bufferPool  map[bufferPoolKey][]*pooledAlloc
	texturePool map[texturePoolKey][]*pooledAlloc
	argPool     map[int][]*pooledAlloc

	// live maps resource keys to their allocation for the current frame.
	live map[hal.ResourceKey]*pooledAlloc

	// heapFences guard the simulated shared heap: set by the most recent
	// dispose carrying store fences.
	heapFences []hal.FenceDependency

	// history holds initialized history buffers scheduled for disposal.
	history map[hal.ResourceKey]*pooledAlloc

	frameCount uint64
	allocCount uint64
}

// NewTransientRegistry creates an empty registry.
func NewTransientRegistry(opts RegistryOptions) *TransientRegistry {
	return &TransientRegistry{
		opts:        opts,
		bufferPool:  make(map[bufferPoolKey][]*pooledAlloc),
		texturePool: make(map[texturePoolKey][]*pooledAlloc),
		argPool:     make(map[int][]*pooledAlloc),
		live:        make(map[hal.ResourceKey]*pooledAlloc),
		history:     make(map[hal.ResourceKey]*pooledAlloc),
	}
}

// PrepareFrame begins a frame.
func (r *TransientRegistry) PrepareFrame() {
	r.frameCount++
}

// AllocationCount returns the number of fresh (non-pooled) allocations
// made so far, for tests.
func (r *TransientRegistry) AllocationCount() uint64 {
	return r.allocCount
}

func pop(pool []*pooledAlloc) (*pooledAlloc, []*pooledAlloc, bool) {
	if n := len(pool); n > 0 {
		return pool[n-1], pool[:n-1], true
	}
	return nil, pool, false
}

// AllocateBuffer returns pooled or fresh backing memory for the buffer.
func (r *TransientRegistry) AllocateBuffer(key hal.ResourceKey, desc *hal.BufferDescriptor) (hal.Buffer, hal.WaitEvent, error) {
	if alloc, ok := r.live[key]; ok {
		return alloc.backing.(hal.Buffer), alloc.waitEvent, nil
	}
	pk := bufferPoolKey{size: desc.Size, usage: desc.Usage}
	alloc, rest, ok := pop(r.bufferPool[pk])
	if ok {
		r.bufferPool[pk] = rest
	} else {
		r.allocCount++
		alloc = &pooledAlloc{backing: &Buffer{label: desc.Label, size: desc.Size}, poolKey: pk}
	}
	r.live[key] = alloc
	return alloc.backing.(hal.Buffer), alloc.waitEvent, nil
}

// AllocateTexture returns pooled or fresh backing memory for the texture.
func (r *TransientRegistry) AllocateTexture(key hal.ResourceKey, desc *hal.TextureDescriptor, usage gputypes.TextureUsage, memoryless bool) (hal.Texture, hal.WaitEvent, error) {
	if alloc, ok := r.live[key]; ok {
		return alloc.backing.(hal.Texture), alloc.waitEvent, nil
	}
	if alloc, ok := r.history[key]; ok {
		// Initialized history contents survive until re-materialized.
		delete(r.history, key)
		r.live[key] = alloc
		return alloc.backing.(hal.Texture), alloc.waitEvent, nil
	}
	pk := texturePoolKey{size: desc.Size, format: desc.Format, usage: usage}
	alloc, rest, ok := pop(r.texturePool[pk])
	if ok {
		r.texturePool[pk] = rest
	} else {
		r.allocCount++
		alloc = &pooledAlloc{backing: &Texture{
			label:      desc.Label,
			format:     desc.Format,
			usage:      usage,
			memoryless: memoryless,
		}, poolKey: pk}
	}
	r.live[key] = alloc
	return alloc.backing.(hal.Texture), alloc.waitEvent, nil
}

// AllocateTextureView creates a view over a materialized texture.
func (r *TransientRegistry) AllocateTextureView(key hal.ResourceKey, base hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	if base == nil {
		return nil, fmt.Errorf("noop: view %q has no base texture", desc.Label)
	}
	return &TextureView{label: desc.Label, base: base}, nil
}

// AllocateWindowTexture acquires the swapchain's next drawable.
func (r *TransientRegistry) AllocateWindowTexture(key hal.ResourceKey, swapchain hal.Swapchain) (hal.Texture, hal.Drawable, error) {
	if swapchain == nil {
		return nil, nil, fmt.Errorf("noop: window texture without swapchain")
	}
	drawable, err := swapchain.NextDrawable()
	if err != nil || drawable == nil {
		return nil, nil, err
	}
	return drawable.Texture(), drawable, nil
}

// AllocateArgumentBuffer returns pooled or fresh argument buffer memory.
func (r *TransientRegistry) AllocateArgumentBuffer(key hal.ResourceKey, slotCount int, label string) (hal.ArgumentBuffer, hal.WaitEvent, error) {
	if alloc, ok := r.live[key]; ok {
		return alloc.backing.(hal.ArgumentBuffer), alloc.waitEvent, nil
	}
	alloc, rest, ok := pop(r.argPool[slotCount])
	if ok {
		r.argPool[slotCount] = rest
	} else {
		r.allocCount++
		alloc = &pooledAlloc{backing: &ArgumentBuffer{label: label, slots: make([]any, slotCount)}, poolKey: slotCount}
	}
	r.live[key] = alloc
	return alloc.backing.(hal.ArgumentBuffer), alloc.waitEvent, nil
}

// AllocateArgumentBufferArray returns fresh argument buffer array memory.
func (r *TransientRegistry) AllocateArgumentBufferArray(key hal.ResourceKey, elementCount, slotCount int, label string) (hal.ArgumentBufferArray, hal.WaitEvent, error) {
	if alloc, ok := r.live[key]; ok {
		return alloc.backing.(hal.ArgumentBufferArray), alloc.waitEvent, nil
	}
	elements := make([]*ArgumentBuffer, elementCount)
	for i := range elements {
		elements[i] = &ArgumentBuffer{label: label, slots: make([]any, slotCount)}
	}
	r.allocCount++
	alloc := &pooledAlloc{backing: &ArgumentBufferArray{label: label, elements: elements}}
	r.live[key] = alloc
	return alloc.backing.(hal.ArgumentBufferArray), alloc.waitEvent, nil
}

// DisposeBuffer returns the buffer to the pool tagged with waitEvent.
func (r *TransientRegistry) DisposeBuffer(key hal.ResourceKey, buffer hal.Buffer, waitEvent hal.WaitEvent) {
	alloc := r.retire(key, waitEvent)
	if alloc == nil {
		return
	}
	if pk, ok := alloc.poolKey.(bufferPoolKey); ok {
		r.bufferPool[pk] = append(r.bufferPool[pk], alloc)
	}
}

// DisposeTexture returns the texture to the pool tagged with waitEvent.
func (r *TransientRegistry) DisposeTexture(key hal.ResourceKey, texture hal.Texture, waitEvent hal.WaitEvent) {
	alloc := r.retire(key, waitEvent)
	if alloc == nil {
		return
	}
	if pk, ok := alloc.poolKey.(texturePoolKey); ok {
		r.texturePool[pk] = append(r.texturePool[pk], alloc)
	}
}

// DisposeArgumentBuffer returns the argument buffer to the pool.
func (r *TransientRegistry) DisposeArgumentBuffer(key hal.ResourceKey, ab hal.ArgumentBuffer, waitEvent hal.WaitEvent) {
	alloc := r.retire(key, waitEvent)
	if alloc == nil {
		return
	}
	if pk, ok := alloc.poolKey.(int); ok {
		r.argPool[pk] = append(r.argPool[pk], alloc)
	}
}

// retire removes a live allocation, tags it for reuse and publishes its
// disposal fences heap-wide when aliasing is simulated.
func (r *TransientRegistry) retire(key hal.ResourceKey, waitEvent hal.WaitEvent) *pooledAlloc {
	alloc, ok := r.live[key]
	if !ok {
		return nil
	}
	delete(r.live, key)
	alloc.waitEvent = waitEvent
	if r.opts.UseHeapAliasing && len(alloc.fences) > 0 {
		r.heapFences = alloc.fences
		alloc.fences = nil
	}
	return alloc
}

// IsAliasedHeapResource reports the simulated aliasing mode.
func (r *TransientRegistry) IsAliasedHeapResource(key hal.ResourceKey) bool {
	return r.opts.UseHeapAliasing
}

// WithHeapAliasingFences yields every fence currently guarding the
// simulated shared heap.
func (r *TransientRegistry) WithHeapAliasingFences(key hal.ResourceKey, fn func(hal.FenceDependency)) {
	for _, dep := range r.heapFences {
		fn(dep)
	}
}

// SetDisposalFences records the store fences for the resource's current
// allocation.
func (r *TransientRegistry) SetDisposalFences(key hal.ResourceKey, deps []hal.FenceDependency) {
	if alloc, ok := r.live[key]; ok {
		alloc.fences = deps
	}
}

// RegisterInitializedHistoryBufferForDisposal keeps the allocation out of
// the pools until the next uninitialized materialization of the resource.
func (r *TransientRegistry) RegisterInitializedHistoryBufferForDisposal(key hal.ResourceKey, texture hal.Texture, waitEvent hal.WaitEvent) {
	alloc, ok := r.live[key]
	if !ok {
		alloc = &pooledAlloc{backing: texture}
	} else {
		delete(r.live, key)
	}
	alloc.waitEvent = waitEvent
	r.history[key] = alloc
}

// SupportsMemorylessTargets reports memoryless render target support.
func (r *TransientRegistry) SupportsMemorylessTargets() bool {
	return r.opts.MemorylessTargets
}

// CycleFrames unconditionally reclaims transient backing memory still
// live at the frame boundary.
func (r *TransientRegistry) CycleFrames() {
	for key, alloc := range r.live {
		switch alloc.backing.(type) {
		case *Buffer:
			r.DisposeBuffer(key, alloc.backing.(hal.Buffer), alloc.waitEvent)
		case *Texture:
			r.DisposeTexture(key, alloc.backing.(hal.Texture), alloc.waitEvent)
		case *ArgumentBuffer:
			r.DisposeArgumentBuffer(key, alloc.backing.(hal.ArgumentBuffer), alloc.waitEvent)
		default:
			delete(r.live, key)
		}
	}
}

// ClearSwapchains drops all swapchain associations. The noop registry
// holds none between frames.
func (r *TransientRegistry) ClearSwapchains() {}

// ClearDrawables drops drawable references held for the current frame.
// Window textures never enter the pools, so nothing is retained.
func (r *TransientRegistry) ClearDrawables() {}
