package hal

import "github.com/gogpu/gputypes"

// ResourceKey identifies a logical resource to the transient registry.
// It is the scheduler's packed handle (kind, generation, index); the
// registry treats it as opaque.
type ResourceKey uint64

// WaitEvent is the completion point the caller must wait on before the
// memory returned by an Allocate call may be accessed: the command buffer
// signal value of the queue that last used the reused memory.
type WaitEvent struct {
	// Queue is the queue index the value belongs to.
	Queue uint8

	// Value is the command buffer signal value to wait for.
	// Zero means the memory is immediately usable.
	Value uint64
}

// TransientRegistry allocates and recycles per-frame resources.
//
// The resource command compiler consults IsAliasedHeapResource and
// SupportsMemorylessTargets at compile time; all other methods are driven
// by the executor while replaying the
// pre-frame command stream. Mutation is single-threaded, serialized by the
// frame boundary.
type TransientRegistry interface {
	// PrepareFrame is called at the start of each frame before any
	// allocation.
	PrepareFrame()

	// AllocateBuffer returns backing memory for the buffer, allocating or
	// reusing a pooled allocation. The returned WaitEvent must be waited on
	// before the memory is accessed.
	AllocateBuffer(key ResourceKey, desc *BufferDescriptor) (Buffer, WaitEvent, error)

	// AllocateTexture returns backing memory for the texture with the given
	// accumulated usage. A memoryless texture has no backing store and is
	// valid only within a render pass.
	AllocateTexture(key ResourceKey, desc *TextureDescriptor, usage gputypes.TextureUsage, memoryless bool) (Texture, WaitEvent, error)

	// AllocateTextureView creates a view over an already-materialized
	// texture.
	AllocateTextureView(key ResourceKey, base Texture, desc *TextureViewDescriptor) (TextureView, error)

	// AllocateWindowTexture acquires the drawable texture for a
	// window-handle resource. Returns (nil, nil) when no drawable is
	// available this frame.
	AllocateWindowTexture(key ResourceKey, swapchain Swapchain) (Texture, Drawable, error)

	// AllocateArgumentBuffer returns backing memory for an argument buffer
	// with the given slot count.
	AllocateArgumentBuffer(key ResourceKey, slotCount int, label string) (ArgumentBuffer, WaitEvent, error)

	// AllocateArgumentBufferArray returns backing memory for an array of
	// argument buffers.
	AllocateArgumentBufferArray(key ResourceKey, elementCount, slotCount int, label string) (ArgumentBufferArray, WaitEvent, error)

	// DisposeBuffer returns the buffer's memory to the pool, tagged so that
	// reuse requires waiting on waitEvent.
	DisposeBuffer(key ResourceKey, buffer Buffer, waitEvent WaitEvent)

	// DisposeTexture returns the texture's memory to the pool.
	DisposeTexture(key ResourceKey, texture Texture, waitEvent WaitEvent)

	// DisposeArgumentBuffer returns the argument buffer's memory to the pool.
	DisposeArgumentBuffer(key ResourceKey, ab ArgumentBuffer, waitEvent WaitEvent)

	// IsAliasedHeapResource reports whether the resource is sub-allocated
	// from a shared heap and therefore interferes with other heap users.
	IsAliasedHeapResource(key ResourceKey) bool

	// WithHeapAliasingFences invokes fn with each fence dependency currently
	// guarding memory that aliases the resource.
	WithHeapAliasingFences(key ResourceKey, fn func(FenceDependency))

	// SetDisposalFences records the fences that downstream aliasing users of
	// the resource's memory must wait on.
	SetDisposalFences(key ResourceKey, deps []FenceDependency)

	// RegisterInitializedHistoryBufferForDisposal schedules the resource's
	// disposal at the end of this frame even though it is persistent.
	RegisterInitializedHistoryBufferForDisposal(key ResourceKey, texture Texture, waitEvent WaitEvent)

	// SupportsMemorylessTargets reports whether render-target-only
	// transient textures may be allocated without a backing store.
	SupportsMemorylessTargets() bool

	// CycleFrames retires the oldest in-flight frame's bookkeeping and
	// unconditionally reclaims its transient backing memory.
	CycleFrames()

	// ClearSwapchains drops all swapchain associations.
	ClearSwapchains()

	// ClearDrawables drops drawable references held for the current frame.
	ClearDrawables()
}
