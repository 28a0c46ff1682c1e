package core

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/framegraph/hal"
)

// ResourceKind tags a Resource handle with the kind of object it names.
type ResourceKind uint8

// Resource kinds.
const (
	ResourceKindInvalid ResourceKind = iota
	ResourceKindBuffer
	ResourceKindTexture
	ResourceKindTextureView
	ResourceKindArgumentBuffer
	ResourceKindArgumentBufferArray
)

// String returns a string representation of the resource kind.
func (k ResourceKind) String() string {
	switch k {
	case ResourceKindBuffer:
		return "Buffer"
	case ResourceKindTexture:
		return "Texture"
	case ResourceKindTextureView:
		return "TextureView"
	case ResourceKindArgumentBuffer:
		return "ArgumentBuffer"
	case ResourceKindArgumentBufferArray:
		return "ArgumentBufferArray"
	default:
		return "Invalid"
	}
}

// Resource is a value-typed handle to a logical frame graph resource.
// It carries a kind tag plus a generation/index pair into the resource
// registry; it never owns the object it names.
type Resource struct {
	raw  RawID
	kind ResourceKind
}

// Kind returns the kind tag of the handle.
func (r Resource) Kind() ResourceKind {
	return r.kind
}

// Raw returns the underlying generational ID.
func (r Resource) Raw() RawID {
	return r.raw
}

// IsValid returns true for a non-zero handle.
func (r Resource) IsValid() bool {
	return r.kind != ResourceKindInvalid && !r.raw.IsZero()
}

// IsArgumentBuffer returns true for argument buffer and argument buffer
// array handles.
func (r Resource) IsArgumentBuffer() bool {
	return r.kind == ResourceKindArgumentBuffer || r.kind == ResourceKindArgumentBufferArray
}

// Key packs the handle into the opaque key handed to the transient
// registry. The kind occupies the top three bits; epochs stay well below
// the remaining width in practice.
func (r Resource) Key() hal.ResourceKey {
	return hal.ResourceKey(uint64(r.kind)<<61 | uint64(r.raw)&(1<<61-1))
}

// String returns a string representation of the handle.
func (r Resource) String() string {
	index, epoch := r.raw.Unzip()
	return fmt.Sprintf("%s(%d,%d)", r.kind, index, epoch)
}

// BufferIDOf extracts the typed ID from a buffer handle.
func BufferIDOf(res Resource) (BufferID, bool) {
	if res.kind != ResourceKindBuffer {
		return BufferID{}, false
	}
	return FromRaw[bufferMarker](res.raw), true
}

// TextureIDOf extracts the typed ID from a texture handle.
func TextureIDOf(res Resource) (TextureID, bool) {
	if res.kind != ResourceKindTexture {
		return TextureID{}, false
	}
	return FromRaw[textureMarker](res.raw), true
}

// BufferResource wraps a BufferID into a tagged handle.
func BufferResource(id BufferID) Resource {
	return Resource{raw: id.Raw(), kind: ResourceKindBuffer}
}

// TextureResource wraps a TextureID into a tagged handle.
func TextureResource(id TextureID) Resource {
	return Resource{raw: id.Raw(), kind: ResourceKindTexture}
}

// TextureViewResource wraps a TextureViewID into a tagged handle.
func TextureViewResource(id TextureViewID) Resource {
	return Resource{raw: id.Raw(), kind: ResourceKindTextureView}
}

// ArgumentBufferResource wraps an ArgumentBufferID into a tagged handle.
func ArgumentBufferResource(id ArgumentBufferID) Resource {
	return Resource{raw: id.Raw(), kind: ResourceKindArgumentBuffer}
}

// ArgumentBufferArrayResource wraps an ArgumentBufferArrayID into a tagged handle.
func ArgumentBufferArrayResource(id ArgumentBufferArrayID) Resource {
	return Resource{raw: id.Raw(), kind: ResourceKindArgumentBufferArray}
}

// ResourceFlags alter a resource's lifetime and access rules.
type ResourceFlags uint8

// Resource flags.
const (
	// FlagPersistent keeps the resource alive across frames; it must be
	// explicitly disposed.
	FlagPersistent ResourceFlags = 1 << iota

	// FlagHistoryBuffer marks a persistent resource that is materialized
	// fresh in the frame that first initializes it and preserved afterwards.
	FlagHistoryBuffer

	// FlagImmutableOnceInitialized promises no writes after the resource's
	// first initializing write.
	FlagImmutableOnceInitialized

	// FlagWindowHandle marks a texture backed by a swapchain drawable.
	FlagWindowHandle
)

// flagsMask covers all defined flag bits; anything outside is a
// configuration fault.
const flagsMask = FlagPersistent | FlagHistoryBuffer | FlagImmutableOnceInitialized | FlagWindowHandle

// IsPersistent returns true if the resource lives across frames.
// History buffers are persistent by definition.
func (f ResourceFlags) IsPersistent() bool {
	return f&(FlagPersistent|FlagHistoryBuffer) != 0
}

// IsHistoryBuffer returns true for history buffers.
func (f ResourceFlags) IsHistoryBuffer() bool {
	return f&FlagHistoryBuffer != 0
}

// IsImmutableOnceInitialized returns true if writes after initialization
// are forbidden.
func (f ResourceFlags) IsImmutableOnceInitialized() bool {
	return f&FlagImmutableOnceInitialized != 0
}

// IsWindowHandle returns true for swapchain-backed textures.
func (f ResourceFlags) IsWindowHandle() bool {
	return f&FlagWindowHandle != 0
}

// waitIndex selectors for the per-queue wait index table.
const (
	waitIndexRead = iota
	waitIndexWrite
	waitIndexReadWrite
	waitIndexCount
)

// ArgumentSlot binds one slot of an argument buffer to a tracked resource
// or a sampler.
type ArgumentSlot struct {
	// Slot is the slot index within the argument buffer.
	Slot int

	// Resource is the bound buffer, texture or texture view handle.
	// Invalid when a sampler is bound instead.
	Resource Resource

	// Sampler is the bound sampler, if any. Samplers have no usage
	// tracking, so the backend object is referenced directly.
	Sampler hal.Sampler
}

// resourceState is the registry-side record for one logical resource.
type resourceState struct {
	flags ResourceFlags
	label string

	// initialized latches once a persistent or history resource has been
	// written. Written by one frame's compiler at a time, read concurrently.
	initialized atomic.Bool

	// waitIndices[queue][access] is the command buffer signal value that
	// must complete on the queue before this resource may be accessed for
	// reading, writing, or both. Updated atomically; may be read while
	// another queue's executor updates its own row.
	waitIndices [MaxQueues][waitIndexCount]atomic.Uint64

	// Materialization inputs, by kind.
	bufferDesc  *hal.BufferDescriptor
	textureDesc *hal.TextureDescriptor
	viewDesc    *hal.TextureViewDescriptor
	viewBase    Resource
	argSlots    []ArgumentSlot
	argElements int
	swapchain   hal.Swapchain
}

// ResourceRegistry owns the logical resource table. Handles index into it;
// usages hold handles and re-validate the generation on every lookup.
type ResourceRegistry struct {
	bufferIDs   *IdentityManager[bufferMarker]
	textureIDs  *IdentityManager[textureMarker]
	viewIDs     *IdentityManager[textureViewMarker]
	argIDs      *IdentityManager[argumentBufferMarker]
	argArrayIDs *IdentityManager[argumentBufferArrayMarker]

	buffers   *Storage[*resourceState, bufferMarker]
	textures  *Storage[*resourceState, textureMarker]
	views     *Storage[*resourceState, textureViewMarker]
	args      *Storage[*resourceState, argumentBufferMarker]
	argArrays *Storage[*resourceState, argumentBufferArrayMarker]
}

// NewResourceRegistry creates an empty resource registry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{
		bufferIDs:   NewIdentityManager[bufferMarker](),
		textureIDs:  NewIdentityManager[textureMarker](),
		viewIDs:     NewIdentityManager[textureViewMarker](),
		argIDs:      NewIdentityManager[argumentBufferMarker](),
		argArrayIDs: NewIdentityManager[argumentBufferArrayMarker](),
		buffers:     NewStorage[*resourceState, bufferMarker](64),
		textures:    NewStorage[*resourceState, textureMarker](64),
		views:       NewStorage[*resourceState, textureViewMarker](16),
		args:        NewStorage[*resourceState, argumentBufferMarker](16),
		argArrays:   NewStorage[*resourceState, argumentBufferArrayMarker](4),
	}
}

func validateFlags(flags ResourceFlags) error {
	if flags&^flagsMask != 0 {
		return NewConfigurationErrorf("Resource", "Flags", "unknown flag bits 0x%x", uint8(flags&^flagsMask))
	}
	if flags.IsWindowHandle() && flags.IsPersistent() {
		return NewConfigurationError("Resource", "Flags", "window handle textures cannot be persistent")
	}
	return nil
}

// NewBuffer registers a logical buffer and returns its handle.
func (r *ResourceRegistry) NewBuffer(desc *hal.BufferDescriptor, flags ResourceFlags) (BufferID, error) {
	if err := validateFlags(flags); err != nil {
		return BufferID{}, err
	}
	if desc == nil || desc.Size == 0 {
		return BufferID{}, NewConfigurationError("Buffer", "Size", "size must be greater than 0")
	}
	id := r.bufferIDs.Alloc()
	r.buffers.Insert(id, &resourceState{flags: flags, label: desc.Label, bufferDesc: desc})
	return id, nil
}

// NewTexture registers a logical texture and returns its handle.
func (r *ResourceRegistry) NewTexture(desc *hal.TextureDescriptor, flags ResourceFlags) (TextureID, error) {
	if err := validateFlags(flags); err != nil {
		return TextureID{}, err
	}
	if desc == nil || desc.Size.Width == 0 || desc.Size.Height == 0 {
		return TextureID{}, NewConfigurationError("Texture", "Size", "extent must be non-zero")
	}
	id := r.textureIDs.Alloc()
	r.textures.Insert(id, &resourceState{flags: flags, label: desc.Label, textureDesc: desc})
	return id, nil
}

// NewWindowTexture registers a swapchain-backed texture. Its backing is
// acquired per frame from the swapchain's drawable.
func (r *ResourceRegistry) NewWindowTexture(swapchain hal.Swapchain, desc *hal.TextureDescriptor) (TextureID, error) {
	if swapchain == nil {
		return TextureID{}, NewConfigurationError("Texture", "Swapchain", "swapchain is required")
	}
	id, err := r.NewTexture(desc, FlagWindowHandle)
	if err != nil {
		return TextureID{}, err
	}
	state, _ := r.textures.Get(id)
	state.swapchain = swapchain
	return id, nil
}

// NewTextureView registers a view over the given texture.
func (r *ResourceRegistry) NewTextureView(base TextureID, desc *hal.TextureViewDescriptor) (TextureViewID, error) {
	baseState, ok := r.textures.Get(base)
	if !ok {
		return TextureViewID{}, NewConfigurationError("TextureView", "Base", "base texture handle is stale")
	}
	id := r.viewIDs.Alloc()
	r.views.Insert(id, &resourceState{
		flags:    baseState.flags,
		label:    desc.Label,
		viewDesc: desc,
		viewBase: TextureResource(base),
	})
	return id, nil
}

// NewArgumentBuffer registers an argument buffer with the given slot
// bindings.
func (r *ResourceRegistry) NewArgumentBuffer(slots []ArgumentSlot, flags ResourceFlags, label string) (ArgumentBufferID, error) {
	if err := validateFlags(flags); err != nil {
		return ArgumentBufferID{}, err
	}
	id := r.argIDs.Alloc()
	r.args.Insert(id, &resourceState{flags: flags, label: label, argSlots: slots})
	return id, nil
}

// NewArgumentBufferArray registers an array of argument buffers sharing
// one allocation. The slot bindings repeat per element.
func (r *ResourceRegistry) NewArgumentBufferArray(elementCount int, slots []ArgumentSlot, flags ResourceFlags, label string) (ArgumentBufferArrayID, error) {
	if err := validateFlags(flags); err != nil {
		return ArgumentBufferArrayID{}, err
	}
	if elementCount <= 0 {
		return ArgumentBufferArrayID{}, NewConfigurationError("ArgumentBufferArray", "ElementCount", "element count must be positive")
	}
	id := r.argArrayIDs.Alloc()
	r.argArrays.Insert(id, &resourceState{flags: flags, label: label, argSlots: slots, argElements: elementCount})
	return id, nil
}

// Dispose removes a resource from the registry and recycles its index.
// Handles are not recycled automatically: persistent and transient handles
// alike stay registered until they are disposed through this path.
func (r *ResourceRegistry) Dispose(res Resource) {
	switch res.kind {
	case ResourceKindBuffer:
		id := FromRaw[bufferMarker](res.raw)
		if _, ok := r.buffers.Remove(id); ok {
			r.bufferIDs.Release(id)
		}
	case ResourceKindTexture:
		id := FromRaw[textureMarker](res.raw)
		if _, ok := r.textures.Remove(id); ok {
			r.textureIDs.Release(id)
		}
	case ResourceKindTextureView:
		id := FromRaw[textureViewMarker](res.raw)
		if _, ok := r.views.Remove(id); ok {
			r.viewIDs.Release(id)
		}
	case ResourceKindArgumentBuffer:
		id := FromRaw[argumentBufferMarker](res.raw)
		if _, ok := r.args.Remove(id); ok {
			r.argIDs.Release(id)
		}
	case ResourceKindArgumentBufferArray:
		id := FromRaw[argumentBufferArrayMarker](res.raw)
		if _, ok := r.argArrays.Remove(id); ok {
			r.argArrayIDs.Release(id)
		}
	}
}

// state resolves the registry record for a handle, validating the
// generation.
func (r *ResourceRegistry) state(res Resource) (*resourceState, bool) {
	switch res.kind {
	case ResourceKindBuffer:
		return r.buffers.Get(FromRaw[bufferMarker](res.raw))
	case ResourceKindTexture:
		return r.textures.Get(FromRaw[textureMarker](res.raw))
	case ResourceKindTextureView:
		return r.views.Get(FromRaw[textureViewMarker](res.raw))
	case ResourceKindArgumentBuffer:
		return r.args.Get(FromRaw[argumentBufferMarker](res.raw))
	case ResourceKindArgumentBufferArray:
		return r.argArrays.Get(FromRaw[argumentBufferArrayMarker](res.raw))
	default:
		return nil, false
	}
}

// Contains reports whether the handle is live.
func (r *ResourceRegistry) Contains(res Resource) bool {
	_, ok := r.state(res)
	return ok
}

// Flags returns the resource's flags, or zero for a stale handle.
func (r *ResourceRegistry) Flags(res Resource) ResourceFlags {
	state, ok := r.state(res)
	if !ok {
		return 0
	}
	return state.flags
}

// Label returns the resource's debug name.
func (r *ResourceRegistry) Label(res Resource) string {
	state, ok := r.state(res)
	if !ok {
		return "<stale>"
	}
	return state.label
}

// IsInitialized reports whether a persistent or history resource has been
// written by a completed or in-flight frame.
func (r *ResourceRegistry) IsInitialized(res Resource) bool {
	state, ok := r.state(res)
	return ok && state.initialized.Load()
}

// SetInitialized latches the initialized flag.
func (r *ResourceRegistry) SetInitialized(res Resource) {
	if state, ok := r.state(res); ok {
		state.initialized.Store(true)
	}
}

// WaitIndex returns the stored per-queue wait index for the given access.
// For read-write access it is the max of all three stored entries.
func (r *ResourceRegistry) WaitIndex(res Resource, queue QueueIndex, access AccessType) uint64 {
	state, ok := r.state(res)
	if !ok {
		return 0
	}
	row := &state.waitIndices[queue]
	switch {
	case access.IsRead() && access.IsWrite():
		v := row[waitIndexReadWrite].Load()
		if rd := row[waitIndexRead].Load(); rd > v {
			v = rd
		}
		if wr := row[waitIndexWrite].Load(); wr > v {
			v = wr
		}
		return v
	case access.IsWrite():
		// A write must order after prior reads and writes alike.
		v := row[waitIndexWrite].Load()
		if rd := row[waitIndexRead].Load(); rd > v {
			v = rd
		}
		if rw := row[waitIndexReadWrite].Load(); rw > v {
			v = rw
		}
		return v
	default:
		v := row[waitIndexRead].Load()
		if rw := row[waitIndexReadWrite].Load(); rw > v {
			v = rw
		}
		return v
	}
}

// UpdateWaitIndices sets the resource's read, write and read-write wait
// indices for the queue to the given command buffer signal value.
// Values only move forward.
func (r *ResourceRegistry) UpdateWaitIndices(res Resource, queue QueueIndex, value uint64) {
	state, ok := r.state(res)
	if !ok {
		return
	}
	row := &state.waitIndices[queue]
	for i := range row {
		for {
			old := row[i].Load()
			if old >= value || row[i].CompareAndSwap(old, value) {
				break
			}
		}
	}
}

// ArgumentSlots returns the slot bindings of an argument buffer resource.
func (r *ResourceRegistry) ArgumentSlots(res Resource) []ArgumentSlot {
	state, ok := r.state(res)
	if !ok {
		return nil
	}
	return state.argSlots
}
