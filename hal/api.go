package hal

import "github.com/gogpu/gputypes"

// Backend identifies a backend implementation.
// Backends are registered globally and provide factory methods for devices.
type Backend interface {
	// Variant returns the backend type identifier.
	Variant() gputypes.Backend

	// CreateDevice creates a logical device.
	// Returns an error if device creation fails (e.g., drivers not available).
	CreateDevice(desc *DeviceDescriptor) (Device, error)
}

// DeviceDescriptor describes how to create a device.
type DeviceDescriptor struct {
	// Label is an optional debug name.
	Label string
}

// Device represents a logical GPU device.
// Devices create persistent resources, synchronization primitives and
// command buffers.
type Device interface {
	// CreateQueue creates a backend submission queue.
	CreateQueue() (Queue, error)

	// CreateCommandBuffer allocates a command buffer for recording.
	// The command buffer is submitted to the given queue on Commit.
	CreateCommandBuffer(queue Queue, label string) (CommandBuffer, error)

	// CreateBuffer creates a persistent GPU buffer.
	CreateBuffer(desc *BufferDescriptor) (Buffer, error)

	// DestroyBuffer destroys a persistent GPU buffer.
	DestroyBuffer(buffer Buffer)

	// CreateTexture creates a persistent GPU texture.
	CreateTexture(desc *TextureDescriptor) (Texture, error)

	// DestroyTexture destroys a persistent GPU texture.
	DestroyTexture(texture Texture)

	// CreateSampler creates a texture sampler.
	CreateSampler(desc *SamplerDescriptor) (Sampler, error)

	// DestroySampler destroys a sampler.
	DestroySampler(sampler Sampler)

	// CreateArgumentBuffer creates a persistent argument buffer with the
	// given number of slots.
	CreateArgumentBuffer(slotCount int, label string) (ArgumentBuffer, error)

	// DestroyArgumentBuffer destroys a persistent argument buffer.
	DestroyArgumentBuffer(ab ArgumentBuffer)

	// CreateFence creates an intra-queue synchronization fence.
	// Fences are signaled after given pipeline stages of one encoder and
	// awaited before given stages of another.
	CreateFence() (Fence, error)

	// DestroyFence destroys a fence.
	DestroyFence(fence Fence)

	// CreateEvent creates a timeline event for cross-command-buffer and
	// cross-queue synchronization.
	CreateEvent() (Event, error)

	// DestroyEvent destroys an event.
	DestroyEvent(event Event)

	// Destroy releases the device.
	// All resources created from this device must be destroyed first.
	Destroy()
}

// Queue handles command buffer submission and presentation.
type Queue interface {
	// Commit submits a recorded command buffer.
	// The completion callback is invoked exactly once, from a
	// backend-defined thread, when the GPU has finished (or failed)
	// executing the command buffer.
	Commit(cb CommandBuffer, onCompleted func(error)) error

	// Present presents a drawable previously attached with
	// CommandBuffer.PresentAfterCommit. Called by the backend; exposed for
	// adapters that separate commit and present.
	Present(drawable Drawable) error
}

// Resource is the base interface for backend resource objects.
type Resource interface {
	// Label returns the debug name of the resource.
	Label() string
}

// Buffer is a backend buffer allocation.
type Buffer interface {
	Resource

	// Size returns the buffer size in bytes.
	Size() uint64
}

// Texture is a backend texture allocation.
type Texture interface {
	Resource

	// Format returns the pixel format.
	Format() gputypes.TextureFormat

	// Usage returns the usage flags the texture was allocated with.
	Usage() gputypes.TextureUsage
}

// TextureView is a view into a texture.
type TextureView interface {
	Resource

	// Texture returns the viewed texture.
	Texture() Texture
}

// Sampler is a backend sampler object.
type Sampler interface {
	Resource
}

// ArgumentBuffer is a backend argument buffer (descriptor set / argument
// table). Slots are populated by the executor after the referenced
// resources have been materialized.
type ArgumentBuffer interface {
	Resource

	// SetBuffer binds a buffer to the given slot.
	SetBuffer(slot int, buffer Buffer)

	// SetTexture binds a texture to the given slot.
	SetTexture(slot int, texture Texture)

	// SetSampler binds a sampler to the given slot.
	SetSampler(slot int, sampler Sampler)
}

// ArgumentBufferArray is a contiguous array of argument buffers sharing one
// allocation.
type ArgumentBufferArray interface {
	Resource

	// Len returns the number of elements.
	Len() int

	// At returns the argument buffer at the given element index.
	At(i int) ArgumentBuffer
}

// Fence is an opaque intra-queue synchronization primitive. One encoder
// signals it after specified pipeline stages; another waits on it before
// specified stages.
type Fence interface {
	// Label returns the debug name of the fence.
	Label() string
}

// Event is a timeline synchronization primitive carrying a monotonically
// increasing 64-bit value. Command buffers signal it with a value on
// completion and wait for it to reach a value before executing.
type Event interface {
	// SignaledValue returns the last value the event was signaled with.
	SignaledValue() uint64
}

// Drawable is a presentable swapchain texture.
type Drawable interface {
	// Texture returns the backing texture of the drawable.
	Texture() Texture
}

// Swapchain produces drawables for a window surface.
type Swapchain interface {
	// NextDrawable acquires the next drawable.
	// Returns nil (with a nil error) when no drawable is available this
	// frame; the affected render encoder is skipped.
	NextDrawable() (Drawable, error)
}
