package hal

import "github.com/gogpu/gputypes"

// Stages is a set of pipeline stages a resource access is scoped to.
// The shader stages reuse the gputypes bit assignments; blit and host
// execution are scheduler-level stages with no gputypes equivalent.
type Stages uint32

// Pipeline stage flags.
const (
	StageNone     Stages = 0
	StageVertex          = Stages(gputypes.ShaderStageVertex)
	StageFragment        = Stages(gputypes.ShaderStageFragment)
	StageCompute         = Stages(gputypes.ShaderStageCompute)
	StageBlit     Stages = 1 << 16
	StageHost     Stages = 1 << 17
)

// StageRender covers both programmable render stages.
const StageRender = StageVertex | StageFragment

// IsEmpty returns true if no stage flags are set.
func (s Stages) IsEmpty() bool {
	return s == StageNone
}

// Contains returns true if all flags in other are present in s.
func (s Stages) Contains(other Stages) bool {
	return s&other == other
}

// ShaderStages converts the shader-visible subset to gputypes.ShaderStages.
// Blit and host bits are dropped.
func (s Stages) ShaderStages() gputypes.ShaderStages {
	mask := StageVertex | StageFragment | StageCompute
	return gputypes.ShaderStages(s & mask)
}

// ResourceUse describes how an encoder accesses a resource, for residency
// and usage hints.
type ResourceUse uint8

// Resource use flags.
const (
	UseRead ResourceUse = 1 << iota
	UseWrite
	UseSample
)

// IsEmpty returns true if no use flags are set.
func (u ResourceUse) IsEmpty() bool {
	return u == 0
}

// FenceDependency records one side of a fence handshake: the fence plus the
// stages and command index it is signaled after or awaited before.
type FenceDependency struct {
	// Fence is the backend fence object.
	Fence Fence

	// Stages are the pipeline stages of the signal or wait.
	Stages Stages

	// Index is the frame command index of the signal or wait position.
	Index int
}

// CommandEncoder is the interface shared by all recording encoders.
type CommandEncoder interface {
	// Label returns the encoder's debug name.
	Label() string

	// UseResource declares that the encoder accesses the resource with the
	// given use and stages. Emitted once per resource per encoder; backends
	// use it for residency and usage transitions.
	UseResource(resource Resource, use ResourceUse, stages Stages)

	// MemoryBarrier inserts an execution and memory dependency between
	// commands recorded before and after it, scoped to the given resources.
	MemoryBarrier(resources []Resource, afterStages, beforeStages Stages)

	// SignalFence signals the fence after the given stages complete.
	SignalFence(fence Fence, afterStages Stages)

	// WaitForFence stalls the given stages until the fence is signaled.
	WaitForFence(fence Fence, beforeStages Stages)

	// EndEncoding finishes the encoder. The encoder cannot be used again.
	EndEncoding()
}

// RenderCommandEncoder records draw commands against a set of render
// targets.
type RenderCommandEncoder interface {
	CommandEncoder

	// Draw draws primitives.
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)

	// DrawIndexed draws indexed primitives.
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
}

// ComputeCommandEncoder records compute dispatches.
type ComputeCommandEncoder interface {
	CommandEncoder

	// Dispatch dispatches compute work in workgroups.
	Dispatch(x, y, z uint32)
}

// BlitCommandEncoder records copy and clear commands.
type BlitCommandEncoder interface {
	CommandEncoder

	// CopyBufferToBuffer copies a byte range between buffers.
	CopyBufferToBuffer(src, dst Buffer, srcOffset, dstOffset, size uint64)

	// CopyTextureToTexture copies a full subresource between textures.
	CopyTextureToTexture(src, dst Texture)

	// FillBuffer fills a byte range with a constant.
	FillBuffer(dst Buffer, offset, size uint64, value byte)
}

// ExternalCommandEncoder hands recording to externally-managed command
// generation (e.g. a library recording into the same command buffer).
// The scheduler inserts no residency or barrier commands into it.
type ExternalCommandEncoder interface {
	CommandEncoder
}

// CommandBuffer is a unit of submission to a backend queue.
type CommandBuffer interface {
	// Label returns the command buffer's debug name.
	Label() string

	// BeginRenderCommandEncoder opens a render encoder over the given
	// targets. Returns an error if an encoder is already open.
	BeginRenderCommandEncoder(desc *RenderPassDescriptor) (RenderCommandEncoder, error)

	// BeginComputeCommandEncoder opens a compute encoder.
	BeginComputeCommandEncoder(label string) (ComputeCommandEncoder, error)

	// BeginBlitCommandEncoder opens a blit encoder.
	BeginBlitCommandEncoder(label string) (BlitCommandEncoder, error)

	// BeginExternalCommandEncoder opens an external encoder.
	BeginExternalCommandEncoder(label string) (ExternalCommandEncoder, error)

	// EncodeSignalEvent encodes a signal of the event with the given value
	// after all previously recorded work completes.
	EncodeSignalEvent(event Event, value uint64)

	// EncodeWaitForEvent encodes a wait until the event reaches the given
	// value before subsequently recorded work executes.
	EncodeWaitForEvent(event Event, value uint64)

	// PresentAfterCommit schedules the drawable for presentation once the
	// command buffer completes on the GPU.
	PresentAfterCommit(drawable Drawable)
}
