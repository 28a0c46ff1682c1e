package core

import (
	"sort"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/hal"
)

// CommandOrder positions a command relative to the frame command index it
// is attached to.
type CommandOrder uint8

// Command orders.
const (
	OrderBefore CommandOrder = iota
	OrderAfter
)

// PreFrameCommandKind enumerates commands executed before GPU recording
// begins.
type PreFrameCommandKind uint8

// Pre-frame command kinds.
const (
	PreCmdMaterializeBuffer PreFrameCommandKind = iota
	PreCmdMaterializeTexture
	PreCmdMaterializeTextureView
	PreCmdMaterializeArgumentBuffer
	PreCmdMaterializeArgumentBufferArray
	PreCmdDisposeResource
	PreCmdRegisterHistoryBufferDisposal
	PreCmdWaitForCommandBuffer
	PreCmdUpdateCommandBufferWaitIndex
	PreCmdWaitForHeapAliasingFences
)

// isMaterialize reports whether the kind allocates backing memory.
func (k PreFrameCommandKind) isMaterialize() bool {
	switch k {
	case PreCmdMaterializeBuffer, PreCmdMaterializeTexture, PreCmdMaterializeTextureView,
		PreCmdMaterializeArgumentBuffer, PreCmdMaterializeArgumentBufferArray:
		return true
	default:
		return false
	}
}

// PreFrameResourceCommand is one entry of the pre-frame command stream.
type PreFrameResourceCommand struct {
	// Kind selects the command variant.
	Kind PreFrameCommandKind

	// Index is the frame command index the command is anchored to.
	Index int

	// Order positions the command before or after the anchor index.
	Order CommandOrder

	// Resource is the subject of the command.
	Resource Resource

	// EncoderIndex is the encoder whose wait indices the command updates
	// (materialize, wait-for-command-buffer, heap-aliasing waits).
	EncoderIndex int

	// TextureUsage is the accumulated usage for texture materialization.
	TextureUsage gputypes.TextureUsage

	// Memoryless requests a texture without a backing store.
	Memoryless bool

	// Queue and WaitIndex parameterize wait-for-command-buffer commands.
	Queue QueueIndex
	WaitIndex uint64

	// StoreFences are the disposal fences registered alongside a dispose
	// of an aliased-heap resource.
	StoreFences []FenceDependency
}

// FrameCommandKind enumerates commands replayed during encoder recording.
type FrameCommandKind uint8

// In-frame command kinds, in replay priority order within one
// (index, order) position.
const (
	CmdWaitForFence FrameCommandKind = iota
	CmdMemoryBarrier
	CmdUseResource
	CmdUpdateFence
)

// FrameResourceCommand is one entry of the in-frame command stream.
type FrameResourceCommand struct {
	// Kind selects the command variant.
	Kind FrameCommandKind

	// Index is the frame command index the command is anchored to.
	Index int

	// Order positions the command before or after the anchor index.
	Order CommandOrder

	// Resource is the subject resource for use-resource and
	// memory-barrier commands.
	Resource Resource

	// Use and Stages describe a use-resource emission.
	Use    hal.ResourceUse
	Stages Stages

	// AfterStages and BeforeStages scope barriers and fence operations.
	AfterStages  Stages
	BeforeStages Stages

	// Fence is the fence for update-fence and wait-for-fence commands.
	Fence *Fence
}

// Fence is a scheduler-level fence bound to the command buffer that
// signals it. The executor maps it to a backend fence on first use.
type Fence struct {
	// Queue is the queue the signaling command buffer runs on.
	Queue QueueIndex

	// CommandBufferSignalValue is the signal value of the command buffer
	// that updates the fence.
	CommandBufferSignalValue uint64

	// Backend is the backend fence object, assigned by the executor.
	Backend hal.Fence
}

// FenceDependency records one side of a fence handshake at scheduler
// level: the fence plus the stages and command index of the signal or
// wait.
type FenceDependency struct {
	// Fence is the scheduler fence.
	Fence *Fence

	// Stages are the pipeline stages of the signal or wait.
	Stages Stages

	// Index is the frame command index of the signal or wait position.
	Index int
}

// sortPreFrameCommands orders the pre-frame stream by (index, order) with
// one tie-breaker: materialize commands for non-argument-buffer resources
// precede materialize commands for argument buffers at the same position,
// because argument buffers reference resources that must already exist.
// Waits sort before materializations so wait indices are raised before
// the encoder consumes them.
func sortPreFrameCommands(cmds []PreFrameResourceCommand) {
	sort.SliceStable(cmds, func(i, j int) bool {
		a, b := &cmds[i], &cmds[j]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return preFrameRank(a) < preFrameRank(b)
	})
}

func preFrameRank(c *PreFrameResourceCommand) int {
	switch {
	case c.Kind == PreCmdWaitForCommandBuffer || c.Kind == PreCmdWaitForHeapAliasingFences:
		return 0
	case c.Kind.isMaterialize() && !c.Resource.IsArgumentBuffer():
		return 1
	case c.Kind.isMaterialize():
		return 2
	default:
		return 3
	}
}

// sortFrameCommands orders the in-frame stream by (index, order, kind).
func sortFrameCommands(cmds []FrameResourceCommand) {
	sort.SliceStable(cmds, func(i, j int) bool {
		a, b := &cmds[i], &cmds[j]
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.Kind < b.Kind
	})
}
