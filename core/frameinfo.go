package core

import "github.com/gogpu/gputypes"

// EncoderInfo describes one encoder of a frame: a maximal run of
// consecutive active passes of compatible type, recorded into one native
// command recorder.
type EncoderInfo struct {
	// Index is the encoder's position in the frame's encoder list.
	Index int

	// Type is the pass type shared by every pass in the run.
	Type PassType

	// PassRange spans the pass indices of the run.
	PassRange Range

	// CommandRange spans the frame command indices of the run.
	CommandRange Range

	// RenderTarget is the merged target descriptor for draw encoders.
	RenderTarget *RenderTargetDescriptor

	// CommandBufferIndex is the command buffer the encoder is recorded
	// into; -1 for non-submitting (CPU) encoders.
	CommandBufferIndex int

	// Presents is true when the encoder renders to a swapchain drawable.
	Presents bool

	// QueueCommandWaitIndices holds, per queue, the command buffer signal
	// value that must complete before this encoder executes. Raised by the
	// pre-frame command stream.
	QueueCommandWaitIndices [MaxQueues]uint64

	// Label is the debug name, derived from the first pass in the run.
	Label string
}

// FrameCommandInfo partitions a frame's passes into encoders and encoders
// into command buffers, and assigns each command buffer a monotonic signal
// value.
type FrameCommandInfo struct {
	// Encoders lists the frame's encoders in recording order.
	Encoders []EncoderInfo

	// CommandBufferCount is the number of command buffers the submitting
	// encoders span.
	CommandBufferCount int

	// InitialSignalValue is the signal value assigned to the first command
	// buffer.
	InitialSignalValue uint64

	// CommandCount is the total number of frame command indices.
	CommandCount int

	passEncoder []int
}

// NewFrameCommandInfo builds the encoder and command buffer partition for
// the given pass list.
func NewFrameCommandInfo(passes []*PassRecord, resources *ResourceRegistry, initialSignalValue uint64) *FrameCommandInfo {
	info := &FrameCommandInfo{
		InitialSignalValue: initialSignalValue,
		passEncoder:        make([]int, len(passes)),
	}
	for i := range info.passEncoder {
		info.passEncoder[i] = -1
	}

	var cur *EncoderInfo
	for _, pass := range passes {
		if !pass.Active {
			continue
		}
		if info.CommandCount < pass.CommandRange.Hi {
			info.CommandCount = pass.CommandRange.Hi
		}

		if cur == nil || splitEncoder(cur, pass) {
			info.Encoders = append(info.Encoders, EncoderInfo{
				Index:              len(info.Encoders),
				Type:               pass.Type,
				PassRange:          Range{Lo: pass.Index, Hi: pass.Index + 1},
				CommandRange:       pass.CommandRange,
				RenderTarget:       clonedRenderTarget(pass.RenderTarget),
				CommandBufferIndex: -1,
				Label:              pass.Name,
			})
			cur = &info.Encoders[len(info.Encoders)-1]
		} else {
			cur.PassRange.Hi = pass.Index + 1
			if pass.CommandRange.Hi > cur.CommandRange.Hi {
				cur.CommandRange.Hi = pass.CommandRange.Hi
			}
			mergeRenderTargetStores(cur.RenderTarget, pass.RenderTarget)
		}
		info.passEncoder[pass.Index] = cur.Index
	}

	info.assignCommandBuffers(resources)
	return info
}

// splitEncoder decides whether pass starts a new encoder after cur.
func splitEncoder(cur *EncoderInfo, pass *PassRecord) bool {
	// External and CPU passes never coalesce, on either side.
	if cur.Type == PassExternal || cur.Type == PassCPU {
		return true
	}
	if pass.Type == PassExternal || pass.Type == PassCPU {
		return true
	}
	if pass.Type != cur.Type {
		return true
	}
	if pass.Type == PassDraw && !cur.RenderTarget.CompatibleWith(pass.RenderTarget) {
		return true
	}
	return false
}

// clonedRenderTarget deep-copies a descriptor so per-encoder store merging
// does not mutate the pass's own descriptor.
func clonedRenderTarget(d *RenderTargetDescriptor) *RenderTargetDescriptor {
	if d == nil {
		return nil
	}
	clone := *d
	clone.ColorAttachments = append([]ColorAttachment(nil), d.ColorAttachments...)
	if d.DepthAttachment != nil {
		depth := *d.DepthAttachment
		clone.DepthAttachment = &depth
	}
	return &clone
}

// mergeRenderTargetStores folds a coalesced pass's store operations into
// the encoder descriptor: the first pass's loads win, and an attachment is
// stored if any pass in the run stores it.
func mergeRenderTargetStores(dst, src *RenderTargetDescriptor) {
	if dst == nil || src == nil {
		return
	}
	for i := range dst.ColorAttachments {
		if src.ColorAttachments[i].StoreOp == gputypes.StoreOpStore {
			dst.ColorAttachments[i].StoreOp = gputypes.StoreOpStore
		}
	}
	if dst.DepthAttachment != nil && src.DepthAttachment != nil {
		if src.DepthAttachment.StoreOp == gputypes.StoreOpStore {
			dst.DepthAttachment.StoreOp = gputypes.StoreOpStore
		}
	}
}

// assignCommandBuffers partitions submitting encoders into command
// buffers. A command buffer never straddles a presentation boundary:
// a new one begins wherever the sequence switches between encoders that
// present a swapchain and encoders that do not.
func (f *FrameCommandInfo) assignCommandBuffers(resources *ResourceRegistry) {
	cb := -1
	lastPresents := false
	for i := range f.Encoders {
		enc := &f.Encoders[i]
		if !enc.Type.IsSubmitting() {
			enc.CommandBufferIndex = -1
			continue
		}
		enc.Presents = enc.Type == PassDraw && enc.RenderTarget != nil &&
			enc.RenderTarget.referencesWindowTexture(resources)
		if cb < 0 || enc.Presents != lastPresents {
			cb++
		}
		enc.CommandBufferIndex = cb
		lastPresents = enc.Presents
	}
	f.CommandBufferCount = cb + 1
}

// EncoderIndexForPass returns the encoder index for a pass index in O(1),
// or -1 for an inactive pass.
func (f *FrameCommandInfo) EncoderIndexForPass(passIndex int) int {
	return f.passEncoder[passIndex]
}

// EncoderIndexForUsage returns the encoder index of the pass that declared
// the usage.
func (f *FrameCommandInfo) EncoderIndexForUsage(u *ResourceUsage) int {
	return f.passEncoder[u.Pass.Index]
}

// SignalValue returns the monotonic signal value assigned to a command
// buffer.
func (f *FrameCommandInfo) SignalValue(commandBufferIndex int) uint64 {
	return f.InitialSignalValue + uint64(commandBufferIndex)
}

// FinalSignalValue returns the signal value of the frame's last command
// buffer, or the previous frame's final value if the frame submits
// nothing.
func (f *FrameCommandInfo) FinalSignalValue() uint64 {
	if f.CommandBufferCount == 0 {
		return f.InitialSignalValue - 1
	}
	return f.SignalValue(f.CommandBufferCount - 1)
}
