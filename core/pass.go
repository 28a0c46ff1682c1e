package core

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/hal"
)

// PassType classifies a pass by the encoder it records into.
type PassType uint8

// Pass types.
const (
	PassDraw PassType = iota
	PassCompute
	PassBlit
	PassExternal
	PassCPU
)

// String returns a string representation of the pass type.
func (t PassType) String() string {
	switch t {
	case PassDraw:
		return "draw"
	case PassCompute:
		return "compute"
	case PassBlit:
		return "blit"
	case PassExternal:
		return "external"
	case PassCPU:
		return "cpu"
	default:
		return "invalid"
	}
}

// IsSubmitting returns true for pass types that record GPU work.
// CPU passes execute on the host and never reach a command buffer.
func (t PassType) IsSubmitting() bool {
	return t != PassCPU
}

// PassContext hands the executing pass its recording encoder. Exactly one
// field matching the pass type is non-nil; CPU passes receive none.
type PassContext struct {
	Render   hal.RenderCommandEncoder
	Compute  hal.ComputeCommandEncoder
	Blit     hal.BlitCommandEncoder
	External hal.ExternalCommandEncoder
}

// PassRecord is one declared pass of a frame.
type PassRecord struct {
	// Index is the pass's position in the frame's pass list.
	Index int

	// Type selects the encoder kind the pass records into.
	Type PassType

	// Active passes participate in scheduling; inactive ones are skipped
	// entirely.
	Active bool

	// Name is the debug label.
	Name string

	// RenderTarget is the target descriptor for draw passes, nil otherwise.
	RenderTarget *RenderTargetDescriptor

	// CommandRange is the span of frame command indices the pass occupies.
	CommandRange Range

	// Execute is the pass payload, invoked by the executor with the open
	// encoder.
	Execute func(PassContext) error
}

// ColorAttachment describes one color target of a draw encoder.
type ColorAttachment struct {
	// Texture is the attached texture resource.
	Texture Resource

	// LoadOp specifies what happens to existing contents at pass start.
	LoadOp gputypes.LoadOp

	// StoreOp specifies whether results are stored at pass end.
	StoreOp gputypes.StoreOp

	// ClearValue is the clear color (used if LoadOp is Clear).
	ClearValue gputypes.Color
}

// DepthAttachment describes the depth target of a draw encoder.
type DepthAttachment struct {
	// Texture is the attached depth texture resource.
	Texture Resource

	// LoadOp specifies what happens to existing depth at pass start.
	LoadOp gputypes.LoadOp

	// StoreOp specifies whether depth is stored at pass end.
	StoreOp gputypes.StoreOp

	// ClearDepth is the clear value (used if LoadOp is Clear).
	ClearDepth float32
}

// RenderTargetDescriptor is the set of attachments a run of draw passes
// renders into. Draw passes with compatible descriptors coalesce into one
// encoder.
type RenderTargetDescriptor struct {
	// ColorAttachments are the color targets.
	ColorAttachments []ColorAttachment

	// DepthAttachment is the depth target (optional).
	DepthAttachment *DepthAttachment

	// Size is the render area.
	Size gputypes.Extent3D

	// SampleCount is the number of samples per pixel.
	SampleCount uint32
}

// CompatibleWith reports whether two descriptors can share one encoder:
// same attachments in the same order, same size and sample count.
// Load/store operations do not affect compatibility; the first pass's
// loads win, and an attachment is stored if any pass in the run stores it.
func (d *RenderTargetDescriptor) CompatibleWith(other *RenderTargetDescriptor) bool {
	if d == nil || other == nil {
		return d == other
	}
	if d.Size != other.Size || d.SampleCount != other.SampleCount {
		return false
	}
	if len(d.ColorAttachments) != len(other.ColorAttachments) {
		return false
	}
	for i := range d.ColorAttachments {
		if d.ColorAttachments[i].Texture != other.ColorAttachments[i].Texture {
			return false
		}
	}
	if (d.DepthAttachment == nil) != (other.DepthAttachment == nil) {
		return false
	}
	if d.DepthAttachment != nil && d.DepthAttachment.Texture != other.DepthAttachment.Texture {
		return false
	}
	return true
}

// forEachAttachment visits every attached texture with its load and store
// operations.
func (d *RenderTargetDescriptor) forEachAttachment(fn func(tex Resource, load gputypes.LoadOp, store gputypes.StoreOp)) {
	if d == nil {
		return
	}
	for i := range d.ColorAttachments {
		a := &d.ColorAttachments[i]
		fn(a.Texture, a.LoadOp, a.StoreOp)
	}
	if d.DepthAttachment != nil {
		fn(d.DepthAttachment.Texture, d.DepthAttachment.LoadOp, d.DepthAttachment.StoreOp)
	}
}

// AttachmentAccess derives the access type of a render target attachment
// from its load and store operations. Loading existing contents makes the
// attachment a read; clearing or discarding does not stop the pass from
// writing it.
func AttachmentAccess(load gputypes.LoadOp, store gputypes.StoreOp) AccessType {
	if load == gputypes.LoadOpLoad {
		return AccessReadWriteRenderTarget
	}
	return AccessWriteOnlyRenderTarget
}

// referencesWindowTexture reports whether any attachment is backed by a
// swapchain drawable.
func (d *RenderTargetDescriptor) referencesWindowTexture(resources *ResourceRegistry) bool {
	found := false
	d.forEachAttachment(func(tex Resource, _ gputypes.LoadOp, _ gputypes.StoreOp) {
		if resources.Flags(tex).IsWindowHandle() {
			found = true
		}
	})
	return found
}
