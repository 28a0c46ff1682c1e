package core

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/hal"
)

func mustNewBuffer(t *testing.T, reg *ResourceRegistry, label string, flags ResourceFlags) Resource {
	t.Helper()
	id, err := reg.NewBuffer(&hal.BufferDescriptor{Label: label, Size: 256}, flags)
	if err != nil {
		t.Fatalf("NewBuffer(%q) failed: %v", label, err)
	}
	return BufferResource(id)
}

func mustNewTexture(t *testing.T, reg *ResourceRegistry, label string, flags ResourceFlags) Resource {
	t.Helper()
	id, err := reg.NewTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          gputypes.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Format:        gputypes.TextureFormatRGBA8Unorm,
	}, flags)
	if err != nil {
		t.Fatalf("NewTexture(%q) failed: %v", label, err)
	}
	return TextureResource(id)
}

// frameBuilder assembles pass lists and usage recordings for compiler and
// frame-info tests.
type frameBuilder struct {
	passes []*PassRecord
	usages *ResourceUsages
	next   int
}

func newFrameBuilder() *frameBuilder {
	return &frameBuilder{usages: NewResourceUsages()}
}

func (b *frameBuilder) pass(typ PassType, name string) *PassRecord {
	p := &PassRecord{
		Index:        len(b.passes),
		Type:         typ,
		Active:       true,
		Name:         name,
		CommandRange: Range{Lo: b.next, Hi: b.next + 1},
	}
	b.next++
	b.passes = append(b.passes, p)
	return p
}

func (b *frameBuilder) drawPass(name string, rt *RenderTargetDescriptor) *PassRecord {
	p := b.pass(PassDraw, name)
	p.RenderTarget = rt
	for i := range rt.ColorAttachments {
		a := &rt.ColorAttachments[i]
		b.use(a.Texture, p, AttachmentAccess(a.LoadOp, a.StoreOp), hal.StageFragment)
	}
	if rt.DepthAttachment != nil {
		b.use(rt.DepthAttachment.Texture, p,
			AttachmentAccess(rt.DepthAttachment.LoadOp, rt.DepthAttachment.StoreOp), hal.StageFragment)
	}
	return p
}

func (b *frameBuilder) use(res Resource, p *PassRecord, access AccessType, stages Stages) {
	b.usages.Record(res, ResourceUsage{
		Pass:         p,
		CommandRange: p.CommandRange,
		Access:       access,
		Stages:       stages,
	})
}

func (b *frameBuilder) info(reg *ResourceRegistry, initialSignal uint64) *FrameCommandInfo {
	return NewFrameCommandInfo(b.passes, reg, initialSignal)
}

func (b *frameBuilder) compile(t *testing.T, reg *ResourceRegistry, transient hal.TransientRegistry, q *Queue, initialSignal uint64) *CompiledFrame {
	t.Helper()
	info := b.info(reg, initialSignal)
	compiler := NewResourceCommandCompiler(reg, transient, q)
	frame, err := compiler.Compile(b.passes, b.usages, info)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return frame
}

// stubSwapchain satisfies hal.Swapchain for partitioning tests that never
// execute.
type stubSwapchain struct{}

func (stubSwapchain) NextDrawable() (hal.Drawable, error) { return nil, nil }

func mustNewWindowTexture(t *testing.T, reg *ResourceRegistry, label string) Resource {
	t.Helper()
	id, err := reg.NewWindowTexture(stubSwapchain{}, &hal.TextureDescriptor{
		Label:         label,
		Size:          gputypes.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Format:        gputypes.TextureFormatBGRA8Unorm,
	})
	if err != nil {
		t.Fatalf("NewWindowTexture(%q) failed: %v", label, err)
	}
	return TextureResource(id)
}

func preCommands(frame *CompiledFrame, kind PreFrameCommandKind, res Resource) []PreFrameResourceCommand {
	var out []PreFrameResourceCommand
	for _, c := range frame.PreFrameCommands {
		if c.Kind == kind && c.Resource == res {
			out = append(out, c)
		}
	}
	return out
}

func frameCommands(frame *CompiledFrame, kind FrameCommandKind) []FrameResourceCommand {
	var out []FrameResourceCommand
	for _, c := range frame.FrameCommands {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// simpleRenderTarget builds a one-attachment descriptor over tex.
func simpleRenderTarget(tex Resource, load gputypes.LoadOp, store gputypes.StoreOp) *RenderTargetDescriptor {
	return &RenderTargetDescriptor{
		ColorAttachments: []ColorAttachment{{
			Texture: tex,
			LoadOp:  load,
			StoreOp: store,
		}},
		Size:        gputypes.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1},
		SampleCount: 1,
	}
}
