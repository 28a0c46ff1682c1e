package framegraph

import (
	"context"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/core"
	"github.com/gogpu/framegraph/hal"
)

// Frame is one frame under recording. Add passes, then Submit.
// A Frame is not safe for concurrent recording.
type Frame struct {
	graph     *FrameGraph
	passes    []*core.PassRecord
	usages    *core.ResourceUsages
	commands  int
	submitted bool
}

// NewFrame opens a frame for recording.
func (g *FrameGraph) NewFrame() *Frame {
	return &Frame{
		graph:  g,
		usages: core.NewResourceUsages(),
	}
}

// PassBuilder declares one pass's resource accesses and payload.
type PassBuilder struct {
	frame  *Frame
	record *core.PassRecord
}

func (f *Frame) addPass(name string, passType core.PassType, rt *core.RenderTargetDescriptor) *PassBuilder {
	record := &core.PassRecord{
		Index:        len(f.passes),
		Type:         passType,
		Active:       true,
		Name:         name,
		RenderTarget: rt,
		CommandRange: core.Range{Lo: f.commands, Hi: f.commands + 1},
	}
	f.commands++
	f.passes = append(f.passes, record)
	return &PassBuilder{frame: f, record: record}
}

// AddDrawPass declares a draw pass over the given render targets.
// Attachment accesses are recorded from the descriptor's load and store
// operations.
func (f *Frame) AddDrawPass(name string, rt *core.RenderTargetDescriptor) *PassBuilder {
	b := f.addPass(name, core.PassDraw, rt)
	for i := range rt.ColorAttachments {
		a := &rt.ColorAttachments[i]
		b.recordUsage(a.Texture, core.AttachmentAccess(a.LoadOp, a.StoreOp), hal.StageFragment, false)
	}
	if rt.DepthAttachment != nil {
		b.recordUsage(rt.DepthAttachment.Texture,
			core.AttachmentAccess(rt.DepthAttachment.LoadOp, rt.DepthAttachment.StoreOp),
			hal.StageFragment, false)
	}
	return b
}

// AddComputePass declares a compute pass.
func (f *Frame) AddComputePass(name string) *PassBuilder {
	return f.addPass(name, core.PassCompute, nil)
}

// AddBlitPass declares a blit pass.
func (f *Frame) AddBlitPass(name string) *PassBuilder {
	return f.addPass(name, core.PassBlit, nil)
}

// AddExternalPass declares an externally-recorded pass.
func (f *Frame) AddExternalPass(name string) *PassBuilder {
	return f.addPass(name, core.PassExternal, nil)
}

// AddCPUPass declares a host-side pass. It never reaches a command
// buffer.
func (f *Frame) AddCPUPass(name string) *PassBuilder {
	return f.addPass(name, core.PassCPU, nil)
}

// defaultStages infers the access stages from the pass type when the
// caller passes none.
func (b *PassBuilder) defaultStages(stages core.Stages) core.Stages {
	if stages != hal.StageNone {
		return stages
	}
	switch b.record.Type {
	case core.PassCompute:
		return hal.StageCompute
	case core.PassDraw:
		return hal.StageFragment
	case core.PassBlit:
		return hal.StageBlit
	case core.PassCPU:
		return hal.StageHost
	default:
		return hal.StageNone
	}
}

func (b *PassBuilder) recordUsage(res core.Resource, access core.AccessType, stages core.Stages, inArgumentBuffer bool) {
	b.frame.usages.Record(res, core.ResourceUsage{
		Pass:             b.record,
		CommandRange:     b.record.CommandRange,
		Access:           access,
		Stages:           b.defaultStages(stages),
		InArgumentBuffer: inArgumentBuffer,
	})
}

// Reads declares a read of the resource at the given stages.
func (b *PassBuilder) Reads(res core.Resource, stages core.Stages) *PassBuilder {
	b.recordUsage(res, core.AccessRead, stages, false)
	return b
}

// Writes declares a write of the resource at the given stages.
func (b *PassBuilder) Writes(res core.Resource, stages core.Stages) *PassBuilder {
	b.recordUsage(res, core.AccessWrite, stages, false)
	return b
}

// ReadsWrites declares a read-modify-write of the resource.
func (b *PassBuilder) ReadsWrites(res core.Resource, stages core.Stages) *PassBuilder {
	b.recordUsage(res, core.AccessReadWrite, stages, false)
	return b
}

// UsesArgumentBuffer declares that the pass binds the argument buffer,
// reading every resource its slots reference.
func (b *PassBuilder) UsesArgumentBuffer(ab core.Resource, stages core.Stages) *PassBuilder {
	b.recordUsage(ab, core.AccessRead, stages, false)
	for _, slot := range b.frame.graph.resources.ArgumentSlots(ab) {
		if slot.Resource.IsValid() {
			b.recordUsage(slot.Resource, core.AccessRead, stages, true)
		}
	}
	return b
}

// SetActive toggles the pass's participation in the frame.
func (b *PassBuilder) SetActive(active bool) *PassBuilder {
	b.record.Active = active
	return b
}

// Execute sets the pass payload.
func (b *PassBuilder) Execute(fn func(core.PassContext) error) *PassBuilder {
	b.record.Execute = fn
	return b
}

// Submit compiles and executes the frame. The completion callback fires
// once after the last command buffer completes, or with an error if the
// frame aborts. Configuration faults surface as an immediate error and
// the frame is not submitted.
func (f *Frame) Submit(ctx context.Context, onCompleted func(error)) error {
	if f.submitted {
		return core.NewConfigurationError("Frame", "", "frame already submitted")
	}
	f.submitted = true
	g := f.graph

	info := core.NewFrameCommandInfo(f.passes, g.resources, g.nextSignal)
	compiler := core.NewResourceCommandCompiler(g.resources, g.transient, g.queue)
	compiled, err := compiler.Compile(f.passes, f.usages, info)
	if err != nil {
		return err
	}
	g.nextSignal += uint64(info.CommandBufferCount)
	return g.executor.Execute(ctx, compiled, onCompleted)
}

// Useful re-exports so most clients only import the root package.

// Stage constants re-exported from hal.
const (
	StageVertex   = hal.StageVertex
	StageFragment = hal.StageFragment
	StageCompute  = hal.StageCompute
	StageBlit     = hal.StageBlit
	StageHost     = hal.StageHost
)

// LoadOp/StoreOp re-exports from gputypes for descriptor literals.
const (
	LoadOpLoad   = gputypes.LoadOpLoad
	LoadOpClear  = gputypes.LoadOpClear
	StoreOpStore = gputypes.StoreOpStore
)
