package core

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"
	"golang.org/x/sync/semaphore"

	"github.com/gogpu/framegraph/hal"
)

// BackingResolver resolves persistent resource handles to their backend
// objects. Implemented by the owning frame graph.
type BackingResolver interface {
	// Backing returns the backend object for a persistent resource.
	Backing(res Resource) (hal.Resource, bool)

	// StoreBacking records the backend object materialized for a
	// persistent resource (history buffers materialize through the
	// transient registry but persist afterwards).
	StoreBacking(res Resource, backing hal.Resource)
}

// ExecutorOptions configure an Executor.
type ExecutorOptions struct {
	// InflightFrameCount bounds the number of frames executing
	// concurrently. Defaults to 2.
	InflightFrameCount int

	// Label is the debug name used for command buffers.
	Label string
}

// Executor walks a compiled frame's command streams, drives the backend
// encoders and commits command buffers to the queue.
type Executor struct {
	device     hal.Device
	backend    hal.Queue
	queue      *Queue
	transient  hal.TransientRegistry
	persistent BackingResolver
	sem        *semaphore.Weighted
	syncEvent  hal.Event
	label      string
}

// NewExecutor creates an executor for one logical queue.
func NewExecutor(device hal.Device, backend hal.Queue, queue *Queue, transient hal.TransientRegistry, persistent BackingResolver, opts ExecutorOptions) (*Executor, error) {
	inflight := opts.InflightFrameCount
	if inflight == 0 {
		inflight = 2
	}
	if inflight < 1 {
		return nil, NewConfigurationErrorf("Executor", "InflightFrameCount", "must be positive, got %d", inflight)
	}
	event, err := device.CreateEvent()
	if err != nil {
		return nil, fmt.Errorf("failed to create queue sync event: %w", err)
	}
	queue.SetSyncEvent(event)
	return &Executor{
		device:     device,
		backend:    backend,
		queue:      queue,
		transient:  transient,
		persistent: persistent,
		sem:        semaphore.NewWeighted(int64(inflight)),
		syncEvent:  event,
		label:      opts.Label,
	}, nil
}

// execState is the per-frame execution scratch.
type execState struct {
	frame *CompiledFrame

	// backings maps logical resources to the backend objects materialized
	// or resolved for this frame.
	backings map[Resource]hal.Resource

	// drawables maps window textures to their acquired drawables.
	drawables map[Resource]hal.Drawable

	// lostWindows marks window textures whose drawable acquisition
	// returned nothing; encoders targeting them are skipped.
	lostWindows map[Resource]bool

	// aliasWaits collects per-encoder fence waits discovered from the
	// transient registry's heap-aliasing bookkeeping.
	aliasWaits map[int][]hal.FenceDependency

	presented map[Resource]bool
}

// Execute runs a compiled frame. The completion callback is invoked
// exactly once: with nil after the last command buffer completes, or with
// an error if the frame aborts or submission fails. The inflight-frame
// semaphore is released in either case.
func (e *Executor) Execute(ctx context.Context, frame *CompiledFrame, onCompleted func(error)) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	if len(frame.Passes) == 0 {
		if onCompleted != nil {
			onCompleted(nil)
		}
		e.sem.Release(1)
		return nil
	}

	e.transient.PrepareFrame()
	state := &execState{
		frame:       frame,
		backings:    make(map[Resource]hal.Resource, 16),
		drawables:   make(map[Resource]hal.Drawable, 1),
		lostWindows: make(map[Resource]bool),
		aliasWaits:  make(map[int][]hal.FenceDependency),
		presented:   make(map[Resource]bool),
	}

	if err := e.runPreFrame(state); err != nil {
		hal.Logger().Error("frame aborted", "error", err)
		if onCompleted != nil {
			onCompleted(fmt.Errorf("%w: %w", ErrFrameAborted, err))
		}
		e.sem.Release(1)
		return err
	}

	if err := e.encodeFrame(state, onCompleted); err != nil {
		if onCompleted != nil {
			onCompleted(err)
		}
		e.sem.Release(1)
		return err
	}

	e.transient.ClearDrawables()
	e.transient.CycleFrames()
	return nil
}

// runPreFrame replays the pre-frame command stream: materializations,
// disposals, wait-index maintenance and heap-aliasing lookups.
func (e *Executor) runPreFrame(state *execState) error {
	frame := state.frame
	finalSignal := frame.Info.FinalSignalValue()
	finalWait := hal.WaitEvent{Queue: e.queue.Index(), Value: finalSignal}

	for i := range frame.PreFrameCommands {
		cmd := &frame.PreFrameCommands[i]
		switch cmd.Kind {
		case PreCmdMaterializeBuffer:
			if err := e.materializeBuffer(state, cmd); err != nil {
				return err
			}

		case PreCmdMaterializeTexture:
			if err := e.materializeTexture(state, cmd); err != nil {
				return err
			}

		case PreCmdMaterializeTextureView:
			if err := e.materializeTextureView(state, cmd); err != nil {
				return err
			}

		case PreCmdMaterializeArgumentBuffer, PreCmdMaterializeArgumentBufferArray:
			if err := e.materializeArgumentBuffer(state, cmd); err != nil {
				return err
			}

		case PreCmdDisposeResource:
			e.disposeResource(state, cmd, finalWait)

		case PreCmdRegisterHistoryBufferDisposal:
			if backing, ok := state.backings[cmd.Resource]; ok {
				if tex, ok := backing.(hal.Texture); ok {
					e.transient.RegisterInitializedHistoryBufferForDisposal(cmd.Resource.Key(), tex, finalWait)
				}
				if e.persistent != nil {
					e.persistent.StoreBacking(cmd.Resource, backing)
				}
			}

		case PreCmdWaitForCommandBuffer:
			e.raiseWaitIndex(frame, cmd.EncoderIndex, cmd.Queue, cmd.WaitIndex)

		case PreCmdUpdateCommandBufferWaitIndex:
			e.resources(state).UpdateWaitIndices(cmd.Resource, e.queue.Index(), finalSignal)

		case PreCmdWaitForHeapAliasingFences:
			enc := cmd.EncoderIndex
			e.transient.WithHeapAliasingFences(cmd.Resource.Key(), func(dep hal.FenceDependency) {
				state.aliasWaits[enc] = append(state.aliasWaits[enc], dep)
			})
		}
	}
	return nil
}

// resources returns the registry the frame's handles index into.
func (e *Executor) resources(state *execState) *ResourceRegistry {
	return state.frame.registry
}

func (e *Executor) raiseWaitIndex(frame *CompiledFrame, encoder int, queue QueueIndex, value uint64) {
	enc := &frame.Info.Encoders[encoder]
	if value > enc.QueueCommandWaitIndices[queue] {
		enc.QueueCommandWaitIndices[queue] = value
	}
}

func (e *Executor) materializeBuffer(state *execState, cmd *PreFrameResourceCommand) error {
	reg := e.resources(state)
	rs, ok := reg.state(cmd.Resource)
	if !ok {
		return ErrStaleHandle
	}
	buf, wait, err := e.transient.AllocateBuffer(cmd.Resource.Key(), rs.bufferDesc)
	if err != nil {
		return &hal.AllocationError{Key: cmd.Resource.Key(), Label: rs.label, Cause: err}
	}
	state.backings[cmd.Resource] = buf
	e.raiseWaitIndex(state.frame, cmd.EncoderIndex, wait.Queue, wait.Value)
	return nil
}

func (e *Executor) materializeTexture(state *execState, cmd *PreFrameResourceCommand) error {
	reg := e.resources(state)
	rs, ok := reg.state(cmd.Resource)
	if !ok {
		return ErrStaleHandle
	}
	if rs.flags.IsWindowHandle() {
		tex, drawable, err := e.transient.AllocateWindowTexture(cmd.Resource.Key(), rs.swapchain)
		if err != nil {
			return &hal.AllocationError{Key: cmd.Resource.Key(), Label: rs.label, Cause: err}
		}
		if tex == nil {
			// No drawable this frame; render encoders targeting this
			// texture are skipped and the frame proceeds without them.
			state.lostWindows[cmd.Resource] = true
			hal.Logger().Warn("drawable unavailable, skipping dependent encoders", "texture", rs.label)
			return nil
		}
		state.backings[cmd.Resource] = tex
		state.drawables[cmd.Resource] = drawable
		return nil
	}
	tex, wait, err := e.transient.AllocateTexture(cmd.Resource.Key(), rs.textureDesc, cmd.TextureUsage, cmd.Memoryless)
	if err != nil {
		return &hal.AllocationError{Key: cmd.Resource.Key(), Label: rs.label, Cause: err}
	}
	state.backings[cmd.Resource] = tex
	e.raiseWaitIndex(state.frame, cmd.EncoderIndex, wait.Queue, wait.Value)
	return nil
}

func (e *Executor) materializeTextureView(state *execState, cmd *PreFrameResourceCommand) error {
	reg := e.resources(state)
	rs, ok := reg.state(cmd.Resource)
	if !ok {
		return ErrStaleHandle
	}
	base, ok := e.resolveBacking(state, rs.viewBase)
	if !ok {
		// The base texture has no direct usage this frame; materialize it
		// for the view.
		baseState, okBase := reg.state(rs.viewBase)
		if !okBase {
			return ErrStaleHandle
		}
		tex, wait, err := e.transient.AllocateTexture(rs.viewBase.Key(), baseState.textureDesc, baseState.textureDesc.Usage, false)
		if err != nil {
			return &hal.AllocationError{Key: rs.viewBase.Key(), Label: baseState.label, Cause: err}
		}
		state.backings[rs.viewBase] = tex
		e.raiseWaitIndex(state.frame, cmd.EncoderIndex, wait.Queue, wait.Value)
		base = tex
	}
	baseTex, ok := base.(hal.Texture)
	if !ok {
		return NewConfigurationErrorf("TextureView", "Base", "%s is not a texture", rs.viewBase)
	}
	view, err := e.transient.AllocateTextureView(cmd.Resource.Key(), baseTex, rs.viewDesc)
	if err != nil {
		return &hal.AllocationError{Key: cmd.Resource.Key(), Label: rs.label, Cause: err}
	}
	state.backings[cmd.Resource] = view
	return nil
}

// materializeArgumentBuffer allocates the argument buffer and populates
// its slots from the already-materialized resources it references.
func (e *Executor) materializeArgumentBuffer(state *execState, cmd *PreFrameResourceCommand) error {
	reg := e.resources(state)
	rs, ok := reg.state(cmd.Resource)
	if !ok {
		return ErrStaleHandle
	}

	fill := func(ab hal.ArgumentBuffer) error {
		for _, slot := range rs.argSlots {
			if slot.Sampler != nil {
				ab.SetSampler(slot.Slot, slot.Sampler)
				continue
			}
			backing, ok := e.resolveBacking(state, slot.Resource)
			if !ok {
				return NewConfigurationErrorf("ArgumentBuffer", "Slots", "slot %d references unmaterialized %s", slot.Slot, slot.Resource)
			}
			switch b := backing.(type) {
			case hal.Buffer:
				ab.SetBuffer(slot.Slot, b)
			case hal.Texture:
				ab.SetTexture(slot.Slot, b)
			case hal.TextureView:
				ab.SetTexture(slot.Slot, b.Texture())
			default:
				return NewConfigurationErrorf("ArgumentBuffer", "Slots", "slot %d has unbindable backing", slot.Slot)
			}
		}
		return nil
	}

	if cmd.Kind == PreCmdMaterializeArgumentBufferArray {
		arr, wait, err := e.transient.AllocateArgumentBufferArray(cmd.Resource.Key(), rs.argElements, len(rs.argSlots), rs.label)
		if err != nil {
			return &hal.AllocationError{Key: cmd.Resource.Key(), Label: rs.label, Cause: err}
		}
		for i := 0; i < arr.Len(); i++ {
			if err := fill(arr.At(i)); err != nil {
				return err
			}
		}
		state.backings[cmd.Resource] = arr
		e.raiseWaitIndex(state.frame, cmd.EncoderIndex, wait.Queue, wait.Value)
		return nil
	}

	ab, wait, err := e.transient.AllocateArgumentBuffer(cmd.Resource.Key(), len(rs.argSlots), rs.label)
	if err != nil {
		return &hal.AllocationError{Key: cmd.Resource.Key(), Label: rs.label, Cause: err}
	}
	if err := fill(ab); err != nil {
		return err
	}
	state.backings[cmd.Resource] = ab
	e.raiseWaitIndex(state.frame, cmd.EncoderIndex, wait.Queue, wait.Value)
	return nil
}

func (e *Executor) disposeResource(state *execState, cmd *PreFrameResourceCommand, wait hal.WaitEvent) {
	backing, ok := state.backings[cmd.Resource]
	if !ok {
		return
	}
	key := cmd.Resource.Key()
	if len(cmd.StoreFences) > 0 {
		deps := make([]hal.FenceDependency, 0, len(cmd.StoreFences))
		for _, d := range cmd.StoreFences {
			deps = append(deps, hal.FenceDependency{
				Fence:  e.backendFence(d.Fence),
				Stages: d.Stages,
				Index:  d.Index,
			})
		}
		e.transient.SetDisposalFences(key, deps)
	}
	switch b := backing.(type) {
	case hal.Buffer:
		e.transient.DisposeBuffer(key, b, wait)
	case hal.Texture:
		e.transient.DisposeTexture(key, b, wait)
	case hal.ArgumentBuffer:
		e.transient.DisposeArgumentBuffer(key, b, wait)
	}
}

// resolveBacking finds the backend object for a handle: frame-local
// materializations first, then the persistent store.
func (e *Executor) resolveBacking(state *execState, res Resource) (hal.Resource, bool) {
	if backing, ok := state.backings[res]; ok {
		return backing, true
	}
	if e.persistent != nil {
		if backing, ok := e.persistent.Backing(res); ok {
			return backing, true
		}
	}
	return nil, false
}

// backendFence lazily maps a scheduler fence to a backend fence.
func (e *Executor) backendFence(f *Fence) hal.Fence {
	if f.Backend == nil {
		fence, err := e.device.CreateFence()
		if err != nil {
			hal.Logger().Error("fence creation failed", "error", err)
			return nil
		}
		f.Backend = fence
	}
	return f.Backend
}

// encodeFrame walks the encoders, replays the in-frame command stream and
// commits command buffers.
func (e *Executor) encodeFrame(state *execState, onCompleted func(error)) error {
	frame := state.frame
	info := frame.Info
	total := info.CommandBufferCount

	if total == 0 {
		// CPU-only frame: run the host passes and complete immediately.
		for _, pass := range frame.Passes {
			if pass.Active && pass.Type == PassCPU && pass.Execute != nil {
				if err := pass.Execute(PassContext{}); err != nil {
					return err
				}
			}
		}
		if onCompleted != nil {
			onCompleted(nil)
		}
		e.sem.Release(1)
		return nil
	}

	var cb hal.CommandBuffer
	cbIndex := -1
	var maxWaited [MaxQueues]uint64
	nextCmd := 0
	// firstFailure holds the first command buffer error of the frame so
	// the completion callback reports it even when a later buffer succeeds.
	firstFailure := make(chan error, 1)

	commit := func() error {
		if cb == nil {
			return nil
		}
		signal := info.SignalValue(cbIndex)
		isLast := cbIndex == total-1
		cb.EncodeSignalEvent(e.syncEvent, signal)
		e.queue.CommandSubmitted(signal)
		err := e.backend.Commit(cb, func(submitErr error) {
			// Completion still advances the counter on error so waiters
			// do not deadlock.
			e.queue.CommandCompleted(signal)
			if submitErr != nil {
				hal.Logger().Error("command buffer failed", "signal", signal, "error", submitErr)
				select {
				case firstFailure <- submitErr:
				default:
				}
			}
			if isLast {
				var frameErr error
				select {
				case frameErr = <-firstFailure:
				default:
				}
				if onCompleted != nil {
					onCompleted(frameErr)
				}
				e.sem.Release(1)
			}
		})
		cb = nil
		return err
	}

	for i := range info.Encoders {
		enc := &info.Encoders[i]

		if !enc.Type.IsSubmitting() {
			if err := e.runCPUPasses(frame, enc); err != nil {
				return err
			}
			continue
		}

		if enc.CommandBufferIndex != cbIndex {
			if err := commit(); err != nil {
				return err
			}
			newCB, err := e.device.CreateCommandBuffer(e.backend, e.label)
			if err != nil {
				return err
			}
			cb = newCB
			cbIndex = enc.CommandBufferIndex
			maxWaited = [MaxQueues]uint64{}
		}

		e.encodeCrossQueueWaits(cb, enc, &maxWaited)

		if err := e.encodeEncoder(state, cb, enc, &nextCmd); err != nil {
			return err
		}
	}
	return commit()
}

// encodeCrossQueueWaits encodes waits for wait indices this command buffer
// has not covered yet. Peer queues in the same API wait on their sync
// event; external queues are waited on the CPU through the queue registry.
func (e *Executor) encodeCrossQueueWaits(cb hal.CommandBuffer, enc *EncoderInfo, maxWaited *[MaxQueues]uint64) {
	for q := QueueIndex(0); q < MaxQueues; q++ {
		index := enc.QueueCommandWaitIndices[q]
		if index == 0 || index <= maxWaited[q] {
			continue
		}
		maxWaited[q] = index
		if q == e.queue.Index() {
			// Same queue: command buffers execute in submission order.
			continue
		}
		peer := queueByIndex(q)
		if peer.LastCompletedCommand() >= index {
			continue
		}
		if event := queueSyncEvent(q); event != nil {
			cb.EncodeWaitForEvent(event, index)
		} else {
			peer.WaitForCommandCompletion(index)
		}
	}
}

// encodeEncoder opens the encoder, replays the in-frame commands falling
// inside its command range and runs the pass payloads.
func (e *Executor) encodeEncoder(state *execState, cb hal.CommandBuffer, enc *EncoderInfo, nextCmd *int) error {
	frame := state.frame

	// Drop stream entries belonging to skipped or non-submitting ranges.
	for *nextCmd < len(frame.FrameCommands) && frame.FrameCommands[*nextCmd].Index < enc.CommandRange.Lo {
		*nextCmd++
	}

	if enc.Type == PassDraw && e.renderTargetLost(state, enc.RenderTarget) {
		hal.Logger().Warn("skipping encoder", "encoder", enc.Label)
		for *nextCmd < len(frame.FrameCommands) && frame.FrameCommands[*nextCmd].Index < enc.CommandRange.Hi {
			*nextCmd++
		}
		return nil
	}

	var encoder hal.CommandEncoder
	ctx := PassContext{}
	switch enc.Type {
	case PassDraw:
		desc, drawables := e.renderPassDescriptor(state, enc)
		render, err := cb.BeginRenderCommandEncoder(desc)
		if err != nil {
			return err
		}
		for _, d := range drawables {
			cb.PresentAfterCommit(d)
		}
		encoder = render
		ctx.Render = render
	case PassCompute:
		compute, err := cb.BeginComputeCommandEncoder(enc.Label)
		if err != nil {
			return err
		}
		encoder = compute
		ctx.Compute = compute
	case PassBlit:
		blit, err := cb.BeginBlitCommandEncoder(enc.Label)
		if err != nil {
			return err
		}
		encoder = blit
		ctx.Blit = blit
	case PassExternal:
		external, err := cb.BeginExternalCommandEncoder(enc.Label)
		if err != nil {
			return err
		}
		encoder = external
		ctx.External = external
	}

	for _, dep := range state.aliasWaits[enc.Index] {
		if dep.Fence != nil {
			encoder.WaitForFence(dep.Fence, dep.Stages)
		}
	}

	if err := e.replayCommands(state, encoder, enc, nextCmd); err != nil {
		encoder.EndEncoding()
		return err
	}

	for passIndex := enc.PassRange.Lo; passIndex < enc.PassRange.Hi; passIndex++ {
		pass := frame.Passes[passIndex]
		if pass.Active && pass.Execute != nil {
			if err := pass.Execute(ctx); err != nil {
				encoder.EndEncoding()
				return err
			}
		}
	}

	encoder.EndEncoding()
	return nil
}

// replayCommands dispatches the in-frame stream entries within the
// encoder's command range.
func (e *Executor) replayCommands(state *execState, encoder hal.CommandEncoder, enc *EncoderInfo, nextCmd *int) error {
	frame := state.frame
	for *nextCmd < len(frame.FrameCommands) {
		cmd := &frame.FrameCommands[*nextCmd]
		if cmd.Index >= enc.CommandRange.Hi {
			break
		}
		*nextCmd++
		switch cmd.Kind {
		case CmdUseResource:
			backing, ok := e.resolveBacking(state, cmd.Resource)
			if !ok {
				return NewConfigurationErrorf("Resource", "", "%s used but never materialized", cmd.Resource)
			}
			encoder.UseResource(backing, cmd.Use, cmd.Stages)
		case CmdMemoryBarrier:
			if backing, ok := e.resolveBacking(state, cmd.Resource); ok {
				encoder.MemoryBarrier([]hal.Resource{backing}, cmd.AfterStages, cmd.BeforeStages)
			}
		case CmdUpdateFence:
			if fence := e.backendFence(cmd.Fence); fence != nil {
				encoder.SignalFence(fence, cmd.AfterStages)
			}
		case CmdWaitForFence:
			if fence := e.backendFence(cmd.Fence); fence != nil {
				encoder.WaitForFence(fence, cmd.BeforeStages)
			}
		}
	}
	return nil
}

// runCPUPasses executes the host passes of a non-submitting encoder.
func (e *Executor) runCPUPasses(frame *CompiledFrame, enc *EncoderInfo) error {
	for passIndex := enc.PassRange.Lo; passIndex < enc.PassRange.Hi; passIndex++ {
		pass := frame.Passes[passIndex]
		if pass.Active && pass.Execute != nil {
			if err := pass.Execute(PassContext{}); err != nil {
				return err
			}
		}
	}
	return nil
}

// renderTargetLost reports whether any attachment's drawable failed to
// materialize.
func (e *Executor) renderTargetLost(state *execState, desc *RenderTargetDescriptor) bool {
	lost := false
	desc.forEachAttachment(func(tex Resource, _ gputypes.LoadOp, _ gputypes.StoreOp) {
		if state.lostWindows[tex] {
			lost = true
		}
	})
	return lost
}

// renderPassDescriptor resolves the encoder's render target descriptor to
// backend textures and collects the drawables to present.
func (e *Executor) renderPassDescriptor(state *execState, enc *EncoderInfo) (*hal.RenderPassDescriptor, []hal.Drawable) {
	desc := &hal.RenderPassDescriptor{Label: enc.Label}
	var drawables []hal.Drawable
	rt := enc.RenderTarget
	if rt == nil {
		return desc, nil
	}
	for i := range rt.ColorAttachments {
		a := &rt.ColorAttachments[i]
		backing, _ := e.resolveBacking(state, a.Texture)
		tex, _ := backing.(hal.Texture)
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       tex,
			LoadOp:     a.LoadOp,
			StoreOp:    a.StoreOp,
			ClearValue: a.ClearValue,
		})
		if d, ok := state.drawables[a.Texture]; ok && !state.presented[a.Texture] {
			state.presented[a.Texture] = true
			drawables = append(drawables, d)
		}
	}
	if rt.DepthAttachment != nil {
		backing, _ := e.resolveBacking(state, rt.DepthAttachment.Texture)
		tex, _ := backing.(hal.Texture)
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            tex,
			DepthLoadOp:     rt.DepthAttachment.LoadOp,
			DepthStoreOp:    rt.DepthAttachment.StoreOp,
			DepthClearValue: rt.DepthAttachment.ClearDepth,
		}
	}
	return desc, drawables
}
