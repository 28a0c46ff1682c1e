package core

import (
	"sort"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/hal"
)

// CompiledFrame is the output of the resource command compiler: two sorted
// command streams, the reduced dependency set, and the fences that
// materialize it.
type CompiledFrame struct {
	// Passes is the frame's pass list.
	Passes []*PassRecord

	// Info is the encoder and command buffer partition.
	Info *FrameCommandInfo

	// PreFrameCommands is the sorted pre-frame stream.
	PreFrameCommands []PreFrameResourceCommand

	// FrameCommands is the sorted in-frame stream.
	FrameCommands []FrameResourceCommand

	// Dependencies is the unreduced inter-encoder dependency table.
	Dependencies *DependencyTable

	// ReducedDependencies is the minimal edge set after transitive
	// reduction.
	ReducedDependencies []ReducedEdge

	// Fences are all scheduler fences of the frame: one per surviving
	// dependency edge plus the aliased-heap disposal fences.
	Fences []*Fence

	// registry is the resource registry the frame's handles index into.
	registry *ResourceRegistry
}

// ResourceCommandCompiler turns a frame's usage lists into the command
// streams and synchronization set the executor replays.
type ResourceCommandCompiler struct {
	resources *ResourceRegistry
	transient hal.TransientRegistry
	queue     *Queue
}

// NewResourceCommandCompiler creates a compiler bound to a resource
// registry, a transient registry and the queue the frame submits to.
func NewResourceCommandCompiler(resources *ResourceRegistry, transient hal.TransientRegistry, queue *Queue) *ResourceCommandCompiler {
	return &ResourceCommandCompiler{
		resources: resources,
		transient: transient,
		queue:     queue,
	}
}

// frameState accumulates compiler output while resources are processed.
type frameState struct {
	pre   []PreFrameResourceCommand
	cmds  []FrameResourceCommand
	table *DependencyTable
	fence []*Fence

	// storedTextures holds textures any encoder stores render target
	// results into; they can never be memoryless.
	storedTextures map[Resource]bool
}

// Compile processes every resource with usages and produces the frame's
// command streams. Returns a ConfigurationError for caller bugs such as
// writing an initialized immutable resource.
func (c *ResourceCommandCompiler) Compile(passes []*PassRecord, usages *ResourceUsages, info *FrameCommandInfo) (*CompiledFrame, error) {
	state := &frameState{
		table:          NewDependencyTable(len(info.Encoders)),
		storedTextures: make(map[Resource]bool),
	}
	for i := range info.Encoders {
		enc := &info.Encoders[i]
		enc.RenderTarget.forEachAttachment(func(tex Resource, _ gputypes.LoadOp, store gputypes.StoreOp) {
			if store == gputypes.StoreOpStore {
				state.storedTextures[tex] = true
			}
		})
	}

	var compileErr error
	usages.ForEach(func(res Resource, list []ResourceUsage) {
		if compileErr != nil {
			return
		}
		if err := c.processResource(state, info, res, list); err != nil {
			compileErr = err
		}
	})
	if compileErr != nil {
		return nil, compileErr
	}

	frame := &CompiledFrame{
		Passes:       passes,
		Info:         info,
		Dependencies: state.table,
		registry:     c.resources,
	}
	frame.ReducedDependencies = state.table.Reduced()
	c.emitFences(state, info, frame.ReducedDependencies)

	sortPreFrameCommands(state.pre)
	sortFrameCommands(state.cmds)
	frame.PreFrameCommands = state.pre
	frame.FrameCommands = state.cmds
	frame.Fences = state.fence
	return frame, nil
}

// processResource runs the per-resource algorithm: residency, first-usage
// promotion, heap-aliasing gate, the dependency walk, and materialize /
// dispose emission.
func (c *ResourceCommandCompiler) processResource(state *frameState, info *FrameCommandInfo, res Resource, list []ResourceUsage) error {
	active := make([]*ResourceUsage, 0, len(list))
	for i := range list {
		if list[i].IsActive() {
			active = append(active, &list[i])
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CommandRange.Lo < active[j].CommandRange.Lo
	})

	flags := c.resources.Flags(res)
	initialized := c.resources.IsInitialized(res)

	hasWrite := false
	for _, u := range active {
		if u.Access.IsWrite() {
			hasWrite = true
			break
		}
	}
	if hasWrite && flags.IsImmutableOnceInitialized() && initialized {
		return NewConfigurationErrorf("Resource", "", "%s is immutable once initialized and was already written", res)
	}

	c.emitResidency(state, info, res, active)

	// First usage: if the leading accesses are all reads, the true first
	// access is the read with the smallest command index.
	first := active[0]
	firstPos := 0
	if !first.Access.IsWrite() {
		for i := 0; i < len(active) && !active[i].Access.IsWrite(); i++ {
			if active[i].CommandRange.Lo < first.CommandRange.Lo {
				first = active[i]
				firstPos = i
			}
		}
	}

	// Persistent resources are backed outside the per-frame heap and never
	// alias it.
	isAliased := !flags.IsPersistent() && c.transient.IsAliasedHeapResource(res.Key())
	if isAliased {
		if !first.Access.IsWrite() && first.Access != AccessUnusedRenderTarget {
			return NewConfigurationErrorf("Resource", "", "%s aliases heap memory but its first use does not write it", res)
		}
		state.pre = append(state.pre, PreFrameResourceCommand{
			Kind:         PreCmdWaitForHeapAliasingFences,
			Index:        first.CommandRange.Lo,
			Order:        OrderBefore,
			Resource:     res,
			EncoderIndex: info.EncoderIndexForUsage(first),
		})
	}

	previousUsage, previousWrite, readsSinceLastWrite := c.walkDependencies(state, info, res, active, first, firstPos)

	if hasWrite && flags.IsPersistent() {
		defer c.resources.SetInitialized(res)
	}

	c.emitLifetime(state, info, res, flags, initialized, active, first, previousUsage, previousWrite, readsSinceLastWrite, isAliased)
	return nil
}

// emitResidency walks shader-visible accesses and emits one use-resource
// command per encoder the resource is bound in, with unioned access flags
// and stages. Render target attachments, CPU accesses and external passes
// are excluded.
func (c *ResourceCommandCompiler) emitResidency(state *frameState, info *FrameCommandInfo, res Resource, active []*ResourceUsage) {
	isTexture := res.kind == ResourceKindTexture || res.kind == ResourceKindTextureView

	groupEncoder := -1
	var use hal.ResourceUse
	var stages Stages
	index := 0

	flush := func() {
		if groupEncoder < 0 || use.IsEmpty() {
			return
		}
		state.cmds = append(state.cmds, FrameResourceCommand{
			Kind:     CmdUseResource,
			Index:    index,
			Order:    OrderBefore,
			Resource: res,
			Use:      use,
			Stages:   stages,
		})
	}

	for _, u := range active {
		if u.Access.IsRenderTarget() || u.Pass.Type == PassCPU || u.Pass.Type == PassExternal {
			continue
		}
		enc := info.EncoderIndexForUsage(u)
		if enc != groupEncoder {
			flush()
			groupEncoder = enc
			use = 0
			stages = 0
			index = u.CommandRange.Lo
		}
		if u.Access.IsRead() {
			if isTexture {
				use |= hal.UseSample | hal.UseRead
			} else {
				use |= hal.UseRead
			}
		}
		if u.Access.IsWrite() {
			use |= hal.UseWrite
		}
		stages |= u.Stages
		if u.CommandRange.Lo < index {
			index = u.CommandRange.Lo
		}
	}
	flush()
}

// walkDependencies carries (previousUsage, previousWrite,
// readsSinceLastWrite) across the usage list, filling the dependency
// table and emitting same-encoder memory barriers.
func (c *ResourceCommandCompiler) walkDependencies(state *frameState, info *FrameCommandInfo, res Resource, active []*ResourceUsage, first *ResourceUsage, firstPos int) (previousUsage, previousWrite *ResourceUsage, readsSinceLastWrite []*ResourceUsage) {
	previousUsage = first
	if first.AffectsGPUBarriers() {
		if first.Access.IsWrite() {
			previousWrite = first
		} else if first.Access.IsRead() {
			readsSinceLastWrite = append(readsSinceLastWrite, first)
		}
	}

	for i, u := range active {
		if i == firstPos || u == first {
			continue
		}
		if !u.AffectsGPUBarriers() {
			// Host accesses still extend the resource's lifetime.
			if u.IsActive() && u.CommandRange.Hi > previousUsage.CommandRange.Hi {
				previousUsage = u
			}
			continue
		}
		// The promoted first access may sit later in the list than reads
		// that were already folded into the walk state above.
		if i < firstPos && !u.Access.IsWrite() {
			if u.Access.IsRead() {
				readsSinceLastWrite = append(readsSinceLastWrite, u)
			}
			if u.CommandRange.Hi > previousUsage.CommandRange.Hi {
				previousUsage = u
			}
			continue
		}

		uEnc := info.EncoderIndexForUsage(u)

		if u.Access.IsWrite() {
			// Writes must order after every read since the last write that
			// ran on another encoder.
			for _, r := range readsSinceLastWrite {
				rEnc := info.EncoderIndexForUsage(r)
				if rEnc != uEnc {
					state.table.Add(uEnc, rEnc, Dependency{
						SignalIndex:  r.CommandRange.Last(),
						SignalStages: r.Stages,
						WaitIndex:    u.CommandRange.Lo,
						WaitStages:   u.Stages,
					})
				}
			}
		}

		if previousWrite != nil {
			pwEnc := info.EncoderIndexForUsage(previousWrite)
			if u.Access.IsRead() && pwEnc == uEnc {
				// First read after a write inside one encoder needs a
				// memory barrier; later reads are already covered by it.
				// A render target store consumed in place by a render
				// target read needs none.
				firstReadInEncoder := true
				for _, r := range readsSinceLastWrite {
					if info.EncoderIndexForUsage(r) == uEnc {
						firstReadInEncoder = false
						break
					}
				}
				inPlaceRenderTarget := previousWrite.Access.IsRenderTarget() && u.Access.IsRenderTarget()
				if firstReadInEncoder && !inPlaceRenderTarget {
					state.cmds = append(state.cmds, FrameResourceCommand{
						Kind:         CmdMemoryBarrier,
						Index:        u.CommandRange.Lo,
						Order:        OrderBefore,
						Resource:     res,
						AfterStages:  previousWrite.Stages,
						BeforeStages: u.Stages,
					})
				}
			}
			if pwEnc != uEnc {
				state.table.Add(uEnc, pwEnc, Dependency{
					SignalIndex:  previousWrite.CommandRange.Last(),
					SignalStages: previousWrite.Stages,
					WaitIndex:    u.CommandRange.Lo,
					WaitStages:   u.Stages,
				})
			}
		}

		if u.Access.IsWrite() {
			readsSinceLastWrite = readsSinceLastWrite[:0]
			previousWrite = u
		} else if u.Access.IsRead() {
			readsSinceLastWrite = append(readsSinceLastWrite, u)
		}
		if u.CommandRange.Hi > previousUsage.CommandRange.Hi {
			previousUsage = u
		}
	}
	return previousUsage, previousWrite, readsSinceLastWrite
}

// emitLifetime emits the materialize, dispose and cross-frame wait
// commands for one resource, and registers aliased-heap disposal fences.
func (c *ResourceCommandCompiler) emitLifetime(state *frameState, info *FrameCommandInfo, res Resource, flags ResourceFlags, initialized bool, active []*ResourceUsage, first, last, previousWrite *ResourceUsage, readsSinceLastWrite []*ResourceUsage, isAliased bool) {
	firstIndex := first.CommandRange.Lo
	firstEncoder := info.EncoderIndexForUsage(first)
	lastIndex := last.CommandRange.Last()

	if res.IsArgumentBuffer() {
		kind := PreCmdMaterializeArgumentBuffer
		if res.kind == ResourceKindArgumentBufferArray {
			kind = PreCmdMaterializeArgumentBufferArray
		}
		state.pre = append(state.pre, PreFrameResourceCommand{
			Kind:         kind,
			Index:        firstIndex,
			Order:        OrderBefore,
			Resource:     res,
			EncoderIndex: firstEncoder,
		})
		if flags.IsPersistent() && !(flags.IsHistoryBuffer() && !initialized) {
			c.emitPersistentWaits(state, info, res, active, first, firstIndex, firstEncoder)
			state.pre = append(state.pre, PreFrameResourceCommand{
				Kind:     PreCmdUpdateCommandBufferWaitIndex,
				Index:    lastIndex,
				Order:    OrderAfter,
				Resource: res,
			})
		} else {
			state.pre = append(state.pre, PreFrameResourceCommand{
				Kind:     PreCmdDisposeResource,
				Index:    lastIndex,
				Order:    OrderAfter,
				Resource: res,
			})
		}
		return
	}

	textureUsage, renderTargetOnly := accumulateTextureUsage(active)
	memoryless := c.transient.SupportsMemorylessTargets() &&
		res.kind == ResourceKindTexture &&
		renderTargetOnly &&
		!state.storedTextures[res] &&
		!flags.IsPersistent()

	switch {
	case flags.IsHistoryBuffer() && !initialized:
		// Uninitialized history buffers are materialized fresh and handed
		// to the registry for disposal once the frame retires. Later
		// frames gate on this frame's signal value, so the wait indices
		// are published like any other persistent write.
		state.pre = append(state.pre,
			materializeCommand(res, firstIndex, firstEncoder, textureUsage, false),
			PreFrameResourceCommand{
				Kind:     PreCmdRegisterHistoryBufferDisposal,
				Index:    lastIndex,
				Order:    OrderAfter,
				Resource: res,
			},
			PreFrameResourceCommand{
				Kind:     PreCmdUpdateCommandBufferWaitIndex,
				Index:    lastIndex,
				Order:    OrderAfter,
				Resource: res,
			})

	case !flags.IsPersistent() || flags.IsWindowHandle():
		dispose := PreFrameResourceCommand{
			Kind:     PreCmdDisposeResource,
			Index:    lastIndex,
			Order:    OrderAfter,
			Resource: res,
		}
		if isAliased && !memoryless {
			dispose.StoreFences = c.registerDisposalFences(state, info, previousWrite, readsSinceLastWrite)
		}
		state.pre = append(state.pre,
			materializeCommand(res, firstIndex, firstEncoder, textureUsage, memoryless),
			dispose)

	default:
		// Persistent and mutable, or an immutable resource receiving its
		// initializing write: gate this frame's first use on prior frames
		// and publish this frame's signal value afterwards.
		c.emitPersistentWaits(state, info, res, active, first, firstIndex, firstEncoder)
		if !(flags.IsImmutableOnceInitialized() && initialized) {
			state.pre = append(state.pre, PreFrameResourceCommand{
				Kind:     PreCmdUpdateCommandBufferWaitIndex,
				Index:    lastIndex,
				Order:    OrderAfter,
				Resource: res,
			})
		}
	}
}

// materializeCommand builds the materialize pre-command for a buffer,
// texture or texture view.
func materializeCommand(res Resource, index, encoder int, usage gputypes.TextureUsage, memoryless bool) PreFrameResourceCommand {
	kind := PreCmdMaterializeBuffer
	switch res.kind {
	case ResourceKindTexture:
		kind = PreCmdMaterializeTexture
	case ResourceKindTextureView:
		kind = PreCmdMaterializeTextureView
	}
	return PreFrameResourceCommand{
		Kind:         kind,
		Index:        index,
		Order:        OrderBefore,
		Resource:     res,
		EncoderIndex: encoder,
		TextureUsage: usage,
		Memoryless:   memoryless,
	}
}

// accumulateTextureUsage unions the backend texture usage implied by every
// active usage and reports whether the resource is only ever a render
// target.
func accumulateTextureUsage(active []*ResourceUsage) (gputypes.TextureUsage, bool) {
	var usage gputypes.TextureUsage
	renderTargetOnly := true
	for _, u := range active {
		switch {
		case u.Access.IsRenderTarget():
			usage |= gputypes.TextureUsageRenderAttachment
		case u.Pass.Type == PassBlit:
			renderTargetOnly = false
			if u.Access.IsRead() {
				usage |= gputypes.TextureUsageCopySrc
			}
			if u.Access.IsWrite() {
				usage |= gputypes.TextureUsageCopyDst
			}
		default:
			renderTargetOnly = false
			if u.Access.IsRead() {
				usage |= gputypes.TextureUsageTextureBinding
			}
			if u.Access.IsWrite() {
				usage |= gputypes.TextureUsageStorageBinding
			}
		}
	}
	return usage, renderTargetOnly
}

// emitPersistentWaits gates the frame's first use of a persistent resource
// on every queue's stored wait index.
func (c *ResourceCommandCompiler) emitPersistentWaits(state *frameState, info *FrameCommandInfo, res Resource, active []*ResourceUsage, first *ResourceUsage, firstIndex, firstEncoder int) {
	access := AccessRead
	for _, u := range active {
		if u.Access.IsWrite() {
			access = AccessReadWrite
			break
		}
	}
	for q := QueueIndex(0); q < MaxQueues; q++ {
		wait := c.resources.WaitIndex(res, q, access)
		if wait == 0 {
			continue
		}
		state.pre = append(state.pre, PreFrameResourceCommand{
			Kind:         PreCmdWaitForCommandBuffer,
			Index:        firstIndex,
			Order:        OrderBefore,
			Resource:     res,
			EncoderIndex: firstEncoder,
			Queue:        q,
			WaitIndex:    wait,
		})
	}
}

// registerDisposalFences creates the store fences downstream heap users of
// the resource's memory must wait on: one per read since the last write,
// or one for the last write itself when nothing read it. A last write made
// by an external pass gets no fence.
func (c *ResourceCommandCompiler) registerDisposalFences(state *frameState, info *FrameCommandInfo, previousWrite *ResourceUsage, readsSinceLastWrite []*ResourceUsage) []FenceDependency {
	var stores []*ResourceUsage
	if len(readsSinceLastWrite) > 0 {
		stores = readsSinceLastWrite
	} else if previousWrite != nil && previousWrite.Pass.Type != PassExternal {
		stores = []*ResourceUsage{previousWrite}
	}

	var deps []FenceDependency
	for _, u := range stores {
		enc := info.EncoderIndexForUsage(u)
		cb := info.Encoders[enc].CommandBufferIndex
		if cb < 0 {
			continue
		}
		fence := &Fence{
			Queue:                    c.queue.Index(),
			CommandBufferSignalValue: info.SignalValue(cb),
		}
		state.fence = append(state.fence, fence)
		state.cmds = append(state.cmds, FrameResourceCommand{
			Kind:        CmdUpdateFence,
			Index:       u.CommandRange.Last(),
			Order:       OrderAfter,
			Fence:       fence,
			AfterStages: u.Stages,
		})
		deps = append(deps, FenceDependency{
			Fence:  fence,
			Stages: u.Stages,
			Index:  u.CommandRange.Last(),
		})
	}
	return deps
}

// emitFences allocates one fence per surviving dependency edge and emits
// the update/wait command pair.
func (c *ResourceCommandCompiler) emitFences(state *frameState, info *FrameCommandInfo, edges []ReducedEdge) {
	for _, e := range edges {
		cb := info.Encoders[e.Producer].CommandBufferIndex
		if cb < 0 {
			continue
		}
		fence := &Fence{
			Queue:                    c.queue.Index(),
			CommandBufferSignalValue: info.SignalValue(cb),
		}
		state.fence = append(state.fence, fence)
		state.cmds = append(state.cmds,
			FrameResourceCommand{
				Kind:        CmdUpdateFence,
				Index:       e.Dep.SignalIndex,
				Order:       OrderAfter,
				Fence:       fence,
				AfterStages: e.Dep.SignalStages,
			},
			FrameResourceCommand{
				Kind:         CmdWaitForFence,
				Index:        e.Dep.WaitIndex,
				Order:        OrderBefore,
				Fence:        fence,
				BeforeStages: e.Dep.WaitStages,
			})
	}
}
