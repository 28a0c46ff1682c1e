package framegraph

import (
	"sync"

	"github.com/gogpu/framegraph/core"
	"github.com/gogpu/framegraph/hal"
)

// Options configure a FrameGraph.
type Options struct {
	// InflightFrameCount bounds the number of frames executing
	// concurrently. Defaults to 2.
	InflightFrameCount int

	// Label is the debug name used for command buffers.
	Label string
}

// FrameGraph owns one logical submission queue and the registries behind
// it. Frames are recorded through NewFrame and submitted in order.
type FrameGraph struct {
	device    hal.Device
	backend   hal.Queue
	queue     *core.Queue
	resources *core.ResourceRegistry
	transient hal.TransientRegistry
	executor  *core.Executor

	mu         sync.RWMutex
	persistent map[core.Resource]hal.Resource

	nextSignal uint64
}

// New creates a frame graph over the given device and transient registry.
func New(device hal.Device, transient hal.TransientRegistry, opts Options) (*FrameGraph, error) {
	backend, err := device.CreateQueue()
	if err != nil {
		return nil, err
	}
	queue := core.AllocateQueue()
	g := &FrameGraph{
		device:     device,
		backend:    backend,
		queue:      queue,
		resources:  core.NewResourceRegistry(),
		transient:  transient,
		persistent: make(map[core.Resource]hal.Resource),
		nextSignal: 1,
	}
	g.executor, err = core.NewExecutor(device, backend, queue, transient, g, core.ExecutorOptions{
		InflightFrameCount: opts.InflightFrameCount,
		Label:              opts.Label,
	})
	if err != nil {
		queue.Dispose()
		return nil, err
	}
	return g, nil
}

// Queue returns the graph's logical queue for command index queries.
func (g *FrameGraph) Queue() *core.Queue {
	return g.queue
}

// Resources returns the logical resource registry.
func (g *FrameGraph) Resources() *core.ResourceRegistry {
	return g.resources
}

// Destroy disposes the graph's queue. Outstanding frames must have
// completed.
func (g *FrameGraph) Destroy() {
	g.queue.Dispose()
}

// Backing resolves a persistent resource's backend object.
// Implements core.BackingResolver.
func (g *FrameGraph) Backing(res core.Resource) (hal.Resource, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	backing, ok := g.persistent[res]
	return backing, ok
}

// StoreBacking records a persistent backing materialized during frame
// execution. Implements core.BackingResolver.
func (g *FrameGraph) StoreBacking(res core.Resource, backing hal.Resource) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.persistent[res] = backing
}

// NewBuffer registers a logical buffer. Persistent buffers are backed
// immediately; transient ones materialize per frame.
func (g *FrameGraph) NewBuffer(desc *hal.BufferDescriptor, flags core.ResourceFlags) (core.Resource, error) {
	id, err := g.resources.NewBuffer(desc, flags)
	if err != nil {
		return core.Resource{}, err
	}
	res := core.BufferResource(id)
	if flags.IsPersistent() && !flags.IsHistoryBuffer() {
		backing, err := g.device.CreateBuffer(desc)
		if err != nil {
			g.resources.Dispose(res)
			return core.Resource{}, err
		}
		g.StoreBacking(res, backing)
	}
	return res, nil
}

// NewTexture registers a logical texture. Persistent textures are backed
// immediately; transient and history ones materialize per frame.
func (g *FrameGraph) NewTexture(desc *hal.TextureDescriptor, flags core.ResourceFlags) (core.Resource, error) {
	id, err := g.resources.NewTexture(desc, flags)
	if err != nil {
		return core.Resource{}, err
	}
	res := core.TextureResource(id)
	if flags.IsPersistent() && !flags.IsHistoryBuffer() {
		backing, err := g.device.CreateTexture(desc)
		if err != nil {
			g.resources.Dispose(res)
			return core.Resource{}, err
		}
		g.StoreBacking(res, backing)
	}
	return res, nil
}

// NewWindowTexture registers a swapchain-backed texture.
func (g *FrameGraph) NewWindowTexture(swapchain hal.Swapchain, desc *hal.TextureDescriptor) (core.Resource, error) {
	id, err := g.resources.NewWindowTexture(swapchain, desc)
	if err != nil {
		return core.Resource{}, err
	}
	return core.TextureResource(id), nil
}

// NewTextureView registers a view over a texture resource.
func (g *FrameGraph) NewTextureView(base core.Resource, desc *hal.TextureViewDescriptor) (core.Resource, error) {
	baseID, ok := core.TextureIDOf(base)
	if !ok {
		return core.Resource{}, core.NewConfigurationError("TextureView", "Base", "base must be a texture")
	}
	id, err := g.resources.NewTextureView(baseID, desc)
	if err != nil {
		return core.Resource{}, err
	}
	return core.TextureViewResource(id), nil
}

// NewSampler creates a backend sampler. Samplers are untracked.
func (g *FrameGraph) NewSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	return g.device.CreateSampler(desc)
}

// NewArgumentBuffer registers an argument buffer whose slots bind the
// given resources.
func (g *FrameGraph) NewArgumentBuffer(slots []core.ArgumentSlot, flags core.ResourceFlags, label string) (core.Resource, error) {
	id, err := g.resources.NewArgumentBuffer(slots, flags, label)
	if err != nil {
		return core.Resource{}, err
	}
	res := core.ArgumentBufferResource(id)
	if flags.IsPersistent() {
		backing, err := g.device.CreateArgumentBuffer(len(slots), label)
		if err != nil {
			g.resources.Dispose(res)
			return core.Resource{}, err
		}
		g.StoreBacking(res, backing)
	}
	return res, nil
}

// DisposeResource removes a logical resource and destroys its persistent
// backing, if any.
func (g *FrameGraph) DisposeResource(res core.Resource) {
	g.mu.Lock()
	backing, ok := g.persistent[res]
	delete(g.persistent, res)
	g.mu.Unlock()
	if ok {
		switch b := backing.(type) {
		case hal.Buffer:
			g.device.DestroyBuffer(b)
		case hal.Texture:
			g.device.DestroyTexture(b)
		case hal.ArgumentBuffer:
			g.device.DestroyArgumentBuffer(b)
		}
	}
	g.resources.Dispose(res)
}
