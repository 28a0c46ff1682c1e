// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package noop

import (
	"fmt"

	"github.com/gogpu/framegraph/hal"
)

// OpKind identifies a journaled command buffer operation.
type OpKind uint8

// Journal operation kinds.
const (
	OpBeginEncoder OpKind = iota
	OpEndEncoder
	OpUseResource
	OpMemoryBarrier
	OpSignalFence
	OpWaitFence
	OpSignalEvent
	OpWaitEvent
	OpDraw
	OpDispatch
	OpCopy
	OpPresent
)

// Op is one journal entry. Tests assert scheduling decisions against the
// journal instead of a GPU.
type Op struct {
	Kind    OpKind
	Encoder string
	// Resources are the labels of the resources the op touched.
	Resources []string
	Fence     hal.Fence
	Event     hal.Event
	Value     uint64
	After     hal.Stages
	Before    hal.Stages
	Use       hal.ResourceUse
}

// CommandBuffer implements hal.CommandBuffer, journaling every recorded
// operation.
type CommandBuffer struct {
	label     string
	queue     *Queue
	ops       []Op
	open      bool
	openLabel string
	committed bool
	signals   []eventSignal
	presents  []*Drawable
}

type eventSignal struct {
	event *Event
	value uint64
}

// Label returns the debug name.
func (c *CommandBuffer) Label() string { return c.label }

// Ops returns the journal, for tests.
func (c *CommandBuffer) Ops() []Op { return c.ops }

func (c *CommandBuffer) record(op Op) {
	op.Encoder = c.openLabel
	c.ops = append(c.ops, op)
}

func (c *CommandBuffer) beginEncoder(label string) error {
	if c.committed {
		return hal.ErrCommandBufferCommitted
	}
	if c.open {
		return hal.ErrEncoderOpen
	}
	c.open = true
	c.openLabel = label
	c.record(Op{Kind: OpBeginEncoder})
	return nil
}

// BeginRenderCommandEncoder opens a render encoder.
func (c *CommandBuffer) BeginRenderCommandEncoder(desc *hal.RenderPassDescriptor) (hal.RenderCommandEncoder, error) {
	if err := c.beginEncoder(desc.Label); err != nil {
		return nil, err
	}
	return &renderEncoder{commandEncoder{cb: c, label: desc.Label}}, nil
}

// BeginComputeCommandEncoder opens a compute encoder.
func (c *CommandBuffer) BeginComputeCommandEncoder(label string) (hal.ComputeCommandEncoder, error) {
	if err := c.beginEncoder(label); err != nil {
		return nil, err
	}
	return &computeEncoder{commandEncoder{cb: c, label: label}}, nil
}

// BeginBlitCommandEncoder opens a blit encoder.
func (c *CommandBuffer) BeginBlitCommandEncoder(label string) (hal.BlitCommandEncoder, error) {
	if err := c.beginEncoder(label); err != nil {
		return nil, err
	}
	return &blitEncoder{commandEncoder{cb: c, label: label}}, nil
}

// BeginExternalCommandEncoder opens an external encoder.
func (c *CommandBuffer) BeginExternalCommandEncoder(label string) (hal.ExternalCommandEncoder, error) {
	if err := c.beginEncoder(label); err != nil {
		return nil, err
	}
	return &externalEncoder{commandEncoder{cb: c, label: label}}, nil
}

// EncodeSignalEvent journals an event signal applied at completion.
func (c *CommandBuffer) EncodeSignalEvent(event hal.Event, value uint64) {
	c.record(Op{Kind: OpSignalEvent, Event: event, Value: value})
	if e, ok := event.(*Event); ok {
		c.signals = append(c.signals, eventSignal{event: e, value: value})
	}
}

// EncodeWaitForEvent journals an event wait.
func (c *CommandBuffer) EncodeWaitForEvent(event hal.Event, value uint64) {
	c.record(Op{Kind: OpWaitEvent, Event: event, Value: value})
}

// PresentAfterCommit schedules the drawable for presentation.
func (c *CommandBuffer) PresentAfterCommit(drawable hal.Drawable) {
	c.record(Op{Kind: OpPresent})
	if d, ok := drawable.(*Drawable); ok {
		c.presents = append(c.presents, d)
	}
}

// commandEncoder is the shared encoder implementation.
type commandEncoder struct {
	cb    *CommandBuffer
	label string
}

// Label returns the encoder's debug name.
func (e *commandEncoder) Label() string { return e.label }

// UseResource journals a residency hint.
func (e *commandEncoder) UseResource(resource hal.Resource, use hal.ResourceUse, stages hal.Stages) {
	e.cb.record(Op{Kind: OpUseResource, Resources: []string{resource.Label()}, Use: use, Before: stages})
}

// MemoryBarrier journals a barrier.
func (e *commandEncoder) MemoryBarrier(resources []hal.Resource, afterStages, beforeStages hal.Stages) {
	labels := make([]string, 0, len(resources))
	for _, r := range resources {
		labels = append(labels, r.Label())
	}
	e.cb.record(Op{Kind: OpMemoryBarrier, Resources: labels, After: afterStages, Before: beforeStages})
}

// SignalFence journals a fence signal.
func (e *commandEncoder) SignalFence(fence hal.Fence, afterStages hal.Stages) {
	e.cb.record(Op{Kind: OpSignalFence, Fence: fence, After: afterStages})
}

// WaitForFence journals a fence wait.
func (e *commandEncoder) WaitForFence(fence hal.Fence, beforeStages hal.Stages) {
	e.cb.record(Op{Kind: OpWaitFence, Fence: fence, Before: beforeStages})
}

// EndEncoding closes the encoder.
func (e *commandEncoder) EndEncoding() {
	e.cb.record(Op{Kind: OpEndEncoder})
	e.cb.open = false
	e.cb.openLabel = ""
}

type renderEncoder struct{ commandEncoder }

// Draw journals a draw.
func (e *renderEncoder) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	e.cb.record(Op{Kind: OpDraw, Value: uint64(vertexCount) * uint64(max32(instanceCount, 1))})
}

// DrawIndexed journals an indexed draw.
func (e *renderEncoder) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	e.cb.record(Op{Kind: OpDraw, Value: uint64(indexCount) * uint64(max32(instanceCount, 1))})
}

type computeEncoder struct{ commandEncoder }

// Dispatch journals a dispatch.
func (e *computeEncoder) Dispatch(x, y, z uint32) {
	e.cb.record(Op{Kind: OpDispatch, Value: uint64(x) * uint64(y) * uint64(z)})
}

type blitEncoder struct{ commandEncoder }

// CopyBufferToBuffer journals a copy.
func (e *blitEncoder) CopyBufferToBuffer(src, dst hal.Buffer, srcOffset, dstOffset, size uint64) {
	e.cb.record(Op{Kind: OpCopy, Resources: []string{src.Label(), dst.Label()}, Value: size})
}

// CopyTextureToTexture journals a copy.
func (e *blitEncoder) CopyTextureToTexture(src, dst hal.Texture) {
	e.cb.record(Op{Kind: OpCopy, Resources: []string{src.Label(), dst.Label()}})
}

// FillBuffer journals a fill.
func (e *blitEncoder) FillBuffer(dst hal.Buffer, offset, size uint64, value byte) {
	e.cb.record(Op{Kind: OpCopy, Resources: []string{dst.Label()}, Value: size})
}

type externalEncoder struct{ commandEncoder }

// Queue implements hal.Queue. Committed command buffers complete
// synchronously, in submission order.
type Queue struct {
	label     string
	committed []*CommandBuffer
}

// Committed returns every command buffer committed to the queue, for
// tests.
func (q *Queue) Committed() []*CommandBuffer { return q.committed }

// Commit applies journaled event signals, presents drawables and invokes
// the completion callback on the calling goroutine.
func (q *Queue) Commit(cb hal.CommandBuffer, onCompleted func(error)) error {
	ncb, ok := cb.(*CommandBuffer)
	if !ok {
		return fmt.Errorf("noop: foreign command buffer %q", cb.Label())
	}
	if ncb.committed {
		return hal.ErrCommandBufferCommitted
	}
	ncb.committed = true
	q.committed = append(q.committed, ncb)
	for _, s := range ncb.signals {
		s.event.signal(s.value)
	}
	for _, d := range ncb.presents {
		d.presented.Store(true)
	}
	if onCompleted != nil {
		onCompleted(nil)
	}
	return nil
}

// Present marks a drawable presented.
func (q *Queue) Present(drawable hal.Drawable) error {
	if d, ok := drawable.(*Drawable); ok {
		d.presented.Store(true)
	}
	return nil
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
