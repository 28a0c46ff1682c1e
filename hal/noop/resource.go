// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package noop

import (
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/hal"
)

// Buffer implements hal.Buffer.
type Buffer struct {
	label string
	size  uint64
}

// Label returns the debug name.
func (b *Buffer) Label() string { return b.label }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Texture implements hal.Texture.
type Texture struct {
	label      string
	format     gputypes.TextureFormat
	usage      gputypes.TextureUsage
	memoryless bool
}

// Label returns the debug name.
func (t *Texture) Label() string { return t.label }

// Format returns the pixel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.format }

// Usage returns the usage flags the texture was allocated with.
func (t *Texture) Usage() gputypes.TextureUsage { return t.usage }

// Memoryless reports whether the texture was allocated without a backing
// store.
func (t *Texture) Memoryless() bool { return t.memoryless }

// TextureView implements hal.TextureView.
type TextureView struct {
	label string
	base  hal.Texture
}

// Label returns the debug name.
func (v *TextureView) Label() string { return v.label }

// Texture returns the viewed texture.
func (v *TextureView) Texture() hal.Texture { return v.base }

// Sampler implements hal.Sampler.
type Sampler struct {
	label string
}

// Label returns the debug name.
func (s *Sampler) Label() string { return s.label }

// ArgumentBuffer implements hal.ArgumentBuffer, recording slot bindings.
type ArgumentBuffer struct {
	label string
	slots []any
}

// Label returns the debug name.
func (a *ArgumentBuffer) Label() string { return a.label }

// SetBuffer binds a buffer to the given slot.
func (a *ArgumentBuffer) SetBuffer(slot int, buffer hal.Buffer) { a.set(slot, buffer) }

// SetTexture binds a texture to the given slot.
func (a *ArgumentBuffer) SetTexture(slot int, texture hal.Texture) { a.set(slot, texture) }

// SetSampler binds a sampler to the given slot.
func (a *ArgumentBuffer) SetSampler(slot int, sampler hal.Sampler) { a.set(slot, sampler) }

func (a *ArgumentBuffer) set(slot int, v any) {
	for len(a.slots) <= slot {
		a.slots = append(a.slots, nil)
	}
	a.slots[slot] = v
}

// Slot returns the binding recorded at the given slot, for tests.
func (a *ArgumentBuffer) Slot(slot int) any {
	if slot < 0 || slot >= len(a.slots) {
		return nil
	}
	return a.slots[slot]
}

// ArgumentBufferArray implements hal.ArgumentBufferArray.
type ArgumentBufferArray struct {
	label    string
	elements []*ArgumentBuffer
}

// Label returns the debug name.
func (a *ArgumentBufferArray) Label() string { return a.label }

// Len returns the number of elements.
func (a *ArgumentBufferArray) Len() int { return len(a.elements) }

// At returns the argument buffer at the given element index.
func (a *ArgumentBufferArray) At(i int) hal.ArgumentBuffer { return a.elements[i] }

// Fence implements hal.Fence.
type Fence struct {
	label string
}

// Label returns the debug name.
func (f *Fence) Label() string { return f.label }

// Event implements hal.Event with an atomic timeline value.
type Event struct {
	value atomic.Uint64
}

// SignaledValue returns the last signaled value.
func (e *Event) SignaledValue() uint64 { return e.value.Load() }

// signal raises the timeline value; values only move forward.
func (e *Event) signal(v uint64) {
	for {
		old := e.value.Load()
		if old >= v || e.value.CompareAndSwap(old, v) {
			return
		}
	}
}

// Drawable implements hal.Drawable.
type Drawable struct {
	texture   *Texture
	presented atomic.Bool
}

// Texture returns the backing texture.
func (d *Drawable) Texture() hal.Texture { return d.texture }

// Presented reports whether the drawable has been presented, for tests.
func (d *Drawable) Presented() bool { return d.presented.Load() }

// Swapchain implements hal.Swapchain. Set Lost to simulate drawable
// starvation.
type Swapchain struct {
	label string
	lost  atomic.Bool
	count atomic.Uint64
}

// NewSwapchain creates a test swapchain.
func NewSwapchain(label string) *Swapchain {
	return &Swapchain{label: label}
}

// SetLost controls whether NextDrawable returns nothing.
func (s *Swapchain) SetLost(lost bool) {
	s.lost.Store(lost)
}

// NextDrawable acquires the next drawable, or nil when the swapchain is
// lost.
func (s *Swapchain) NextDrawable() (hal.Drawable, error) {
	if s.lost.Load() {
		return nil, nil
	}
	s.count.Add(1)
	return &Drawable{texture: &Texture{
		label:  s.label,
		format: gputypes.TextureFormatBGRA8Unorm,
		usage:  gputypes.TextureUsageRenderAttachment,
	}}, nil
}
