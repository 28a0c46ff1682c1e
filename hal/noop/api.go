// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package noop

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/hal"
)

// API implements hal.Backend for the noop backend.
type API struct{}

// Variant returns the backend type identifier.
func (API) Variant() gputypes.Backend {
	return gputypes.BackendEmpty
}

// CreateDevice creates a new noop device. Always succeeds.
func (API) CreateDevice(desc *hal.DeviceDescriptor) (hal.Device, error) {
	label := ""
	if desc != nil {
		label = desc.Label
	}
	return &Device{label: label}, nil
}

// Device implements hal.Device.
type Device struct {
	label string
}

// CreateQueue creates a noop queue.
func (d *Device) CreateQueue() (hal.Queue, error) {
	return &Queue{label: d.label}, nil
}

// CreateCommandBuffer allocates a journaling command buffer.
func (d *Device) CreateCommandBuffer(queue hal.Queue, label string) (hal.CommandBuffer, error) {
	q, ok := queue.(*Queue)
	if !ok {
		return nil, hal.ErrDeviceLost
	}
	return &CommandBuffer{label: label, queue: q}, nil
}

// CreateBuffer creates a persistent buffer.
func (d *Device) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	return &Buffer{label: desc.Label, size: desc.Size}, nil
}

// DestroyBuffer is a no-op.
func (d *Device) DestroyBuffer(hal.Buffer) {}

// CreateTexture creates a persistent texture.
func (d *Device) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	return &Texture{label: desc.Label, format: desc.Format, usage: desc.Usage}, nil
}

// DestroyTexture is a no-op.
func (d *Device) DestroyTexture(hal.Texture) {}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc *hal.SamplerDescriptor) (hal.Sampler, error) {
	return &Sampler{label: desc.Label}, nil
}

// DestroySampler is a no-op.
func (d *Device) DestroySampler(hal.Sampler) {}

// CreateArgumentBuffer creates a persistent argument buffer.
func (d *Device) CreateArgumentBuffer(slotCount int, label string) (hal.ArgumentBuffer, error) {
	return &ArgumentBuffer{label: label, slots: make([]any, slotCount)}, nil
}

// DestroyArgumentBuffer is a no-op.
func (d *Device) DestroyArgumentBuffer(hal.ArgumentBuffer) {}

// CreateFence creates a fence.
func (d *Device) CreateFence() (hal.Fence, error) {
	return &Fence{}, nil
}

// DestroyFence is a no-op.
func (d *Device) DestroyFence(hal.Fence) {}

// CreateEvent creates a timeline event.
func (d *Device) CreateEvent() (hal.Event, error) {
	return &Event{}, nil
}

// DestroyEvent is a no-op.
func (d *Device) DestroyEvent(hal.Event) {}

// Destroy is a no-op.
func (d *Device) Destroy() {}

func init() {
	hal.RegisterBackend(API{})
}
