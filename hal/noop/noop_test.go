// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package noop

import (
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/hal"
)

func newTestDevice(t *testing.T) hal.Device {
	t.Helper()
	device, err := API{}.CreateDevice(&hal.DeviceDescriptor{Label: "noop-test"})
	if err != nil {
		t.Fatalf("CreateDevice failed: %v", err)
	}
	return device
}

func TestBackendRegistered(t *testing.T) {
	backend, ok := hal.GetBackend(gputypes.BackendEmpty)
	if !ok {
		t.Fatal("noop backend not registered")
	}
	if backend.Variant() != gputypes.BackendEmpty {
		t.Errorf("Variant = %v, want BackendEmpty", backend.Variant())
	}
}

func TestCommandBufferJournal(t *testing.T) {
	device := newTestDevice(t)
	queue, err := device.CreateQueue()
	if err != nil {
		t.Fatalf("CreateQueue failed: %v", err)
	}

	cb, err := device.CreateCommandBuffer(queue, "journal")
	if err != nil {
		t.Fatalf("CreateCommandBuffer failed: %v", err)
	}

	enc, err := cb.BeginComputeCommandEncoder("c")
	if err != nil {
		t.Fatalf("BeginComputeCommandEncoder failed: %v", err)
	}

	// A second encoder cannot open while one records.
	if _, err := cb.BeginBlitCommandEncoder("b"); err == nil {
		t.Error("expected error opening a second encoder")
	}

	buf, _ := device.CreateBuffer(&hal.BufferDescriptor{Label: "B", Size: 16})
	enc.UseResource(buf, hal.UseRead, hal.StageCompute)
	enc.Dispatch(1, 1, 1)
	enc.EndEncoding()

	completed := false
	if err := queue.Commit(cb, func(error) { completed = true }); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if !completed {
		t.Error("completion callback not invoked")
	}

	ops := cb.(*CommandBuffer).Ops()
	wantKinds := []OpKind{OpBeginEncoder, OpUseResource, OpDispatch, OpEndEncoder}
	if len(ops) != len(wantKinds) {
		t.Fatalf("journal length = %d, want %d", len(ops), len(wantKinds))
	}
	for i, want := range wantKinds {
		if ops[i].Kind != want {
			t.Errorf("ops[%d].Kind = %v, want %v", i, ops[i].Kind, want)
		}
	}

	// Recording into a committed command buffer fails.
	if _, err := cb.BeginComputeCommandEncoder("late"); err == nil {
		t.Error("expected error recording into a committed command buffer")
	}
}

func TestEventSignalOnCommit(t *testing.T) {
	device := newTestDevice(t)
	queue, _ := device.CreateQueue()
	event, _ := device.CreateEvent()

	cb, _ := device.CreateCommandBuffer(queue, "signal")
	cb.EncodeSignalEvent(event, 7)
	if got := event.SignaledValue(); got != 0 {
		t.Errorf("event signaled before commit: %d", got)
	}
	if err := queue.Commit(cb, nil); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if got := event.SignaledValue(); got != 7 {
		t.Errorf("event value = %d, want 7", got)
	}
}

func TestTransientRegistryPoolsBuffers(t *testing.T) {
	reg := NewTransientRegistry(RegistryOptions{})
	desc := &hal.BufferDescriptor{Label: "pool", Size: 128}

	buf1, wait1, err := reg.AllocateBuffer(1, desc)
	if err != nil {
		t.Fatalf("AllocateBuffer failed: %v", err)
	}
	if wait1.Value != 0 {
		t.Errorf("fresh allocation wait value = %d, want 0", wait1.Value)
	}

	reg.DisposeBuffer(1, buf1, hal.WaitEvent{Queue: 0, Value: 9})

	buf2, wait2, err := reg.AllocateBuffer(2, desc)
	if err != nil {
		t.Fatalf("second AllocateBuffer failed: %v", err)
	}
	if buf2 != buf1 {
		t.Error("pooled allocation not reused for matching descriptor")
	}
	if wait2.Value != 9 {
		t.Errorf("reused allocation wait value = %d, want 9 (dispose tag)", wait2.Value)
	}
	if reg.AllocationCount() != 1 {
		t.Errorf("AllocationCount = %d, want 1", reg.AllocationCount())
	}

	// A different size misses the pool.
	_, _, err = reg.AllocateBuffer(3, &hal.BufferDescriptor{Label: "other", Size: 64})
	if err != nil {
		t.Fatalf("third AllocateBuffer failed: %v", err)
	}
	if reg.AllocationCount() != 2 {
		t.Errorf("AllocationCount = %d, want 2", reg.AllocationCount())
	}
}

func TestTransientRegistryAllocateIsIdempotentPerKey(t *testing.T) {
	reg := NewTransientRegistry(RegistryOptions{})
	desc := &hal.BufferDescriptor{Label: "idem", Size: 32}

	buf1, _, _ := reg.AllocateBuffer(5, desc)
	buf2, _, _ := reg.AllocateBuffer(5, desc)
	if buf1 != buf2 {
		t.Error("repeated allocation for one key returned different backings")
	}
	if reg.AllocationCount() != 1 {
		t.Errorf("AllocationCount = %d, want 1", reg.AllocationCount())
	}
}

func TestTransientRegistryHeapAliasingFences(t *testing.T) {
	reg := NewTransientRegistry(RegistryOptions{UseHeapAliasing: true})
	desc := &hal.BufferDescriptor{Label: "aliased", Size: 32}

	if !reg.IsAliasedHeapResource(1) {
		t.Fatal("aliasing mode not reported")
	}

	buf, _, _ := reg.AllocateBuffer(1, desc)
	fence := &Fence{label: "store"}
	reg.SetDisposalFences(1, []hal.FenceDependency{{Fence: fence, Stages: hal.StageCompute, Index: 3}})
	reg.DisposeBuffer(1, buf, hal.WaitEvent{Value: 1})

	var seen []hal.FenceDependency
	reg.WithHeapAliasingFences(2, func(dep hal.FenceDependency) {
		seen = append(seen, dep)
	})
	if len(seen) != 1 || seen[0].Fence != fence {
		t.Fatalf("heap fences = %+v, want the registered store fence", seen)
	}
}

func TestTransientRegistryHistoryHold(t *testing.T) {
	reg := NewTransientRegistry(RegistryOptions{})
	desc := &hal.TextureDescriptor{
		Label:  "hist",
		Size:   gputypes.Extent3D{Width: 8, Height: 8, DepthOrArrayLayers: 1},
		Format: gputypes.TextureFormatRGBA8Unorm,
	}

	tex, _, _ := reg.AllocateTexture(1, desc, gputypes.TextureUsageStorageBinding, false)
	reg.RegisterInitializedHistoryBufferForDisposal(1, tex, hal.WaitEvent{Value: 4})
	reg.CycleFrames()

	// The held allocation comes back for the same key instead of a fresh
	// allocation.
	tex2, wait, _ := reg.AllocateTexture(1, desc, gputypes.TextureUsageStorageBinding, false)
	if tex2 != tex {
		t.Error("history hold did not preserve the allocation")
	}
	if wait.Value != 4 {
		t.Errorf("history wait value = %d, want 4", wait.Value)
	}
	if reg.AllocationCount() != 1 {
		t.Errorf("AllocationCount = %d, want 1", reg.AllocationCount())
	}
}

func TestSwapchainLostDrawable(t *testing.T) {
	sc := NewSwapchain("window")
	d, err := sc.NextDrawable()
	if err != nil || d == nil {
		t.Fatalf("NextDrawable = (%v, %v), want drawable", d, err)
	}

	sc.SetLost(true)
	d, err = sc.NextDrawable()
	if err != nil {
		t.Fatalf("lost swapchain returned error: %v", err)
	}
	if d != nil {
		t.Error("lost swapchain returned a drawable")
	}
}
