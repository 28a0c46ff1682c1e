package core

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestEncoderPartitionByType(t *testing.T) {
	reg := NewResourceRegistry()
	b := newFrameBuilder()
	b.pass(PassCompute, "c0")
	b.pass(PassCompute, "c1")
	b.pass(PassBlit, "b0")
	b.pass(PassCompute, "c2")

	info := b.info(reg, 1)
	if len(info.Encoders) != 3 {
		t.Fatalf("encoder count = %d, want 3", len(info.Encoders))
	}
	wantTypes := []PassType{PassCompute, PassBlit, PassCompute}
	for i, enc := range info.Encoders {
		if enc.Type != wantTypes[i] {
			t.Errorf("encoder %d type = %v, want %v", i, enc.Type, wantTypes[i])
		}
	}
	if info.Encoders[0].PassRange != (Range{Lo: 0, Hi: 2}) {
		t.Errorf("first encoder pass range = %+v, want [0,2)", info.Encoders[0].PassRange)
	}
}

func TestEncoderPartitionFusesCompatibleDraws(t *testing.T) {
	// S2: three draw passes sharing one render target descriptor coalesce
	// into a single encoder.
	reg := NewResourceRegistry()
	target := mustNewTexture(t, reg, "target", 0)

	b := newFrameBuilder()
	rt := simpleRenderTarget(target, gputypes.LoadOpClear, gputypes.StoreOpStore)
	b.drawPass("d0", rt)
	b.drawPass("d1", rt)
	b.drawPass("d2", rt)

	info := b.info(reg, 1)
	if len(info.Encoders) != 1 {
		t.Fatalf("encoder count = %d, want 1", len(info.Encoders))
	}
	if info.Encoders[0].PassRange.Count() != 3 {
		t.Errorf("fused encoder spans %d passes, want 3", info.Encoders[0].PassRange.Count())
	}
	for pass := 0; pass < 3; pass++ {
		if got := info.EncoderIndexForPass(pass); got != 0 {
			t.Errorf("EncoderIndexForPass(%d) = %d, want 0", pass, got)
		}
	}
}

func TestEncoderPartitionSplitsIncompatibleDraws(t *testing.T) {
	reg := NewResourceRegistry()
	target1 := mustNewTexture(t, reg, "t1", 0)
	target2 := mustNewTexture(t, reg, "t2", 0)

	b := newFrameBuilder()
	b.drawPass("d0", simpleRenderTarget(target1, gputypes.LoadOpClear, gputypes.StoreOpStore))
	b.drawPass("d1", simpleRenderTarget(target2, gputypes.LoadOpClear, gputypes.StoreOpStore))

	info := b.info(reg, 1)
	if len(info.Encoders) != 2 {
		t.Fatalf("encoder count = %d, want 2", len(info.Encoders))
	}
}

func TestEncoderPartitionIsolatesExternalAndCPU(t *testing.T) {
	reg := NewResourceRegistry()
	b := newFrameBuilder()
	b.pass(PassExternal, "x0")
	b.pass(PassExternal, "x1")
	b.pass(PassCPU, "cpu")
	b.pass(PassCPU, "cpu2")

	info := b.info(reg, 1)
	if len(info.Encoders) != 4 {
		t.Fatalf("encoder count = %d, want 4 (external and cpu never coalesce)", len(info.Encoders))
	}
	for _, enc := range info.Encoders {
		if enc.Type == PassCPU && enc.CommandBufferIndex != -1 {
			t.Errorf("cpu encoder assigned command buffer %d", enc.CommandBufferIndex)
		}
	}
}

func TestEncoderPartitionSkipsInactivePasses(t *testing.T) {
	reg := NewResourceRegistry()
	b := newFrameBuilder()
	b.pass(PassCompute, "c0")
	inactive := b.pass(PassBlit, "b0")
	inactive.Active = false
	b.pass(PassCompute, "c1")

	info := b.info(reg, 1)
	if len(info.Encoders) != 1 {
		t.Fatalf("encoder count = %d, want 1", len(info.Encoders))
	}
	if got := info.EncoderIndexForPass(inactive.Index); got != -1 {
		t.Errorf("EncoderIndexForPass(inactive) = %d, want -1", got)
	}
}

func TestCommandBufferSplitAroundPresentation(t *testing.T) {
	reg := NewResourceRegistry()
	offscreen := mustNewTexture(t, reg, "offscreen", 0)

	window := mustNewWindowTexture(t, reg, "swapchain")

	b := newFrameBuilder()
	b.drawPass("offscreen", simpleRenderTarget(offscreen, gputypes.LoadOpClear, gputypes.StoreOpStore))
	b.drawPass("present", simpleRenderTarget(window, gputypes.LoadOpClear, gputypes.StoreOpStore))
	b.pass(PassBlit, "post")

	info := b.info(reg, 5)
	if len(info.Encoders) != 3 {
		t.Fatalf("encoder count = %d, want 3", len(info.Encoders))
	}
	if info.CommandBufferCount != 3 {
		t.Fatalf("command buffer count = %d, want 3", info.CommandBufferCount)
	}
	if info.Encoders[0].CommandBufferIndex == info.Encoders[1].CommandBufferIndex {
		t.Error("presenting encoder shares a command buffer with offscreen work")
	}
	if info.Encoders[1].CommandBufferIndex == info.Encoders[2].CommandBufferIndex {
		t.Error("work after presentation shares the presenting command buffer")
	}

	// Signal values are monotonic from the initial value.
	if got := info.SignalValue(0); got != 5 {
		t.Errorf("SignalValue(0) = %d, want 5", got)
	}
	if got := info.FinalSignalValue(); got != 7 {
		t.Errorf("FinalSignalValue = %d, want 7", got)
	}
}

func TestFrameCommandInfoEmptyFrame(t *testing.T) {
	reg := NewResourceRegistry()
	b := newFrameBuilder()
	info := b.info(reg, 9)
	if info.CommandBufferCount != 0 {
		t.Errorf("empty frame command buffer count = %d, want 0", info.CommandBufferCount)
	}
	if got := info.FinalSignalValue(); got != 8 {
		t.Errorf("empty frame FinalSignalValue = %d, want 8", got)
	}
}
