package core

import (
	"context"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/framegraph/hal"
	"github.com/gogpu/framegraph/hal/noop"
)

// testResolver is a map-backed persistent store.
type testResolver struct {
	backings map[Resource]hal.Resource
}

func newTestResolver() *testResolver {
	return &testResolver{backings: make(map[Resource]hal.Resource)}
}

func (r *testResolver) Backing(res Resource) (hal.Resource, bool) {
	b, ok := r.backings[res]
	return b, ok
}

func (r *testResolver) StoreBacking(res Resource, backing hal.Resource) {
	r.backings[res] = backing
}

// testRig bundles a noop backend with a compiler and executor.
type testRig struct {
	reg       *ResourceRegistry
	transient *noop.TransientRegistry
	queue     *Queue
	backendQ  *noop.Queue
	compiler  *ResourceCommandCompiler
	executor  *Executor
	resolver  *testResolver
}

func newTestRig(t *testing.T, opts noop.RegistryOptions) *testRig {
	t.Helper()
	device, err := noop.API{}.CreateDevice(&hal.DeviceDescriptor{Label: "test"})
	if err != nil {
		t.Fatalf("CreateDevice failed: %v", err)
	}
	backendQ, err := device.CreateQueue()
	if err != nil {
		t.Fatalf("CreateQueue failed: %v", err)
	}
	queue := AllocateQueue()
	t.Cleanup(queue.Dispose)

	transient := noop.NewTransientRegistry(opts)
	reg := NewResourceRegistry()
	resolver := newTestResolver()
	executor, err := NewExecutor(device, backendQ, queue, transient, resolver, ExecutorOptions{Label: "test"})
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	return &testRig{
		reg:       reg,
		transient: transient,
		queue:     queue,
		backendQ:  backendQ.(*noop.Queue),
		compiler:  NewResourceCommandCompiler(reg, transient, queue),
		executor:  executor,
		resolver:  resolver,
	}
}

func (r *testRig) run(t *testing.T, b *frameBuilder, initialSignal uint64) error {
	t.Helper()
	info := b.info(r.reg, initialSignal)
	frame, err := r.compiler.Compile(b.passes, b.usages, info)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	var completionErr error
	completed := false
	err = r.executor.Execute(context.Background(), frame, func(e error) {
		completed = true
		completionErr = e
	})
	if err != nil {
		return err
	}
	if !completed {
		t.Fatal("completion callback never invoked")
	}
	return completionErr
}

// ops flattens the journal of every committed command buffer.
func (r *testRig) ops() []noop.Op {
	var out []noop.Op
	for _, cb := range r.backendQ.Committed() {
		out = append(out, cb.Ops()...)
	}
	return out
}

func countOps(ops []noop.Op, kind noop.OpKind) int {
	n := 0
	for _, op := range ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

func TestExecuteEmptyFrameShortCircuits(t *testing.T) {
	rig := newTestRig(t, noop.RegistryOptions{})
	b := newFrameBuilder()
	if err := rig.run(t, b, 1); err != nil {
		t.Fatalf("empty frame completion error: %v", err)
	}
	if got := len(rig.backendQ.Committed()); got != 0 {
		t.Errorf("empty frame committed %d command buffers, want 0", got)
	}
	if got := rig.queue.LastSubmittedCommand(); got != 0 {
		t.Errorf("empty frame advanced submitted counter to %d", got)
	}
}

func TestExecuteLinearPipeline(t *testing.T) {
	// A compute producer feeding a blit consumer: the fence pair appears
	// in the journal, signal before wait.
	rig := newTestRig(t, noop.RegistryOptions{})
	buf := mustNewBuffer(t, rig.reg, "B", 0)

	b := newFrameBuilder()
	p0 := b.pass(PassCompute, "produce")
	p1 := b.pass(PassBlit, "consume")
	b.use(buf, p0, AccessWrite, hal.StageCompute)
	b.use(buf, p1, AccessRead, hal.StageBlit)

	if err := rig.run(t, b, 1); err != nil {
		t.Fatalf("completion error: %v", err)
	}

	ops := rig.ops()
	signalAt, waitAt := -1, -1
	for i, op := range ops {
		switch op.Kind {
		case noop.OpSignalFence:
			signalAt = i
		case noop.OpWaitFence:
			waitAt = i
		}
	}
	if signalAt < 0 || waitAt < 0 {
		t.Fatalf("journal missing fence ops (signal %d, wait %d)", signalAt, waitAt)
	}
	if signalAt > waitAt {
		t.Error("fence wait recorded before its signal")
	}
	if got := countOps(ops, noop.OpUseResource); got != 2 {
		t.Errorf("use-resource ops = %d, want 2 (one per encoder)", got)
	}
	if got := countOps(ops, noop.OpMemoryBarrier); got != 0 {
		t.Errorf("memory barrier ops = %d, want 0", got)
	}

	if got := rig.queue.LastSubmittedCommand(); got != 1 {
		t.Errorf("LastSubmittedCommand = %d, want 1", got)
	}
	if got := rig.queue.LastCompletedCommand(); got != 1 {
		t.Errorf("LastCompletedCommand = %d, want 1", got)
	}
}

func TestExecuteSameEncoderBarrier(t *testing.T) {
	rig := newTestRig(t, noop.RegistryOptions{})
	buf := mustNewBuffer(t, rig.reg, "B", 0)

	b := newFrameBuilder()
	p0 := b.pass(PassCompute, "w")
	p1 := b.pass(PassCompute, "r")
	b.use(buf, p0, AccessWrite, hal.StageCompute)
	b.use(buf, p1, AccessRead, hal.StageCompute)

	if err := rig.run(t, b, 1); err != nil {
		t.Fatalf("completion error: %v", err)
	}

	ops := rig.ops()
	if got := countOps(ops, noop.OpMemoryBarrier); got != 1 {
		t.Errorf("memory barrier ops = %d, want 1", got)
	}
	if got := countOps(ops, noop.OpSignalFence); got != 0 {
		t.Errorf("fence signal ops = %d, want 0", got)
	}
}

func TestExecuteSkipsLostDrawableEncoder(t *testing.T) {
	rig := newTestRig(t, noop.RegistryOptions{})

	swapchain := noop.NewSwapchain("window")
	swapchain.SetLost(true)
	windowID, err := rig.reg.NewWindowTexture(swapchain, &hal.TextureDescriptor{
		Label:         "window",
		Size:          gputypes.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Format:        gputypes.TextureFormatBGRA8Unorm,
	})
	if err != nil {
		t.Fatalf("NewWindowTexture failed: %v", err)
	}
	window := TextureResource(windowID)
	buf := mustNewBuffer(t, rig.reg, "B", 0)

	b := newFrameBuilder()
	p0 := b.pass(PassCompute, "compute")
	b.use(buf, p0, AccessWrite, hal.StageCompute)
	b.drawPass("present", simpleRenderTarget(window, gputypes.LoadOpClear, gputypes.StoreOpStore))

	if err := rig.run(t, b, 1); err != nil {
		t.Fatalf("frame with lost drawable should still complete, got %v", err)
	}

	begins := countOps(rig.ops(), noop.OpBeginEncoder)
	if begins != 1 {
		t.Errorf("encoder begins = %d, want 1 (render encoder skipped)", begins)
	}
}

func TestExecuteHeapAliasingAcrossFrames(t *testing.T) {
	// S5: frame 1 disposes T1 with a store fence; frame 2 reuses the slot
	// and waits on that fence before its first use.
	rig := newTestRig(t, noop.RegistryOptions{UseHeapAliasing: true})

	runFrame := func(label string, initialSignal uint64) {
		t.Helper()
		buf := mustNewBuffer(t, rig.reg, label, 0)
		b := newFrameBuilder()
		p0 := b.pass(PassCompute, "w-"+label)
		p1 := b.pass(PassCompute, "r-"+label)
		b.use(buf, p0, AccessWrite, hal.StageCompute)
		b.use(buf, p1, AccessRead, hal.StageCompute)
		if err := rig.run(t, b, initialSignal); err != nil {
			t.Fatalf("frame %s completion error: %v", label, err)
		}
		rig.reg.Dispose(buf)
	}

	runFrame("T1", 1)
	frame1Ops := rig.ops()
	if got := countOps(frame1Ops, noop.OpWaitFence); got != 0 {
		t.Fatalf("frame 1 wait fence ops = %d, want 0 (heap empty)", got)
	}
	updateCount := countOps(frame1Ops, noop.OpSignalFence)
	if updateCount == 0 {
		t.Fatal("frame 1 registered no store fences")
	}

	runFrame("T2", 2)
	frame2Ops := rig.ops()[len(frame1Ops):]
	if got := countOps(frame2Ops, noop.OpWaitFence); got == 0 {
		t.Error("frame 2 never waited on the aliasing store fence")
	}

	// The slot was actually reused, not freshly allocated.
	if got := rig.transient.AllocationCount(); got != 1 {
		t.Errorf("fresh allocation count = %d, want 1 (slot reuse)", got)
	}
}

func TestExecuteHistoryBufferAcrossFrames(t *testing.T) {
	rig := newTestRig(t, noop.RegistryOptions{})
	hist := mustNewTexture(t, rig.reg, "H", FlagHistoryBuffer)

	frameN := newFrameBuilder()
	p0 := frameN.pass(PassCompute, "write")
	frameN.use(hist, p0, AccessWrite, hal.StageCompute)
	if err := rig.run(t, frameN, 1); err != nil {
		t.Fatalf("frame N completion error: %v", err)
	}

	if !rig.reg.IsInitialized(hist) {
		t.Fatal("history buffer not initialized")
	}
	backing, ok := rig.resolver.Backing(hist)
	if !ok {
		t.Fatal("history backing not stored for later frames")
	}

	frameN1 := newFrameBuilder()
	p1 := frameN1.pass(PassCompute, "read")
	frameN1.use(hist, p1, AccessRead, hal.StageCompute)
	if err := rig.run(t, frameN1, 2); err != nil {
		t.Fatalf("frame N+1 completion error: %v", err)
	}

	// No fresh allocation happened in frame N+1.
	if got := rig.transient.AllocationCount(); got != 1 {
		t.Errorf("allocation count = %d, want 1", got)
	}
	if b2, ok := rig.resolver.Backing(hist); !ok || b2 != backing {
		t.Error("history backing changed between frames")
	}
}

func TestExecuteCPUPassOnlyFrame(t *testing.T) {
	rig := newTestRig(t, noop.RegistryOptions{})

	ran := false
	b := newFrameBuilder()
	p := b.pass(PassCPU, "host")
	p.Execute = func(PassContext) error {
		ran = true
		return nil
	}

	if err := rig.run(t, b, 1); err != nil {
		t.Fatalf("cpu-only frame completion error: %v", err)
	}
	if !ran {
		t.Error("cpu pass payload never executed")
	}
	if got := len(rig.backendQ.Committed()); got != 0 {
		t.Errorf("cpu-only frame committed %d command buffers, want 0", got)
	}
}

func TestExecutePassPayloadsReceiveEncoders(t *testing.T) {
	rig := newTestRig(t, noop.RegistryOptions{})
	buf := mustNewBuffer(t, rig.reg, "B", 0)

	var sawCompute, sawBlit bool
	b := newFrameBuilder()
	p0 := b.pass(PassCompute, "c")
	p0.Execute = func(ctx PassContext) error {
		sawCompute = ctx.Compute != nil
		if ctx.Compute != nil {
			ctx.Compute.Dispatch(8, 8, 1)
		}
		return nil
	}
	b.use(buf, p0, AccessWrite, hal.StageCompute)

	p1 := b.pass(PassBlit, "b")
	p1.Execute = func(ctx PassContext) error {
		sawBlit = ctx.Blit != nil
		return nil
	}
	b.use(buf, p1, AccessRead, hal.StageBlit)

	if err := rig.run(t, b, 1); err != nil {
		t.Fatalf("completion error: %v", err)
	}
	if !sawCompute || !sawBlit {
		t.Errorf("payload encoders: compute %v, blit %v, want true/true", sawCompute, sawBlit)
	}
	if got := countOps(rig.ops(), noop.OpDispatch); got != 1 {
		t.Errorf("dispatch ops = %d, want 1", got)
	}
}
