// Package framegraph schedules declaratively-recorded GPU frames onto an
// explicit graphics backend.
//
// Client code declares a frame as a set of passes (draw, compute, blit,
// external, cpu); each pass declares its use of logical resources. On
// submit the core schedules passes onto encoders, materializes transient
// resources just in time, inserts the minimal fences and barriers the
// declared accesses require, and tracks queue command indices so
// persistent resources stay safe across frames.
//
// # Architecture
//
// The module is layered like a driver stack:
//
//   - framegraph (this package): the recording API. FrameGraph owns a
//     logical queue; Frame collects passes and usages; Submit compiles
//     and executes.
//   - core: the scheduler. Resource handles, queue registry, usage
//     recorder, frame command info, the resource command compiler,
//     dependency reduction and the executor.
//   - hal: the backend adapter contract, with hal/noop as the in-memory
//     reference backend.
//
// # Example
//
//	device, _ := noop.API{}.CreateDevice(nil)
//	graph, _ := framegraph.New(device, noop.NewTransientRegistry(noop.RegistryOptions{}), framegraph.Options{})
//
//	buf, _ := graph.NewBuffer(&hal.BufferDescriptor{Label: "data", Size: 1024}, 0)
//
//	frame := graph.NewFrame()
//	frame.AddComputePass("produce").
//		Writes(buf, framegraph.StageCompute).
//		Execute(func(ctx core.PassContext) error {
//			ctx.Compute.Dispatch(64, 1, 1)
//			return nil
//		})
//	frame.AddComputePass("consume").Reads(buf, framegraph.StageCompute)
//	_ = frame.Submit(context.Background(), func(err error) { /* frame retired */ })
package framegraph
