// Package hal defines the backend adapter contract for the frame graph.
//
// The scheduler core (package core) is backend-agnostic: it compiles a frame
// into command streams and replays them against the interfaces defined here.
// A conforming backend provides:
//
//   - Device: resource and synchronization primitive creation
//   - Queue: command buffer submission and presentation
//   - CommandBuffer: recording encoder lifecycle, event signal/wait
//   - Command encoders: use-resource hints, memory barriers, fence ops
//   - TransientRegistry: just-in-time materialization of transient resources
//     with memory reuse, wait-event tagging and heap-aliasing fences
//
// The noop subpackage implements the full contract in memory and is used by
// the test suite. Real backends (Metal/Vulkan class) live outside this
// module.
package hal
