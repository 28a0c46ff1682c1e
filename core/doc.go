// Package core implements the frame scheduler and resource-tracking core.
//
// This package sits between the user-facing recording API and the backend
// adapter layer (package hal). It handles:
//
//   - Resource handles: generational, type-tagged identifiers with
//     lifetime flags and per-queue wait indices
//   - The queue registry: process-wide submission queues with atomic
//     command counters and completion broadcast
//   - Usage recording: per-resource ordered access lists produced during
//     pass declaration
//   - Frame command info: partitioning passes into encoders and encoders
//     into command buffers with monotonic signal values
//   - The resource command compiler: turning usage lists into sorted
//     pre-frame and in-frame command streams plus an inter-encoder
//     dependency table
//   - Dependency reduction: all-pairs shortest paths and transitive
//     reduction to collapse redundant fences
//   - The executor: replaying the command streams against a backend,
//     bounded by an inflight-frame semaphore
//
// Compilation is single-threaded per frame; submitted command buffers run
// asynchronously on the GPU with up to the configured number of frames in
// flight.
package core
