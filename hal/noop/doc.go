// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

// Package noop implements the hal backend contract in memory.
//
// Command buffers record their operations into an inspectable journal and
// complete synchronously on commit. The transient registry pools
// allocations by descriptor, tags reuse with wait events and can simulate
// a single shared aliased heap. The package exists so the scheduler core
// is testable end-to-end without a GPU.
package noop
