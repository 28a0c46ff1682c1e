package core

import (
	"github.com/gogpu/framegraph/hal"
)

// Stages re-exports the pipeline stage set from the hal package.
type Stages = hal.Stages

// Range is a half-open interval of frame command indices.
type Range struct {
	Lo int // inclusive
	Hi int // exclusive
}

// Count returns the number of indices in the range.
func (r Range) Count() int {
	return r.Hi - r.Lo
}

// IsEmpty returns true for an empty range.
func (r Range) IsEmpty() bool {
	return r.Hi <= r.Lo
}

// Last returns the last index in the range.
func (r Range) Last() int {
	return r.Hi - 1
}

// Contains reports whether the index falls within the range.
func (r Range) Contains(i int) bool {
	return i >= r.Lo && i < r.Hi
}

// AccessType describes how a usage accesses a resource.
type AccessType uint8

// Access types.
const (
	AccessRead AccessType = iota
	AccessWrite
	AccessReadWrite
	AccessReadWriteRenderTarget
	AccessWriteOnlyRenderTarget
	AccessInputAttachmentRenderTarget
	AccessUnusedRenderTarget
)

// IsRead returns true if the access reads the resource's contents.
func (a AccessType) IsRead() bool {
	switch a {
	case AccessRead, AccessReadWrite, AccessReadWriteRenderTarget, AccessInputAttachmentRenderTarget:
		return true
	default:
		return false
	}
}

// IsWrite returns true if the access may modify the resource's contents.
func (a AccessType) IsWrite() bool {
	switch a {
	case AccessWrite, AccessReadWrite, AccessReadWriteRenderTarget, AccessWriteOnlyRenderTarget:
		return true
	default:
		return false
	}
}

// IsRenderTarget returns true if the access happens through a render
// target attachment rather than a shader binding.
func (a AccessType) IsRenderTarget() bool {
	switch a {
	case AccessReadWriteRenderTarget, AccessWriteOnlyRenderTarget, AccessInputAttachmentRenderTarget, AccessUnusedRenderTarget:
		return true
	default:
		return false
	}
}

// String returns a string representation of the access type.
func (a AccessType) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "readWrite"
	case AccessReadWriteRenderTarget:
		return "readWriteRenderTarget"
	case AccessWriteOnlyRenderTarget:
		return "writeOnlyRenderTarget"
	case AccessInputAttachmentRenderTarget:
		return "inputAttachmentRenderTarget"
	case AccessUnusedRenderTarget:
		return "unusedRenderTarget"
	default:
		return "invalid"
	}
}

// ResourceUsage is one entry in a resource's per-frame usage list:
// which pass touched it, over which command range, how, and at which
// pipeline stages.
type ResourceUsage struct {
	// Pass is the pass that declared the usage.
	Pass *PassRecord

	// CommandRange is the span of frame command indices the usage covers.
	CommandRange Range

	// Access is the declared access type.
	Access AccessType

	// Stages are the pipeline stages that perform the access.
	Stages Stages

	// InArgumentBuffer marks usages declared through an argument buffer
	// rather than a direct binding.
	InArgumentBuffer bool
}

// IsActive returns true if the owning pass participates in the frame.
func (u *ResourceUsage) IsActive() bool {
	return u.Pass != nil && u.Pass.Active
}

// AffectsGPUBarriers reports whether the usage participates in barrier and
// fence placement. CPU-side accesses and unused render target slots do not.
func (u *ResourceUsage) AffectsGPUBarriers() bool {
	return u.IsActive() && u.Access != AccessUnusedRenderTarget && u.Pass.Type != PassCPU
}

// ResourceUsages is the per-frame usage recorder: an ordered list of
// usage entries per resource, keyed by handle. Handles are validated
// against the registry on compilation; the recorder never owns resources.
type ResourceUsages struct {
	order  []Resource
	usages map[Resource][]ResourceUsage
}

// NewResourceUsages creates an empty usage recorder.
func NewResourceUsages() *ResourceUsages {
	return &ResourceUsages{
		usages: make(map[Resource][]ResourceUsage, 32),
	}
}

// Record appends a usage for the resource. Consecutive usages from the
// same pass with the same access and argument-buffer placement merge,
// unioning stages and command ranges.
func (r *ResourceUsages) Record(res Resource, usage ResourceUsage) {
	list, ok := r.usages[res]
	if !ok {
		r.order = append(r.order, res)
	}
	if n := len(list); n > 0 {
		prev := &list[n-1]
		if prev.Pass == usage.Pass && prev.Access == usage.Access && prev.InArgumentBuffer == usage.InArgumentBuffer {
			prev.Stages |= usage.Stages
			if usage.CommandRange.Lo < prev.CommandRange.Lo {
				prev.CommandRange.Lo = usage.CommandRange.Lo
			}
			if usage.CommandRange.Hi > prev.CommandRange.Hi {
				prev.CommandRange.Hi = usage.CommandRange.Hi
			}
			return
		}
	}
	r.usages[res] = append(list, usage)
}

// Len returns the number of distinct resources with usages.
func (r *ResourceUsages) Len() int {
	return len(r.order)
}

// UsagesOf returns the recorded usage list for a resource.
func (r *ResourceUsages) UsagesOf(res Resource) []ResourceUsage {
	return r.usages[res]
}

// ForEach visits resources in first-recorded order.
func (r *ResourceUsages) ForEach(fn func(res Resource, usages []ResourceUsage)) {
	for _, res := range r.order {
		fn(res, r.usages[res])
	}
}
