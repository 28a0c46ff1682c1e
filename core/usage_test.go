package core

import (
	"testing"

	"github.com/gogpu/framegraph/hal"
)

func TestAccessTypePredicates(t *testing.T) {
	tests := []struct {
		access       AccessType
		read, write  bool
		renderTarget bool
	}{
		{AccessRead, true, false, false},
		{AccessWrite, false, true, false},
		{AccessReadWrite, true, true, false},
		{AccessReadWriteRenderTarget, true, true, true},
		{AccessWriteOnlyRenderTarget, false, true, true},
		{AccessInputAttachmentRenderTarget, true, false, true},
		{AccessUnusedRenderTarget, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.access.String(), func(t *testing.T) {
			if got := tt.access.IsRead(); got != tt.read {
				t.Errorf("IsRead = %v, want %v", got, tt.read)
			}
			if got := tt.access.IsWrite(); got != tt.write {
				t.Errorf("IsWrite = %v, want %v", got, tt.write)
			}
			if got := tt.access.IsRenderTarget(); got != tt.renderTarget {
				t.Errorf("IsRenderTarget = %v, want %v", got, tt.renderTarget)
			}
		})
	}
}

func TestUsageAffectsGPUBarriers(t *testing.T) {
	gpu := &PassRecord{Type: PassCompute, Active: true}
	cpu := &PassRecord{Type: PassCPU, Active: true}
	inactive := &PassRecord{Type: PassCompute, Active: false}

	tests := []struct {
		name  string
		usage ResourceUsage
		want  bool
	}{
		{"compute write", ResourceUsage{Pass: gpu, Access: AccessWrite}, true},
		{"cpu access", ResourceUsage{Pass: cpu, Access: AccessWrite}, false},
		{"inactive pass", ResourceUsage{Pass: inactive, Access: AccessWrite}, false},
		{"unused render target", ResourceUsage{Pass: gpu, Access: AccessUnusedRenderTarget}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.usage.AffectsGPUBarriers(); got != tt.want {
				t.Errorf("AffectsGPUBarriers = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResourceUsagesMergesConsecutive(t *testing.T) {
	reg := NewResourceRegistry()
	buf := mustNewBuffer(t, reg, "B", 0)

	pass := &PassRecord{Index: 0, Type: PassCompute, Active: true, CommandRange: Range{Lo: 0, Hi: 2}}
	usages := NewResourceUsages()
	usages.Record(buf, ResourceUsage{Pass: pass, CommandRange: Range{Lo: 0, Hi: 1}, Access: AccessRead, Stages: hal.StageVertex})
	usages.Record(buf, ResourceUsage{Pass: pass, CommandRange: Range{Lo: 1, Hi: 2}, Access: AccessRead, Stages: hal.StageFragment})

	list := usages.UsagesOf(buf)
	if len(list) != 1 {
		t.Fatalf("usage count = %d, want 1 (merged)", len(list))
	}
	if list[0].Stages != hal.StageVertex|hal.StageFragment {
		t.Errorf("merged stages = %v", list[0].Stages)
	}
	if list[0].CommandRange != (Range{Lo: 0, Hi: 2}) {
		t.Errorf("merged range = %+v", list[0].CommandRange)
	}

	// A different access does not merge.
	usages.Record(buf, ResourceUsage{Pass: pass, CommandRange: Range{Lo: 1, Hi: 2}, Access: AccessWrite, Stages: hal.StageCompute})
	if got := len(usages.UsagesOf(buf)); got != 2 {
		t.Errorf("usage count after write = %d, want 2", got)
	}
}

func TestResourceUsagesIterationOrder(t *testing.T) {
	reg := NewResourceRegistry()
	a := mustNewBuffer(t, reg, "a", 0)
	b := mustNewBuffer(t, reg, "b", 0)
	pass := &PassRecord{Type: PassCompute, Active: true}

	usages := NewResourceUsages()
	usages.Record(b, ResourceUsage{Pass: pass, Access: AccessRead})
	usages.Record(a, ResourceUsage{Pass: pass, Access: AccessRead})
	usages.Record(b, ResourceUsage{Pass: pass, Access: AccessWrite})

	var order []Resource
	usages.ForEach(func(res Resource, _ []ResourceUsage) {
		order = append(order, res)
	})
	if len(order) != 2 || order[0] != b || order[1] != a {
		t.Errorf("iteration order = %v, want first-recorded order [b, a]", order)
	}
}

func TestWaitIndexAccessSelection(t *testing.T) {
	reg := NewResourceRegistry()
	buf := mustNewBuffer(t, reg, "B", FlagPersistent)

	reg.UpdateWaitIndices(buf, 2, 17)
	if got := reg.WaitIndex(buf, 2, AccessRead); got != 17 {
		t.Errorf("read wait index = %d, want 17", got)
	}
	if got := reg.WaitIndex(buf, 2, AccessReadWrite); got != 17 {
		t.Errorf("readWrite wait index = %d, want 17", got)
	}
	if got := reg.WaitIndex(buf, 3, AccessRead); got != 0 {
		t.Errorf("untouched queue wait index = %d, want 0", got)
	}

	// Values only move forward.
	reg.UpdateWaitIndices(buf, 2, 5)
	if got := reg.WaitIndex(buf, 2, AccessWrite); got != 17 {
		t.Errorf("wait index regressed to %d", got)
	}
}
