package core

import "testing"

func TestRawIDZipUnzip(t *testing.T) {
	tests := []struct {
		name  string
		index Index
		epoch Epoch
	}{
		{"zero", 0, 0},
		{"small", 42, 1},
		{"max index", 0xFFFFFFFF, 1},
		{"max epoch", 1, 0xFFFFFFFF},
		{"both max", 0xFFFFFFFF, 0xFFFFFFFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := Zip(tt.index, tt.epoch)
			index, epoch := raw.Unzip()
			if index != tt.index || epoch != tt.epoch {
				t.Errorf("Unzip(Zip(%d, %d)) = (%d, %d)", tt.index, tt.epoch, index, epoch)
			}
		})
	}
}

func TestIDIsZero(t *testing.T) {
	var zero BufferID
	if !zero.IsZero() {
		t.Error("zero ID should be zero")
	}
	if NewID[bufferMarker](0, 1).IsZero() {
		t.Error("epoch 1 ID should not be zero")
	}
}

func TestIdentityManagerRecycling(t *testing.T) {
	m := NewIdentityManager[bufferMarker]()

	first := m.Alloc()
	if first.Index() != 0 || first.Epoch() != 1 {
		t.Fatalf("first Alloc = (%d, %d), want (0, 1)", first.Index(), first.Epoch())
	}

	second := m.Alloc()
	if second.Index() != 1 {
		t.Fatalf("second Alloc index = %d, want 1", second.Index())
	}

	m.Release(first)
	recycled := m.Alloc()
	if recycled.Index() != first.Index() {
		t.Errorf("recycled index = %d, want %d", recycled.Index(), first.Index())
	}
	if recycled.Epoch() != first.Epoch()+1 {
		t.Errorf("recycled epoch = %d, want %d", recycled.Epoch(), first.Epoch()+1)
	}
	if m.Count() != 2 {
		t.Errorf("Count = %d, want 2", m.Count())
	}
}

func TestStorageEpochValidation(t *testing.T) {
	s := NewStorage[string, bufferMarker](4)
	m := NewIdentityManager[bufferMarker]()

	id := m.Alloc()
	s.Insert(id, "payload")

	if got, ok := s.Get(id); !ok || got != "payload" {
		t.Fatalf("Get = (%q, %v), want (payload, true)", got, ok)
	}

	// A stale ID with the old epoch must not resolve after recycling.
	s.Remove(id)
	m.Release(id)
	fresh := m.Alloc()
	s.Insert(fresh, "new payload")

	if _, ok := s.Get(id); ok {
		t.Error("stale ID resolved after its slot was recycled")
	}
	if got, ok := s.Get(fresh); !ok || got != "new payload" {
		t.Errorf("fresh ID Get = (%q, %v), want (new payload, true)", got, ok)
	}
}

func TestResourceHandleTagging(t *testing.T) {
	reg := NewResourceRegistry()
	buf := mustNewBuffer(t, reg, "b", 0)
	tex := mustNewTexture(t, reg, "t", 0)

	if buf.Kind() != ResourceKindBuffer {
		t.Errorf("buffer handle kind = %v", buf.Kind())
	}
	if tex.Kind() != ResourceKindTexture {
		t.Errorf("texture handle kind = %v", tex.Kind())
	}
	if buf.Key() == tex.Key() {
		t.Error("buffer and texture keys collide")
	}
	if !buf.IsValid() {
		t.Error("registered handle should be valid")
	}

	reg.Dispose(buf)
	if reg.Contains(buf) {
		t.Error("disposed handle still resolves")
	}
}
