package accesspath

import "testing"

func TestWalk_PreOrderParentsPrecedeChildren(t *testing.T) {
	scan := NewScan(1, 10, "T", "")
	sort := NewSort(1, 11, []string{"id"}, scan)
	join := NewFullOuterJoin(1, 12, sort, NewScan(1, 13, "U", ""))

	entries := Walk(join)

	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[0].Node != join || entries[0].Parent != nil {
		t.Errorf("root must come first with a nil parent")
	}

	seen := make(map[int64]bool)
	for _, e := range entries {
		if e.Parent != nil && !seen[e.Parent.RecSourceID()] {
			t.Errorf("rec source %d visited before its parent %d", e.Node.RecSourceID(), e.Parent.RecSourceID())
		}
		seen[e.Node.RecSourceID()] = true
	}
}

func TestUnion_AdvancesThroughExhaustedChildren(t *testing.T) {
	// Each child yields exactly one row, so the second row can only come
	// from advancing past the exhausted first child.
	a := NewSingularStream(1, 1, NewScan(1, 4, "A", ""))
	b := NewSingularStream(1, 2, NewScan(1, 5, "B", ""))
	u := NewUnion(1, 3, a, b)

	if err := u.Open(nil, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 2; i++ {
		found, err := u.GetRecord(nil, nil)
		if err != nil || !found {
			t.Fatalf("expected a record on call %d, got found=%v err=%v", i, found, err)
		}
	}
	if found, err := u.GetRecord(nil, nil); err != nil || found {
		t.Errorf("expected no record once every child is exhausted, got found=%v err=%v", found, err)
	}
}

func TestSingularStream_FetchesAtMostOnce(t *testing.T) {
	s := NewSingularStream(1, 1, NewScan(1, 2, "T", ""))
	if err := s.Open(nil, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}

	found, err := s.GetRecord(nil, nil)
	if err != nil || !found {
		t.Fatalf("expected first fetch to succeed, got found=%v err=%v", found, err)
	}
	found, err = s.GetRecord(nil, nil)
	if err != nil || found {
		t.Errorf("expected second fetch to report no more rows, got found=%v err=%v", found, err)
	}
}
