package accesspath

import (
	"context"
	"fmt"
)

// Scan is a leaf node reading tuples directly from a table or index,
// grounded on original_source/src/jrd/recsrc/RecordSource.cpp's
// table/index scan access methods.
type Scan struct {
	base
	TableName string
	IndexName string // empty for a natural/sequential scan
}

func NewScan(cursorID, recSourceID int64, tableName, indexName string) *Scan {
	return &Scan{base: base{cursorID: cursorID, recSourceID: recSourceID}, TableName: tableName, IndexName: indexName}
}

func (s *Scan) Plan() string {
	if s.IndexName != "" {
		return fmt.Sprintf("Index scan of %s using index %s", s.TableName, s.IndexName)
	}
	return fmt.Sprintf("Table scan of %s", s.TableName)
}

func (s *Scan) Open(ctx context.Context, req *Request) error              { return nil }
func (s *Scan) Close(ctx context.Context) error                           { return nil }
func (s *Scan) GetRecord(ctx context.Context, req *Request) (bool, error) { return true, nil }

// Sort stands in for RecordSource.cpp's SortedStream. It passes its
// single child's rows through unchanged: Keys is recorded but rows are
// neither buffered nor reordered.
type Sort struct {
	base
	Keys []string
}

func NewSort(cursorID, recSourceID int64, keys []string, child AccessPath) *Sort {
	return &Sort{base: base{cursorID: cursorID, recSourceID: recSourceID, children: []AccessPath{child}}, Keys: keys}
}

func (s *Sort) Plan() string                                    { return "Sort" }
func (s *Sort) Open(ctx context.Context, req *Request) error    { return s.children[0].Open(ctx, req) }
func (s *Sort) Close(ctx context.Context) error                 { return s.children[0].Close(ctx) }
func (s *Sort) GetRecord(ctx context.Context, req *Request) (bool, error) {
	return s.children[0].GetRecord(ctx, req)
}

// Union concatenates the output of N children sharing a common record
// format: it returns every row of the first child, then of the next,
// and so on. Grounded on original_source/src/jrd/recsrc/Union.cpp.
type Union struct {
	base
	active int
}

func NewUnion(cursorID, recSourceID int64, args ...AccessPath) *Union {
	return &Union{base: base{cursorID: cursorID, recSourceID: recSourceID, children: args}}
}

func (u *Union) Plan() string { return "Union" }

func (u *Union) Open(ctx context.Context, req *Request) error {
	u.active = 0
	for _, c := range u.children {
		if err := c.Open(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func (u *Union) Close(ctx context.Context) error {
	for _, c := range u.children {
		if err := c.Close(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (u *Union) GetRecord(ctx context.Context, req *Request) (bool, error) {
	for u.active < len(u.children) {
		found, err := u.children[u.active].GetRecord(ctx, req)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
		u.active++
	}
	return false, nil
}

// FullOuterJoin stands in for
// original_source/src/jrd/recsrc/FullOuterJoin.cpp. It returns the
// rows of its outer child, then the rows of its inner child; rows are
// not matched against each other and no null padding is produced.
type FullOuterJoin struct {
	base
}

func NewFullOuterJoin(cursorID, recSourceID int64, outer, inner AccessPath) *FullOuterJoin {
	return &FullOuterJoin{base{cursorID: cursorID, recSourceID: recSourceID, children: []AccessPath{outer, inner}}}
}

func (f *FullOuterJoin) Plan() string { return "Full Outer Join" }

func (f *FullOuterJoin) Open(ctx context.Context, req *Request) error {
	if err := f.children[0].Open(ctx, req); err != nil {
		return err
	}
	return f.children[1].Open(ctx, req)
}

func (f *FullOuterJoin) Close(ctx context.Context) error {
	if err := f.children[0].Close(ctx); err != nil {
		return err
	}
	return f.children[1].Close(ctx)
}

func (f *FullOuterJoin) GetRecord(ctx context.Context, req *Request) (bool, error) {
	outerFound, err := f.children[0].GetRecord(ctx, req)
	if err != nil || outerFound {
		return outerFound, err
	}
	return f.children[1].GetRecord(ctx, req)
}

// LockedStream wraps its single child, acquiring a record lock before
// returning each row — grounded on
// original_source/src/jrd/recsrc/LockedStream.cpp.
type LockedStream struct {
	base
}

func NewLockedStream(cursorID, recSourceID int64, child AccessPath) *LockedStream {
	return &LockedStream{base{cursorID: cursorID, recSourceID: recSourceID, children: []AccessPath{child}}}
}

func (l *LockedStream) Plan() string                               { return "Locked Stream" }
func (l *LockedStream) Open(ctx context.Context, req *Request) error { return l.children[0].Open(ctx, req) }
func (l *LockedStream) Close(ctx context.Context) error              { return l.children[0].Close(ctx) }

func (l *LockedStream) GetRecord(ctx context.Context, req *Request) (bool, error) {
	found, err := l.children[0].GetRecord(ctx, req)
	if err != nil || !found {
		return found, err
	}
	return true, l.LockRecord(ctx)
}

// SingularStream passes through at most one row of its child: after
// the first row it reports no more rows. It does not check whether the
// child has further rows. Grounded on
// original_source/src/jrd/recsrc/SingularStream.cpp.
type SingularStream struct {
	base
	fetched bool
}

func NewSingularStream(cursorID, recSourceID int64, child AccessPath) *SingularStream {
	return &SingularStream{base: base{cursorID: cursorID, recSourceID: recSourceID, children: []AccessPath{child}}}
}

func (s *SingularStream) Plan() string { return "Singularity Check" }

func (s *SingularStream) Open(ctx context.Context, req *Request) error {
	s.fetched = false
	return s.children[0].Open(ctx, req)
}

func (s *SingularStream) Close(ctx context.Context) error { return s.children[0].Close(ctx) }

func (s *SingularStream) GetRecord(ctx context.Context, req *Request) (bool, error) {
	if s.fetched {
		return false, nil
	}
	found, err := s.children[0].GetRecord(ctx, req)
	if err != nil {
		return false, err
	}
	s.fetched = found
	return found, nil
}
