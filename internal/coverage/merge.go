package coverage

import (
	"errors"
	"fmt"
)

// ErrLocationMismatch means two records for the same path disagree on their
// static location set, which happens with non-deterministic instrumentation
// or a stale transform cache.
var ErrLocationMismatch = errors.New("location set mismatch")

// MismatchError names the conflicting path and location.
type MismatchError struct {
	Path   string
	Detail string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s for %s: %s", ErrLocationMismatch, e.Path, e.Detail)
}

func (e *MismatchError) Unwrap() error { return ErrLocationMismatch }

// Merge sums the hit counts of records that describe the same file.
// The inputs are not modified. Merging the same record twice counts it twice.
func Merge(records ...*FileCoverage) (*FileCoverage, error) {
	if len(records) == 0 {
		return nil, errors.New("nothing to merge")
	}

	out := records[0].Clone()
	out.fill()
	for _, fc := range records[1:] {
		if err := mergeInto(out, fc); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// mergeInto adds src into dst. dst is left untouched when an error is returned.
func mergeInto(dst, src *FileCoverage) error {
	if dst.Path != src.Path {
		return &MismatchError{Path: dst.Path, Detail: fmt.Sprintf("cannot merge record for %s", src.Path)}
	}
	if err := compareLocations(dst, src); err != nil {
		return err
	}
	dst.fill()

	for id := range dst.StatementMap {
		dst.S[id] += src.S[id]
	}
	for id := range dst.FnMap {
		dst.F[id] += src.F[id]
	}
	for id := range dst.BranchMap {
		arms := dst.B[id]
		if len(arms) == 0 {
			arms = make([]int, len(dst.BranchMap[id].Locations))
		}
		for i, n := range src.B[id] {
			arms[i] += n
		}
		dst.B[id] = arms
	}
	return nil
}

func compareLocations(a, b *FileCoverage) error {
	mismatch := func(format string, args ...interface{}) error {
		return &MismatchError{Path: a.Path, Detail: fmt.Sprintf(format, args...)}
	}

	if len(a.StatementMap) != len(b.StatementMap) {
		return mismatch("%d statements vs %d", len(a.StatementMap), len(b.StatementMap))
	}
	for _, id := range sortedIDs(a.StatementMap) {
		r, ok := b.StatementMap[id]
		if !ok {
			return mismatch("statement %s missing", id)
		}
		if r != a.StatementMap[id] {
			return mismatch("statement %s moved", id)
		}
	}

	if len(a.FnMap) != len(b.FnMap) {
		return mismatch("%d functions vs %d", len(a.FnMap), len(b.FnMap))
	}
	for _, id := range sortedIDs(a.FnMap) {
		fn, ok := b.FnMap[id]
		if !ok {
			return mismatch("function %s missing", id)
		}
		if fn != a.FnMap[id] {
			return mismatch("function %s differs", id)
		}
	}

	if len(a.BranchMap) != len(b.BranchMap) {
		return mismatch("%d branches vs %d", len(a.BranchMap), len(b.BranchMap))
	}
	for _, id := range sortedIDs(a.BranchMap) {
		br, ok := b.BranchMap[id]
		if !ok {
			return mismatch("branch %s missing", id)
		}
		if !br.equal(a.BranchMap[id]) {
			return mismatch("branch %s differs", id)
		}
		if n := len(b.B[id]); n != 0 && n != len(br.Locations) {
			return mismatch("branch %s has %d counts for %d arms", id, n, len(br.Locations))
		}
	}
	return nil
}
