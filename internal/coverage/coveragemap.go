package coverage

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
)

// ErrSealed is returned when merging into a map that has been sealed.
var ErrSealed = errors.New("coverage map is sealed")

// CoverageMap holds one merged record per canonical path.
//
// Merges into the same path are serialized by a per-path lock; merges into
// different paths only contend on the brief lookup of their entry.
// Lock order is mu before entry.mu.
type CoverageMap struct {
	mu      sync.RWMutex
	entries map[string]*entry
	sealed  atomic.Bool
}

type entry struct {
	mu sync.Mutex
	fc *FileCoverage
}

// NewCoverageMap returns an empty map.
func NewCoverageMap() *CoverageMap {
	return &CoverageMap{entries: make(map[string]*entry)}
}

func (m *CoverageMap) entry(path string) (*entry, error) {
	if m.sealed.Load() {
		return nil, ErrSealed
	}
	m.mu.RLock()
	e, ok := m.entries[path]
	m.mu.RUnlock()
	if ok {
		return e, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sealed.Load() {
		return nil, ErrSealed
	}
	if e, ok = m.entries[path]; !ok {
		e = &entry{}
		m.entries[path] = e
	}
	return e, nil
}

// Merge adds fc into the entry for the normalized fc.Path. The record is
// copied; a failed merge leaves the entry as it was.
func (m *CoverageMap) Merge(fc *FileCoverage) error {
	canonical, err := Normalize(fc.Path)
	if err != nil {
		return err
	}
	if canonical != fc.Path {
		fc = fc.Clone()
		fc.Path = canonical
	}

	e, err := m.entry(canonical)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Seal may have run since the entry was looked up.
	if m.sealed.Load() {
		return ErrSealed
	}
	if e.fc == nil {
		c := fc.Clone()
		c.fill()
		e.fc = c
		return nil
	}
	return mergeInto(e.fc, fc)
}

// Seal makes the map read-only. It returns once merges already holding an
// entry have finished; entries left empty by refused merges are dropped.
func (m *CoverageMap) Seal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sealed.Store(true)

	for path, e := range m.entries {
		e.mu.Lock()
		if e.fc == nil {
			delete(m.entries, path)
		}
		e.mu.Unlock()
	}
}

// Len returns the number of files.
func (m *CoverageMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Files returns the sorted list of paths.
func (m *CoverageMap) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	files := make([]string, 0, len(m.entries))
	for path, e := range m.entries {
		if e != nil {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files
}

// FileCoverageFor returns a copy of the merged record for path. The argument
// is normalized first, so decorated ids resolve to the same record.
func (m *CoverageMap) FileCoverageFor(path string) (*FileCoverage, bool) {
	canonical, err := Normalize(path)
	if err != nil {
		return nil, false
	}

	m.mu.RLock()
	e, ok := m.entries[canonical]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fc == nil {
		return nil, false
	}
	return e.fc.Clone(), true
}

// Each calls fn with every record in path order. fn must not retain or
// modify the record.
func (m *CoverageMap) Each(fn func(*FileCoverage)) {
	for _, path := range m.Files() {
		m.mu.RLock()
		e := m.entries[path]
		m.mu.RUnlock()

		e.mu.Lock()
		if e.fc != nil {
			fn(e.fc)
		}
		e.mu.Unlock()
	}
}

// Snapshot returns deep copies of every record keyed by path.
func (m *CoverageMap) Snapshot() map[string]*FileCoverage {
	out := make(map[string]*FileCoverage, m.Len())
	m.Each(func(fc *FileCoverage) {
		out[fc.Path] = fc.Clone()
	})
	return out
}
