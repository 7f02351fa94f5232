package coverage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoverageMap_Merge(t *testing.T) {
	m := NewCoverageMap()

	for _, rec := range ingestTestdata(t, "web", "multi-environment-web.json") {
		require.NoError(t, m.Merge(rec))
	}
	for _, rec := range ingestTestdata(t, "ssr", "multi-environment-ssr.json") {
		require.NoError(t, m.Merge(rec))
	}

	assert.Equal(t, []string{multiEnvPath}, m.Files())

	fc, ok := m.FileCoverageFor(multiEnvPath)
	require.True(t, ok)
	assert.Equal(t, 2, fc.LineCoverage()[30])

	// Lookups normalize their argument.
	decorated, ok := m.FileCoverageFor(multiEnvPath + "?v=1700000000")
	require.True(t, ok)
	assert.Equal(t, fc, decorated)

	_, ok = m.FileCoverageFor("/project/src/missing.ts")
	assert.False(t, ok)
}

func TestCoverageMap_orderIndependent(t *testing.T) {
	web := ingestTestdata(t, "web", "multi-environment-web.json")
	ssr := ingestTestdata(t, "ssr", "multi-environment-ssr.json")

	webFirst := NewCoverageMap()
	require.NoError(t, webFirst.Merge(web[0]))
	require.NoError(t, webFirst.Merge(ssr[0]))

	ssrFirst := NewCoverageMap()
	require.NoError(t, ssrFirst.Merge(ssr[0]))
	require.NoError(t, ssrFirst.Merge(web[0]))

	assert.Equal(t, webFirst.Snapshot(), ssrFirst.Snapshot())
}

func TestCoverageMap_failedMergeLeavesEntry(t *testing.T) {
	web := ingestTestdata(t, "web", "multi-environment-web.json")[0]

	m := NewCoverageMap()
	require.NoError(t, m.Merge(web))
	before := m.Snapshot()

	stale := web.Clone()
	stale.StatementMap["42"] = Range{Start: Position{Line: 42}}
	stale.S["42"] = 7

	err := m.Merge(stale)
	require.ErrorIs(t, err, ErrLocationMismatch)
	assert.Contains(t, err.Error(), multiEnvPath)
	assert.Equal(t, before, m.Snapshot())
}

func TestCoverageMap_mergeCopiesInput(t *testing.T) {
	web := ingestTestdata(t, "web", "multi-environment-web.json")[0]

	m := NewCoverageMap()
	require.NoError(t, m.Merge(web))
	web.S["5"] = 100

	fc, ok := m.FileCoverageFor(multiEnvPath)
	require.True(t, ok)
	assert.Equal(t, 1, fc.S["5"])
}

func TestCoverageMap_Seal(t *testing.T) {
	m := NewCoverageMap()
	require.NoError(t, m.Merge(NewFileCoverage("/a.ts")))

	m.Seal()

	assert.ErrorIs(t, m.Merge(NewFileCoverage("/a.ts")), ErrSealed)
	assert.ErrorIs(t, m.Merge(NewFileCoverage("/b.ts")), ErrSealed)
	assert.Equal(t, 1, m.Len())
}

func TestCoverageMap_mergeNormalizesPath(t *testing.T) {
	m := NewCoverageMap()

	decorated := NewFileCoverage("/project/src/a.ts?v=1")
	decorated.StatementMap["0"] = Range{Start: Position{Line: 1}}
	decorated.S["0"] = 1
	require.NoError(t, m.Merge(decorated))

	plain := NewFileCoverage("/@fs/project/src/a.ts")
	plain.StatementMap["0"] = Range{Start: Position{Line: 1}}
	plain.S["0"] = 2
	require.NoError(t, m.Merge(plain))

	assert.Equal(t, []string{"/project/src/a.ts"}, m.Files())
	fc, ok := m.FileCoverageFor("/project/src/a.ts")
	require.True(t, ok)
	assert.Equal(t, "/project/src/a.ts", fc.Path)
	assert.Equal(t, 3, fc.S["0"])
	assert.Equal(t, "/project/src/a.ts?v=1", decorated.Path, "input is not modified")

	assert.ErrorIs(t, m.Merge(NewFileCoverage("?v=1")), ErrEmptyPath)
}

func TestCoverageMap_sealDuringMerges(t *testing.T) {
	m := NewCoverageMap()
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		merged int
	)
	for w := 0; w < 32; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fc := NewFileCoverage("/project/src/a.ts")
			fc.StatementMap["0"] = Range{Start: Position{Line: 1}}
			fc.S["0"] = 1
			err := m.Merge(fc)
			if err == nil {
				mu.Lock()
				merged++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrSealed)
		}()
	}

	m.Seal()
	before := m.Snapshot()
	wg.Wait()

	// Nothing changes once Seal has returned.
	assert.Equal(t, before, m.Snapshot())
	if fc, ok := before["/project/src/a.ts"]; ok {
		assert.Equal(t, merged, fc.S["0"])
	} else {
		assert.Zero(t, merged)
		assert.Empty(t, m.Files())
	}
}

func TestCoverageMap_concurrentMerges(t *testing.T) {
	const (
		files   = 8
		writers = 16
	)

	m := NewCoverageMap()
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := 0; f < files; f++ {
				fc := NewFileCoverage(fmt.Sprintf("/project/src/file%d.ts", f))
				fc.StatementMap["0"] = Range{Start: Position{Line: 1}}
				fc.S["0"] = 1
				assert.NoError(t, m.Merge(fc))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, files, m.Len())
	for _, path := range m.Files() {
		fc, ok := m.FileCoverageFor(path)
		require.True(t, ok)
		assert.Equal(t, writers, fc.S["0"], path)
	}
}
