package coverage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFile_validation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "valid",
			raw:  `{"statementMap": {"0": {"start": {"line": 1, "column": 0}, "end": {"line": 1, "column": 4}}}, "s": {"0": 1}}`,
		},
		{
			name:    "hits for unknown statement",
			raw:     `{"statementMap": {}, "s": {"0": 1}}`,
			wantErr: true,
		},
		{
			name:    "negative count",
			raw:     `{"statementMap": {"0": {"start": {"line": 1, "column": 0}, "end": {"line": 1, "column": 4}}}, "s": {"0": -1}}`,
			wantErr: true,
		},
		{
			name:    "branch arm count mismatch",
			raw:     `{"branchMap": {"0": {"type": "if", "locations": [{}, {}]}}, "b": {"0": [1]}}`,
			wantErr: true,
		},
		{
			name:    "hits for unknown function",
			raw:     `{"f": {"3": 1}}`,
			wantErr: true,
		},
		{
			name:    "wrong type",
			raw:     `{"s": "nope"}`,
			wantErr: true,
		},
		{
			name: "end column null",
			raw:  `{"statementMap": {"0": {"start": {"line": 1, "column": 0}, "end": {"line": 1, "column": null}}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, err := DecodeFile("/project/src/a.ts", json.RawMessage(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "/project/src/a.ts", fc.Path)
		})
	}
}

func TestEncodeMap_roundTrip(t *testing.T) {
	m := NewCoverageMap()
	for _, rec := range ingestTestdata(t, "web", "multi-environment-web.json") {
		require.NoError(t, m.Merge(rec))
	}
	for _, rec := range ingestTestdata(t, "ssr", "multi-environment-ssr.json") {
		require.NoError(t, m.Merge(rec))
	}

	data, err := EncodeMap(m)
	require.NoError(t, err)

	result, err := NewIngestor(nil).Ingest("merged", data)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	original, _ := m.FileCoverageFor(multiEnvPath)
	assert.Equal(t, original, result.Records[0])
}

func TestFileCoverage_Locations(t *testing.T) {
	fc := ingestTestdata(t, "web", "multi-environment-web.json")[0]

	locs := fc.Locations()
	require.Len(t, locs, 9)
	assert.Equal(t, KindStatement, locs[0].Kind)
	assert.Equal(t, "0", locs[0].ID)
	assert.Equal(t, KindBranch, locs[6].Kind)
	assert.Equal(t, 2, locs[6].Arms)
	assert.Equal(t, KindFunction, locs[8].Kind)
	assert.Equal(t, "function 0 at 10:45", locs[8].String())
}
