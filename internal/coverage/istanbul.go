package coverage

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodePayload splits an istanbul coverage payload into its per-file
// entries. The payload must be a JSON object keyed by file path.
func DecodePayload(payload []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("coverage payload is not a JSON object")
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode coverage payload: %w", err)
	}
	return entries, nil
}

// fileEntry is the on-wire shape of one file. Instrumenters may wrap the
// record in {"data": {...}}, which is accepted as well.
type fileEntry struct {
	FileCoverage
	Data *FileCoverage `json:"data"`
}

// DecodeFile decodes and validates one payload entry. The returned record
// still carries its raw path; normalization happens during ingestion.
func DecodeFile(key string, raw json.RawMessage) (*FileCoverage, error) {
	var entry fileEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode coverage for %s: %w", key, err)
	}

	fc := &entry.FileCoverage
	if entry.Data != nil {
		fc = entry.Data
	}
	if fc.Path == "" {
		fc.Path = key
	}
	if fc.StatementMap == nil {
		fc.StatementMap = map[string]Range{}
	}
	if fc.FnMap == nil {
		fc.FnMap = map[string]FunctionMeta{}
	}
	if fc.BranchMap == nil {
		fc.BranchMap = map[string]BranchMeta{}
	}

	if err := fc.Validate(); err != nil {
		return nil, err
	}
	fc.fill()
	return fc, nil
}

// EncodeMap writes the map in the istanbul payload format, keyed by path.
func EncodeMap(m *CoverageMap) ([]byte, error) {
	out := make(map[string]*FileCoverage, m.Len())
	m.Each(func(fc *FileCoverage) {
		out[fc.Path] = fc
	})
	// encoding/json sorts map keys, which keeps the output stable.
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode coverage map: %w", err)
	}
	return data, nil
}
