package coverage

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"github.com/zjy-dev/covmerge/internal/logger"
)

// Skip records an entry that was dropped during ingestion.
type Skip struct {
	Raw    string
	Path   string
	Reason Reason
	Err    error
}

func (s Skip) String() string {
	if s.Err != nil {
		return fmt.Sprintf("%q: %s: %v", s.Raw, s.Reason, s.Err)
	}
	return fmt.Sprintf("%q: %s", s.Raw, s.Reason)
}

// IngestResult is the outcome of ingesting one environment payload.
type IngestResult struct {
	Environment string
	// Records are sorted by path; each path appears once.
	Records []*FileCoverage
	Skipped []Skip
}

// Problems joins the errors of entries that were skipped because they could
// not be decoded or normalized.
func (r *IngestResult) Problems() error {
	var err error
	for _, s := range r.Skipped {
		if s.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", s.Raw, s.Err))
		}
	}
	return err
}

// Ingestor turns raw payloads into filtered, canonical records.
type Ingestor struct {
	filter *Filter
}

// NewIngestor returns an Ingestor. A nil filter keeps every non-virtual entry.
func NewIngestor(filter *Filter) *Ingestor {
	return &Ingestor{filter: filter}
}

// Ingest decodes the payload produced by one environment run.
//
// Entries that are virtual, excluded, unparseable or empty after
// normalization are skipped with a warning. Entries whose ids normalize to
// the same path are merged. The result depends only on the payload, so
// ingesting it again yields equal records.
func (i *Ingestor) Ingest(env string, payload []byte) (*IngestResult, error) {
	log := logger.Named(env)

	entries, err := DecodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("environment %s: %w", env, err)
	}

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := &IngestResult{Environment: env}
	byPath := make(map[string]*FileCoverage)

	skip := func(s Skip) {
		if s.Err != nil {
			log.Warn("skipping coverage for %q (%s): %v", s.Raw, s.Reason, s.Err)
		} else {
			log.Debug("skipping coverage for %q (%s)", s.Raw, s.Reason)
		}
		result.Skipped = append(result.Skipped, s)
	}

	for _, key := range keys {
		fc, err := DecodeFile(key, entries[key])
		if err != nil {
			skip(Skip{Raw: key, Reason: ReasonInvalid, Err: err})
			continue
		}

		raw := fc.Path
		if i.filter.Virtual(raw) || i.filter.Virtual(key) {
			skip(Skip{Raw: raw, Reason: ReasonVirtual})
			continue
		}

		canonical, err := Normalize(raw)
		if err != nil {
			skip(Skip{Raw: raw, Reason: ReasonEmptyPath, Err: err})
			continue
		}

		if reason, ok := i.filter.Check(canonical); !ok {
			skip(Skip{Raw: raw, Path: canonical, Reason: reason})
			continue
		}

		fc.Path = canonical
		if prev, ok := byPath[canonical]; ok {
			if err := mergeInto(prev, fc); err != nil {
				return nil, fmt.Errorf("environment %s: %w", env, err)
			}
			continue
		}
		byPath[canonical] = fc
	}

	paths := make([]string, 0, len(byPath))
	for p := range byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		result.Records = append(result.Records, byPath[p])
	}

	log.Debug("ingested %d records, skipped %d", len(result.Records), len(result.Skipped))
	return result, nil
}
