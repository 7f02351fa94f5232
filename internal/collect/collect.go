// Package collect gathers environment payloads and merges them into one
// coverage map.
package collect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/zjy-dev/covmerge/internal/coverage"
	"github.com/zjy-dev/covmerge/internal/logger"
	"github.com/zjy-dev/covmerge/internal/metrics"
	"github.com/zjy-dev/covmerge/internal/state"
)

// ErrEnvironmentMerged is returned when an environment is merged twice in a session.
var ErrEnvironmentMerged = state.ErrEnvironmentMerged

// EnvironmentResult describes one merged environment.
type EnvironmentResult struct {
	Name     string
	Payload  string
	Records  int
	Skipped  []coverage.Skip
	Duration time.Duration
	// Increase lists what this environment covers that no other
	// environment of the same collection does.
	Increase []coverage.FileIncrease
}

// Result is the outcome of one Collect call.
type Result struct {
	// Environments are sorted by name.
	Environments []EnvironmentResult
}

// Names returns the merged environment names.
func (r *Result) Names() []string {
	names := make([]string, len(r.Environments))
	for i, env := range r.Environments {
		names[i] = env.Name
	}
	return names
}

// Problems joins the recoverable errors of every environment.
func (r *Result) Problems() error {
	var err error
	for _, env := range r.Environments {
		for _, s := range env.Skipped {
			if s.Err != nil {
				err = multierr.Append(err, fmt.Errorf("%s: %s: %w", env.Name, s.Raw, s.Err))
			}
		}
	}
	return err
}

// Options configures a Collector.
type Options struct {
	// Filter decides which records are kept; nil keeps every non-virtual one.
	Filter *coverage.Filter
	// Ledger remembers merged environments; nil disables persistence.
	Ledger state.Manager
	// Metrics is updated while merging; nil allocates a private set.
	Metrics *metrics.Metrics
}

// Collector ingests payloads and merges them into a CoverageMap.
type Collector struct {
	ingestor *coverage.Ingestor
	cmap     *coverage.CoverageMap
	ledger   state.Manager
	metrics  *metrics.Metrics
}

// NewCollector returns a Collector merging into cmap.
func NewCollector(cmap *coverage.CoverageMap, opts Options) *Collector {
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Collector{
		ingestor: coverage.NewIngestor(opts.Filter),
		cmap:     cmap,
		ledger:   opts.Ledger,
		metrics:  m,
	}
}

// Map returns the map the collector merges into.
func (c *Collector) Map() *coverage.CoverageMap {
	return c.cmap
}

// Collect reads, ingests and merges payloads in parallel. Environments that
// appear twice or were already merged in the session are refused before any
// payload is read. The ledger is only updated in memory; Commit persists it.
func (c *Collector) Collect(ctx context.Context, payloads []Payload) (*Result, error) {
	seen := make(map[string]bool, len(payloads))
	for _, p := range payloads {
		if seen[p.Environment] || (c.ledger != nil && c.ledger.Has(p.Environment)) {
			return nil, fmt.Errorf("%w: %s", ErrEnvironmentMerged, p.Environment)
		}
		seen[p.Environment] = true
	}

	var (
		mu      sync.Mutex
		results = make(map[string]*coverage.IngestResult, len(payloads))
		envs    = make([]EnvironmentResult, 0, len(payloads))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, p := range payloads {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			env, ingested, err := c.collectOne(p)
			if err != nil {
				return err
			}
			mu.Lock()
			results[p.Environment] = ingested
			envs = append(envs, env)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(envs, func(i, j int) bool { return envs[i].Name < envs[j].Name })
	for i := range envs {
		envs[i].Increase = increaseOver(envs[i].Name, results)
		for _, inc := range envs[i].Increase {
			logger.Named(envs[i].Name).Debug("%s: %d new statements, %d new functions, %d new branches",
				inc.Path, len(inc.Statements), len(inc.Functions), len(inc.Branches))
		}
	}

	logger.Info("Merged %d environments into %d files", len(envs), c.cmap.Len())
	return &Result{Environments: envs}, nil
}

// MergeBaseline merges the records of the payload at path with every count
// zeroed, so files no environment loaded still appear in the totals. Merging
// the same baseline again changes nothing. It returns the number of records.
func (c *Collector) MergeBaseline(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read baseline: %w", err)
	}
	ingested, err := c.ingestor.Ingest("baseline", data)
	if err != nil {
		return 0, fmt.Errorf("baseline %s: %w", path, err)
	}
	for _, rec := range ingested.Records {
		if err := c.cmap.Merge(rec.Baseline()); err != nil {
			c.countConflict(err)
			return 0, fmt.Errorf("baseline %s: %w", path, err)
		}
	}
	logger.Info("Merged baseline of %d files from %s (%d skipped)", len(ingested.Records), path, len(ingested.Skipped))
	return len(ingested.Records), nil
}

// Commit writes the merged map to finalPath and then saves the ledger, so the
// ledger never names an environment whose counts are not on disk.
func (c *Collector) Commit(finalPath string) error {
	data, err := coverage.EncodeMap(c.cmap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", finalPath, err)
	}

	tmp := finalPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write merged coverage %s: %w", finalPath, err)
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		return multierr.Append(
			fmt.Errorf("failed to write merged coverage %s: %w", finalPath, err),
			os.Remove(tmp),
		)
	}

	if c.ledger == nil {
		return nil
	}
	return c.ledger.Save()
}

func (c *Collector) collectOne(p Payload) (EnvironmentResult, *coverage.IngestResult, error) {
	start := time.Now()
	log := logger.Named(p.Environment)

	data, err := os.ReadFile(p.Path)
	if err != nil {
		return EnvironmentResult{}, nil, fmt.Errorf("environment %s: failed to read payload: %w", p.Environment, err)
	}

	ingested, err := c.ingestor.Ingest(p.Environment, data)
	if err != nil {
		c.countConflict(err)
		return EnvironmentResult{}, nil, err
	}

	for _, rec := range ingested.Records {
		if err := c.cmap.Merge(rec); err != nil {
			c.countConflict(err)
			return EnvironmentResult{}, nil, fmt.Errorf("environment %s: %w", p.Environment, err)
		}
	}

	c.metrics.RecordsIngested.WithLabelValues(p.Environment).Add(float64(len(ingested.Records)))
	for _, s := range ingested.Skipped {
		c.metrics.RecordsSkipped.WithLabelValues(p.Environment, string(s.Reason)).Inc()
	}
	c.metrics.EnvironmentsMerged.Inc()
	c.metrics.ObserveMerge(start)

	if c.ledger != nil {
		err := c.ledger.Record(state.Entry{
			Name:    p.Environment,
			Payload: p.Path,
			Digest:  state.Digest(data),
			Records: len(ingested.Records),
			Skipped: len(ingested.Skipped),
		})
		if err != nil {
			return EnvironmentResult{}, nil, err
		}
	}

	log.Info("merged %d records from %s (%d skipped)", len(ingested.Records), p.Path, len(ingested.Skipped))
	return EnvironmentResult{
		Name:     p.Environment,
		Payload:  p.Path,
		Records:  len(ingested.Records),
		Skipped:  ingested.Skipped,
		Duration: time.Since(start),
	}, ingested, nil
}

func (c *Collector) countConflict(err error) {
	if errors.Is(err, coverage.ErrLocationMismatch) {
		c.metrics.MergeConflicts.Inc()
	}
}

// increaseOver compares env against the union of every other environment.
func increaseOver(env string, results map[string]*coverage.IngestResult) []coverage.FileIncrease {
	own := coverage.NewCoverageMap()
	others := coverage.NewCoverageMap()
	for name, r := range results {
		target := others
		if name == env {
			target = own
		}
		for _, rec := range r.Records {
			// Conflicting records already failed the main merge.
			_ = target.Merge(rec)
		}
	}
	return coverage.Increase(others, own)
}

// LoadMerged reads a previously written coverage-final.json into a new map.
func LoadMerged(path string) (*coverage.CoverageMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read merged coverage: %w", err)
	}
	ingested, err := coverage.NewIngestor(nil).Ingest("merged", data)
	if err != nil {
		return nil, err
	}
	if err := ingested.Problems(); err != nil {
		return nil, fmt.Errorf("merged coverage %s is damaged: %w", path, err)
	}

	cmap := coverage.NewCoverageMap()
	for _, rec := range ingested.Records {
		if err := cmap.Merge(rec); err != nil {
			return nil, err
		}
	}
	return cmap, nil
}
