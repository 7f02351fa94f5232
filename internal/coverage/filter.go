package coverage

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Reason explains why an entry was left out of the coverage map.
type Reason string

const (
	ReasonVirtual     Reason = "virtual"
	ReasonDotDir      Reason = "dot-directory"
	ReasonSetupFile   Reason = "setup-file"
	ReasonExcluded    Reason = "excluded"
	ReasonNotIncluded Reason = "not-included"
	ReasonEmptyPath   Reason = "empty-path"
	ReasonInvalid     Reason = "invalid"
)

// Filter decides which files belong in the report. Patterns are "**" globs
// matched against the path relative to Root.
type Filter struct {
	Root            string
	Include         []string
	Exclude         []string
	SetupFiles      []string
	VirtualPrefixes []string
}

// NewFilter validates every pattern and returns the filter.
func NewFilter(root string, include, exclude, setupFiles, virtualPrefixes []string) (*Filter, error) {
	for _, group := range [][]string{include, exclude, setupFiles} {
		for _, pattern := range group {
			if !doublestar.ValidatePattern(pattern) {
				return nil, fmt.Errorf("invalid glob pattern %q", pattern)
			}
		}
	}
	if virtualPrefixes == nil {
		virtualPrefixes = DefaultVirtualPrefixes
	}
	if root != "" {
		root = path.Clean(strings.ReplaceAll(root, "\\", "/"))
	}
	return &Filter{
		Root:            root,
		Include:         include,
		Exclude:         exclude,
		SetupFiles:      setupFiles,
		VirtualPrefixes: virtualPrefixes,
	}, nil
}

// Virtual reports whether the raw id is a virtual module.
func (f *Filter) Virtual(raw string) bool {
	if f == nil {
		return IsVirtual(raw, DefaultVirtualPrefixes)
	}
	return IsVirtual(raw, f.VirtualPrefixes)
}

// Check returns the reason a canonical path is rejected, or ok=true.
func (f *Filter) Check(canonical string) (Reason, bool) {
	if f == nil {
		return "", true
	}

	rel := f.relative(canonical)

	dirs := strings.Split(path.Dir(rel), "/")
	for _, dir := range dirs {
		if strings.HasPrefix(dir, ".") && dir != "." && dir != ".." {
			return ReasonDotDir, false
		}
	}

	base := path.Base(rel)
	for _, pattern := range f.SetupFiles {
		if match(pattern, rel) || match(pattern, base) {
			return ReasonSetupFile, false
		}
	}

	for _, pattern := range f.Exclude {
		if match(pattern, rel) {
			return ReasonExcluded, false
		}
	}

	if len(f.Include) > 0 {
		for _, pattern := range f.Include {
			if match(pattern, rel) {
				return "", true
			}
		}
		return ReasonNotIncluded, false
	}

	return "", true
}

// relative returns the path relative to Root when it lies under it.
func (f *Filter) relative(p string) string {
	if f.Root == "" || f.Root == "." {
		return strings.TrimPrefix(p, "/")
	}
	if p == f.Root {
		return "."
	}
	prefix := strings.TrimSuffix(f.Root, "/") + "/"
	if strings.HasPrefix(p, prefix) {
		return strings.TrimPrefix(p, prefix)
	}
	return strings.TrimPrefix(p, "/")
}

func match(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}
