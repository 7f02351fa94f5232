package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/zjy-dev/covmerge/internal/logger"
)

const (
	payloadPrefix  = "coverage-"
	payloadExt     = ".json"
	nestedFileName = "coverage-final.json"
	flatPattern    = payloadPrefix + "*" + payloadExt
	nestedPattern  = "*/" + nestedFileName
)

// Payload is one environment's raw coverage file.
type Payload struct {
	Environment string
	Path        string
}

// PayloadPaths returns the two locations checked for env under dir.
func PayloadPaths(dir, env string) (flat, nested string) {
	return filepath.Join(dir, payloadPrefix+env+payloadExt),
		filepath.Join(dir, env, nestedFileName)
}

// Discover finds the payload of every environment in envs under dir. The
// payload for environment e is dir/coverage-e.json or
// dir/e/coverage-final.json. Environments without a payload are returned in
// missing. With no envs, every payload found in dir is returned.
func Discover(dir string, envs []string) (payloads []Payload, missing []string, err error) {
	if len(envs) == 0 {
		payloads, err = discoverAll(dir)
		return payloads, nil, err
	}

	for _, env := range envs {
		flat, nested := PayloadPaths(dir, env)
		hasFlat, hasNested := isFile(flat), isFile(nested)
		switch {
		case hasFlat && hasNested:
			return nil, nil, fmt.Errorf("environment %s has two payloads: %s and %s", env, flat, nested)
		case hasFlat:
			payloads = append(payloads, Payload{Environment: env, Path: flat})
		case hasNested:
			payloads = append(payloads, Payload{Environment: env, Path: nested})
		default:
			missing = append(missing, env)
		}
	}
	return payloads, missing, nil
}

func discoverAll(dir string) ([]Payload, error) {
	fsys := os.DirFS(dir)
	byEnv := make(map[string]string)

	add := func(env, rel string) error {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if prev, ok := byEnv[env]; ok {
			return fmt.Errorf("environment %s has two payloads: %s and %s", env, prev, p)
		}
		byEnv[env] = p
		return nil
	}

	flats, err := doublestar.Glob(fsys, flatPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	for _, rel := range flats {
		env := strings.TrimSuffix(strings.TrimPrefix(rel, payloadPrefix), payloadExt)
		if env == "" || env == "final" || env == "summary" {
			continue
		}
		if err := add(env, rel); err != nil {
			return nil, err
		}
	}

	nested, err := doublestar.Glob(fsys, nestedPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	for _, rel := range nested {
		env := strings.SplitN(rel, "/", 2)[0]
		if strings.HasPrefix(env, ".") {
			continue
		}
		if err := add(env, rel); err != nil {
			return nil, err
		}
	}

	payloads := make([]Payload, 0, len(byEnv))
	for env, p := range byEnv {
		payloads = append(payloads, Payload{Environment: env, Path: p})
	}
	sort.Slice(payloads, func(i, j int) bool {
		return payloads[i].Environment < payloads[j].Environment
	})
	return payloads, nil
}

// Wait blocks until every environment in envs has a complete payload under
// dir and returns them. It has no timeout of its own; cancel ctx to give up.
func Wait(ctx context.Context, dir string, envs []string) ([]Payload, error) {
	if len(envs) == 0 {
		return nil, errors.New("wait needs at least one environment")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create payload directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	wanted := make(map[string]bool, len(envs))
	for _, env := range envs {
		wanted[env] = true
		if sub := filepath.Join(dir, env); isDir(sub) {
			if err := watcher.Add(sub); err != nil {
				return nil, fmt.Errorf("failed to watch %s: %w", sub, err)
			}
		}
	}

	for {
		payloads, missing, err := Discover(dir, envs)
		if err != nil {
			return nil, err
		}
		for _, p := range payloads {
			if !complete(p.Path) {
				missing = append(missing, p.Environment)
			}
		}
		if len(missing) == 0 {
			return payloads, nil
		}
		sort.Strings(missing)
		logger.Debug("Waiting for payloads of %s in %s", strings.Join(missing, ", "), dir)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", strings.Join(missing, ", "), ctx.Err())
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil, errors.New("watcher closed")
			}
			if ev.Has(fsnotify.Create) && wanted[filepath.Base(ev.Name)] && isDir(ev.Name) {
				if err := watcher.Add(ev.Name); err != nil {
					return nil, fmt.Errorf("failed to watch %s: %w", ev.Name, err)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil, errors.New("watcher closed")
			}
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}
}

// complete reports whether the payload at path has been fully written.
func complete(path string) bool {
	data, err := os.ReadFile(path)
	return err == nil && json.Valid(data)
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
