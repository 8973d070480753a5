package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/stacklok/mcp-gateway/pkg/ferrors"
	"github.com/stacklok/mcp-gateway/pkg/glog"
)

// Source is a desired-state file backing spec component J.
type Source struct {
	path string
}

// NewSource returns a Source reading and writing path.
func NewSource(path string) *Source {
	return &Source{path: path}
}

// Load reads and parses the desired-state file. A missing file is
// treated as an empty backend list, matching a fresh gateway with no
// configured backends yet.
func (s *Source) Load() ([]BackendConfig, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ferrors.NewInvalidConfigurationError(
			fmt.Sprintf("failed to read %s", s.path), err)
	}
	doc, err := unmarshalDocument(data)
	if err != nil {
		return nil, ferrors.NewInvalidConfigurationError(
			fmt.Sprintf("failed to parse %s", s.path), err)
	}
	for _, b := range doc.Backends {
		if b.Name == "" {
			return nil, ferrors.NewInvalidConfigurationError(
				fmt.Sprintf("%s: backend entry missing name", s.path), nil)
		}
		if _, err := b.ToRuntimeSource(); err != nil {
			return nil, ferrors.NewInvalidConfigurationError(
				fmt.Sprintf("%s: backend %q has an invalid source", s.path, b.Name), err)
		}
	}
	return doc.Backends, nil
}

// Save upserts cfg into the desired-state file: replaces the entry with
// the same name if present, appends it otherwise, then rewrites the
// whole file atomically.
func (s *Source) Save(cfg BackendConfig) error {
	backends, err := s.Load()
	if err != nil {
		return err
	}

	replaced := false
	for i, b := range backends {
		if b.Name == cfg.Name {
			backends[i] = cfg
			replaced = true
			break
		}
	}
	if !replaced {
		backends = append(backends, cfg)
	}
	return s.writeAll(backends)
}

// Remove deletes the entry named name, idempotently.
func (s *Source) Remove(name string) error {
	backends, err := s.Load()
	if err != nil {
		return err
	}
	out := make([]BackendConfig, 0, len(backends))
	for _, b := range backends {
		if b.Name != name {
			out = append(out, b)
		}
	}
	return s.writeAll(out)
}

// writeAll renders backends and writes them to s.path via a
// write-to-temp-then-rename, so a reader never observes a partially
// written file.
func (s *Source) writeAll(backends []BackendConfig) error {
	data, err := marshalDocument(Document{Backends: backends})
	if err != nil {
		return ferrors.NewInvalidConfigurationError("failed to render desired state", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".desired-state-*.yaml.tmp")
	if err != nil {
		return ferrors.NewInvalidConfigurationError("failed to create temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup; rename below removes it on success

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return ferrors.NewInvalidConfigurationError("failed to write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return ferrors.NewInvalidConfigurationError("failed to close temp file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return ferrors.NewInvalidConfigurationError("failed to rename temp file into place", err)
	}
	return nil
}

// Watch emits the full desired-state snapshot on ch every time the
// underlying file changes, until ctx is canceled. The first snapshot
// (the file's state at the moment Watch starts) is always sent.
func (s *Source) Watch(ctx context.Context, ch chan<- []BackendConfig) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.NewConfigurationWatchError("failed to create file watcher", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return ferrors.NewConfigurationWatchError(fmt.Sprintf("failed to watch %s", dir), err)
	}

	initial, err := s.Load()
	if err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		select {
		case ch <- initial:
		case <-ctx.Done():
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				snapshot, err := s.Load()
				if err != nil {
					glog.Warnw("failed to reload desired state after change", "path", s.path, "error", err)
					continue
				}
				select {
				case ch <- snapshot:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				glog.Warnw("config watcher error", "error", err)
			}
		}
	}()

	return nil
}
