// Package config resolves the authoritative project directory for corral and
// loads the typed settings that live inside it. It supports an explicit path
// flag, an environment override, ancestor-walking marker discovery, and a
// cwd-relative default for operations that are allowed to bootstrap state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MarkerName is the directory that marks a corral project root.
const MarkerName = ".corral"

// EnvDir is the environment override for the project directory.
const EnvDir = "CORRAL_DIR"

// generatedName is the sub-directory for derived output under the resolved root.
const generatedName = "_generated"

// ErrConfigNotFound is returned when resolution exhausts every source and the
// operation does not permit the cwd default.
var ErrConfigNotFound = errors.New("no corral directory found")

// Source identifies where a resolved directory came from.
type Source string

const (
	SourceFlag    Source = "flag"
	SourceEnv     Source = "env"
	SourceMarker  Source = "marker"
	SourceDefault Source = "default"
)

// Dir is a resolved project directory. Every component that writes derived
// output computes its paths from a Dir; nothing writes to a literal constant.
type Dir struct {
	// Path is the absolute resolved directory.
	Path string
	// Source records which resolution step matched.
	Source Source
}

// Resolve determines the project directory for an invocation. Resolution
// order, first match wins: explicit path, CORRAL_DIR, nearest ancestor of cwd
// containing a .corral marker, then cwd/.corral if allowDefault is set.
// Resolve only probes the filesystem; callers create directories.
func Resolve(explicit, cwd string, allowDefault bool) (*Dir, error) {
	if explicit != "" {
		abs, err := filepath.Abs(explicit)
		if err != nil {
			return nil, fmt.Errorf("resolve explicit path: %w", err)
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("explicit path %s: %w", explicit, ErrConfigNotFound)
		}
		return &Dir{Path: abs, Source: SourceFlag}, nil
	}

	if env := os.Getenv(EnvDir); env != "" {
		abs, err := filepath.Abs(env)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", EnvDir, err)
		}
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%s=%s: %w", EnvDir, env, ErrConfigNotFound)
		}
		return &Dir{Path: abs, Source: SourceEnv}, nil
	}

	if marker := findMarker(cwd); marker != "" {
		return &Dir{Path: marker, Source: SourceMarker}, nil
	}

	if allowDefault {
		abs, err := filepath.Abs(filepath.Join(cwd, MarkerName))
		if err != nil {
			return nil, fmt.Errorf("resolve default path: %w", err)
		}
		return &Dir{Path: abs, Source: SourceDefault}, nil
	}

	return nil, fmt.Errorf("searched %s and ancestors for %s: %w", cwd, MarkerName, ErrConfigNotFound)
}

// findMarker searches cwd and its ancestors for a .corral directory.
func findMarker(cwd string) string {
	dir, err := filepath.Abs(cwd)
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, MarkerName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// Generated returns the derived-output root under the resolved directory.
func (d *Dir) Generated() string {
	return filepath.Join(d.Path, generatedName)
}

// StateDir returns the durable record root.
func (d *Dir) StateDir() string {
	return filepath.Join(d.Generated(), "state")
}

// TasksDir returns the directory holding one record per task.
func (d *Dir) TasksDir() string {
	return filepath.Join(d.StateDir(), "tasks")
}

// SessionsDir returns the directory holding one record per session.
func (d *Dir) SessionsDir() string {
	return filepath.Join(d.StateDir(), "sessions")
}

// AuditDBPath returns the path of the audit database.
func (d *Dir) AuditDBPath() string {
	return filepath.Join(d.Generated(), "audit.db")
}

// SettingsPath returns the path of the settings file.
func (d *Dir) SettingsPath() string {
	return filepath.Join(d.Path, "config.yaml")
}
