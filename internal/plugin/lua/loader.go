package lua

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry point file names tried, in order, inside a plugin directory.
var entryPoints = []string{"init.lua", "plugin.lua"}

// Candidate is a script found on disk.
type Candidate struct {
	// Name is the file or directory name. The loaded script's descriptor
	// may declare a different plugin name.
	Name string

	// Path is the entry point file.
	Path string

	// Err is set when the candidate cannot be loaded.
	Err error
}

// Loader finds plugin scripts in a list of directories. A plugin is either
// a single "name.lua" file or a "name/" directory holding init.lua or
// plugin.lua. When two directories provide the same name, the first wins.
type Loader struct {
	paths []string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPaths sets the search paths.
func WithPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.paths = append([]string(nil), paths...)
	}
}

// NewLoader creates a loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Paths returns the search paths.
func (l *Loader) Paths() []string {
	return l.paths
}

// Discover returns the candidates in every search path, sorted by name.
// Missing directories are skipped.
func (l *Loader) Discover() ([]Candidate, error) {
	found := make(map[string]Candidate)
	for _, base := range l.paths {
		if err := discoverIn(base, found); err != nil {
			return nil, err
		}
	}

	out := make([]Candidate, 0, len(found))
	for _, c := range found {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func discoverIn(base string, found map[string]Candidate) error {
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		var c Candidate
		if entry.IsDir() {
			c = inspectDir(entry.Name(), filepath.Join(base, entry.Name()))
		} else if filepath.Ext(entry.Name()) == ".lua" {
			c = Candidate{
				Name: strings.TrimSuffix(entry.Name(), ".lua"),
				Path: filepath.Join(base, entry.Name()),
			}
		} else {
			continue
		}

		if _, exists := found[c.Name]; !exists {
			found[c.Name] = c
		}
	}
	return nil
}

func inspectDir(name, dir string) Candidate {
	for _, entry := range entryPoints {
		path := filepath.Join(dir, entry)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return Candidate{Name: name, Path: path}
		}
	}
	return Candidate{Name: name, Path: dir, Err: ErrNoEntryPoint}
}

// Load loads every loadable candidate. Candidates that fail are returned
// with Err set; the scripts that loaded are returned alongside.
func (l *Loader) Load(ctx context.Context, opts ...Option) ([]*Script, []Candidate, error) {
	candidates, err := l.Discover()
	if err != nil {
		return nil, nil, err
	}

	var (
		scripts []*Script
		failed  []Candidate
	)
	for _, c := range candidates {
		if c.Err != nil {
			failed = append(failed, c)
			continue
		}
		s, err := LoadFile(ctx, c.Path, opts...)
		if err != nil {
			c.Err = err
			failed = append(failed, c)
			continue
		}
		scripts = append(scripts, s)
	}
	return scripts, failed, nil
}
