package compose

import (
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/mark3labs/docweave/internal/source"
)

// DefaultDataDir is the directory name holding shared fragments. Files under
// it are reference targets, never documents.
const DefaultDataDir = "_data"

// Fragment is the outcome of loading a reference pointer. Source is empty when
// the target file could not be read or parsed. Found is false when the file
// loaded but held nothing at the requested path.
type Fragment struct {
	Source string
	Value  any
	Found  bool
}

// LoaderSettings configures reference loading.
type LoaderSettings struct {
	// DataDir is the shared data directory name used by the ./ and / prefixes.
	DataDir string
	// CacheTTL bounds how long a parsed file is reused. Zero keeps entries
	// until they are invalidated.
	CacheTTL time.Duration
}

// DefaultLoaderSettings returns recommended defaults.
func DefaultLoaderSettings() LoaderSettings {
	return LoaderSettings{DataDir: DefaultDataDir}
}

// LoaderOption mutates LoaderSettings.
type LoaderOption func(*LoaderSettings)

func WithDataDir(dir string) LoaderOption       { return func(s *LoaderSettings) { s.DataDir = dir } }
func WithCacheTTL(d time.Duration) LoaderOption { return func(s *LoaderSettings) { s.CacheTTL = d } }

// Loader resolves `<file>[:<dotted.path>]` pointers against a project
// tree. Parsed files are cached by resolved path; values handed out are
// shared with the cache and must be treated as read-only.
type Loader struct {
	fsys     fs.FS
	settings LoaderSettings
	cache    *ttlcache.Cache[string, any]
}

func NewLoader(fsys fs.FS, opts ...LoaderOption) *Loader {
	settings := DefaultLoaderSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.DataDir == "" {
		settings.DataDir = DefaultDataDir
	}
	return &Loader{
		fsys:     fsys,
		settings: settings,
		cache: ttlcache.New[string, any](
			ttlcache.WithTTL[string, any](settings.CacheTTL),
			ttlcache.WithDisableTouchOnHit[string, any](),
		),
	}
}

// DataDir reports the shared data directory name.
func (l *Loader) DataDir() string { return l.settings.DataDir }

// Load resolves pointer relative to the document at docPath. A file that
// cannot be read or parsed yields an empty Fragment and an
// UnresolvableReference error; callers log it and continue.
func (l *Loader) Load(pointer, docPath string) (Fragment, error) {
	file, sub, _ := strings.Cut(pointer, ":")
	target := l.ResolvePath(file, docPath)

	root, err := l.read(target)
	if err != nil {
		return Fragment{}, &Error{
			Code:     UnresolvableReference,
			Message:  "cannot load referenced file",
			Location: docPath,
			Pointer:  pointer,
			Cause:    err,
		}
	}
	v, ok := Lookup(root, sub)
	if !ok {
		return Fragment{Source: target}, nil
	}
	return Fragment{Source: target, Value: v, Found: true}, nil
}

// ResolvePath maps a pointer's file part to a root relative path.
func (l *Loader) ResolvePath(file, docPath string) string {
	var p string
	switch {
	case strings.HasPrefix(file, "./"+l.settings.DataDir):
		p = path.Join(path.Dir(docPath), strings.TrimPrefix(file, "./"))
	case strings.HasPrefix(file, "/"+l.settings.DataDir):
		p = strings.TrimPrefix(file, "/")
	default:
		p = file
	}
	p = strings.TrimLeft(p, "/")
	if p == "" {
		return p
	}
	return path.Clean(p)
}

func (l *Loader) read(name string) (any, error) {
	if item := l.cache.Get(name); item != nil {
		return item.Value(), nil
	}
	if !fs.ValidPath(name) || name == "." {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return nil, err
	}
	root, err := source.Parse(data)
	if err != nil {
		return nil, err
	}
	l.cache.Set(name, root, ttlcache.DefaultTTL)
	return root, nil
}

// Invalidate drops cached parses for the given paths. A directory path drops
// every file below it.
func (l *Loader) Invalidate(paths ...string) {
	if len(paths) == 0 {
		return
	}
	keys := l.cache.Keys()
	for _, p := range paths {
		p = source.NormalizePath(p)
		for _, k := range keys {
			if source.Covers(p, k) {
				l.cache.Delete(k)
			}
		}
	}
}

// Reset drops every cached parse.
func (l *Loader) Reset() { l.cache.DeleteAll() }
