package source

import (
	"io/fs"
	"strings"
)

// Discover lists every regular file under fsys in walk (lexical) order.
// Hidden directories are skipped. An error here is the only failure that
// aborts a build.
func Discover(fsys fs.FS) ([]string, error) {
	var paths []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// NormalizePath converts a user or OS supplied path to the slash separated,
// root relative form used as document identity.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.HasPrefix(p, "./") {
		p = strings.TrimPrefix(p, "./")
	}
	return strings.TrimLeft(p, "/")
}

// Covers reports whether a change to changed affects p: p is changed itself
// or lies below the directory changed. Both are normalized paths.
func Covers(changed, p string) bool {
	if changed == "" || p == "" {
		return false
	}
	return p == changed || strings.HasPrefix(p, changed+"/")
}
