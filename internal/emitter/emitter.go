// Package emitter holds the file planning and writing shared by the output
// formats under internal/emitter.
package emitter

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/samber/lo"
)

// PlannedFile describes a file an emitter intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Plan lists files in deterministic order.
func Plan(files map[string][]byte) []PlannedFile {
	rels := lo.Keys(files)
	slices.Sort(rels)
	planned := make([]PlannedFile, 0, len(rels))
	for _, rel := range rels {
		planned = append(planned, PlannedFile{RelPath: filepath.ToSlash(rel), Size: len(files[rel]), Mode: 0o644})
	}
	return planned
}

// WriteFiles writes files under outDir. A non-empty outDir is refused unless
// force is set. Each file is written to a temp file and renamed into place.
func WriteFiles(outDir string, files map[string][]byte, force bool) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return fmt.Errorf("resolve out dir: %w", err)
	}
	if st, err := os.Stat(abs); err == nil && st.IsDir() && !force {
		entries, rerr := os.ReadDir(abs)
		if rerr == nil && len(entries) > 0 {
			return fmt.Errorf("output directory %q is not empty (use --force to overwrite)", abs)
		}
	}
	for _, pf := range Plan(files) {
		p := filepath.Join(abs, filepath.FromSlash(pf.RelPath))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
		tmp, err := os.CreateTemp(filepath.Dir(p), filepath.Base(p)+".tmp-*")
		if err != nil {
			return fmt.Errorf("create temp for %s: %w", pf.RelPath, err)
		}
		_, werr := tmp.Write(files[pf.RelPath])
		cerr := tmp.Close()
		if werr == nil {
			werr = cerr
		}
		if werr == nil {
			werr = os.Chmod(tmp.Name(), pf.Mode)
		}
		if werr != nil {
			_ = os.Remove(tmp.Name())
			return fmt.Errorf("write temp %s: %w", pf.RelPath, werr)
		}
		if err := os.Rename(tmp.Name(), p); err != nil {
			_ = os.Remove(tmp.Name())
			return fmt.Errorf("rename %s: %w", pf.RelPath, err)
		}
	}
	return nil
}
