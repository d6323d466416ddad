package server

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"
)

// DefaultDebounce batches bursts of file events, such as an editor's
// write-rename sequence, into one incremental build.
const DefaultDebounce = 200 * time.Millisecond

// Watch rebuilds the catalog whenever files under root change, until ctx is
// cancelled. fsnotify is not recursive, so every directory is watched and
// directories created later are added as they appear. ready, when non-nil,
// is closed once the initial watches are in place.
func (s *Server) Watch(ctx context.Context, root string, debounce time.Duration, ready chan<- struct{}) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := s.watchTree(watcher, root); err != nil {
		return err
	}
	s.log.WithField("root", root).Info("watching for changes")
	if ready != nil {
		close(ready)
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.WithError(err).Warn("watcher error")
		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, err := filepath.Rel(root, e.Name)
			if err != nil || hidden(rel) {
				continue
			}
			if e.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(e.Name); err == nil && fi.IsDir() {
					if err := s.watchTree(watcher, e.Name); err != nil {
						s.log.WithError(err).WithField("dir", rel).Warn("watch new directory")
					}
					for _, f := range filesUnder(root, e.Name) {
						pending[f] = struct{}{}
					}
					timer.Reset(debounce)
					continue
				}
			}
			pending[filepath.ToSlash(rel)] = struct{}{}
			timer.Reset(debounce)
		case <-timer.C:
			changed := lo.Keys(pending)
			slices.Sort(changed)
			clear(pending)
			s.log.WithField("files", changed).Debug("files changed")
			if err := s.Rebuild(ctx, changed...); err != nil {
				s.log.WithError(err).Error("rebuild failed")
			}
		}
	}
}

func (s *Server) watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(p)
	})
}

// filesUnder lists regular files below dir as root relative slash paths.
func filesUnder(root, dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, err := filepath.Rel(root, p); err == nil {
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	return out
}

func hidden(rel string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}
