package manager

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/mnemo/pkg/lifecycle"
)

// digestCache holds the MEMORY.md contents between reads. A watcher on the
// identity directory drops the cached copy whenever the file changes, so
// edits by hand or by another process show up on the next read.
type digestCache struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	content string
	loaded  bool

	// gen increments on every invalidation so a read racing a change does
	// not cache stale content.
	gen uint64

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func newDigestCache(dir string, log *slog.Logger) *digestCache {
	d := &digestCache{
		path:   filepath.Join(dir, lifecycle.DigestFile),
		logger: log,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("cannot create identity directory, digest caching disabled", "dir", dir, "error", err)
		return d
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("cannot create digest watcher, digest caching disabled", "error", err)
		return d
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		log.Warn("cannot watch identity directory, digest caching disabled", "dir", dir, "error", err)
		return d
	}

	d.watcher = watcher
	d.done = make(chan struct{})
	go d.watch()
	return d
}

func (d *digestCache) watch() {
	defer close(d.done)
	for {
		select {
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(d.path) {
				continue
			}
			d.invalidate()
			d.logger.Debug("digest changed", "op", event.Op.String())
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("digest watcher error", "error", err)
			d.invalidate()
		}
	}
}

// get returns the digest text, or "" when the file does not exist.
func (d *digestCache) get() string {
	var gen uint64
	if d.watcher != nil {
		d.mu.RLock()
		if d.loaded {
			content := d.content
			d.mu.RUnlock()
			return content
		}
		gen = d.gen
		d.mu.RUnlock()
	}

	data, err := os.ReadFile(d.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		d.logger.Warn("reading digest failed", "path", d.path, "error", err)
	}
	content := strings.TrimSpace(string(data))

	if d.watcher != nil {
		d.mu.Lock()
		if d.gen == gen {
			d.content, d.loaded = content, true
		}
		d.mu.Unlock()
	}
	return content
}

func (d *digestCache) invalidate() {
	d.mu.Lock()
	d.content, d.loaded = "", false
	d.gen++
	d.mu.Unlock()
}

func (d *digestCache) close() {
	if d.watcher == nil {
		return
	}
	_ = d.watcher.Close()
	<-d.done
}
