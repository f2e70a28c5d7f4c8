package storage

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DirWatcher monitors the media directory for recordings that arrive out of
// band (operator copies, crash leftovers) and notifies a callback so the
// reconciler can push them to S3 without waiting for the next periodic pass.
type DirWatcher struct {
	mediaDir string
	notify   func()
	log      zerolog.Logger

	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	done     chan struct{}

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer
}

// NewDirWatcher creates a watcher rooted at mediaDir. notify is invoked after
// a new media file settles on disk.
func NewDirWatcher(mediaDir string, notify func(), log zerolog.Logger) (*DirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dw := &DirWatcher{
		mediaDir:       mediaDir,
		notify:         notify,
		log:            log.With().Str("component", "media-watcher").Logger(),
		watcher:        w,
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}

	// Watch the root and every existing owner/date subdirectory.
	dirCount := 0
	filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			dw.log.Warn().Err(err).Str("path", path).Msg("error walking media dir")
			return nil
		}
		if d.IsDir() {
			if addErr := w.Add(path); addErr != nil {
				dw.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})

	dw.log.Info().Int("directories", dirCount).Str("media_dir", mediaDir).Msg("media dir watcher initialized")
	return dw, nil
}

func (dw *DirWatcher) Start() { go dw.loop() }

func (dw *DirWatcher) Stop() {
	dw.stopOnce.Do(func() {
		close(dw.done)
		dw.watcher.Close()
	})
}

func (dw *DirWatcher) loop() {
	for {
		select {
		case <-dw.done:
			return

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New owner or date directory: add it to the watch set so we
			// catch files landing inside it.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := dw.watcher.Add(event.Name); err != nil {
					dw.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				}
				continue
			}

			if !isMediaFile(event.Name) {
				continue
			}
			dw.scheduleNotify(event.Name)

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			dw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleNotify debounces per file by 500ms so the notify fires once the
// file has finished writing, not on the first partial chunk.
func (dw *DirWatcher) scheduleNotify(path string) {
	dw.debounceMu.Lock()
	defer dw.debounceMu.Unlock()

	if t, ok := dw.debounceTimers[path]; ok {
		t.Reset(500 * time.Millisecond)
		return
	}

	dw.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		dw.debounceMu.Lock()
		delete(dw.debounceTimers, path)
		dw.debounceMu.Unlock()

		dw.log.Debug().Str("path", path).Msg("new media file settled")
		dw.notify()
	})
}

func isMediaFile(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".media-") && strings.HasSuffix(name, ".tmp") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".webm", ".mp4", ".mkv", ".json":
		return true
	}
	return false
}
