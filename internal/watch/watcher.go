package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// EnqueueFunc submits a dropped media file for transcription. It returns an
// error if the job could not be queued.
type EnqueueFunc func(path string) error

// mediaExtensions lists the file types the watcher hands to the pipeline.
// Everything ffmpeg can decode an audio stream from.
var mediaExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".flac": true,
}

// Watcher monitors a drop directory for new media files and enqueues them for
// transcription. This provides a local ingestion path alongside the messaging
// entry points.
type Watcher struct {
	watchDir string
	enqueue  EnqueueFunc
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	stopped sync.Once

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesEnqueued atomic.Int64
	filesSkipped  atomic.Int64
	status        atomic.Value // string: "starting", "watching", "stopped"
}

// Status describes the watcher state for the health endpoint.
type Status struct {
	Status        string `json:"status"`
	WatchDir      string `json:"watch_dir"`
	FilesEnqueued int64  `json:"files_enqueued"`
	FilesSkipped  int64  `json:"files_skipped"`
}

// New creates a drop-directory watcher. Call Start to begin watching.
func New(watchDir string, enqueue EnqueueFunc, log zerolog.Logger) *Watcher {
	w := &Watcher{
		watchDir:       watchDir,
		enqueue:        enqueue,
		log:            log.With().Str("component", "watcher").Logger(),
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}
	w.status.Store("starting")
	return w
}

// Start initializes the fsnotify watcher, adds the drop directory and any
// existing subdirectories, and begins watching for new files.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw

	dirCount := 0
	err = filepath.WalkDir(w.watchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil // continue walking
		}
		if d.IsDir() {
			if addErr := fsw.Add(path); addErr != nil {
				w.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return err
	}

	w.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", w.watchDir).
		Msg("file watcher initialized")

	w.status.Store("watching")
	go w.watchLoop()
	return nil
}

// Stop closes the fsnotify watcher and cancels pending debounce timers so no
// enqueue fires after shutdown.
func (w *Watcher) Stop() {
	w.stopped.Do(func() {
		w.status.Store("stopped")
		close(w.done)
		if w.watcher != nil {
			w.watcher.Close()
		}

		w.debounceMu.Lock()
		for path, t := range w.debounceTimers {
			t.Stop()
			delete(w.debounceTimers, path)
		}
		w.debounceMu.Unlock()
		w.log.Info().
			Int64("files_enqueued", w.filesEnqueued.Load()).
			Int64("files_skipped", w.filesSkipped.Load()).
			Msg("file watcher stopped")
	})
}

// CurrentStatus returns the watcher state for the health endpoint.
func (w *Watcher) CurrentStatus() Status {
	s, _ := w.status.Load().(string)
	return Status{
		Status:        s,
		WatchDir:      w.watchDir,
		FilesEnqueued: w.filesEnqueued.Load(),
		FilesSkipped:  w.filesSkipped.Load(),
	}
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New directory: add it to the watch set so we catch files
			// dropped into nested folders.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					w.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					w.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !isMediaFile(event.Name) {
				w.filesSkipped.Add(1)
				continue
			}

			w.scheduleEnqueue(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleEnqueue debounces file handling by 500ms. This coalesces rapid
// Create+Write events and ensures the file is fully written before the
// pipeline reads it.
func (w *Watcher) scheduleEnqueue(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(500 * time.Millisecond)
		return
	}

	w.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		w.handleFile(path)
	})
}

func (w *Watcher) handleFile(path string) {
	info, err := os.Stat(path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("dropped file vanished before enqueue")
		return
	}
	if info.Size() == 0 {
		w.filesSkipped.Add(1)
		return
	}

	if err := w.enqueue(path); err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to enqueue dropped file")
		w.filesSkipped.Add(1)
		return
	}

	w.filesEnqueued.Add(1)
	w.log.Info().Str("path", path).Int64("size", info.Size()).Msg("dropped file enqueued")
}

func isMediaFile(path string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(path))]
}
