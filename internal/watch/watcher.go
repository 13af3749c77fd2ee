package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"docchat/internal/models"
	"docchat/internal/parser"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	callerKey       = "watch"
)

type Uploader interface {
	ProcessUpload(ctx context.Context, callerKey string, files []models.UploadFile) ([]models.FileStatus, error)
	DeleteDocument(ctx context.Context, filename string) error
}

type upload struct {
	modTime  time.Time
	storedAs string
}

// Watcher uploads supported files as they appear or change in a directory.
// Events are batched until the directory has been quiet for the debounce
// interval.
type Watcher struct {
	dir      string
	uploader Uploader
	debounce time.Duration
	onBatch  func([]models.FileStatus)

	seen map[string]upload // path -> last successful upload
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithResults registers a callback for each processed batch.
func WithResults(fn func([]models.FileStatus)) Option {
	return func(w *Watcher) { w.onBatch = fn }
}

func New(dir string, uploader Uploader, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		uploader: uploader,
		debounce: DefaultDebounce,
		seen:     make(map[string]upload),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is done. Files already in the directory are not
// uploaded.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	log.Info().Str("dir", w.dir).Msg("watching for documents")

	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !parser.Supported(ev.Name) {
				log.Debug().Str("path", ev.Name).Msg("ignoring unsupported file")
				continue
			}
			pending[ev.Name] = true
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watcher error")
		case <-timer.C:
			w.flush(ctx, pending)
			pending = make(map[string]bool)
		}
	}
}

func (w *Watcher) flush(ctx context.Context, pending map[string]bool) {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var files []models.UploadFile
	mods := make(map[string]time.Time)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		if last, ok := w.seen[p]; ok && last.modTime.Equal(info.ModTime()) {
			continue
		}
		mods[p] = info.ModTime()
		files = append(files, models.UploadFile{Name: filepath.Base(p), Path: p})
	}
	if len(files) == 0 {
		return
	}

	statuses, err := w.uploader.ProcessUpload(ctx, callerKey, files)
	if err != nil {
		if errors.Is(err, models.ErrRateLimited) {
			log.Warn().Dur("retry_after", models.RetryAfter(err)).Int("files", len(files)).Msg("upload rate limited, batch dropped")
		} else {
			log.Error().Err(err).Msg("watch upload failed")
		}
		return
	}
	// statuses follow the order of files
	for i, s := range statuses {
		if i >= len(files) || s.Status != models.StatusSuccess {
			continue
		}
		path := files[i].Path
		if prev, ok := w.seen[path]; ok && prev.storedAs != "" && prev.storedAs != s.StoredAs {
			if err := w.uploader.DeleteDocument(ctx, prev.storedAs); err != nil && !errors.Is(err, models.ErrNotFound) {
				log.Warn().Err(err).Str("stored_as", prev.storedAs).Msg("failed to remove previous version")
			}
		}
		w.seen[path] = upload{modTime: mods[path], storedAs: s.StoredAs}
	}
	if w.onBatch != nil {
		w.onBatch(statuses)
	}
}
