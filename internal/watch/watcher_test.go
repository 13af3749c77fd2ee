package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/models"
)

// recordingUploader stores every upload under a fresh name, like the
// timestamped names of the real service.
type recordingUploader struct {
	mu     sync.Mutex
	names  []string
	stored map[string]bool
	seq    int
}

func (r *recordingUploader) ProcessUpload(_ context.Context, _ string, files []models.UploadFile) ([]models.FileStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stored == nil {
		r.stored = make(map[string]bool)
	}
	out := make([]models.FileStatus, len(files))
	for i, f := range files {
		r.seq++
		storedAs := fmt.Sprintf("%d_%s", r.seq, f.Name)
		r.names = append(r.names, f.Name)
		r.stored[storedAs] = true
		out[i] = models.FileStatus{Filename: f.Name, StoredAs: storedAs, Status: models.StatusSuccess, Chunks: 1}
	}
	return out, nil
}

func (r *recordingUploader) DeleteDocument(_ context.Context, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stored[filename] {
		return models.NewNotFoundError("delete document", filename)
	}
	delete(r.stored, filename)
	return nil
}

func (r *recordingUploader) documents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for name := range r.stored {
		out = append(out, name)
	}
	return out
}

func (r *recordingUploader) uploaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func TestWatcher_UploadsNewSupportedFiles(t *testing.T) {
	dir := t.TempDir()
	up := &recordingUploader{}
	batches := make(chan []models.FileStatus, 4)
	w := New(dir, up, WithDebounce(50*time.Millisecond), WithResults(func(s []models.FileStatus) { batches <- s }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	// let the watch register
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool.exe"), []byte("MZ"), 0o644))

	select {
	case batch := <-batches:
		require.Len(t, batch, 1)
		assert.Equal(t, "notes.txt", batch[0].Filename)
	case <-time.After(5 * time.Second):
		t.Fatal("no upload batch")
	}
	assert.Equal(t, []string{"notes.txt"}, up.uploaded())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestWatcher_MissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nope"), &recordingUploader{})
	assert.Error(t, w.Run(context.Background()))
}

func TestFlush_SkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("# title"), 0o644))

	up := &recordingUploader{}
	w := New(dir, up)
	w.flush(context.Background(), map[string]bool{path: true})
	w.flush(context.Background(), map[string]bool{path: true})
	assert.Equal(t, []string{"a.md"}, up.uploaded())

	assert.Equal(t, []string{"1_a.md"}, up.documents())

	require.NoError(t, os.WriteFile(path, []byte("# title\n\nedited"), 0o644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
	w.flush(context.Background(), map[string]bool{path: true})
	assert.Equal(t, []string{"a.md", "a.md"}, up.uploaded())
	assert.Equal(t, []string{"2_a.md"}, up.documents(), "previous version is removed")
}
