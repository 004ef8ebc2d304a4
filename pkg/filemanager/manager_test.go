package filemanager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgp-bot/fgpbot/pkg/logging"
	"github.com/fgp-bot/fgpbot/pkg/models"
	"github.com/fgp-bot/fgpbot/pkg/store"
)

type env struct {
	root    string
	memes   string
	private string
	store   *store.SQLiteStore
	mgr     *Manager
	synced  int
}

func (e *env) FilesSynced(n int) { e.synced += n }

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	root := t.TempDir()
	e := &env{
		root:    root,
		memes:   filepath.Join(root, "memes"),
		private: filepath.Join(root, "private"),
	}
	require.NoError(t, os.MkdirAll(e.memes, 0755))
	require.NoError(t, os.MkdirAll(e.private, 0755))

	st, err := store.NewSQLiteStore(filepath.Join(root, "file.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	e.store = st

	opts.Directories = []Directory{
		{Category: "meme", Path: e.memes},
		{Category: "private", Path: e.private},
	}
	if opts.ConvertedDir == "" {
		opts.ConvertedDir = filepath.Join(root, "converted")
	}
	if opts.MaxFileSize == 0 {
		opts.MaxFileSize = 10
	}
	opts.HashWorkers = 3
	opts.Recorder = e
	opts.Logger = logging.Discard()
	e.mgr = New(st, opts)
	return e
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	write(t, path, "abc")

	h, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", h)
}

func TestListFilesRecursesAndToleratesMissingDir(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "b.png"), "b")
	write(t, filepath.Join(dir, "sub", "a.png"), "a")

	files, err := ListFiles(dir, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.png"), filepath.Join(dir, "sub", "a.png")}, files)

	files, err = ListFiles(filepath.Join(dir, "missing"), logging.Discard())
	require.NoError(t, err)
	assert.Empty(t, files)

	n, err := CountFiles(dir, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSyncInsertsNewFilesAndDeduplicates(t *testing.T) {
	e := newEnv(t, Options{})
	write(t, filepath.Join(e.memes, "a.png"), "same")
	write(t, filepath.Join(e.memes, "b.png"), "other")
	write(t, filepath.Join(e.private, "c.png"), "same")

	report, err := e.mgr.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Inserted)
	assert.Len(t, report.Duplicates, 1)
	assert.Equal(t, 2, e.synced)

	h, err := HashFile(filepath.Join(e.memes, "a.png"))
	require.NoError(t, err)
	rec, err := e.store.GetFileRecordByHash(h)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.memes, "a.png"), rec.FilePath)
	assert.Equal(t, "meme", rec.Category)
}

func TestSyncIsIdempotent(t *testing.T) {
	e := newEnv(t, Options{})
	write(t, filepath.Join(e.memes, "a.png"), "a")
	write(t, filepath.Join(e.private, "p.png"), "p")

	_, err := e.mgr.Sync(context.Background())
	require.NoError(t, err)

	report, err := e.mgr.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Inserted)
	assert.ElementsMatch(t, []string{"meme", "private"}, report.Skipped)

	write(t, filepath.Join(e.memes, "new.png"), "new")
	report, err = e.mgr.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Inserted)
}

func TestSyncSkipsContentAlreadyTracked(t *testing.T) {
	e := newEnv(t, Options{})
	write(t, filepath.Join(e.memes, "a.png"), "a")
	_, err := e.mgr.Sync(context.Background())
	require.NoError(t, err)

	write(t, filepath.Join(e.memes, "copy-of-a.png"), "a")
	report, err := e.mgr.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Existing)
	assert.Zero(t, report.Inserted)
}

func TestFetchUnsentFile(t *testing.T) {
	e := newEnv(t, Options{})
	write(t, filepath.Join(e.memes, "a.png"), "a")
	write(t, filepath.Join(e.memes, "b.png"), "b")
	_, err := e.mgr.Sync(context.Background())
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		rec, err := e.mgr.FetchUnsentFile("g1", "meme")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.False(t, seen[rec.FileHash])
		seen[rec.FileHash] = true
		_, err = e.mgr.IncrementSendCount(rec.FileHash, "g1")
		require.NoError(t, err)
	}

	rec, err := e.mgr.FetchUnsentFile("g1", "meme")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = e.mgr.FetchUnsentFile("g2", "meme")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestFindFileChecksCategory(t *testing.T) {
	e := newEnv(t, Options{})
	write(t, filepath.Join(e.private, "p.png"), "p")
	_, err := e.mgr.Sync(context.Background())
	require.NoError(t, err)
	h, err := HashFile(filepath.Join(e.private, "p.png"))
	require.NoError(t, err)

	rec, err := e.mgr.FindFile(h, "")
	require.NoError(t, err)
	assert.Equal(t, "private", rec.Category)

	_, err = e.mgr.FindFile(h, "meme")
	assert.ErrorIs(t, err, store.ErrFileNotFound)
}

func TestDeleteOriginalFile(t *testing.T) {
	e := newEnv(t, Options{})
	path := filepath.Join(e.memes, "a.png")
	write(t, path, "a")
	_, err := e.mgr.Sync(context.Background())
	require.NoError(t, err)
	h, err := HashFile(path)
	require.NoError(t, err)
	rec, err := e.mgr.FindFile(h, "meme")
	require.NoError(t, err)

	require.NoError(t, e.mgr.DeleteOriginalFile(rec))
	assert.NoFileExists(t, path)
	_, err = e.mgr.FindFile(h, "")
	assert.ErrorIs(t, err, store.ErrFileNotFound)

	// Second delete finds nothing left to remove.
	assert.NoError(t, e.mgr.DeleteOriginalFile(rec))
}

type fakeCompressor struct {
	content string
	err     error
	calls   int
}

func (f *fakeCompressor) Compress(ctx context.Context, path string, target int64, outDir string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	out := filepath.Join(outDir, "small_"+filepath.Base(path))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}
	return out, os.WriteFile(out, []byte(f.content), 0644)
}

func TestCompressRecordsConversion(t *testing.T) {
	comp := &fakeCompressor{content: "tiny"}
	e := newEnv(t, Options{Compressor: comp, MaxFileSize: 10})
	write(t, filepath.Join(e.memes, "big.webm"), "this file is way too large")
	write(t, filepath.Join(e.memes, "ok.png"), "small")
	_, err := e.mgr.Sync(context.Background())
	require.NoError(t, err)

	done, failed, err := e.mgr.CompressOversized(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Zero(t, failed)

	big, err := e.store.GetFilesLargerThan(10)
	require.NoError(t, err)
	require.Len(t, big, 1)
	rec := big[0]
	require.True(t, rec.HasConversion())
	assert.EqualValues(t, 4, *rec.ConvertedSize)

	path, ok := rec.SendPath(10)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(e.root, "converted", "small_big.webm"), path)

	// Already converted records are left alone.
	done, _, err = e.mgr.CompressOversized(context.Background())
	require.NoError(t, err)
	assert.Zero(t, done)
	assert.Equal(t, 1, comp.calls)
}

func TestCompressFailuresAreCounted(t *testing.T) {
	e := newEnv(t, Options{Compressor: &fakeCompressor{err: errors.New("no ffmpeg")}})
	write(t, filepath.Join(e.memes, "big.webm"), "this file is way too large")
	_, err := e.mgr.Sync(context.Background())
	require.NoError(t, err)

	done, failed, err := e.mgr.CompressOversized(context.Background())
	require.NoError(t, err)
	assert.Zero(t, done)
	assert.Equal(t, 1, failed)
}

func TestCompressWithoutCompressor(t *testing.T) {
	e := newEnv(t, Options{})
	_, err := e.mgr.Compress(context.Background(), &models.FileRecord{FilePath: "x"})
	assert.ErrorIs(t, err, ErrNoCompressor)
}

func TestWatchSyncsOnChange(t *testing.T) {
	e := newEnv(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reports := make(chan *SyncReport, 4)
	done := make(chan error, 1)
	go func() {
		done <- e.mgr.Watch(ctx, 50*time.Millisecond, func(r *SyncReport, err error) {
			if err == nil {
				reports <- r
			}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	write(t, filepath.Join(e.memes, "fresh.png"), "fresh")

	select {
	case r := <-reports:
		assert.Equal(t, 1, r.Inserted)
	case <-time.After(5 * time.Second):
		t.Fatal("no sync after file change")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
