// Package filemanager keeps the file database in step with the media
// directories and serves files for sending.
package filemanager

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fgp-bot/fgpbot/pkg/logging"
	"github.com/fgp-bot/fgpbot/pkg/models"
	"github.com/fgp-bot/fgpbot/pkg/store"
)

// Directory is a tracked folder and the category its files get.
type Directory struct {
	Category string
	Path     string
}

// Compressor produces a smaller copy of a file in outDir.
type Compressor interface {
	Compress(ctx context.Context, path string, target int64, outDir string) (string, error)
}

// Recorder is told how many records each sync inserted.
type Recorder interface {
	FilesSynced(n int)
}

type noopRecorder struct{}

func (noopRecorder) FilesSynced(int) {}

// Options configures a Manager.
type Options struct {
	Directories  []Directory
	ConvertedDir string
	MaxFileSize  int64
	// HashWorkers bounds concurrent hashing during a sync.
	HashWorkers int
	Compressor  Compressor
	Recorder    Recorder
	Logger      *logging.Logger
}

// Manager synchronises directories with the store.
type Manager struct {
	store store.Store
	opts  Options

	logger *logging.Logger
	now    func() time.Time

	mu   sync.Mutex // serialises Sync
	rand *rand.Rand
	rmu  sync.Mutex
}

// New creates a manager. The store's lifecycle stays with the caller.
func New(st store.Store, opts Options) *Manager {
	if opts.HashWorkers < 1 {
		opts.HashWorkers = 1
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		store:  st,
		opts:   opts,
		logger: logger.Named("FileManager"),
		now:    time.Now,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SyncReport summarises one synchronisation.
type SyncReport struct {
	// Scanned counts files found on disk that were not yet tracked by path.
	Scanned    int                 `json:"scanned"`
	Duplicates map[string][]string `json:"duplicates,omitempty"`
	Existing   int                 `json:"existing"`
	Inserted   int                 `json:"inserted"`
	Skipped    []string            `json:"skipped_categories,omitempty"`
	Duration   time.Duration       `json:"duration_ns"`
}

// Sync records every new file of the tracked directories. Categories whose
// file count already matches the database are skipped. Files with the same
// content are recorded once, keeping the first path found.
func (m *Manager) Sync(ctx context.Context) (*SyncReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	report := &SyncReport{Duplicates: map[string][]string{}}
	m.logger.Info("synchronising file database")

	var candidates []*models.FileRecord
	for _, dir := range m.opts.Directories {
		recs, skipped, err := m.scanDirectory(ctx, dir)
		if err != nil {
			return nil, err
		}
		if skipped {
			report.Skipped = append(report.Skipped, dir.Category)
		}
		candidates = append(candidates, recs...)
	}
	report.Scanned = len(candidates)

	if len(candidates) == 0 {
		m.logger.Info("no new files found")
		report.Duration = time.Since(start)
		return report, nil
	}

	unique := m.deduplicate(candidates, report)

	known, err := m.store.GetAllFileHashes()
	if err != nil {
		return nil, fmt.Errorf("load known hashes: %w", err)
	}
	existing := make(map[string]bool, len(known))
	for _, h := range known {
		existing[h] = true
	}

	final := unique[:0]
	for _, rec := range unique {
		if existing[rec.FileHash] {
			report.Existing++
			continue
		}
		final = append(final, rec)
	}

	if len(final) == 0 {
		m.logger.Info("all new files are already tracked")
	} else {
		m.logger.Info(fmt.Sprintf("inserting %d new unique file records", len(final)))
		if err := m.store.InsertFileRecords(final); err != nil {
			return nil, fmt.Errorf("insert file records: %w", err)
		}
	}
	report.Inserted = len(final)
	report.Duration = time.Since(start)
	m.opts.Recorder.FilesSynced(report.Inserted)
	return report, nil
}

// scanDirectory hashes the untracked files of dir. skipped is true when the
// disk and database counts already agree.
func (m *Manager) scanDirectory(ctx context.Context, dir Directory) (recs []*models.FileRecord, skipped bool, err error) {
	log := m.logger.WithField("category", dir.Category)
	log.Debug(fmt.Sprintf("processing directory %s", dir.Path))

	files, err := ListFiles(dir.Path, log)
	if err != nil {
		return nil, false, err
	}
	dbCount, err := m.store.CountOfCategory(dir.Category)
	if err != nil {
		return nil, false, fmt.Errorf("count %s records: %w", dir.Category, err)
	}
	if len(files) == dbCount {
		log.Debug("skipping, file counts match")
		return nil, true, nil
	}
	log.Debug(fmt.Sprintf("count mismatch: db=%d disk=%d", dbCount, len(files)))

	tracked, err := m.store.GetFilepathsOfCategory(dir.Category)
	if err != nil {
		return nil, false, fmt.Errorf("load %s paths: %w", dir.Category, err)
	}
	known := make(map[string]bool, len(tracked))
	for _, p := range tracked {
		known[filepath.Clean(p)] = true
	}

	var untracked []string
	for _, f := range files {
		if !known[filepath.Clean(f)] {
			untracked = append(untracked, f)
		}
	}

	recs = make([]*models.FileRecord, len(untracked))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.HashWorkers)
	for i, path := range untracked {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := m.buildRecord(path, dir.Category)
			if err != nil {
				log.Error(fmt.Sprintf("failed to process file %s: %v", path, err))
				return err
			}
			recs[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	return recs, false, nil
}

func (m *Manager) buildRecord(path, category string) (*models.FileRecord, error) {
	hash, err := HashFile(path)
	if err != nil {
		return nil, err
	}
	size, err := FileSize(path)
	if err != nil {
		return nil, err
	}
	m.logger.Debug(fmt.Sprintf("new file detected: %s", path))
	return models.NewFileRecord(hash, path, size, category, m.now()), nil
}

// deduplicate keeps the first record of each hash, in scan order.
func (m *Manager) deduplicate(recs []*models.FileRecord, report *SyncReport) []*models.FileRecord {
	groups := make(map[string][]*models.FileRecord, len(recs))
	var order []string
	for _, rec := range recs {
		if _, seen := groups[rec.FileHash]; !seen {
			order = append(order, rec.FileHash)
		}
		groups[rec.FileHash] = append(groups[rec.FileHash], rec)
	}

	unique := make([]*models.FileRecord, 0, len(order))
	for _, hash := range order {
		group := groups[hash]
		if len(group) > 1 {
			paths := make([]string, len(group))
			for i, rec := range group {
				paths[i] = rec.FilePath
			}
			report.Duplicates[hash] = paths
			m.logger.Warn(fmt.Sprintf("duplicate files with hash %s: %v", hash, paths))
			m.logger.Info(fmt.Sprintf("keeping first occurrence: %s", group[0].FilePath))
		}
		unique = append(unique, group[0])
	}
	return unique
}

// FetchUnsentFile picks a random record of category never sent in guildID.
// It returns nil when every file was already sent there.
func (m *Manager) FetchUnsentFile(guildID, category string) (*models.FileRecord, error) {
	unsent, err := m.store.GetUnsentFiles(guildID, category)
	if err != nil {
		return nil, err
	}
	if len(unsent) == 0 {
		return nil, nil
	}
	m.rmu.Lock()
	i := m.rand.Intn(len(unsent))
	m.rmu.Unlock()
	return unsent[i], nil
}

// FindFile looks a record up by hash. A non-empty category must match.
func (m *Manager) FindFile(hash, category string) (*models.FileRecord, error) {
	rec, err := m.store.GetFileRecordByHash(hash)
	if err != nil {
		return nil, err
	}
	if category != "" && rec.Category != category {
		return nil, fmt.Errorf("%w: %s is in category %s", store.ErrFileNotFound, hash, rec.Category)
	}
	return rec, nil
}

// IncrementSendCount records that the file was sent in guildID.
func (m *Manager) IncrementSendCount(hash, guildID string) (*models.FileRecord, error) {
	return m.store.IncrementSendCount(hash, guildID)
}

// DeleteFileRecord forgets a file without touching the disk.
func (m *Manager) DeleteFileRecord(hash string) error {
	return m.store.DeleteFileRecord(hash)
}

// DeleteOriginalFile removes the record and its files from disk, the
// converted copy included. Files already gone are not an error.
func (m *Manager) DeleteOriginalFile(rec *models.FileRecord) error {
	if err := m.store.DeleteFileRecord(rec.FileHash); err != nil && !errors.Is(err, store.ErrFileNotFound) {
		return err
	}
	paths := []string{rec.FilePath}
	if rec.HasConversion() {
		paths = append(paths, *rec.ConvertedPath)
	}
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ErrNoCompressor is returned by Compress when the manager has none.
var ErrNoCompressor = errors.New("no compressor configured")

// Compress stores a copy of rec under the converted directory that fits the
// size limit and records it.
func (m *Manager) Compress(ctx context.Context, rec *models.FileRecord) (*models.FileRecord, error) {
	if m.opts.Compressor == nil {
		return nil, ErrNoCompressor
	}
	out, err := m.opts.Compressor.Compress(ctx, rec.FilePath, m.opts.MaxFileSize, m.opts.ConvertedDir)
	if err != nil {
		return nil, fmt.Errorf("compress %s: %w", rec.FilePath, err)
	}
	hash, err := HashFile(out)
	if err != nil {
		return nil, err
	}
	size, err := FileSize(out)
	if err != nil {
		return nil, err
	}
	if size > m.opts.MaxFileSize {
		m.logger.Warn(fmt.Sprintf("%s is still %s after compression", out, models.HumanReadableSize(size)))
	}
	return m.store.UpdateConvertedFile(rec.FileHash, out, hash, size)
}

// CompressOversized compresses every record over the size limit that has no
// converted copy yet. Failures are logged and counted, not fatal.
func (m *Manager) CompressOversized(ctx context.Context) (done, failed int, err error) {
	recs, err := m.store.GetFilesLargerThan(m.opts.MaxFileSize)
	if err != nil {
		return 0, 0, err
	}
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return done, failed, err
		}
		if rec.HasConversion() {
			continue
		}
		if _, err := m.Compress(ctx, rec); err != nil {
			m.logger.Error(err.Error(), map[string]interface{}{"hash": rec.FileHash})
			failed++
			continue
		}
		done++
	}
	return done, failed, nil
}
