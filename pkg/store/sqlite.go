package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/fgp-bot/fgpbot/pkg/models"
)

// SQLiteStore keeps file records in the file_tracking table.
type SQLiteStore struct {
	db *sql.DB
}

const recordColumns = `id, file_hash, file_path, file_size, converted_path, converted_hash,
	converted_size, category, guild_usage, created_at`

// NewSQLiteStore opens (creating if needed) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// - _journal_mode=WAL: readers do not block the bot's writes
	// - _busy_timeout=10000: wait up to 10 seconds when the database is locked
	// - _txlock=immediate: take the write lock when a transaction starts
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=10000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer for SQLite to avoid lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS file_tracking (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_hash TEXT(64) NOT NULL UNIQUE,
		file_path TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		converted_path TEXT,
		converted_hash TEXT(64),
		converted_size INTEGER,
		category TEXT NOT NULL,
		guild_usage TEXT DEFAULT '{}',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_file_hash ON file_tracking (file_hash);
	CREATE INDEX IF NOT EXISTS idx_file_category ON file_tracking (category);
	`
	_, err := s.db.Exec(schema)
	return err
}

const insertRecord = `
	INSERT INTO file_tracking (
		file_hash, file_path, file_size, converted_path,
		converted_hash, converted_size, category, guild_usage, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func insertArgs(rec *models.FileRecord) ([]interface{}, error) {
	usage := rec.GuildUsage
	if usage == nil {
		usage = map[string]models.GuildUsage{}
	}
	usageJSON, err := json.Marshal(usage)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal guild_usage: %w", err)
	}
	category := rec.Category
	if category == "" {
		category = models.DefaultCategory
	}
	return []interface{}{
		rec.FileHash, rec.FilePath, rec.FileSize, rec.ConvertedPath,
		rec.ConvertedHash, rec.ConvertedSize, category, string(usageJSON), rec.CreatedAt.UTC(),
	}, nil
}

// InsertFileRecord adds one record. A second record with the same hash
// fails with ErrDuplicateHash.
func (s *SQLiteStore) InsertFileRecord(rec *models.FileRecord) error {
	args, err := insertArgs(rec)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(insertRecord, args...)
	if err != nil {
		return translateErr(err, rec.FileHash)
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// InsertFileRecords adds all records in a single transaction. Nothing is
// inserted if any record fails.
func (s *SQLiteStore) InsertFileRecords(recs []*models.FileRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertRecord)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		args, err := insertArgs(rec)
		if err != nil {
			return err
		}
		res, err := stmt.Exec(args...)
		if err != nil {
			return translateErr(err, rec.FileHash)
		}
		if id, err := res.LastInsertId(); err == nil {
			rec.ID = id
		}
	}

	return tx.Commit()
}

// GetFileRecordByHash returns the record with hash or ErrFileNotFound.
func (s *SQLiteStore) GetFileRecordByHash(hash string) (*models.FileRecord, error) {
	row := s.db.QueryRow(`SELECT `+recordColumns+` FROM file_tracking WHERE file_hash = ?`, hash)
	return scanOne(row)
}

// IncrementSendCount bumps send_count and last_sent of guildID for the record.
func (s *SQLiteStore) IncrementSendCount(hash, guildID string) (*models.FileRecord, error) {
	row := s.db.QueryRow(`
		UPDATE file_tracking SET
			guild_usage = json_set(
				COALESCE(guild_usage, '{}'),
				'$."' || ? || '".send_count',
				COALESCE(json_extract(guild_usage, '$."' || ? || '".send_count'), 0) + 1,
				'$."' || ? || '".last_sent',
				CURRENT_TIMESTAMP
			)
		WHERE file_hash = ?
		RETURNING `+recordColumns, guildID, guildID, guildID, hash)
	return scanOne(row)
}

// UpdateConvertedFile records the compressed copy of a file.
func (s *SQLiteStore) UpdateConvertedFile(hash, convertedPath, convertedHash string, convertedSize int64) (*models.FileRecord, error) {
	row := s.db.QueryRow(`
		UPDATE file_tracking SET
			converted_path = ?,
			converted_hash = ?,
			converted_size = ?
		WHERE file_hash = ?
		RETURNING `+recordColumns, convertedPath, convertedHash, convertedSize, hash)
	return scanOne(row)
}

// ClearConversion forgets the compressed copy of a file.
func (s *SQLiteStore) ClearConversion(hash string) (*models.FileRecord, error) {
	row := s.db.QueryRow(`
		UPDATE file_tracking SET
			converted_path = NULL,
			converted_hash = NULL,
			converted_size = NULL
		WHERE file_hash = ?
		RETURNING `+recordColumns, hash)
	return scanOne(row)
}

// CountOfCategory counts records in category.
func (s *SQLiteStore) CountOfCategory(category string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM file_tracking WHERE category = ?`, category).Scan(&n)
	return n, err
}

// GetUnsentFiles lists records of category never sent in guildID.
func (s *SQLiteStore) GetUnsentFiles(guildID, category string) ([]*models.FileRecord, error) {
	return s.query(`
		SELECT `+recordColumns+`
		FROM file_tracking
		WHERE category = ?
		AND (
			guild_usage IS NULL
			OR json_extract(guild_usage, '$."' || ? || '"') IS NULL
			OR json_extract(guild_usage, '$."' || ? || '".send_count') = 0
		)
		ORDER BY id`, category, guildID, guildID)
}

// GetFilesLargerThan lists records whose original exceeds size bytes.
func (s *SQLiteStore) GetFilesLargerThan(size int64) ([]*models.FileRecord, error) {
	return s.query(`SELECT `+recordColumns+` FROM file_tracking WHERE file_size > ? ORDER BY id`, size)
}

// GetFilesOfCategory lists all records of category, or every record when
// category is empty.
func (s *SQLiteStore) GetFilesOfCategory(category string) ([]*models.FileRecord, error) {
	if category == "" {
		return s.query(`SELECT ` + recordColumns + ` FROM file_tracking ORDER BY id`)
	}
	return s.query(`SELECT `+recordColumns+` FROM file_tracking WHERE category = ? ORDER BY id`, category)
}

// GetAllFileHashes returns the hash of every record.
func (s *SQLiteStore) GetAllFileHashes() ([]string, error) {
	return s.column(`SELECT file_hash FROM file_tracking`)
}

// GetFilepathsOfCategory returns the original path of every record in category.
func (s *SQLiteStore) GetFilepathsOfCategory(category string) ([]string, error) {
	return s.column(`SELECT file_path FROM file_tracking WHERE category = ?`, category)
}

// DeleteFileRecord removes the record with hash.
func (s *SQLiteStore) DeleteFileRecord(hash string) error {
	res, err := s.db.Exec(`DELETE FROM file_tracking WHERE file_hash = ?`, hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrFileNotFound
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(query string, args ...interface{}) ([]*models.FileRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) column(query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOne(row *sql.Row) (*models.FileRecord, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	return rec, err
}

func scanRecord(sc scanner) (*models.FileRecord, error) {
	var (
		rec           models.FileRecord
		convertedPath sql.NullString
		convertedHash sql.NullString
		convertedSize sql.NullInt64
		usageJSON     sql.NullString
		createdAt     interface{}
	)
	if err := sc.Scan(&rec.ID, &rec.FileHash, &rec.FilePath, &rec.FileSize, &convertedPath,
		&convertedHash, &convertedSize, &rec.Category, &usageJSON, &createdAt); err != nil {
		return nil, err
	}

	created, err := parseTimestamp(createdAt)
	if err != nil {
		return nil, fmt.Errorf("created_at of %s: %w", rec.FileHash, err)
	}
	rec.CreatedAt = created

	if convertedPath.Valid {
		rec.ConvertedPath = &convertedPath.String
	}
	if convertedHash.Valid {
		rec.ConvertedHash = &convertedHash.String
	}
	if convertedSize.Valid {
		rec.ConvertedSize = &convertedSize.Int64
	}

	rec.GuildUsage = map[string]models.GuildUsage{}
	if usageJSON.Valid && usageJSON.String != "" {
		if err := json.Unmarshal([]byte(usageJSON.String), &rec.GuildUsage); err != nil {
			return nil, fmt.Errorf("failed to unmarshal guild_usage of %s: %w", rec.FileHash, err)
		}
	}
	return &rec, nil
}

// parseTimestamp accepts created_at as decoded by the driver or as the
// stored text.
func parseTimestamp(v interface{}) (time.Time, error) {
	var text string
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		text = t
	case []byte:
		text = string(t)
	default:
		return time.Time{}, fmt.Errorf("unexpected type %T", v)
	}
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if ts, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", text)
}

func translateErr(err error, hash string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %s", ErrDuplicateHash, hash)
	}
	return err
}
