// Package store persists tracked file records.
package store

import (
	"errors"

	"github.com/fgp-bot/fgpbot/pkg/models"
)

var (
	// ErrFileNotFound is returned when no record has the requested hash.
	ErrFileNotFound = errors.New("file record not found")
	// ErrDuplicateHash is returned when a record with the same hash exists.
	ErrDuplicateHash = errors.New("file hash already tracked")
)

// Store defines the file tracking operations.
type Store interface {
	InsertFileRecord(rec *models.FileRecord) error
	InsertFileRecords(recs []*models.FileRecord) error
	GetFileRecordByHash(hash string) (*models.FileRecord, error)
	IncrementSendCount(hash, guildID string) (*models.FileRecord, error)
	UpdateConvertedFile(hash, convertedPath, convertedHash string, convertedSize int64) (*models.FileRecord, error)
	ClearConversion(hash string) (*models.FileRecord, error)
	CountOfCategory(category string) (int, error)
	GetUnsentFiles(guildID, category string) ([]*models.FileRecord, error)
	GetFilesLargerThan(size int64) ([]*models.FileRecord, error)
	GetFilesOfCategory(category string) ([]*models.FileRecord, error)
	GetAllFileHashes() ([]string, error)
	GetFilepathsOfCategory(category string) ([]string, error)
	DeleteFileRecord(hash string) error
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
