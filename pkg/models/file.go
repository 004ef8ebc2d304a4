package models

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"
)

// DefaultCategory is the category of records created without one.
const DefaultCategory = "meme"

// GuildUsage tracks how often a file was sent in one guild.
type GuildUsage struct {
	SendCount int        `json:"send_count"`
	LastSent  *time.Time `json:"last_sent"`
}

// UnmarshalJSON accepts the "YYYY-MM-DD HH:MM:SS" form SQLite's
// CURRENT_TIMESTAMP produces as well as RFC 3339.
func (g *GuildUsage) UnmarshalJSON(data []byte) error {
	var raw struct {
		SendCount int     `json:"send_count"`
		LastSent  *string `json:"last_sent"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	g.SendCount = raw.SendCount
	g.LastSent = nil
	if raw.LastSent == nil || *raw.LastSent == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, *raw.LastSent); err == nil {
			g.LastSent = &t
			return nil
		}
	}
	return fmt.Errorf("invalid last_sent %q", *raw.LastSent)
}

// FileRecord is a tracked file on disk and its optional compressed copy.
type FileRecord struct {
	ID            int64                 `json:"id,omitempty"`
	FileHash      string                `json:"file_hash"`
	FilePath      string                `json:"file_path"`
	FileSize      int64                 `json:"file_size"`
	ConvertedPath *string               `json:"converted_path"`
	ConvertedHash *string               `json:"converted_hash"`
	ConvertedSize *int64                `json:"converted_size"`
	Category      string                `json:"category"`
	GuildUsage    map[string]GuildUsage `json:"guild_usage"`
	CreatedAt     time.Time             `json:"created_at"`
}

// NewFileRecord builds a record for a freshly discovered file.
func NewFileRecord(hash, path string, size int64, category string, now time.Time) *FileRecord {
	if category == "" {
		category = DefaultCategory
	}
	return &FileRecord{
		FileHash:   hash,
		FilePath:   path,
		FileSize:   size,
		Category:   category,
		GuildUsage: map[string]GuildUsage{},
		CreatedAt:  now.UTC(),
	}
}

// HasConversion reports whether a compressed copy is recorded.
func (r *FileRecord) HasConversion() bool {
	return r.ConvertedPath != nil && *r.ConvertedPath != ""
}

// WithinSizeLimit reports whether the original can be sent as is.
func (r *FileRecord) WithinSizeLimit(max int64) bool {
	return r.FileSize <= max
}

// SendPath picks the file to upload: the original when it fits, otherwise
// the converted copy when that fits. ok is false when neither does.
func (r *FileRecord) SendPath(max int64) (path string, ok bool) {
	if r.WithinSizeLimit(max) {
		return r.FilePath, true
	}
	if r.HasConversion() && r.ConvertedSize != nil && *r.ConvertedSize <= max {
		return *r.ConvertedPath, true
	}
	return "", false
}

// SendName is the attachment name: the original base name, with the
// extension of the file actually sent.
func (r *FileRecord) SendName(max int64) string {
	name := filepath.Base(r.FilePath)
	path, ok := r.SendPath(max)
	if !ok || path == r.FilePath {
		return name
	}
	stem := name[:len(name)-len(filepath.Ext(name))]
	return stem + filepath.Ext(path)
}

// Usage returns the usage of guild, zero when the file was never sent there.
func (r *FileRecord) Usage(guild string) GuildUsage {
	return r.GuildUsage[guild]
}

// TotalSends sums the send counts of every guild.
func (r *FileRecord) TotalSends() int {
	total := 0
	for _, u := range r.GuildUsage {
		total += u.SendCount
	}
	return total
}
