package filemanager

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/fgp-bot/fgpbot/pkg/logging"
)

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileSize returns the size of path in bytes.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// ListFiles returns every regular file below dir, sorted. A missing or
// unreadable dir is logged and yields nothing.
func ListFiles(dir string, logger *logging.Logger) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		if errors.Is(err, os.ErrNotExist) || err == nil {
			logger.Warn(fmt.Sprintf("%s is not a directory or does not exist, skipping", dir))
		} else {
			logger.Warn(fmt.Sprintf("cannot access %s, skipping: %v", dir, err))
		}
		return nil, nil
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// CountFiles counts the regular files below dir.
func CountFiles(dir string, logger *logging.Logger) (int, error) {
	files, err := ListFiles(dir, logger)
	return len(files), err
}
