// Package compress shrinks media files below an upload limit using ffmpeg,
// gifsicle and the standard image codecs.
package compress

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fgp-bot/fgpbot/pkg/logging"
)

// ErrUnsupported is returned for file types that cannot be compressed.
var ErrUnsupported = errors.New("unsupported file type")

// CommandRunner runs an external tool and returns its stdout. On failure the
// error carries the tool's stderr.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", filepath.Base(name), err)
		}
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, msg)
	}
	return stdout.Bytes(), nil
}

// Compressor holds the tool locations and the command runner.
type Compressor struct {
	FFmpeg   string
	FFprobe  string
	Gifsicle string

	run    CommandRunner
	logger *logging.Logger
}

// New returns a compressor using the tools found on PATH.
func New(logger *logging.Logger) *Compressor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Compressor{
		FFmpeg:   "ffmpeg",
		FFprobe:  "ffprobe",
		Gifsicle: "gifsicle",
		run:      ExecRunner,
		logger:   logger.Named("compress"),
	}
}

// WithRunner replaces how external tools are invoked.
func (c *Compressor) WithRunner(run CommandRunner) *Compressor {
	c.run = run
	return c
}

// Tools reports, per external tool, whether it was found on PATH.
func (c *Compressor) Tools() map[string]bool {
	out := make(map[string]bool, 3)
	for _, tool := range []string{c.FFmpeg, c.FFprobe, c.Gifsicle} {
		_, err := exec.LookPath(tool)
		out[filepath.Base(tool)] = err == nil
	}
	return out
}

var videoExts = map[string]bool{
	".mp4": true, ".webm": true, ".mov": true, ".mkv": true, ".avi": true, ".m4v": true,
}

// IsVideo reports whether path has a video extension.
func IsVideo(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// Compress shrinks path to at most target bytes where possible and returns
// the new file, written to outDir (the input's directory when empty) as
// <stem>_compressed.<ext>.
func (c *Compressor) Compress(ctx context.Context, path string, target int64, outDir string) (string, error) {
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".gif":
		return c.CompressGIF(ctx, path, target, outDir)
	case ext == ".jpg" || ext == ".jpeg":
		return c.CompressJPEG(path, target, outDir)
	case ext == ".png":
		return c.CompressPNG(path, target, outDir)
	case IsVideo(path):
		return c.CompressVideo(ctx, VideoOptions{Input: path, TargetSize: target, OutputDir: outDir})
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

// outputPath builds <outDir>/<stem>_compressed<ext>.
func outputPath(input, outDir, ext string) string {
	if outDir == "" {
		outDir = filepath.Dir(input)
	}
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outDir, stem+"_compressed"+ext)
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func mib(n int64) float64 { return float64(n) / (1024 * 1024) }
