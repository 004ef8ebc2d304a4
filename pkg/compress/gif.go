package compress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// GIFLevel is one gifsicle setting, from mildest to harshest.
type GIFLevel struct {
	Colors int
	Lossy  int
}

// GIFLevels are tried by binary search: 256..16 colors, lossy 0..100.
var GIFLevels = func() []GIFLevel {
	var levels []GIFLevel
	for _, colors := range []int{256, 128, 64, 32, 16} {
		for lossy := 0; lossy <= 100; lossy += 20 {
			levels = append(levels, GIFLevel{Colors: colors, Lossy: lossy})
		}
	}
	return levels
}()

func (c *Compressor) gifsicle(ctx context.Context, in, out string, level GIFLevel) (int64, error) {
	_, err := c.run(ctx, c.Gifsicle,
		"--optimize",
		fmt.Sprintf("--colors=%d", level.Colors),
		fmt.Sprintf("--lossy=%d", level.Lossy),
		"-i", in,
		"-o", out,
	)
	if err != nil {
		return 0, fmt.Errorf("gifsicle failed: %w", err)
	}
	return fileSize(out)
}

// CompressGIF finds the mildest level that fits target with a binary search
// and writes the result. When no level fits, the first level is used.
func (c *Compressor) CompressGIF(ctx context.Context, path string, target int64, outDir string) (string, error) {
	tmp, err := os.MkdirTemp("", "fgpbot-gif-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)
	trial := filepath.Join(tmp, "trial.gif")

	best := GIFLevels[0]
	low, high := 0, len(GIFLevels)-1
	for low <= high {
		mid := (low + high) / 2
		level := GIFLevels[mid]

		size, err := c.gifsicle(ctx, path, trial, level)
		if err != nil {
			return "", err
		}
		c.logger.Debug(fmt.Sprintf("gif trial %d colors lossy %d: %.2fKB", level.Colors, level.Lossy, float64(size)/1024))

		if size <= target {
			best = level
			high = mid - 1
		} else {
			low = mid + 1
		}
	}

	out := outputPath(path, outDir, filepath.Ext(path))
	size, err := c.gifsicle(ctx, path, out, best)
	if err != nil {
		return "", err
	}
	c.logger.Debug(fmt.Sprintf("compressed GIF to %.2fKB with %d colors and lossy %d",
		float64(size)/1024, best.Colors, best.Lossy))
	return out, nil
}
