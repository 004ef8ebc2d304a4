package compress

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
)

const (
	jpegStartQuality = 75
	jpegMinQuality   = 10
	jpegQualityStep  = 10

	pngStartColors = 256
	pngMinColors   = 16
)

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func writeFile(path string, encode func(*os.File) error) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	if err := encode(f); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return fileSize(path)
}

// CompressJPEG re-encodes at falling quality, 75 down in steps of 10, until
// the file fits. The last attempt is kept if none does.
func (c *Compressor) CompressJPEG(path string, target int64, outDir string) (string, error) {
	img, err := decodeImage(path)
	if err != nil {
		return "", err
	}
	out := outputPath(path, outDir, filepath.Ext(path))

	for q := jpegStartQuality; q >= jpegMinQuality; q -= jpegQualityStep {
		size, err := writeFile(out, func(f *os.File) error {
			return jpeg.Encode(f, img, &jpeg.Options{Quality: q})
		})
		if err != nil {
			return "", fmt.Errorf("encode jpeg: %w", err)
		}
		if size <= target {
			c.logger.Debug(fmt.Sprintf("compressed JPEG to %.2fKB with quality %d", float64(size)/1024, q))
			return out, nil
		}
	}

	c.logger.Warn(fmt.Sprintf("could not compress %s to %.2fKB", path, float64(target)/1024))
	return out, nil
}

// CompressPNG converts to a paletted image with 256 colors, halving the
// palette down to 16 until the file fits.
func (c *Compressor) CompressPNG(path string, target int64, outDir string) (string, error) {
	img, err := decodeImage(path)
	if err != nil {
		return "", err
	}
	out := outputPath(path, outDir, filepath.Ext(path))
	enc := png.Encoder{CompressionLevel: png.BestCompression}

	for colors := pngStartColors; colors >= pngMinColors; colors /= 2 {
		paletted := quantize(img, colors)
		size, err := writeFile(out, func(f *os.File) error { return enc.Encode(f, paletted) })
		if err != nil {
			return "", fmt.Errorf("encode png: %w", err)
		}
		if size <= target || colors == pngMinColors {
			c.logger.Debug(fmt.Sprintf("compressed PNG to %.2fKB with %d colors", float64(size)/1024, colors))
			if size > target {
				c.logger.Warn(fmt.Sprintf("could not compress %s to %.2fKB", path, float64(target)/1024))
			}
			return out, nil
		}
	}
	return out, nil
}

// quantize maps img onto its n most frequent colors, bucketed at 5 bits
// per channel, with Floyd-Steinberg dithering.
func quantize(img image.Image, n int) *image.Paletted {
	type bucket struct {
		key        uint32
		count      int
		r, g, b, a uint64
	}
	buckets := map[uint32]*bucket{}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			key := (r>>11)<<15 | (g>>11)<<10 | (b>>11)<<5 | (a >> 11)
			bk := buckets[key]
			if bk == nil {
				bk = &bucket{key: key}
				buckets[key] = bk
			}
			bk.count++
			bk.r += uint64(r)
			bk.g += uint64(g)
			bk.b += uint64(b)
			bk.a += uint64(a)
		}
	}

	sorted := make([]*bucket, 0, len(buckets))
	for _, bk := range buckets {
		sorted = append(sorted, bk)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].key < sorted[j].key
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	pal := make(color.Palette, 0, len(sorted))
	for _, bk := range sorted {
		c := uint64(bk.count)
		pal = append(pal, color.RGBA64{
			R: uint16(bk.r / c), G: uint16(bk.g / c), B: uint16(bk.b / c), A: uint16(bk.a / c),
		})
	}
	if len(pal) == 0 {
		pal = append(pal, color.Transparent)
	}

	dst := image.NewPaletted(bounds, pal)
	draw.FloydSteinberg.Draw(dst, bounds, img, bounds.Min)
	return dst
}
