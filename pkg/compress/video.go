package compress

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// targetRatio leaves headroom under the limit for container overhead.
const targetRatio = 0.95

var (
	webmVideoCodecs = set("libvpx-vp9", "vp9", "libaom-av1", "av1", "vp8")
	webmAudioCodecs = set("libopus", "opus", "vorbis")
	mp4VideoCodecs  = set("libx264", "libx265", "h264", "h265")
)

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// VideoOptions describes a video compression request. Empty codec and
// container fields are derived: libx264/aac in mp4 by default, webm when a
// VP9/AV1 codec is asked for.
type VideoOptions struct {
	Input      string
	TargetSize int64
	OutputDir  string
	Container  string
	VideoCodec string
	AudioCodec string
}

// VideoPlan is a fully resolved two-pass encode.
type VideoPlan struct {
	Input      string
	Output     string
	Container  string
	VideoCodec string
	AudioCodec string
	PixFmt     string
	VideoKbps  int
	AudioKbps  int
	// TargetSize is the reduced size the bitrates were computed for.
	TargetSize int64
	Duration   float64
	// Adjustments lists codec substitutions made to fit the container.
	Adjustments []string
}

// PlanVideo resolves codecs, container and bitrates for opts.
func PlanVideo(opts VideoOptions, duration float64) (*VideoPlan, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("invalid duration %.3fs for %s", duration, opts.Input)
	}
	if opts.TargetSize <= 0 {
		return nil, fmt.Errorf("invalid target size %d", opts.TargetSize)
	}

	target := int64(float64(opts.TargetSize) * targetRatio)
	videoBps, audioBps := AllocateBitrates(target, duration)

	p := &VideoPlan{
		Input:      opts.Input,
		VideoCodec: opts.VideoCodec,
		AudioCodec: opts.AudioCodec,
		VideoKbps:  max(int(videoBps/1000), MinVideoKbps),
		AudioKbps:  max(int(audioBps/1000), MinAudioKbps),
		TargetSize: target,
		Duration:   duration,
	}
	if p.VideoCodec == "" {
		p.VideoCodec = "libx264"
	}
	if p.AudioCodec == "" {
		p.AudioCodec = "aac"
	}

	switch {
	case opts.Container != "":
		p.Container = strings.ToLower(opts.Container)
	case webmVideoCodecs[p.VideoCodec]:
		p.Container = "webm"
	default:
		p.Container = "mp4"
	}

	switch p.Container {
	case "webm":
		if !webmVideoCodecs[p.VideoCodec] {
			p.adjust("video", p.VideoCodec, "libvpx-vp9")
			p.VideoCodec = "libvpx-vp9"
		}
		if !webmAudioCodecs[p.AudioCodec] {
			p.adjust("audio", p.AudioCodec, "libopus")
			p.AudioCodec = "libopus"
		}
	case "mp4":
		// VP9/AV1 and Opus are kept in mp4 only when asked for explicitly.
		explicitWebmVideo := webmVideoCodecs[p.VideoCodec] && opts.VideoCodec != ""
		if !mp4VideoCodecs[p.VideoCodec] && !explicitWebmVideo {
			p.adjust("video", p.VideoCodec, "libx264")
			p.VideoCodec = "libx264"
		}
		explicitWebmAudio := webmAudioCodecs[p.AudioCodec] && opts.AudioCodec != ""
		if p.AudioCodec != "aac" && !explicitWebmAudio {
			p.adjust("audio", p.AudioCodec, "aac")
			p.AudioCodec = "aac"
		}
	}

	if p.VideoCodec == "libx264" || p.VideoCodec == "libvpx-vp9" {
		p.PixFmt = "yuv420p"
	}
	p.Output = outputPath(opts.Input, opts.OutputDir, "."+p.Container)
	return p, nil
}

func (p *VideoPlan) adjust(kind, from, to string) {
	p.Adjustments = append(p.Adjustments,
		fmt.Sprintf("%s container: %s codec %s replaced by %s", p.Container, kind, from, to))
}

// FirstPassArgs analyses the input without audio and discards the output.
func (p *VideoPlan) FirstPassArgs(passLog, nullDevice string) []string {
	args := []string{
		"-y",
		"-i", p.Input,
		"-c:v", p.VideoCodec,
		"-b:v", fmt.Sprintf("%dk", p.VideoKbps),
		"-pass", "1",
		"-an",
		"-fps_mode", "cfr",
		"-preset", "medium",
	}
	if p.PixFmt != "" {
		args = append(args, "-pix_fmt", p.PixFmt)
	}
	return append(args, "-passlogfile", passLog, "-f", "null", nullDevice)
}

// SecondPassArgs writes the final file.
func (p *VideoPlan) SecondPassArgs(passLog string) []string {
	args := []string{
		"-y",
		"-i", p.Input,
		"-c:v", p.VideoCodec,
		"-b:v", fmt.Sprintf("%dk", p.VideoKbps),
		"-pass", "2",
		"-c:a", p.AudioCodec,
		"-b:a", fmt.Sprintf("%dk", p.AudioKbps),
		"-fps_mode", "cfr",
		"-preset", "medium",
	}
	if p.PixFmt != "" {
		args = append(args, "-pix_fmt", p.PixFmt)
	}
	return append(args, "-passlogfile", passLog, "-f", p.Container, p.Output)
}

func nullDevice() string {
	if runtime.GOOS == "windows" {
		return "NUL"
	}
	return os.DevNull
}

// ProbeDuration asks ffprobe for the duration of path in seconds.
func (c *Compressor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := c.run(ctx, c.FFprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe duration of %s: %w", path, err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q", path, strings.TrimSpace(string(out)))
	}
	return d, nil
}

// CompressVideo runs a two-pass encode aiming just under opts.TargetSize.
func (c *Compressor) CompressVideo(ctx context.Context, opts VideoOptions) (string, error) {
	duration, err := c.ProbeDuration(ctx, opts.Input)
	if err != nil {
		return "", err
	}
	plan, err := PlanVideo(opts, duration)
	if err != nil {
		return "", err
	}
	for _, adj := range plan.Adjustments {
		c.logger.Warn(adj)
	}
	c.logger.Debug(fmt.Sprintf("video plan for %s: %s/%s %s, video=%dkbps audio=%dkbps",
		filepath.Base(plan.Input), plan.Container, plan.VideoCodec, plan.AudioCodec, plan.VideoKbps, plan.AudioKbps))

	tmp, err := os.MkdirTemp("", "fgpbot-2pass-")
	if err != nil {
		return "", fmt.Errorf("create pass log directory: %w", err)
	}
	defer os.RemoveAll(tmp)
	passLog := filepath.Join(tmp, filepath.Base(plan.Input)+"_ffmpeg2pass")

	if _, err := c.run(ctx, c.FFmpeg, plan.FirstPassArgs(passLog, nullDevice())...); err != nil {
		return "", fmt.Errorf("first pass failed for %s: %w", plan.Input, err)
	}
	if _, err := c.run(ctx, c.FFmpeg, plan.SecondPassArgs(passLog)...); err != nil {
		if rmErr := os.Remove(plan.Output); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			c.logger.Warn(fmt.Sprintf("remove partial output %s: %v", plan.Output, rmErr))
		}
		return "", fmt.Errorf("second pass failed for %s: %w", plan.Input, err)
	}

	size, err := fileSize(plan.Output)
	if err != nil {
		return "", fmt.Errorf("stat compressed output: %w", err)
	}
	c.logger.Info(fmt.Sprintf("compressed %s -> %s (%.2fMB, limit %.2fMB)",
		filepath.Base(plan.Input), filepath.Base(plan.Output), mib(size), mib(opts.TargetSize)))
	if size > opts.TargetSize {
		c.logger.Warn(fmt.Sprintf("compressed file %s (%.2fMB) exceeds target %.2fMB",
			filepath.Base(plan.Output), mib(size), mib(opts.TargetSize)))
	}
	return plan.Output, nil
}
