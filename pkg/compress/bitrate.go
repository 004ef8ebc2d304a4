package compress

const (
	standardAudioBps = 128_000
	minAudioBps      = 8_000
	minVideoBps      = 10_000

	// MinVideoKbps and MinAudioKbps floor the encoder settings.
	MinVideoKbps = 10
	MinAudioKbps = 8
)

// AllocateBitrates splits the bitrate that makes a file of targetSize bytes
// last duration seconds between video and audio, in bits per second.
//
// Audio gets 128 kbps when there is room for it plus the video minimum. With
// less, video is pinned to its minimum and audio takes the rest. Below both
// minimums the budget is split in proportion to them.
func AllocateBitrates(targetSize int64, duration float64) (videoBps, audioBps float64) {
	total := float64(targetSize*8) / duration

	switch {
	case total >= minVideoBps+standardAudioBps:
		audioBps = standardAudioBps
		videoBps = total - audioBps
	case total >= minVideoBps+minAudioBps:
		videoBps = minVideoBps
		audioBps = total - videoBps
	default:
		minTotal := float64(minVideoBps + minAudioBps)
		videoBps = total * minVideoBps / minTotal
		audioBps = total * minAudioBps / minTotal
	}

	if videoBps < 0 {
		videoBps = 0
	}
	if audioBps < 0 {
		audioBps = 0
	}
	return videoBps, audioBps
}
