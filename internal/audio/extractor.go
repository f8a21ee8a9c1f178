package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
)

// ErrNoAudio means the decoder exited cleanly but produced an empty file,
// which happens for media without an audio track.
var ErrNoAudio = errors.New("decode produced no audio")

// Extractor pulls a PCM track out of a media file with ffmpeg.
type Extractor struct {
	runner     Runner
	sampleRate int
	channels   int
	log        zerolog.Logger
}

// NewExtractor creates an audio extractor targeting the given PCM parameters.
func NewExtractor(runner Runner, sampleRate, channels int, log zerolog.Logger) *Extractor {
	return &Extractor{
		runner:     runner,
		sampleRate: sampleRate,
		channels:   channels,
		log:        log.With().Str("component", "extractor").Logger(),
	}
}

// Extract decodes the media file into a mono 16-bit WAV at outPath.
// A zero-exit run is not enough: the output must also be non-empty, since
// ffmpeg happily writes an empty container for video-only inputs.
func (e *Extractor) Extract(ctx context.Context, inputPath, outPath string) error {
	_, err := e.runner.Run(ctx, "ffmpeg",
		"-i", inputPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(e.sampleRate),
		"-ac", strconv.Itoa(e.channels),
		"-y", outPath,
	)
	if err != nil {
		os.Remove(outPath)
		return fmt.Errorf("extract audio: %w", err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return fmt.Errorf("extract audio: %w: %s", ErrNoAudio, outPath)
	}
	if info.Size() == 0 {
		os.Remove(outPath)
		return fmt.Errorf("extract audio: %w: %s", ErrNoAudio, inputPath)
	}

	e.log.Debug().Str("input", inputPath).Str("output", outPath).Int64("bytes", info.Size()).Msg("audio extracted")
	return nil
}
