package audio

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
)

// Segment is one fixed-length window of the extracted audio.
type Segment struct {
	Index  int
	Path   string
	Offset float64 // start offset in seconds from the beginning of the audio
}

// Segmenter slices a WAV file into fixed-length windows.
type Segmenter struct {
	runner         Runner
	segmentSeconds int
	log            zerolog.Logger
}

// NewSegmenter creates a segmenter with the given window length.
func NewSegmenter(runner Runner, segmentSeconds int, log zerolog.Logger) *Segmenter {
	return &Segmenter{
		runner:         runner,
		segmentSeconds: segmentSeconds,
		log:            log.With().Str("component", "segmenter").Logger(),
	}
}

// Split cuts wavPath into consecutive windows of the configured length and
// writes them into outDir. Windows are zero-indexed; the last one may be
// shorter. Audio at or under one window length is passed through as a single
// segment without recoding.
func (s *Segmenter) Split(ctx context.Context, wavPath, outDir string) ([]Segment, error) {
	duration, err := Probe(ctx, s.runner, wavPath)
	if err != nil {
		return nil, err
	}

	segLen := float64(s.segmentSeconds)
	if duration <= segLen {
		return []Segment{{Index: 0, Path: wavPath, Offset: 0}}, nil
	}

	count := int(math.Ceil(duration / segLen))
	segments := make([]Segment, 0, count)
	for i := 0; i < count; i++ {
		offset := float64(i) * segLen
		outPath := filepath.Join(outDir, fmt.Sprintf("segment_%03d.wav", i))
		_, err := s.runner.Run(ctx, "ffmpeg",
			"-ss", strconv.FormatFloat(offset, 'f', -1, 64),
			"-t", strconv.Itoa(s.segmentSeconds),
			"-i", wavPath,
			"-acodec", "copy",
			"-y", outPath,
		)
		if err != nil {
			return nil, fmt.Errorf("split segment %d: %w", i, err)
		}
		segments = append(segments, Segment{Index: i, Path: outPath, Offset: offset})
	}

	s.log.Debug().Float64("duration", duration).Int("segments", count).Msg("audio segmented")
	return segments, nil
}
