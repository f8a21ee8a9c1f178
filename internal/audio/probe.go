package audio

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Probe returns the media duration in seconds using ffprobe.
func Probe(ctx context.Context, runner Runner, path string) (float64, error) {
	out, err := runner.Run(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("probe duration: parse %q: %w", strings.TrimSpace(string(out)), err)
	}
	return dur, nil
}
