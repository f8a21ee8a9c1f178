package transcribe

import (
	"fmt"
	"strings"
)

const (
	wordsPerStep = 35 // average spoken words per synthetic step
	timeStep     = 30 // seconds between synthetic timestamps
)

// Window is the transcription of one fixed-length audio window, ordered by
// its position in the source audio.
type Window struct {
	Index    int
	Text     string
	Segments []Segment
}

// Transcript is the reconstructed whole-recording transcription.
type Transcript struct {
	Plain       string    // raw text, windows joined by blank lines
	Timestamped string    // text re-flowed under a synthetic [HH:MM:SS] axis
	Segments    []Segment // all segments with starts shifted to absolute time
}

// FormatTimestamp renders seconds as [HH:MM:SS].
func FormatTimestamp(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("[%02d:%02d:%02d]", s/3600, (s%3600)/60, s%60)
}

// Reconstruct merges per-window transcriptions into one transcript.
//
// Segment times are window-relative; each window's segments are shifted by
// index*windowSeconds so starts stay non-decreasing across the whole
// recording. The timestamped text does not use those segment times directly:
// the text is re-flowed into groups of about 35 words and each group gets a
// synthetic timestamp 30 seconds after the previous one. A window that came
// back without segments contributes its whole text under a single timestamp
// and still advances the axis one step.
func Reconstruct(windows []Window, windowSeconds float64) *Transcript {
	var plain, stamped strings.Builder
	var all []Segment
	current := 0.0

	for _, win := range windows {
		offset := float64(win.Index) * windowSeconds

		if win.Text != "" {
			plain.WriteString(win.Text)
			plain.WriteString("\n\n")
		}

		if len(win.Segments) > 0 {
			texts := make([]string, 0, len(win.Segments))
			for _, seg := range win.Segments {
				all = append(all, Segment{
					Text:  seg.Text,
					Start: seg.Start + offset,
					End:   seg.End + offset,
				})
				texts = append(texts, seg.Text)
			}

			words := strings.Fields(strings.Join(texts, " "))
			for i := 0; i < len(words); i += wordsPerStep {
				end := i + wordsPerStep
				if end > len(words) {
					end = len(words)
				}
				group := strings.Join(words[i:end], " ")
				stamped.WriteString(FormatTimestamp(current))
				stamped.WriteString(" ")
				stamped.WriteString(group)
				stamped.WriteString("\n\n")
				current += timeStep
			}
			continue
		}

		if text := strings.TrimSpace(win.Text); text != "" {
			stamped.WriteString(FormatTimestamp(current))
			stamped.WriteString(" ")
			stamped.WriteString(text)
			stamped.WriteString("\n\n")
			current += timeStep
		}
	}

	return &Transcript{
		Plain:       plain.String(),
		Timestamped: stamped.String(),
		Segments:    all,
	}
}
