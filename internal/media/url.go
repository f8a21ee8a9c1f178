package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/audio"
)

// ErrUnsupportedURL means no downloader recognizes the link.
var ErrUnsupportedURL = errors.New("unsupported url")

var (
	videoHostRe  = regexp.MustCompile(`(?i)(?:youtube\.com|youtu\.be)/`)
	driveRe      = regexp.MustCompile(`(?i)drive\.google\.com`)
	driveFileRe  = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	driveQueryRe = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
)

// URLDownloader fetches media from supported link types: video hosting via a
// yt-dlp subprocess and cloud-drive shares over plain HTTP.
type URLDownloader struct {
	runner audio.Runner
	client *http.Client
	log    zerolog.Logger
}

// NewURLDownloader creates a URL downloader.
func NewURLDownloader(runner audio.Runner, timeout time.Duration, log zerolog.Logger) *URLDownloader {
	return &URLDownloader{
		runner: runner,
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("component", "url-download").Logger(),
	}
}

// Supported reports whether any downloader recognizes the link.
func Supported(rawURL string) bool {
	return videoHostRe.MatchString(rawURL) || driveRe.MatchString(rawURL)
}

// Download fetches the media behind the URL into destDir.
func (d *URLDownloader) Download(ctx context.Context, rawURL, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", destDir, err)
	}
	switch {
	case videoHostRe.MatchString(rawURL):
		return d.downloadVideoHost(ctx, rawURL, destDir)
	case driveRe.MatchString(rawURL):
		return d.downloadDrive(ctx, rawURL, destDir)
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedURL, rawURL)
}

func (d *URLDownloader) downloadVideoHost(ctx context.Context, rawURL, destDir string) (string, error) {
	out := filepath.Join(destDir, fmt.Sprintf("url_%d.mp4", time.Now().UnixNano()))
	_, err := d.runner.Run(ctx, "yt-dlp",
		"-f", "mp4/bestaudio/best",
		"--no-playlist",
		"-o", out,
		rawURL,
	)
	if err != nil {
		return "", fmt.Errorf("yt-dlp: %w", err)
	}
	if info, statErr := os.Stat(out); statErr != nil || info.Size() == 0 {
		return "", fmt.Errorf("yt-dlp produced no output for %s", rawURL)
	}
	d.log.Info().Str("url", rawURL).Str("path", out).Msg("video host download complete")
	return out, nil
}

// downloadDrive fetches a shared cloud-drive file. The export endpoint
// answers big files with an interstitial page unless the confirm token is
// supplied, so it is always sent.
func (d *URLDownloader) downloadDrive(ctx context.Context, rawURL, destDir string) (string, error) {
	id := driveFileID(rawURL)
	if id == "" {
		return "", fmt.Errorf("no file id in drive url: %s", rawURL)
	}

	dlURL := fmt.Sprintf("https://drive.google.com/uc?export=download&confirm=t&id=%s", id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dlURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("drive request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("drive download error (status %d)", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/html") {
		return "", fmt.Errorf("drive returned an interstitial page for %s (file may require access)", id)
	}

	out := filepath.Join(destDir, fmt.Sprintf("drive_%s", id))
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", out, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("write %s: %w", out, err)
	}
	d.log.Info().Str("id", id).Str("path", out).Msg("drive download complete")
	return out, nil
}

func driveFileID(rawURL string) string {
	if m := driveFileRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	if m := driveQueryRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}
