package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/telegram"
)

// ErrUnsupportedSource means the request carries nothing the resolver knows
// how to fetch.
var ErrUnsupportedSource = errors.New("unsupported media source")

// Source describes where a piece of media lives. Exactly one acquisition
// path is chosen: local path, URL, direct bot download, or relay.
type Source struct {
	ChatID    int64
	MessageID int64
	FileID    string
	FileSize  int64
	URL       string
	LocalPath string
}

// BotDownloader is the bot-channel download surface.
type BotDownloader interface {
	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	DownloadFile(ctx context.Context, f *telegram.File, destDir string) (string, error)
}

// RelayFetcher pulls oversized media through the secondary identity.
type RelayFetcher interface {
	Fetch(ctx context.Context, chatID, messageID int64) (string, error)
}

// Resolver turns a Source into a local media file.
type Resolver struct {
	bot       BotDownloader
	relay     RelayFetcher // nil when the relay path is not configured
	urls      *URLDownloader
	sizeLimit int64
	workDir   string
	log       zerolog.Logger
}

// NewResolver creates a media resolver. relay may be nil.
func NewResolver(bot BotDownloader, relay RelayFetcher, urls *URLDownloader, sizeLimit int64, workDir string, log zerolog.Logger) *Resolver {
	return &Resolver{
		bot:       bot,
		relay:     relay,
		urls:      urls,
		sizeLimit: sizeLimit,
		workDir:   workDir,
		log:       log.With().Str("component", "resolver").Logger(),
	}
}

// Resolve fetches the media and returns its local path.
//
// Files over the bot channel's download limit cannot be fetched directly;
// they go through the relay. The declared FileSize decides the route before
// any download is attempted.
func (r *Resolver) Resolve(ctx context.Context, src Source) (string, error) {
	switch {
	case src.LocalPath != "":
		return src.LocalPath, nil

	case src.URL != "":
		path, err := r.urls.Download(ctx, src.URL, r.workDir)
		if err != nil {
			return "", fmt.Errorf("url download: %w", err)
		}
		return path, nil

	case src.FileID != "" && src.FileSize <= r.sizeLimit:
		f, err := r.bot.GetFile(ctx, src.FileID)
		if err != nil {
			return "", fmt.Errorf("resolve file id: %w", err)
		}
		path, err := r.bot.DownloadFile(ctx, f, r.workDir)
		if err != nil {
			return "", fmt.Errorf("direct download: %w", err)
		}
		return path, nil

	case src.FileID != "":
		if r.relay == nil {
			return "", fmt.Errorf("file of %d bytes exceeds the direct limit and no relay is configured", src.FileSize)
		}
		r.log.Info().Int64("size", src.FileSize).Int64("limit", r.sizeLimit).Msg("file over direct limit, using relay")
		path, err := r.relay.Fetch(ctx, src.ChatID, src.MessageID)
		if err != nil {
			return "", fmt.Errorf("relay fetch: %w", err)
		}
		return path, nil
	}

	return "", ErrUnsupportedSource
}
