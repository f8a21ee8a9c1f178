package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/metrics"
)

// ErrTimeout means the relay monitor did not deliver the media within the
// configured wait window.
var ErrTimeout = errors.New("relay wait timed out")

// Copier ships a message into the relay chat. Satisfied by the bot client.
type Copier interface {
	CopyMessage(ctx context.Context, toChatID, fromChatID, messageID int64, caption string) (int64, error)
}

// Downloader pulls a relay-chat message's media through the secondary
// identity. Satisfied by the userbot gateway.
type Downloader interface {
	Download(ctx context.Context, chatID, messageID int64) (string, error)
}

// Correlator runs the send half of the relay protocol: copy the oversized
// message into the relay chat under a correlation tag, try a bounded direct
// fetch by the copy's own id, and fall back to waiting for the monitor to
// complete the pending entry with a local file.
type Correlator struct {
	bot         Copier
	gateway     Downloader
	table       *Table
	relayChatID int64
	waitTimeout time.Duration
	log         zerolog.Logger

	// Direct fetch by copy id is transiently empty right after the copy,
	// so it is retried a few times with a delay before giving up on it.
	directAttempts int
	directDelay    time.Duration
}

// NewCorrelator creates a correlator for the given relay chat. gateway may be
// nil, in which case the direct-fetch step is skipped and only the monitor
// completes correlations.
func NewCorrelator(bot Copier, gateway Downloader, table *Table, relayChatID int64, waitTimeout time.Duration, log zerolog.Logger) *Correlator {
	return &Correlator{
		bot:            bot,
		gateway:        gateway,
		table:          table,
		relayChatID:    relayChatID,
		waitTimeout:    waitTimeout,
		log:            log.With().Str("component", "correlator").Logger(),
		directAttempts: 3,
		directDelay:    5 * time.Second,
	}
}

// Fetch relays the media of (chatID, messageID) and blocks until the media is
// retrieved, the wait window elapses, or the context is canceled. On success
// it returns the local file path.
//
// Retrieval order: a bounded direct fetch of the copy by its own message id
// first, then the monitor's scan-based correlation.
func (c *Correlator) Fetch(ctx context.Context, chatID, messageID int64) (string, error) {
	done := c.table.Register(chatID, messageID)

	tag := FormatTag(chatID, messageID)
	copyID, err := c.bot.CopyMessage(ctx, c.relayChatID, chatID, messageID, tag)
	if err != nil {
		c.table.Fail(messageID, err)
		<-done
		metrics.RelayFetchesTotal.WithLabelValues("copy_failed").Inc()
		return "", fmt.Errorf("relay copy: %w", err)
	}
	c.log.Info().Int64("chat_id", chatID).Int64("message_id", messageID).Int64("relay_msg", copyID).Str("tag", tag).Msg("media relayed")

	if path, ok := c.directFetch(ctx, copyID, messageID); ok {
		metrics.RelayFetchesTotal.WithLabelValues("direct").Inc()
		return path, nil
	}

	timer := time.NewTimer(c.waitTimeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.Err != nil {
			metrics.RelayFetchesTotal.WithLabelValues("failed").Inc()
			return "", fmt.Errorf("relay fetch: %w", out.Err)
		}
		metrics.RelayFetchesTotal.WithLabelValues("ok").Inc()
		return out.Path, nil
	case <-timer.C:
		c.table.Fail(messageID, ErrTimeout)
		metrics.RelayFetchesTotal.WithLabelValues("timeout").Inc()
		return "", fmt.Errorf("relay fetch after %s: %w", c.waitTimeout, ErrTimeout)
	case <-ctx.Done():
		c.table.Fail(messageID, ctx.Err())
		return "", ctx.Err()
	}
}

// directFetch tries to download the relayed copy by its own message id. The
// copy's media is often not yet visible to the secondary identity, so each
// attempt waits first. On success the pending correlation is completed so
// the table entry is cleaned up.
func (c *Correlator) directFetch(ctx context.Context, copyID, messageID int64) (string, bool) {
	if c.gateway == nil {
		return "", false
	}
	for attempt := 1; attempt <= c.directAttempts; attempt++ {
		timer := time.NewTimer(c.directDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", false
		case <-timer.C:
		}

		path, err := c.gateway.Download(ctx, c.relayChatID, copyID)
		if err == nil && path != "" {
			c.log.Info().Int64("relay_msg", copyID).Int("attempt", attempt).Str("path", path).Msg("direct relay fetch succeeded")
			c.table.Complete(messageID, path)
			return path, true
		}
		c.log.Debug().Err(err).Int64("relay_msg", copyID).Int("attempt", attempt).Msg("direct relay fetch not ready")
	}
	return "", false
}
