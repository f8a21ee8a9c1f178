package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Gateway is the secondary-identity surface the monitor polls.
type Gateway interface {
	Messages(ctx context.Context, chatID, minID int64, limit int) ([]MessageRef, error)
	Download(ctx context.Context, chatID, messageID int64) (string, error)
}

// MessageRef is one relay-chat message seen by the gateway.
type MessageRef struct {
	ID       int64
	Caption  string
	HasMedia bool
}

// Monitor polls the relay chat for media copied there by the correlator and
// completes pending correlations with the downloaded file.
type Monitor struct {
	gateway  Gateway
	table    *Table
	chatID   int64
	interval time.Duration
	log      zerolog.Logger

	// High-water mark of handled message ids. Only ever advances, so a scan
	// that overlaps an earlier batch cannot re-download anything.
	lastProcessed int64
}

// NewMonitor creates a relay-chat monitor.
func NewMonitor(gateway Gateway, table *Table, chatID int64, interval time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		gateway:  gateway,
		table:    table,
		chatID:   chatID,
		interval: interval,
		log:      log.With().Str("component", "relay-monitor").Logger(),
	}
}

// LastProcessed returns the current high-water mark.
func (m *Monitor) LastProcessed() int64 { return m.lastProcessed }

// Run polls until the context is canceled. A gateway failure is returned to
// the caller so the supervisor can restart the monitor with backoff.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if err := m.Poll(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll fetches the newest batch above the high-water mark and handles it
// oldest first.
func (m *Monitor) Poll(ctx context.Context) error {
	msgs, err := m.gateway.Messages(ctx, m.chatID, m.lastProcessed, 10)
	if err != nil {
		return fmt.Errorf("list relay messages: %w", err)
	}

	// Gateway returns newest first; walk backwards to preserve arrival order.
	for i := len(msgs) - 1; i >= 0; i-- {
		msg := msgs[i]
		if msg.ID <= m.lastProcessed {
			continue
		}
		m.handle(ctx, msg)
		m.lastProcessed = msg.ID
	}
	return nil
}

func (m *Monitor) handle(ctx context.Context, msg MessageRef) {
	origChat, origMsg, ok := ParseTag(msg.Caption)
	if !ok || !msg.HasMedia {
		return
	}
	log := m.log.With().Int64("relay_msg", msg.ID).Int64("chat_id", origChat).Int64("message_id", origMsg).Logger()

	if !m.table.Awaiting(origMsg) {
		log.Debug().Msg("relay media without a pending correlation, skipping")
		return
	}

	path, err := m.gateway.Download(ctx, m.chatID, msg.ID)
	if err != nil {
		log.Error().Err(err).Msg("relay download failed")
		m.table.Fail(origMsg, fmt.Errorf("relay download: %w", err))
		return
	}

	m.table.Complete(origMsg, path)
	log.Info().Str("path", path).Msg("relay media downloaded")
}
