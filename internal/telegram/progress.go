package telegram

import "context"

// Progress reports pipeline status back to whoever asked for the work.
// Implementations must tolerate frequent calls; failures are advisory.
type Progress interface {
	Update(ctx context.Context, text string) error
}

// MessageProgress edits a single status message in place.
type MessageProgress struct {
	client    *Client
	chatID    int64
	messageID int64
}

// NewProgress sends the initial status message and returns a Progress bound
// to it.
func (c *Client) NewProgress(ctx context.Context, chatID int64, text string) (*MessageProgress, error) {
	msg, err := c.SendMessage(ctx, chatID, text)
	if err != nil {
		return nil, err
	}
	return &MessageProgress{client: c, chatID: chatID, messageID: msg.MessageID}, nil
}

func (p *MessageProgress) Update(ctx context.Context, text string) error {
	return p.client.EditMessageText(ctx, p.chatID, p.messageID, text)
}

// MessageID exposes the underlying status message for later cleanup.
func (p *MessageProgress) MessageID() int64 { return p.messageID }

// NopProgress discards all updates. Used for jobs with no chat to report to,
// such as watch-directory ingestion.
type NopProgress struct{}

func (NopProgress) Update(ctx context.Context, text string) error { return nil }
