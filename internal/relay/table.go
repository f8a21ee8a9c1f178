package relay

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrExpired means a pending correlation sat unanswered past its TTL and was
// evicted by the janitor.
var ErrExpired = errors.New("relay correlation expired")

// Outcome is the terminal state of one pending correlation.
type Outcome struct {
	Path string
	Err  error
}

type pending struct {
	chatID  int64
	created time.Time
	done    chan Outcome
}

// Table holds pending relay correlations keyed by the ORIGINAL message id.
// It is the single source of correlation state shared by the correlator
// (writer) and the monitor (completer). Entries are evicted after the TTL.
type Table struct {
	mu      sync.Mutex
	entries map[int64]*pending
	ttl     time.Duration
	log     zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewTable creates a correlation table with the given entry TTL.
func NewTable(ttl time.Duration, log zerolog.Logger) *Table {
	return &Table{
		entries: make(map[int64]*pending),
		ttl:     ttl,
		log:     log.With().Str("component", "relay-table").Logger(),
		stop:    make(chan struct{}),
	}
}

// Start launches the eviction janitor.
func (t *Table) Start() { go t.janitor() }

// Stop halts the janitor.
func (t *Table) Stop() { t.stopOnce.Do(func() { close(t.stop) }) }

// Register adds a pending correlation and returns the channel its outcome
// will be delivered on. Registering the same message id again supersedes the
// previous waiter, which is failed with ErrExpired.
func (t *Table) Register(chatID, messageID int64) <-chan Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.entries[messageID]; ok {
		old.done <- Outcome{Err: ErrExpired}
	}
	p := &pending{
		chatID:  chatID,
		created: time.Now(),
		done:    make(chan Outcome, 1),
	}
	t.entries[messageID] = p
	return p.done
}

// Awaiting reports whether a correlation for this message id is pending.
func (t *Table) Awaiting(messageID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[messageID]
	return ok
}

// Complete resolves a pending correlation with the downloaded media path.
// Returns false if nothing was waiting on this id.
func (t *Table) Complete(messageID int64, path string) bool {
	return t.resolve(messageID, Outcome{Path: path})
}

// Fail resolves a pending correlation with an error.
func (t *Table) Fail(messageID int64, err error) bool {
	return t.resolve(messageID, Outcome{Err: err})
}

func (t *Table) resolve(messageID int64, out Outcome) bool {
	t.mu.Lock()
	p, ok := t.entries[messageID]
	if ok {
		delete(t.entries, messageID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	p.done <- out
	return true
}

// Pending returns the number of outstanding correlations.
func (t *Table) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Table) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.evictExpired()
		}
	}
}

func (t *Table) evictExpired() {
	cutoff := time.Now().Add(-t.ttl)

	t.mu.Lock()
	var expired []*pending
	var ids []int64
	for id, p := range t.entries {
		if p.created.Before(cutoff) {
			expired = append(expired, p)
			ids = append(ids, id)
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()

	for i, p := range expired {
		p.done <- Outcome{Err: ErrExpired}
		t.log.Warn().Int64("message_id", ids[i]).Int64("chat_id", p.chatID).Msg("pending correlation expired")
	}
}
