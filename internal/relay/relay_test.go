package relay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFormatTag(t *testing.T) {
	if got := FormatTag(111, 222); got != "#user_111_222" {
		t.Errorf("FormatTag = %q", got)
	}
	if got := FormatTag(-100123, 5); got != "#user_-100123_5" {
		t.Errorf("FormatTag = %q", got)
	}
}

func TestParseTag(t *testing.T) {
	cases := []struct {
		caption string
		chat    int64
		msg     int64
		ok      bool
	}{
		{"#user_111_222", 111, 222, true},
		{"#user_-100123_5", -100123, 5, true},
		{"#user_111_222 extra words", 111, 222, true},
		{"  #user_7_8", 7, 8, true},
		{"#user_111", 0, 0, false},
		{"#user_abc_def", 0, 0, false},
		{"no tag here", 0, 0, false},
		{"#pyro_download_1", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, c := range cases {
		chat, msg, ok := ParseTag(c.caption)
		if ok != c.ok || chat != c.chat || msg != c.msg {
			t.Errorf("ParseTag(%q) = (%d, %d, %v), want (%d, %d, %v)", c.caption, chat, msg, ok, c.chat, c.msg, c.ok)
		}
	}
}

func TestTableCompleteDeliversPath(t *testing.T) {
	tab := NewTable(time.Hour, zerolog.Nop())
	done := tab.Register(111, 222)

	if !tab.Awaiting(222) {
		t.Fatal("Awaiting(222) = false after Register")
	}
	if !tab.Complete(222, "/tmp/file.mp4") {
		t.Fatal("Complete returned false")
	}
	out := <-done
	if out.Err != nil || out.Path != "/tmp/file.mp4" {
		t.Errorf("outcome = %+v", out)
	}
	if tab.Awaiting(222) || tab.Pending() != 0 {
		t.Error("entry should be removed after completion")
	}
}

func TestTableCompleteUnknownID(t *testing.T) {
	tab := NewTable(time.Hour, zerolog.Nop())
	if tab.Complete(999, "/x") {
		t.Error("Complete of unknown id should return false")
	}
}

func TestTableEvictsExpired(t *testing.T) {
	tab := NewTable(time.Nanosecond, zerolog.Nop())
	done := tab.Register(1, 2)
	time.Sleep(time.Millisecond)
	tab.evictExpired()

	select {
	case out := <-done:
		if !errors.Is(out.Err, ErrExpired) {
			t.Errorf("outcome err = %v, want ErrExpired", out.Err)
		}
	default:
		t.Fatal("expired entry did not resolve its waiter")
	}
	if tab.Pending() != 0 {
		t.Error("expired entry not removed")
	}
}

// fakeGateway serves scripted relay-chat batches and records downloads.
type fakeGateway struct {
	batches    [][]MessageRef
	calls      int
	minIDs     []int64
	downloads  []int64
	downloadFn func(messageID int64) (string, error)
}

func (g *fakeGateway) Messages(ctx context.Context, chatID, minID int64, limit int) ([]MessageRef, error) {
	g.minIDs = append(g.minIDs, minID)
	if g.calls >= len(g.batches) {
		return nil, nil
	}
	b := g.batches[g.calls]
	g.calls++
	return b, nil
}

func (g *fakeGateway) Download(ctx context.Context, chatID, messageID int64) (string, error) {
	g.downloads = append(g.downloads, messageID)
	if g.downloadFn != nil {
		return g.downloadFn(messageID)
	}
	return fmt.Sprintf("/videos/%d.mp4", messageID), nil
}

func TestMonitorCompletesTaggedMedia(t *testing.T) {
	tab := NewTable(time.Hour, zerolog.Nop())
	done := tab.Register(111, 222)

	gw := &fakeGateway{batches: [][]MessageRef{
		// newest first, as the gateway reports them
		{
			{ID: 902, Caption: "#user_111_222", HasMedia: true},
			{ID: 901, Caption: "unrelated", HasMedia: true},
		},
	}}
	m := NewMonitor(gw, tab, -500, time.Second, zerolog.Nop())

	if err := m.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	out := <-done
	if out.Err != nil {
		t.Fatalf("outcome err = %v", out.Err)
	}
	if out.Path != "/videos/902.mp4" {
		t.Errorf("path = %q", out.Path)
	}
	// The correlation key is the ORIGINAL message id, the download target is
	// the relay copy.
	if len(gw.downloads) != 1 || gw.downloads[0] != 902 {
		t.Errorf("downloads = %v, want [902]", gw.downloads)
	}
	if m.LastProcessed() != 902 {
		t.Errorf("lastProcessed = %d, want 902", m.LastProcessed())
	}
}

func TestMonitorHighWaterMarkNeverRegresses(t *testing.T) {
	tab := NewTable(time.Hour, zerolog.Nop())
	tab.Register(1, 10)

	gw := &fakeGateway{batches: [][]MessageRef{
		{{ID: 50, Caption: "#user_1_10", HasMedia: true}},
		// Second batch replays an older overlap plus nothing new.
		{{ID: 50, Caption: "#user_1_10", HasMedia: true}, {ID: 49, Caption: "#user_1_10", HasMedia: true}},
	}}
	m := NewMonitor(gw, tab, -500, time.Second, zerolog.Nop())

	m.Poll(context.Background())
	m.Poll(context.Background())

	if len(gw.downloads) != 1 {
		t.Errorf("downloads = %v, want exactly one", gw.downloads)
	}
	if m.LastProcessed() != 50 {
		t.Errorf("lastProcessed = %d, want 50", m.LastProcessed())
	}
	if gw.minIDs[1] != 50 {
		t.Errorf("second poll min_id = %d, want 50", gw.minIDs[1])
	}
}

func TestMonitorSkipsMediaWithoutWaiter(t *testing.T) {
	tab := NewTable(time.Hour, zerolog.Nop())
	gw := &fakeGateway{batches: [][]MessageRef{
		{{ID: 60, Caption: "#user_3_4", HasMedia: true}},
	}}
	m := NewMonitor(gw, tab, -500, time.Second, zerolog.Nop())

	m.Poll(context.Background())
	if len(gw.downloads) != 0 {
		t.Errorf("downloads = %v, want none without a pending correlation", gw.downloads)
	}
	if m.LastProcessed() != 60 {
		t.Errorf("lastProcessed = %d, want 60 (mark still advances)", m.LastProcessed())
	}
}

func TestMonitorDownloadFailureFailsCorrelation(t *testing.T) {
	tab := NewTable(time.Hour, zerolog.Nop())
	done := tab.Register(1, 2)
	gw := &fakeGateway{
		batches:    [][]MessageRef{{{ID: 70, Caption: "#user_1_2", HasMedia: true}}},
		downloadFn: func(int64) (string, error) { return "", errors.New("flood wait") },
	}
	m := NewMonitor(gw, tab, -500, time.Second, zerolog.Nop())

	m.Poll(context.Background())
	out := <-done
	if out.Err == nil {
		t.Fatal("expected failed correlation after download error")
	}
}
