package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/telegram"
)

type fakeBot struct {
	getFileCalls  int
	downloadCalls int
}

func (f *fakeBot) GetFile(ctx context.Context, fileID string) (*telegram.File, error) {
	f.getFileCalls++
	return &telegram.File{FileID: fileID, FilePath: "videos/x.mp4"}, nil
}

func (f *fakeBot) DownloadFile(ctx context.Context, file *telegram.File, destDir string) (string, error) {
	f.downloadCalls++
	return destDir + "/x.mp4", nil
}

type fakeRelay struct {
	calls     int
	chatID    int64
	messageID int64
}

func (f *fakeRelay) Fetch(ctx context.Context, chatID, messageID int64) (string, error) {
	f.calls++
	f.chatID = chatID
	f.messageID = messageID
	return "/videos/relayed.mp4", nil
}

func newTestResolver(bot *fakeBot, rel RelayFetcher) *Resolver {
	return NewResolver(bot, rel, nil, 19*1024*1024, "/work", zerolog.Nop())
}

func TestResolveLocalPath(t *testing.T) {
	r := newTestResolver(&fakeBot{}, nil)
	path, err := r.Resolve(context.Background(), Source{LocalPath: "/drop/talk.mp4"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != "/drop/talk.mp4" {
		t.Errorf("path = %q", path)
	}
}

func TestResolveDirectUnderLimit(t *testing.T) {
	bot := &fakeBot{}
	r := newTestResolver(bot, nil)
	path, err := r.Resolve(context.Background(), Source{
		ChatID: 1, MessageID: 2, FileID: "abc", FileSize: 5 * 1024 * 1024,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if bot.getFileCalls != 1 || bot.downloadCalls != 1 {
		t.Errorf("bot calls = %d/%d, want 1/1", bot.getFileCalls, bot.downloadCalls)
	}
	if path != "/work/x.mp4" {
		t.Errorf("path = %q", path)
	}
}

func TestResolveOversizedGoesThroughRelay(t *testing.T) {
	bot := &fakeBot{}
	rel := &fakeRelay{}
	r := newTestResolver(bot, rel)

	path, err := r.Resolve(context.Background(), Source{
		ChatID: 111, MessageID: 222, FileID: "big", FileSize: 50 * 1024 * 1024,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if bot.getFileCalls != 0 {
		t.Error("oversized file must not hit the direct path")
	}
	if rel.calls != 1 || rel.chatID != 111 || rel.messageID != 222 {
		t.Errorf("relay called with %d/%d", rel.chatID, rel.messageID)
	}
	if path != "/videos/relayed.mp4" {
		t.Errorf("path = %q", path)
	}
}

func TestResolveOversizedWithoutRelay(t *testing.T) {
	r := newTestResolver(&fakeBot{}, nil)
	_, err := r.Resolve(context.Background(), Source{
		FileID: "big", FileSize: 50 * 1024 * 1024,
	})
	if err == nil {
		t.Fatal("expected error when relay is not configured")
	}
}

func TestResolveEmptySource(t *testing.T) {
	r := newTestResolver(&fakeBot{}, nil)
	_, err := r.Resolve(context.Background(), Source{})
	if !errors.Is(err, ErrUnsupportedSource) {
		t.Fatalf("err = %v, want ErrUnsupportedSource", err)
	}
}

func TestSupported(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/watch?v=abc123", true},
		{"https://youtu.be/abc123", true},
		{"https://drive.google.com/file/d/XYZ/view", true},
		{"https://example.com/video.mp4", false},
	}
	for _, c := range cases {
		if got := Supported(c.url); got != c.want {
			t.Errorf("Supported(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestDriveFileID(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://drive.google.com/file/d/AbC-123_x/view?usp=sharing", "AbC-123_x"},
		{"https://drive.google.com/uc?id=QqQ&export=download", "QqQ"},
		{"https://drive.google.com/drive/folders/nope", ""},
	}
	for _, c := range cases {
		if got := driveFileID(c.url); got != c.want {
			t.Errorf("driveFileID(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}

func TestURLDownloaderUnsupported(t *testing.T) {
	d := NewURLDownloader(nil, time.Second, zerolog.Nop())
	_, err := d.Download(context.Background(), "https://example.com/x.mp4", t.TempDir())
	if !errors.Is(err, ErrUnsupportedURL) {
		t.Fatalf("err = %v, want ErrUnsupportedURL", err)
	}
}
