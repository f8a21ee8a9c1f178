package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/llm"
)

type fakeCascade struct {
	systems []string
	users   []string
	handle  func(call int, msgs []llm.Message) (*llm.Result, error)
}

func (f *fakeCascade) Complete(ctx context.Context, msgs []llm.Message, opts llm.Options) (*llm.Result, error) {
	f.systems = append(f.systems, msgs[0].Content)
	f.users = append(f.users, msgs[1].Content)
	if f.handle != nil {
		return f.handle(len(f.users), msgs)
	}
	return &llm.Result{Model: "m", Content: "summary"}, nil
}

func TestSummarizeShortSingleCall(t *testing.T) {
	fc := &fakeCascade{}
	s := NewSummarizer(fc, zerolog.Nop())

	out, err := s.Summarize(context.Background(), "short transcript", Brief)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "summary" {
		t.Errorf("out = %q", out)
	}
	if len(fc.users) != 1 {
		t.Fatalf("calls = %d, want 1", len(fc.users))
	}
	if fc.systems[0] != briefPrompt {
		t.Errorf("system prompt = %q", fc.systems[0])
	}
}

func TestSummarizeLongMapReduce(t *testing.T) {
	fc := &fakeCascade{handle: func(call int, msgs []llm.Message) (*llm.Result, error) {
		return &llm.Result{Model: "m", Content: "part"}, nil
	}}
	s := NewSummarizer(fc, zerolog.Nop())
	s.chunkSize = 15000

	// 40,000 characters: three chunks, so three partial calls plus one merge.
	transcript := strings.Repeat("x", 40000)
	_, err := s.Summarize(context.Background(), transcript, Detailed)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(fc.users) != 4 {
		t.Fatalf("calls = %d, want 3 partial + 1 merge", len(fc.users))
	}
	for i := 0; i < 3; i++ {
		if fc.systems[i] != partialPrompt {
			t.Errorf("call %d system = %q, want partial prompt", i, fc.systems[i])
		}
	}
	if !strings.Contains(fc.systems[3], detailedPrompt) {
		t.Errorf("merge system = %q, want detailed prompt included", fc.systems[3])
	}
	if !strings.Contains(fc.users[3], "part\n\n---\n\npart") {
		t.Errorf("merge input should join partials: %q", fc.users[3])
	}
}

func TestSummarizePartialFailureIsError(t *testing.T) {
	fc := &fakeCascade{handle: func(call int, msgs []llm.Message) (*llm.Result, error) {
		if call == 2 {
			return nil, errors.New("model down")
		}
		return &llm.Result{Model: "m", Content: "part"}, nil
	}}
	s := NewSummarizer(fc, zerolog.Nop())
	s.chunkSize = 10

	_, err := s.Summarize(context.Background(), strings.Repeat("y", 30), Brief)
	if err == nil {
		t.Fatal("expected error when a partial summary fails")
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := NewSummarizer(&fakeCascade{}, zerolog.Nop())
	if _, err := s.Summarize(context.Background(), "   ", Brief); err == nil {
		t.Fatal("expected error for empty transcript")
	}
}
