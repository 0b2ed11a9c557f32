package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type fakeChat struct {
	gotInput string
	reply    string
	err      error
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	f.gotInput = req.Messages[len(req.Messages)-1].Content
	return openai.ChatCompletionResponse{
		Model: req.Model,
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: f.reply}},
		},
		Usage: openai.Usage{TotalTokens: 120, PromptTokens: 100, CompletionTokens: 20},
	}, nil
}

func newTestSummarizer(chat chatClient) *Summarizer {
	return &Summarizer{client: chat, model: "gpt-3.5-turbo", maxInputChars: 100, maxWords: 5}
}

func TestSummarizeEmpty(t *testing.T) {
	s := newTestSummarizer(&fakeChat{})
	if _, err := s.Summarize(context.Background(), "   \n"); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
}

func TestSummarizeShortInput(t *testing.T) {
	chat := &fakeChat{reply: "customer wants a demo"}
	s := newTestSummarizer(chat)

	res, err := s.Summarize(context.Background(), "agent: hi\nuser: I want a demo")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.Truncated {
		t.Fatalf("short input should not be truncated")
	}
	if res.Text != "customer wants a demo" || res.WordCount != 4 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.TotalTokens != 120 || res.OutputTokens != 20 {
		t.Fatalf("usage not carried through: %+v", res)
	}
}

func TestSummarizeTruncatesLongInput(t *testing.T) {
	chat := &fakeChat{reply: "long call"}
	s := newTestSummarizer(chat)

	long := strings.Repeat("word ", 100) // 500 chars, budget is 100
	res, err := s.Summarize(context.Background(), long)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !res.Truncated {
		t.Fatalf("expected Truncated flag")
	}
	if len(chat.gotInput) > 100 {
		t.Fatalf("model saw %d chars, budget is 100", len(chat.gotInput))
	}
	if strings.HasSuffix(chat.gotInput, "wor") {
		t.Fatalf("clip broke a word: %q", chat.gotInput[len(chat.gotInput)-10:])
	}
}

func TestSummarizeEnforcesWordLimit(t *testing.T) {
	chat := &fakeChat{reply: "one two three four five six seven"}
	s := newTestSummarizer(chat)

	res, err := s.Summarize(context.Background(), "some transcript")
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if res.WordCount != 5 {
		t.Fatalf("expected 5 words, got %d: %q", res.WordCount, res.Text)
	}
}

func TestClipBoundary(t *testing.T) {
	tests := []struct {
		in        string
		max       int
		truncated bool
	}{
		{"short", 100, false},
		{"exactly ten chars!", 0, false}, // zero budget disables clipping
		{strings.Repeat("a", 50) + " " + strings.Repeat("b", 50), 60, true},
	}
	for _, tc := range tests {
		out, got := clip(tc.in, tc.max)
		if got != tc.truncated {
			t.Fatalf("clip(%q, %d): truncated = %v, want %v", tc.in, tc.max, got, tc.truncated)
		}
		if tc.max > 0 && len(out) > tc.max {
			t.Fatalf("clip returned %d chars, max %d", len(out), tc.max)
		}
	}
}
