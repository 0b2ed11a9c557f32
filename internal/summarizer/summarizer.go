// Package summarizer condenses call transcripts into short summaries
// using a chat-completion model.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"agentsdr/internal/config"
)

// ErrEmptyTranscript is returned when there is nothing to summarize.
var ErrEmptyTranscript = errors.New("summarizer: empty transcript")

// Result is a produced summary plus usage accounting.
type Result struct {
	Text         string
	WordCount    int
	Model        string
	TotalTokens  int
	PromptTokens int
	OutputTokens int
	// Truncated is set when the transcript exceeded the input budget and
	// only a prefix was summarized. The summary is still usable.
	Truncated bool
}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Summarizer produces bounded-length summaries of transcripts.
type Summarizer struct {
	client        chatClient
	model         string
	maxInputChars int
	maxWords      int
}

func New(cfg config.OpenAIConfig) *Summarizer {
	return &Summarizer{
		client:        openai.NewClient(cfg.APIKey),
		model:         cfg.Model,
		maxInputChars: cfg.MaxInputChars,
		maxWords:      cfg.SummaryMaxWords,
	}
}

// Summarize condenses transcript text to at most the configured word count.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (Result, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Result{}, ErrEmptyTranscript
	}

	input, truncated := clip(transcript, s.maxInputChars)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"You summarize sales call transcripts. Reply with a single summary of at most %d words. No preamble, no quotes.",
					s.maxWords),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: input,
			},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return Result{}, fmt.Errorf("summarizer: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("summarizer: no choices returned")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	text = enforceWordLimit(text, s.maxWords)

	return Result{
		Text:         text,
		WordCount:    len(strings.Fields(text)),
		Model:        resp.Model,
		TotalTokens:  resp.Usage.TotalTokens,
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Truncated:    truncated,
	}, nil
}

// clip returns at most max characters of s, cut at a whitespace boundary
// when one is nearby so the model never sees half a word.
func clip(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	cut := s[:max]
	if i := strings.LastIndexAny(cut, " \t\n"); i > max/2 {
		cut = cut[:i]
	}
	return cut, true
}

// enforceWordLimit trims the model output if it ignored the word budget.
func enforceWordLimit(s string, maxWords int) string {
	if maxWords <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ")
}
