// Package advisor writes reminder and summary text with a language model
// served over an OpenAI-compatible API.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrisonrobin/tasknudge/pkg/model"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const DefaultTimeout = 20 * time.Second

var ErrEmpty = errors.New("model returned no text")

type Config struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

const systemPrompt = "You are a personal assistant writing chat messages about the user's tasks. " +
	"Reply with the message text only."

// Advisor composes messages with an LLM. Every call is bounded by the
// configured timeout; failures are returned to the caller to fall back on.
type Advisor struct {
	llm     llms.Model
	timeout time.Duration
}

func New(cfg Config) (*Advisor, error) {
	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create advisor client: %w", err)
	}
	return NewWithModel(llm, cfg.Timeout), nil
}

func NewWithModel(llm llms.Model, timeout time.Duration) *Advisor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Advisor{llm: llm, timeout: timeout}
}

func (a *Advisor) Reminder(ctx context.Context, task model.Task, minutes int) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a short, friendly reminder that the task %q is due in %d minutes.\n", task.Title, minutes)
	if task.Details != "" {
		fmt.Fprintf(&b, "Details: %s\n", task.Details)
	}
	if task.AssistantNote != "" {
		fmt.Fprintf(&b, "Earlier advice for this task: %s\n", task.AssistantNote)
	}
	b.WriteString("Start the message with ⏰ and keep it to two sentences.")
	return a.generate(ctx, b.String())
}

func (a *Advisor) Summary(ctx context.Context, owner string, tasks []model.Task, loc *time.Location) (string, error) {
	var lines []string
	for _, t := range tasks {
		when := "no time set"
		if due, ok := t.DueTime(); ok {
			when = due.In(loc).Format("Mon 15:04")
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", when, t.Title))
	}
	prompt := "Write a short, friendly, motivating good-morning message reminding the user " +
		"of the tasks they have today.\n\nTasks:\n" + strings.Join(lines, "\n") +
		"\n\nKeep it warm, concise, and very short."
	return a.generate(ctx, prompt)
}

func (a *Advisor) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := a.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmpty
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}
