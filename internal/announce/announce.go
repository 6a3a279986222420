// Package announce turns review records into short posts for the publishing layer.
package announce

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"

	openai "github.com/sashabaranov/go-openai"

	"github.com/OuterWinnie/Goodreads-Bot/internal/review"
)

// Composer writes the announcement text of a review.
type Composer interface {
	Compose(ctx context.Context, r review.Record) (string, error)
}

// Template renders the fixed one-line announcement.
func Template(r review.Record) string {
	return fmt.Sprintf("%s rated %s by %s: %d/5 %s", r.Username, r.Title, r.Author, r.Score, r.URL)
}

// TemplateComposer never fails.
type TemplateComposer struct{}

func (TemplateComposer) Compose(_ context.Context, r review.Record) (string, error) {
	return Template(r), nil
}

var errDisabled = errors.New("openai client disabled: missing OPENAI_API_KEY")

const systemPrompt = "You write announcements for a book club bot. Given a review, answer with one friendly " +
	"sentence in English mentioning the reader, the book, the author and the score out of 5. " +
	"No hashtags, no emojis, no quotes around the sentence, and do not include the link."

// Client composes announcements with the OpenAI chat completion API and falls back
// to the template when the model is unavailable.
type Client struct {
	client    *openai.Client
	model     string
	logger    *log.Logger
	activated bool
}

// NewClient builds a Composer. If apiKey is empty, every call uses the template.
func NewClient(apiKey, model, baseURL string, logger *log.Logger) *Client {
	var cli *openai.Client
	activated := apiKey != ""
	if activated {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		cli = openai.NewClientWithConfig(cfg)
	}
	return &Client{
		client:    cli,
		model:     model,
		logger:    logger,
		activated: activated,
	}
}

// Ready indicates whether the model is usable.
func (c *Client) Ready() bool {
	return c.activated && c.client != nil
}

// Compose asks the model for a sentence and appends the review link.
func (c *Client) Compose(ctx context.Context, r review.Record) (string, error) {
	text, err := c.generate(ctx, r)
	if err != nil {
		if !errors.Is(err, errDisabled) {
			c.logger.Printf("announcement generation failed for %s, using template: %v", r.Title, err)
		}
		return Template(r), nil
	}
	return text + " " + r.URL, nil
}

func (c *Client) generate(ctx context.Context, r review.Record) (string, error) {
	if !c.Ready() {
		return "", errDisabled
	}

	userPrompt := fmt.Sprintf("Reader: %s\nBook: %s\nAuthor: %s\nScore: %d/5",
		r.Username,
		r.Title,
		r.Author,
		r.Score,
	)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned by OpenAI")
	}

	text := firstLine(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty announcement returned by OpenAI")
	}
	return truncateWords(text, maxAnnouncement), nil
}

// maxAnnouncement is the longest text posted, in runes.
const maxAnnouncement = 280

// firstLine returns the first line of a completion that is not a code fence,
// without wrapping quotes. Models sometimes add a fence or a second paragraph.
func firstLine(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		return strings.TrimSpace(strings.Trim(line, "\"“”"))
	}
	return ""
}

// truncateWords shortens s to at most max runes, cutting at the last space.
func truncateWords(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := runes[:max]
	for i := len(cut) - 1; i > 0; i-- {
		if unicode.IsSpace(cut[i]) {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace)
}
