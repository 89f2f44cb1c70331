package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/kbase-api/internal/config"
	"github.com/phrazzld/kbase-api/internal/domain"
	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"
)

// ContentGenerator is the subset of *genai.Models used by ChatModel.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// ChatModel produces support answers grounded in knowledge passages.
type ChatModel struct {
	logger     *slog.Logger
	models     ContentGenerator
	model      string
	maxRetries int
	retryDelay time.Duration
}

// NewChatModel connects to the Gemini API with the configured key.
func NewChatModel(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*ChatModel, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return NewChatModelWithGenerator(logger, cfg, client.Models)
}

// NewChatModelWithGenerator builds a ChatModel on an existing generator.
func NewChatModelWithGenerator(logger *slog.Logger, cfg config.LLMConfig, models ContentGenerator) (*ChatModel, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if models == nil {
		return nil, fmt.Errorf("%w: generator cannot be nil", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	delay := time.Duration(cfg.RetryDelayMS) * time.Millisecond
	if delay <= 0 {
		delay = time.Second
	}

	return &ChatModel{
		logger:     logger.With("component", "gemini"),
		models:     models,
		model:      cfg.ModelName,
		maxRetries: max(cfg.MaxRetries, 0),
		retryDelay: delay,
	}, nil
}

// Reply answers message using passages as the only source of truth.
// extra is free-form context supplied by the caller, such as the page the
// customer is looking at.
func (m *ChatModel) Reply(
	ctx context.Context,
	message string,
	passages []domain.KnowledgeChunk,
	extra string,
) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}

	prompt, err := renderPrompt(promptData{Message: message, Context: extra, Passages: passages})
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		Temperature:       genai.Ptr[float32](0.2),
	}

	backoff := retry.WithMaxRetries(uint64(m.maxRetries),
		retry.WithJitterPercent(25, retry.NewExponential(m.retryDelay)))

	var reply string
	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		m.logger.DebugContext(ctx, "calling model",
			"model", m.model,
			"attempt", attempt,
			"passages", len(passages),
			"prompt_length", len(prompt))

		resp, err := m.models.GenerateContent(ctx, m.model, contents, genConfig)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.WarnContext(ctx, "model call failed",
				"attempt", attempt,
				"error", err)
			return retry.RetryableError(err)
		}

		reply, err = extractText(resp)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrContentBlocked) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: after %d attempts: %v", ErrTransientFailure, attempt, err)
	}

	m.logger.InfoContext(ctx, "model replied",
		"attempts", attempt,
		"reply_length", len(reply))
	return reply, nil
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", ErrContentBlocked
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("%w: no text parts", ErrInvalidResponse)
	}
	return text, nil
}
