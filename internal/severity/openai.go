package severity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"

	// maxPromptChars bounds the report text sent to the model.
	maxPromptChars = 2000
)

const systemPrompt = "You are a safety triage classifier. Return only one of: 1, 2, 3, 4, 5.\n" +
	"1=info, 2=caution, 3=watch, 4=danger, 5=critical. Consider imminent threat to life, " +
	"weapons, active violence, fire/explosion, gas leak, structural collapse, " +
	"kidnapping/sexual assault, multi-vehicle crash. Short text only: a single digit with no explanation."

// OpenAIConfig holds configuration for the model-backed classifier.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // default https://api.openai.com/v1
	Model   string // default gpt-4o-mini

	// Timeout is the per-request timeout. Default: 5 seconds.
	Timeout time.Duration

	// MaxRetries is the retry budget for transient failures. Default: 2.
	MaxRetries uint64

	Logger zerolog.Logger
}

// OpenAIClassifier calls the chat completions API to triage report text.
// Requests go through a circuit breaker; when the model is unreachable,
// over budget, or returns garbage, classification falls back to the
// keyword heuristic so reports are never blocked on the model.
type OpenAIClassifier struct {
	cfg      OpenAIConfig
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[int]
	fallback *HeuristicClassifier
	logger   zerolog.Logger
}

// NewOpenAIClassifier creates a model-backed classifier.
func NewOpenAIClassifier(cfg OpenAIConfig) *OpenAIClassifier {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}

	breaker := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        "openai-severity",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
	})

	return &OpenAIClassifier{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		breaker:  breaker,
		fallback: NewHeuristicClassifier(),
		logger:   cfg.Logger,
	}
}

// Classify returns the severity level for the given text. It never
// returns an error: any model failure resolves to the heuristic level.
func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (int, error) {
	if c.cfg.APIKey == "" {
		return heuristicLevel(text), nil
	}

	level, err := c.classifyWithRetry(ctx, text)
	if err != nil {
		c.logger.Warn().Err(err).Msg("model classification failed, using heuristic")
		return heuristicLevel(text), nil
	}
	return level, nil
}

func (c *OpenAIClassifier) classifyWithRetry(ctx context.Context, text string) (int, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0

	var level int
	operation := func() error {
		result, err := c.breaker.Execute(func() (int, error) {
			return c.classifyOnce(ctx, text)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if isRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		level = result
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx))
	return level, err
}

func (c *OpenAIClassifier) classifyOnce(ctx context.Context, text string) (int, error) {
	if utf8.RuneCountInString(text) > maxPromptChars {
		runes := []rune(text)
		text = string(runes[:maxPromptChars])
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		Temperature: 0,
		MaxTokens:   3,
	})
	if err != nil {
		return 0, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return 0, &serverError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("model returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return 0, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Choices) == 0 {
		return 0, errors.New("model returned no choices")
	}

	level, err := strconv.Atoi(strings.TrimSpace(out.Choices[0].Message.Content))
	if err != nil || level < LevelInfo || level > LevelCritical {
		return 0, fmt.Errorf("model returned non-level output %q", out.Choices[0].Message.Content)
	}
	return level, nil
}

func isRetryable(err error) bool {
	var se *serverError
	if errors.As(err, &se) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "no such host")
}

type serverError struct {
	status int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("model server error: status %d", e.status)
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
