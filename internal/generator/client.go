// Package generator talks to the external AI question generator.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"quiz-access-service/internal/domain"
	"quiz-access-service/internal/validation"
)

// Request is the body posted to the generator.
type Request struct {
	Topic      string            `json:"topic"`
	Count      int               `json:"count"`
	Difficulty domain.Difficulty `json:"difficulty"`
}

// Response is what the generator must answer with.
type Response struct {
	Questions []domain.QuestionSpec `json:"questions"`
}

// Client posts generation requests to an HTTP endpoint.
type Client struct {
	endpoint  string
	http      *http.Client
	validator *validation.Validator
}

type Config struct {
	Endpoint string
	// Timeout caps a single HTTP exchange; callers still bound the whole call with their context.
	Timeout time.Duration
}

func New(cfg Config, v *validation.Validator) *Client {
	h := &http.Client{}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	return &Client{endpoint: cfg.Endpoint, http: h, validator: v}
}

// Generate returns a validated question set with fresh ids. Transport problems wrap
// domain.ErrGeneratorFailed; shape problems wrap domain.ErrInvalidGeneratorOutput.
func (c *Client) Generate(ctx context.Context, settings domain.AISettings) ([]domain.Question, error) {
	body, err := json.Marshal(Request{
		Topic:      settings.Topic,
		Count:      settings.QuestionCount,
		Difficulty: settings.Difficulty,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", domain.ErrGeneratorFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrGeneratorFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGeneratorFailed, err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("%w: generator answered %s", domain.ErrGeneratorFailed, res.Status)
	}

	var out Response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", domain.ErrInvalidGeneratorOutput, err)
	}
	return Accept(c.validator, out.Questions)
}

// Accept validates generator output and assigns ids. Any invalid question rejects the whole set,
// since it would become a grading key.
func Accept(v *validation.Validator, specs []domain.QuestionSpec) ([]domain.Question, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: empty question set", domain.ErrInvalidGeneratorOutput)
	}
	questions, err := v.Questions(specs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidGeneratorOutput, err)
	}
	for i := range questions {
		questions[i].ID = uuid.NewString()
	}
	return questions, nil
}

// Disabled is used when no generator endpoint is configured; every call fails so callers fall back
// to stored questions.
type Disabled struct{}

func (Disabled) Generate(context.Context, domain.AISettings) ([]domain.Question, error) {
	return nil, fmt.Errorf("%w: no generator configured", domain.ErrGeneratorFailed)
}
