// Package llm talks to Gemini: it resolves natural-language prompts to ledger
// commands through function calling and answers free-text analysis questions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/ledger-assistant/internal/aggregate"
	"github.com/dvloznov/ledger-assistant/internal/commands"
	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// DefaultModelName is used when no model is configured.
const DefaultModelName = "gemini-2.5-flash"

// DefaultTimeout bounds a single model call when none is configured.
const DefaultTimeout = 30 * time.Second

// generator is the part of genai.Models the client needs.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// CategorySource reports the categories already used in the ledger.
type CategorySource interface {
	DistinctCategories(f aggregate.Filter) ([]string, error)
}

// Config holds client settings.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiClient implements commands.Resolver and commands.Analyst.
type GeminiClient struct {
	models     generator
	model      string
	timeout    time.Duration
	categories CategorySource
	now        func() time.Time
	log        zerolog.Logger
}

var (
	_ commands.Resolver = (*GeminiClient)(nil)
	_ commands.Analyst  = (*GeminiClient)(nil)
)

// NewGeminiClient creates a client against the Gemini API. categories may be
// nil.
func NewGeminiClient(ctx context.Context, cfg Config, categories CategorySource, log zerolog.Logger) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.E(domain.KindValidation, "NewGeminiClient", "an API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClient: create genai client: %w", err)
	}
	return newGeminiClient(client.Models, cfg, categories, log), nil
}

func newGeminiClient(models generator, cfg Config, categories CategorySource, log zerolog.Logger) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = DefaultModelName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &GeminiClient{
		models:     models,
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		categories: categories,
		now:        time.Now,
		log:        log,
	}
}

// Resolve asks the model to pick one command for prompt. It returns the first
// function call, or the model's text when it chose none.
func (c *GeminiClient) Resolve(ctx context.Context, prompt string) (*commands.Resolution, error) {
	specs := commands.Catalog()

	var seen []string
	if c.categories != nil {
		cats, err := c.categories.DistinctCategories(aggregate.Filter{})
		if err != nil {
			c.log.Warn().Err(err).Msg("Could not list ledger categories for the system instruction")
		}
		seen = cats
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(buildSystemInstruction(specs, seen, c.now()), genai.RoleUser),
		Tools: []*genai.Tool{
			{FunctionDeclarations: FunctionDeclarations(specs)},
		},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAuto,
			},
		},
	}

	resp, err := c.generate(ctx, "Resolve", prompt, config)
	if err != nil {
		return nil, err
	}

	if calls := resp.FunctionCalls(); len(calls) > 0 {
		call := calls[0]
		if len(calls) > 1 {
			c.log.Warn().Int("calls", len(calls)).Str("selected", call.Name).Msg("Model returned several function calls, using the first")
		}
		c.log.Info().Str("command", call.Name).Msg("Model selected command")
		return &commands.Resolution{Call: &commands.Call{Name: call.Name, Args: call.Args}}, nil
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, domain.E(domain.KindUpstream, "Resolve", "empty response from model")
	}
	return &commands.Resolution{Text: text}, nil
}

// Analyze answers question over the embedded CSV snapshot.
func (c *GeminiClient) Analyze(ctx context.Context, question, csv string) (string, error) {
	resp, err := c.generate(ctx, "Analyze", buildAnalysisPrompt(question, csv), nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", domain.E(domain.KindUpstream, "Analyze", "empty response from model")
	}
	return text, nil
}

func (c *GeminiClient) generate(ctx context.Context, op, prompt string, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("model call timed out after %s: %w", c.timeout, err)
		}
		c.log.Error().Err(err).Str("op", op).Str("model", c.model).Msg("Model call failed")
		return nil, domain.Wrap(domain.KindUpstream, op, err)
	}
	if resp == nil {
		return nil, domain.E(domain.KindUpstream, op, "nil response from model")
	}

	c.log.Debug().Str("op", op).Dur("duration", time.Since(start)).Msg("Model call finished")
	return resp, nil
}
