// Package anyllm implements transit.Provider on top of
// github.com/mozilla-ai/any-llm-go, asking a text model for a one-sentence
// public-transit suggestion.
//
//	p, err := anyllm.New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/urbansense/urbansense/pkg/provider/transit"
)

const systemPrompt = "You are UrbanSense, a transit assistant for visually impaired users. " +
	"Answer with exactly one short sentence naming the line or bus number, the boarding stop and the alighting stop. " +
	"Do not use markdown. If you do not know the transit network of the city, answer exactly: " +
	transit.UnsupportedCityMessage

// Provider implements transit.Provider.
type Provider struct {
	backend   anyllmlib.Provider
	model     string
	maxTokens int
}

// New creates a Provider backed by the named any-llm-go provider.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama",
// "mistral", "groq".
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("transit anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("transit anyllm: model must not be empty")
	}
	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("transit anyllm: create %q backend: %w", providerName, err)
	}
	return &Provider{backend: backend, model: model, maxTokens: 80}, nil
}

func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, mistral, groq", providerName)
	}
}

// Suggest implements transit.Provider.
func (p *Provider) Suggest(ctx context.Context, req transit.Request) (string, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return "", fmt.Errorf("transit anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("transit anyllm: empty choices in response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.ContentString())
	if text == "" {
		return "", fmt.Errorf("transit anyllm: empty suggestion")
	}
	return text, nil
}

func (p *Provider) buildParams(req transit.Request) anyllmlib.CompletionParams {
	user := fmt.Sprintf("I am in %s and want to reach %s by public transport. Which line should I take?",
		req.City, transit.CleanDestination(req.Destination))
	maxTokens := p.maxTokens
	return anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: systemPrompt},
			{Role: anyllmlib.RoleUser, Content: user},
		},
		MaxTokens: &maxTokens,
	}
}

var _ transit.Provider = (*Provider)(nil)
