// Package openai provides a vision provider backed by any OpenAI-compatible
// chat completions endpoint that accepts inline image URLs.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/urbansense/urbansense/pkg/provider/vision"
	"github.com/urbansense/urbansense/pkg/types"
)

// Provider implements vision.Provider using the OpenAI chat completions API.
type Provider struct {
	client    oai.Client
	model     string
	prompts   vision.Prompts
	maxTokens int64
}

type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	prompts      vision.Prompts
	maxTokens    int64
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) { c.organization = org }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithPrompts replaces the default prompts. Empty fields keep their defaults.
func WithPrompts(p vision.Prompts) Option {
	return func(c *config) { c.prompts = p }
}

// WithMaxTokens caps the completion length. Default: 200.
func WithMaxTokens(n int) Option {
	return func(c *config) { c.maxTokens = int64(n) }
}

// New constructs an OpenAI vision Provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{maxTokens: 200}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:    oai.NewClient(reqOpts...),
		model:     model,
		prompts:   cfg.prompts.WithDefaults(),
		maxTokens: cfg.maxTokens,
	}, nil
}

// AnalyzeImage implements vision.Provider.
func (p *Provider) AnalyzeImage(ctx context.Context, img types.Image) (string, error) {
	text, err := p.complete(ctx, img, p.prompts.Explore)
	if err != nil {
		return "", fmt.Errorf("openai: analyze image: %w", err)
	}
	return text, nil
}

// GenerateNavigationalGuidance implements vision.Provider.
func (p *Provider) GenerateNavigationalGuidance(ctx context.Context, img types.Image, instruction string) (string, error) {
	text, err := p.complete(ctx, img, p.prompts.NavigationPrompt(instruction))
	if err != nil {
		return "", fmt.Errorf("openai: navigational guidance: %w", err)
	}
	return text, nil
}

func (p *Provider) complete(ctx context.Context, img types.Image, prompt string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(img, prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	return vision.CleanText(resp.Choices[0].Message.Content)
}

// buildParams assembles a system message plus one user message holding the
// prompt and the frame as an inline data URL.
func (p *Provider) buildParams(img types.Image, prompt string) oai.ChatCompletionNewParams {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(p.prompts.System),
			oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
				oai.TextContentPart(prompt),
				oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{
					URL: img.DataURL(),
				}),
			}),
		},
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(p.maxTokens)
	}
	return params
}

var _ vision.Provider = (*Provider)(nil)
