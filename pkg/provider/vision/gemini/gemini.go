// Package gemini provides a vision provider backed by the Google Gemini API
// through google.golang.org/genai.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/urbansense/urbansense/pkg/provider/vision"
	"github.com/urbansense/urbansense/pkg/types"
)

// Provider implements vision.Provider using Gemini.
type Provider struct {
	models  generator
	model   string
	prompts vision.Prompts
}

// generator is the subset of *genai.Models used by Provider.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type config struct {
	baseURL string
	timeout time.Duration
	prompts vision.Prompts
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithPrompts replaces the default prompts. Empty fields keep their defaults.
func WithPrompts(p vision.Prompts) Option {
	return func(c *config) { c.prompts = p }
}

// New constructs a Gemini vision Provider. model defaults to
// [vision.DefaultModel].
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	if model == "" {
		model = vision.DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.baseURL}
	}
	if cfg.timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.timeout}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Provider{
		models:  client.Models,
		model:   model,
		prompts: cfg.prompts.WithDefaults(),
	}, nil
}

// AnalyzeImage implements vision.Provider.
func (p *Provider) AnalyzeImage(ctx context.Context, img types.Image) (string, error) {
	text, err := p.generate(ctx, img, p.prompts.Explore)
	if err != nil {
		return "", fmt.Errorf("gemini: analyze image: %w", err)
	}
	return text, nil
}

// GenerateNavigationalGuidance implements vision.Provider.
func (p *Provider) GenerateNavigationalGuidance(ctx context.Context, img types.Image, instruction string) (string, error) {
	text, err := p.generate(ctx, img, p.prompts.NavigationPrompt(instruction))
	if err != nil {
		return "", fmt.Errorf("gemini: navigational guidance: %w", err)
	}
	return text, nil
}

func (p *Provider) generate(ctx context.Context, img types.Image, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, img.MIME()),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.prompts.System, genai.RoleUser),
	}

	resp, err := p.models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return "", err
	}
	return vision.CleanText(resp.Text())
}

var _ vision.Provider = (*Provider)(nil)
