// Package watson provides a vision provider backed by the IBM watsonx.ai
// model-inference REST endpoint.
//
// The endpoint has no Go SDK, so requests are built with net/http:
//
//	POST {baseURL}/v1/projects/{projectID}/model_inference?version=2024-07-01
//	Authorization: Bearer {apiKey}
//	{"model": ..., "project": ..., "inputs": [{"type":"image",...},{"type":"text",...}]}
package watson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/urbansense/urbansense/pkg/provider/vision"
	"github.com/urbansense/urbansense/pkg/types"
)

// APIVersion is the watsonx API version sent with every request.
const APIVersion = "2024-07-01"

// Provider implements vision.Provider using watsonx model inference.
type Provider struct {
	baseURL   string
	apiKey    string
	projectID string
	model     string
	prompts   vision.Prompts
	client    *http.Client
}

type config struct {
	timeout time.Duration
	prompts vision.Prompts
	client  *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithPrompts replaces the default prompts.
func WithPrompts(p vision.Prompts) Option {
	return func(c *config) { c.prompts = p }
}

// WithHTTPClient replaces the HTTP client entirely. Overrides WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.client = hc }
}

// New constructs a watsonx vision Provider.
func New(baseURL, apiKey, projectID, model string, opts ...Option) (*Provider, error) {
	switch {
	case baseURL == "":
		return nil, fmt.Errorf("watson: baseURL must not be empty")
	case apiKey == "":
		return nil, fmt.Errorf("watson: apiKey must not be empty")
	case projectID == "":
		return nil, fmt.Errorf("watson: projectID must not be empty")
	case model == "":
		return nil, fmt.Errorf("watson: model must not be empty")
	}

	cfg := &config{timeout: 30 * time.Second}
	for _, o := range opts {
		o(cfg)
	}
	hc := cfg.client
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	return &Provider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		projectID: projectID,
		model:     model,
		prompts:   cfg.prompts.WithDefaults(),
		client:    hc,
	}, nil
}

// AnalyzeImage implements vision.Provider.
func (p *Provider) AnalyzeImage(ctx context.Context, img types.Image) (string, error) {
	text, err := p.infer(ctx, img, p.prompts.Explore)
	if err != nil {
		return "", fmt.Errorf("watson: analyze image: %w", err)
	}
	return text, nil
}

// GenerateNavigationalGuidance implements vision.Provider.
func (p *Provider) GenerateNavigationalGuidance(ctx context.Context, img types.Image, instruction string) (string, error) {
	text, err := p.infer(ctx, img, p.prompts.NavigationPrompt(instruction))
	if err != nil {
		return "", fmt.Errorf("watson: navigational guidance: %w", err)
	}
	return text, nil
}

type input struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	MIME string `json:"mime,omitempty"`
	Text string `json:"text,omitempty"`
}

type inferRequest struct {
	Model   string  `json:"model"`
	Project string  `json:"project"`
	System  string  `json:"system,omitempty"`
	Inputs  []input `json:"inputs"`
}

type inferResponse struct {
	Results []struct {
		GeneratedText string `json:"generated_text"`
		Output        string `json:"output"`
		Text          string `json:"text"`
	} `json:"results"`
	Text string `json:"text"`
}

// text picks the first non-empty field in the order watsonx populates them.
func (r inferResponse) text() string {
	if len(r.Results) > 0 {
		res := r.Results[0]
		for _, s := range []string{res.GeneratedText, res.Output, res.Text} {
			if s != "" {
				return s
			}
		}
	}
	return r.Text
}

func (p *Provider) endpoint() string {
	return fmt.Sprintf("%s/v1/projects/%s/model_inference?version=%s",
		p.baseURL, url.PathEscape(p.projectID), APIVersion)
}

func (p *Provider) infer(ctx context.Context, img types.Image, prompt string) (string, error) {
	body, err := json.Marshal(inferRequest{
		Model:   p.model,
		Project: p.projectID,
		System:  p.prompts.System,
		Inputs: []input{
			{Type: "image", Data: img.Base64(), MIME: img.MIME()},
			{Type: "text", Text: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out inferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return vision.CleanText(out.text())
}

var _ vision.Provider = (*Provider)(nil)
