package main

import (
	"context"
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/urbansense/urbansense/internal/config"
	"github.com/urbansense/urbansense/pkg/device"
	"github.com/urbansense/urbansense/pkg/device/twilio"
	"github.com/urbansense/urbansense/pkg/provider/directions"
	"github.com/urbansense/urbansense/pkg/provider/directions/osm"
	"github.com/urbansense/urbansense/pkg/provider/transit"
	transitllm "github.com/urbansense/urbansense/pkg/provider/transit/anyllm"
	"github.com/urbansense/urbansense/pkg/provider/transit/canned"
	"github.com/urbansense/urbansense/pkg/provider/vision"
	"github.com/urbansense/urbansense/pkg/provider/vision/gemini"
	"github.com/urbansense/urbansense/pkg/provider/vision/openai"
	"github.com/urbansense/urbansense/pkg/provider/vision/watson"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation package.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Vision ────────────────────────────────────────────────────────────────

	reg.RegisterVision("gemini", func(entry config.ProviderEntry) (vision.Provider, error) {
		var opts []gemini.Option
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		if d, ok := entry.OptionDuration("timeout"); ok {
			opts = append(opts, gemini.WithTimeout(d))
		}
		return gemini.New(context.Background(), entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterVision("openai", func(entry config.ProviderEntry) (vision.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptionString("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if d, ok := entry.OptionDuration("timeout"); ok {
			opts = append(opts, openai.WithTimeout(d))
		}
		if n, ok := entry.OptionFloat("max_tokens"); ok && n > 0 {
			opts = append(opts, openai.WithMaxTokens(int(n)))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterVision("watson", func(entry config.ProviderEntry) (vision.Provider, error) {
		var opts []watson.Option
		if d, ok := entry.OptionDuration("timeout"); ok {
			opts = append(opts, watson.WithTimeout(d))
		}
		return watson.New(entry.BaseURL, entry.APIKey, entry.ProjectID, entry.Model, opts...)
	})

	// ── Directions ────────────────────────────────────────────────────────────

	reg.RegisterDirections("osm", func(entry config.ProviderEntry) (directions.Provider, error) {
		var opts []osm.Option
		if u := entry.OptionString("search_url"); u != "" {
			opts = append(opts, osm.WithSearchURL(u))
		} else if entry.BaseURL != "" {
			opts = append(opts, osm.WithSearchURL(entry.BaseURL))
		}
		if u := entry.OptionString("routing_url"); u != "" {
			opts = append(opts, osm.WithRoutingURL(u))
		}
		if e := entry.OptionString("email"); e != "" {
			opts = append(opts, osm.WithEmail(e))
		}
		if ua := entry.OptionString("user_agent"); ua != "" {
			opts = append(opts, osm.WithUserAgent(ua))
		}
		if d, ok := entry.OptionDuration("timeout"); ok {
			opts = append(opts, osm.WithTimeout(d))
		}
		if r, ok := entry.OptionFloat("rate_limit"); ok {
			opts = append(opts, osm.WithRateLimit(r))
		}
		return osm.New(opts...), nil
	})

	// ── Transit ───────────────────────────────────────────────────────────────

	reg.RegisterTransit("canned", func(config.ProviderEntry) (transit.Provider, error) {
		return canned.New(), nil
	})

	// anyllm asks a language model; options.provider picks the backend
	// ("openai", "anthropic", "gemini", "ollama", "mistral", "groq").
	reg.RegisterTransit("anyllm", func(entry config.ProviderEntry) (transit.Provider, error) {
		backend := entry.OptionString("provider")
		if backend == "" {
			backend = "openai"
		}
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return transitllm.New(backend, entry.Model, opts...)
	})

	// ── Dialer ────────────────────────────────────────────────────────────────

	reg.RegisterDialer("twilio", func(entry config.ProviderEntry) (device.Dialer, error) {
		var opts []twilio.Option
		if msg := entry.OptionString("message"); msg != "" {
			opts = append(opts, twilio.WithMessage(msg))
		}
		if v := entry.OptionString("voice"); v != "" {
			opts = append(opts, twilio.WithVoice(v))
		}
		token := entry.APIKey
		if token == "" {
			token = entry.OptionString("auth_token")
		}
		d, err := twilio.New(entry.OptionString("account_sid"), token, entry.OptionString("from"), opts...)
		if err != nil {
			return nil, fmt.Errorf("twilio: %w", err)
		}
		return d, nil
	})
}
