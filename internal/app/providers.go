package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urbansense/urbansense/internal/config"
	"github.com/urbansense/urbansense/internal/observe"
	"github.com/urbansense/urbansense/internal/resilience"
	"github.com/urbansense/urbansense/pkg/device"
	"github.com/urbansense/urbansense/pkg/provider/directions"
	"github.com/urbansense/urbansense/pkg/provider/transit"
	"github.com/urbansense/urbansense/pkg/provider/vision"
)

// Providers holds one interface value per provider slot. Populated by
// [BuildProviders] or injected directly in tests.
type Providers struct {
	Vision     vision.Provider
	Directions directions.Provider
	Transit    transit.Provider

	// Dialer places SOS calls server-side. Nil means the device dials.
	Dialer device.Dialer
}

// BuildProviders creates every configured provider through reg. The vision
// provider is wrapped in a [resilience.VisionFallback] together with the
// configured fallbacks, and breaker transitions are counted in metrics.
func BuildProviders(reg *config.Registry, cfg config.ProvidersConfig, metrics *observe.Metrics) (*Providers, error) {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	primary, err := reg.CreateVision(cfg.Vision)
	if err != nil {
		return nil, fmt.Errorf("app: vision: %w", err)
	}
	fcfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, _, to resilience.State) {
				metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}
	vf := resilience.NewVisionFallback(primary, cfg.Vision.Name, fcfg)
	for i, entry := range cfg.VisionFallback {
		p, err := reg.CreateVision(entry)
		if err != nil {
			return nil, fmt.Errorf("app: vision fallback %d: %w", i, err)
		}
		vf.AddFallback(fmt.Sprintf("%s#%d", entry.Name, i+1), p)
	}

	dir, err := reg.CreateDirections(cfg.Directions)
	if err != nil {
		return nil, fmt.Errorf("app: directions: %w", err)
	}
	tr, err := reg.CreateTransit(cfg.Transit)
	if err != nil {
		return nil, fmt.Errorf("app: transit: %w", err)
	}
	dialer, err := reg.CreateDialer(cfg.Dialer)
	if err != nil {
		return nil, fmt.Errorf("app: dialer: %w", err)
	}

	slog.Info("providers ready",
		"vision", cfg.Vision.Name,
		"vision_fallbacks", len(cfg.VisionFallback),
		"directions", cfg.Directions.Name,
		"transit", cfg.Transit.Name,
		"server_dialer", dialer != nil,
	)
	return &Providers{Vision: vf, Directions: dir, Transit: tr, Dialer: dialer}, nil
}
