package resilience

import (
	"context"

	"github.com/urbansense/urbansense/pkg/provider/vision"
	"github.com/urbansense/urbansense/pkg/types"
)

// VisionFallback implements [vision.Provider] with failover across several
// vision backends, each behind its own circuit breaker.
type VisionFallback struct {
	group *FallbackGroup[vision.Provider]
}

var _ vision.Provider = (*VisionFallback)(nil)

// NewVisionFallback creates a [VisionFallback] with primary as the preferred
// backend.
func NewVisionFallback(primary vision.Provider, primaryName string, cfg FallbackConfig) *VisionFallback {
	return &VisionFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried after all earlier ones.
func (f *VisionFallback) AddFallback(name string, p vision.Provider) {
	f.group.AddFallback(name, p)
}

// States reports the breaker state of every backend.
func (f *VisionFallback) States() map[string]State { return f.group.States() }

// AnalyzeImage returns the first successful scene description.
func (f *VisionFallback) AnalyzeImage(ctx context.Context, img types.Image) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(p vision.Provider) (string, error) {
		return p.AnalyzeImage(ctx, img)
	})
}

// GenerateNavigationalGuidance returns the first successful guidance. Callers
// still fall back to the raw instruction when every backend fails.
func (f *VisionFallback) GenerateNavigationalGuidance(ctx context.Context, img types.Image, instruction string) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(p vision.Provider) (string, error) {
		return p.GenerateNavigationalGuidance(ctx, img, instruction)
	})
}
