// Package mock provides a test double for the vision.Provider interface.
//
// Example:
//
//	p := &mock.Provider{AnalyzeResult: "A bench is on your left."}
//	text, _ := p.AnalyzeImage(ctx, img)
package mock

import (
	"context"
	"sync"

	"github.com/urbansense/urbansense/pkg/provider/vision"
	"github.com/urbansense/urbansense/pkg/types"
)

// AnalyzeCall records a single invocation of AnalyzeImage.
type AnalyzeCall struct {
	Image types.Image
}

// GuidanceCall records a single invocation of GenerateNavigationalGuidance.
type GuidanceCall struct {
	Image       types.Image
	Instruction string
}

// Provider is a mock implementation of vision.Provider.
type Provider struct {
	mu sync.Mutex

	// AnalyzeResult is returned by AnalyzeImage.
	AnalyzeResult string

	// AnalyzeErr, if non-nil, is returned by AnalyzeImage.
	AnalyzeErr error

	// GuidanceResult is returned by GenerateNavigationalGuidance. When empty
	// the instruction is echoed back.
	GuidanceResult string

	// GuidanceErr, if non-nil, is returned by GenerateNavigationalGuidance.
	GuidanceErr error

	// Block, if non-nil, makes every call wait until it is closed or ctx is
	// done. Used to hold an oracle call in flight.
	Block chan struct{}

	AnalyzeCalls  []AnalyzeCall
	GuidanceCalls []GuidanceCall
}

// AnalyzeImage implements vision.Provider.
func (p *Provider) AnalyzeImage(ctx context.Context, img types.Image) (string, error) {
	p.mu.Lock()
	p.AnalyzeCalls = append(p.AnalyzeCalls, AnalyzeCall{Image: img})
	block := p.Block
	result, err := p.AnalyzeResult, p.AnalyzeErr
	p.mu.Unlock()

	if err := wait(ctx, block); err != nil {
		return "", err
	}
	if err != nil {
		return "", err
	}
	return result, nil
}

// GenerateNavigationalGuidance implements vision.Provider.
func (p *Provider) GenerateNavigationalGuidance(ctx context.Context, img types.Image, instruction string) (string, error) {
	p.mu.Lock()
	p.GuidanceCalls = append(p.GuidanceCalls, GuidanceCall{Image: img, Instruction: instruction})
	block := p.Block
	result, err := p.GuidanceResult, p.GuidanceErr
	p.mu.Unlock()

	if err := wait(ctx, block); err != nil {
		return "", err
	}
	if err != nil {
		return "", err
	}
	if result == "" {
		return instruction, nil
	}
	return result, nil
}

// AnalyzeCallCount returns the number of AnalyzeImage calls.
func (p *Provider) AnalyzeCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.AnalyzeCalls)
}

// GuidanceCallCount returns the number of GenerateNavigationalGuidance calls.
func (p *Provider) GuidanceCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.GuidanceCalls)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AnalyzeCalls = nil
	p.GuidanceCalls = nil
}

func wait(ctx context.Context, block chan struct{}) error {
	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ vision.Provider = (*Provider)(nil)
