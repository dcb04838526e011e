// Package mock provides a test double for the transit.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/urbansense/urbansense/pkg/provider/transit"
)

// Provider is a mock implementation of transit.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Suggest.
	Result string

	// Err, if non-nil, is returned by Suggest.
	Err error

	Calls []transit.Request
}

// Suggest implements transit.Provider.
func (p *Provider) Suggest(_ context.Context, req transit.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	return p.Result, p.Err
}

// CallCount returns the number of Suggest calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ transit.Provider = (*Provider)(nil)
