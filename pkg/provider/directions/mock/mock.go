// Package mock provides a test double for the directions.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/urbansense/urbansense/pkg/geo"
	"github.com/urbansense/urbansense/pkg/provider/directions"
)

// Call records a single invocation of GetDirections.
type Call struct {
	Start geo.Coordinates
	Query string
}

// Provider is a mock implementation of directions.Provider and
// directions.Locator.
type Provider struct {
	mu sync.Mutex

	// Route is returned by GetDirections.
	Route directions.RouteDetails

	// Err, if non-nil, is returned by GetDirections.
	Err error

	// City is returned by Locality.
	City string

	// LocalityErr, if non-nil, is returned by Locality.
	LocalityErr error

	// Block, if non-nil, makes GetDirections wait until it is closed or ctx
	// is done.
	Block chan struct{}

	Calls         []Call
	LocalityCalls []geo.Coordinates
}

// GetDirections implements directions.Provider.
func (p *Provider) GetDirections(ctx context.Context, start geo.Coordinates, query string) (directions.RouteDetails, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Start: start, Query: query})
	route, err, block := p.Route, p.Err, p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return directions.RouteDetails{}, ctx.Err()
		}
	}
	if err != nil {
		return directions.RouteDetails{}, err
	}
	route.Steps = append([]directions.DirectionStep(nil), route.Steps...)
	return route, nil
}

// Locality implements directions.Locator.
func (p *Provider) Locality(_ context.Context, at geo.Coordinates) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LocalityCalls = append(p.LocalityCalls, at)
	return p.City, p.LocalityErr
}

// CallCount returns the number of GetDirections calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastQuery returns the query of the most recent GetDirections call.
func (p *Provider) LastQuery() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return ""
	}
	return p.Calls[len(p.Calls)-1].Query
}

var (
	_ directions.Provider = (*Provider)(nil)
	_ directions.Locator  = (*Provider)(nil)
)
