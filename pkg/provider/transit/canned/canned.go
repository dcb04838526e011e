// Package canned implements transit.Provider from a fixed table of Delhi
// Metro stations, DTC bus routes and one New York subway hop.
package canned

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/urbansense/urbansense/pkg/provider/transit"
)

var (
	delhiMetroStations = []string{
		"Rajiv Chowk", "Chandni Chowk", "Kashmere Gate", "Central Secretariat",
		"AIIMS", "Lajpat Nagar", "Saket", "Dwarka Sector 21",
	}
	delhiBusStops = []string{
		"ISBT Kashmere Gate", "Connaught Place", "AIIMS", "Lajpat Nagar", "Saket", "Dwarka",
	}
	delhiBusNumbers = []string{"534", "615", "522A", "740", "423", "620"}
)

// Provider implements transit.Provider.
type Provider struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithRand sets the random source used to pick lines and stops.
func WithRand(r *rand.Rand) Option {
	return func(p *Provider) { p.rng = r }
}

// New returns a canned transit Provider.
func New(opts ...Option) *Provider {
	p := &Provider{}
	for _, o := range opts {
		o(p)
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return p
}

// Suggest implements transit.Provider.
func (p *Provider) Suggest(_ context.Context, req transit.Request) (string, error) {
	dest := transit.CleanDestination(req.Destination)
	city := strings.ToLower(req.City)

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case strings.Contains(city, "delhi"):
		if p.rng.IntN(2) == 0 {
			from, to := p.pair(delhiMetroStations)
			return fmt.Sprintf("You can take the Delhi Metro from %s to %s to reach %s.", from, to, dest), nil
		}
		bus := delhiBusNumbers[p.rng.IntN(len(delhiBusNumbers))]
		from, to := p.pair(delhiBusStops)
		return fmt.Sprintf("Board DTC Bus %s from %s to %s to reach %s.", bus, from, to, dest), nil
	case strings.Contains(city, "new york"):
		return fmt.Sprintf("Take the MTA Subway from Times Square to Grand Central to reach %s.", dest), nil
	default:
		return transit.UnsupportedCityMessage, nil
	}
}

// pair picks two distinct entries of list.
func (p *Provider) pair(list []string) (string, string) {
	i := p.rng.IntN(len(list))
	j := p.rng.IntN(len(list) - 1)
	if j >= i {
		j++
	}
	return list[i], list[j]
}

var _ transit.Provider = (*Provider)(nil)
