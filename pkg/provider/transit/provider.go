// Package transit defines the Provider interface for public-transit
// suggestions: given the user's city and a spoken destination, return one
// sentence telling the user which line to take.
package transit

import (
	"context"
	"strings"
)

// UnsupportedCityMessage is returned when no suggestion exists for a city.
const UnsupportedCityMessage = "Sorry, transit suggestions are not available for your city yet."

// DefaultCity is assumed in demo mode and when the city cannot be resolved.
const DefaultCity = "New Delhi"

// Request describes one suggestion lookup.
type Request struct {
	// City is the locality the user is in, e.g. "New Delhi".
	City string

	// Destination is the station, stop or place the user asked for.
	Destination string
}

// Provider is the abstraction over any transit advisor.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Suggest returns a single spoken sentence. Unsupported cities are not an
	// error; they yield [UnsupportedCityMessage].
	Suggest(ctx context.Context, req Request) (string, error)
}

// CleanDestination trims a spoken destination and strips a trailing period
// left by some recognizers.
func CleanDestination(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".")
}
