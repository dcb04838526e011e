// Package demo supplies the canned data used when a user turns on mock data
// mode: street scenes for Explore, a synthetic walking route near a fixed
// position, and a fixed city for transit suggestions.
package demo

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"math/rand/v2"
	"path"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/urbansense/urbansense/pkg/geo"
	"github.com/urbansense/urbansense/pkg/provider/directions"
	"github.com/urbansense/urbansense/pkg/provider/transit"
	"github.com/urbansense/urbansense/pkg/types"
)

// Position is the device position reported in mock data mode (Connaught
// Place, New Delhi).
var Position = geo.Coordinates{Latitude: 28.6315, Longitude: 77.2167}

// Scene is one canned Explore image.
type Scene struct {
	// File is the image path inside the scene directory.
	File string

	// Description is spoken when the image cannot be loaded.
	Description string
}

// Scenes are the canned Explore images.
var Scenes = []Scene{
	{
		File:        "Closed-Sidewalk-with-Pedestrian-Pass-through-New-York-City-June-2024-1.jpeg",
		Description: "A closed sidewalk in New York City with a pedestrian pass-through. There are barriers and a person walking.",
	},
	{
		File:        "Delhi-Chandni-Chowk-cycle-rickshaw-drivers-at-end-of-street-scaled.jpeg",
		Description: "Cycle rickshaw drivers at the end of a busy street in Delhi's Chandni Chowk.",
	},
	{
		File:        "people-standing-at-a-local-bus-stand-in-new-delhi-waiting-for-public-transport-2D8RF54.jpeg",
		Description: "People standing at a local bus stand in New Delhi, waiting for public transport.",
	},
	{
		File:        "people-walking-on-the-sidewalk-along-the-street-of-new-york-city-ny-D5F4R7.jpeg",
		Description: "People walking on the sidewalk along a street in New York City.",
	},
}

// Option configures a [Library].
type Option func(*Library)

// WithRand sets the random source used to pick scenes.
func WithRand(r *rand.Rand) Option {
	return func(l *Library) { l.rng = r }
}

// Library picks canned scenes and loads their images from a file system.
// It is safe for concurrent use.
type Library struct {
	fsys fs.FS

	mu  sync.Mutex
	rng *rand.Rand
}

// NewLibrary returns a Library reading images from fsys. fsys may be nil, in
// which case every scene falls back to its canned description.
func NewLibrary(fsys fs.FS, opts ...Option) *Library {
	l := &Library{fsys: fsys}
	for _, o := range opts {
		o(l)
	}
	if l.rng == nil {
		l.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return l
}

// Pick returns a random scene.
func (l *Library) Pick() Scene {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Scenes[l.rng.IntN(len(Scenes))]
}

// Image loads the scene's image.
func (l *Library) Image(s Scene) (types.Image, error) {
	if l.fsys == nil {
		return types.Image{}, fmt.Errorf("demo: no scene directory configured")
	}
	data, err := fs.ReadFile(l.fsys, s.File)
	if err != nil {
		return types.Image{}, fmt.Errorf("demo: load scene: %w", err)
	}
	return types.Image{Data: data, MIMEType: mimeFor(s.File)}, nil
}

func mimeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return types.DefaultImageMIMEType
	}
}

// City is the locality reported in mock data mode.
const City = transit.DefaultCity

var titler = cases.Title(language.English)

// Directions is a directions.Provider and directions.Locator that never
// touches the network. Routes lead north-east from the start in three legs.
type Directions struct{}

// GetDirections implements directions.Provider.
func (Directions) GetDirections(_ context.Context, start geo.Coordinates, query string) (directions.RouteDetails, error) {
	q := directions.CleanQuery(query)
	if q == "" {
		return directions.RouteDetails{}, directions.NewEmptyQueryError()
	}
	name := titler.String(q)

	legs := []struct {
		instruction string
		north, east float64
	}{
		{"Head north for 120 meters", 120, 0},
		{"Turn right and continue for 200 meters", 120, 200},
		{"Turn left; the destination is 80 meters ahead on your right", 200, 200},
	}
	steps := make([]directions.DirectionStep, 0, len(legs)+1)
	prev := start
	total := 0.0
	for _, l := range legs {
		at := offset(start, l.north, l.east)
		steps = append(steps, directions.DirectionStep{Instruction: l.instruction, Location: at})
		total += geo.Distance(prev, at)
		prev = at
	}
	return directions.RouteDetails{
		DestinationName: name,
		TotalDistance:   int(math.Round(total)),
		Steps:           directions.AppendArrival(steps, name+", Demo City"),
	}, nil
}

// Locality implements directions.Locator.
func (Directions) Locality(context.Context, geo.Coordinates) (string, error) {
	return City, nil
}

// offset moves c by north and east meters using a flat-earth approximation,
// adequate for the few hundred meters of a demo route.
func offset(c geo.Coordinates, north, east float64) geo.Coordinates {
	const metersPerDegree = geo.EarthRadius * math.Pi / 180
	lat := c.Latitude + north/metersPerDegree
	lon := c.Longitude + east/(metersPerDegree*math.Cos(c.Latitude*math.Pi/180))
	return geo.Coordinates{Latitude: lat, Longitude: lon}
}

var (
	_ directions.Provider = Directions{}
	_ directions.Locator  = Directions{}
)
