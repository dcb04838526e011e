package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/urbansense/urbansense/pkg/device"
	"github.com/urbansense/urbansense/pkg/provider/directions"
	"github.com/urbansense/urbansense/pkg/provider/transit"
	"github.com/urbansense/urbansense/pkg/provider/vision"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// is registered under the entry's name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds one oracle backend from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factorySet holds the factories of one provider kind. Guarded by
// Registry.mu.
type factorySet[T any] struct {
	kind   string
	byName map[string]Factory[T]
}

func newFactorySet[T any](kind string) factorySet[T] {
	return factorySet[T]{kind: kind, byName: make(map[string]Factory[T])}
}

func (s factorySet[T]) names() []string {
	out := make([]string, 0, len(s.byName))
	for n := range s.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Registry maps provider names in the YAML config to factories, one table per
// oracle kind. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	vision     factorySet[vision.Provider]
	directions factorySet[directions.Provider]
	transit    factorySet[transit.Provider]
	dialer     factorySet[device.Dialer]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		vision:     newFactorySet[vision.Provider]("vision"),
		directions: newFactorySet[directions.Provider]("directions"),
		transit:    newFactorySet[transit.Provider]("transit"),
		dialer:     newFactorySet[device.Dialer]("dialer"),
	}
}

func register[T any](r *Registry, s factorySet[T], name string, f Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.byName[name] = f
}

func create[T any](r *Registry, s factorySet[T], entry ProviderEntry) (T, error) {
	r.mu.RLock()
	f, ok := s.byName[entry.Name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, s.kind, entry.Name)
	}
	return f(entry)
}

// RegisterVision registers a vision factory; a later call with the same name
// replaces it.
func (r *Registry) RegisterVision(name string, f Factory[vision.Provider]) {
	register(r, r.vision, name, f)
}

func (r *Registry) RegisterDirections(name string, f Factory[directions.Provider]) {
	register(r, r.directions, name, f)
}

func (r *Registry) RegisterTransit(name string, f Factory[transit.Provider]) {
	register(r, r.transit, name, f)
}

// RegisterDialer registers a server-side dialer. "device" is reserved.
func (r *Registry) RegisterDialer(name string, f Factory[device.Dialer]) {
	register(r, r.dialer, name, f)
}

func (r *Registry) CreateVision(entry ProviderEntry) (vision.Provider, error) {
	return create(r, r.vision, entry)
}

func (r *Registry) CreateDirections(entry ProviderEntry) (directions.Provider, error) {
	return create(r, r.directions, entry)
}

func (r *Registry) CreateTransit(entry ProviderEntry) (transit.Provider, error) {
	return create(r, r.transit, entry)
}

// CreateDialer returns a nil dialer for an empty name or "device": the
// connected device places SOS calls itself.
func (r *Registry) CreateDialer(entry ProviderEntry) (device.Dialer, error) {
	if entry.Name == "" || entry.Name == "device" {
		return nil, nil
	}
	return create(r, r.dialer, entry)
}

// Available lists the registered provider names per kind, sorted. The dialer
// list always includes "device".
func (r *Registry) Available() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dialers := r.dialer.names()
	if !slices.Contains(dialers, "device") {
		dialers = append([]string{"device"}, dialers...)
	}
	return map[string][]string{
		r.vision.kind:     r.vision.names(),
		r.directions.kind: r.directions.names(),
		r.transit.kind:    r.transit.names(),
		r.dialer.kind:     dialers,
	}
}
