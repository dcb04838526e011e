package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/urbansense/urbansense/internal/resilience"
	"github.com/urbansense/urbansense/internal/settings"
)

// probeProfile is read by [SettingsStore]; it is never written.
const probeProfile = "__healthcheck"

// SettingsStore checks that store answers a profile load.
func SettingsStore(store settings.Store) Checker {
	return Checker{
		Name: "settings",
		Check: func(ctx context.Context) error {
			_, err := store.Load(ctx, probeProfile)
			return err
		},
	}
}

// Pinger is implemented by stores with a cheap connectivity probe, such as
// the PostgreSQL settings store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping wraps p as a named [Checker].
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// Breakers fails when every breaker reported by states is open, meaning no
// backend of that kind can currently take a call.
func Breakers(name string, states func() map[string]resilience.State) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			st := states()
			if len(st) == 0 {
				return errors.New("no providers configured")
			}
			var open []string
			for n, s := range st {
				if s != resilience.StateOpen {
					return nil
				}
				open = append(open, n)
			}
			sort.Strings(open)
			return fmt.Errorf("all circuit breakers open: %s", strings.Join(open, ", "))
		},
	}
}
