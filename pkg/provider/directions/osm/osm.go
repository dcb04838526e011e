// Package osm implements directions.Provider on the OpenStreetMap stack:
// Nominatim for geocoding and OSRM for walking routes.
//
// Nominatim's usage policy allows at most one request per second per
// application, so all Nominatim calls share a token-bucket limiter.
// Concurrent identical lookups are collapsed with singleflight.
package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/urbansense/urbansense/pkg/geo"
	"github.com/urbansense/urbansense/pkg/provider/directions"
)

const (
	// DefaultSearchURL is the public Nominatim instance.
	DefaultSearchURL = "https://nominatim.openstreetmap.org"

	// DefaultRoutingURL is the public OSRM demo server.
	DefaultRoutingURL = "https://router.project-osrm.org"

	// DefaultEmail identifies the application to Nominatim.
	DefaultEmail = "info@urbansense.app"

	// viewboxDelta is the half-size in degrees of the search bias box.
	viewboxDelta = 0.1
)

// Provider implements directions.Provider and directions.Locator.
type Provider struct {
	searchURL  string
	routingURL string
	email      string
	userAgent  string
	client     *http.Client
	limiter    *rate.Limiter
	group      singleflight.Group

	// flightTimeout bounds a shared lookup, which outlives the caller that
	// started it.
	flightTimeout time.Duration
}

type config struct {
	searchURL  string
	routingURL string
	email      string
	userAgent  string
	timeout    time.Duration
	limit      rate.Limit
	client     *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithSearchURL overrides the Nominatim base URL.
func WithSearchURL(u string) Option {
	return func(c *config) { c.searchURL = u }
}

// WithRoutingURL overrides the OSRM base URL.
func WithRoutingURL(u string) Option {
	return func(c *config) { c.routingURL = u }
}

// WithEmail sets the contact address sent to Nominatim.
func WithEmail(email string) Option {
	return func(c *config) { c.email = email }
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(c *config) { c.userAgent = ua }
}

// WithTimeout sets the per-request HTTP timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithRateLimit sets the Nominatim request rate in requests per second.
// Default: 1. Zero or negative disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *config) {
		if perSecond <= 0 {
			c.limit = rate.Inf
			return
		}
		c.limit = rate.Limit(perSecond)
	}
}

// WithHTTPClient replaces the HTTP client. Overrides WithTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.client = hc }
}

// New constructs an OSM directions Provider.
func New(opts ...Option) *Provider {
	cfg := &config{
		searchURL:  DefaultSearchURL,
		routingURL: DefaultRoutingURL,
		email:      DefaultEmail,
		userAgent:  "urbansense/1.0",
		timeout:    10 * time.Second,
		limit:      rate.Limit(1),
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = 10 * time.Second
	}
	hc := cfg.client
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	return &Provider{
		searchURL:  strings.TrimRight(cfg.searchURL, "/"),
		routingURL: strings.TrimRight(cfg.routingURL, "/"),
		email:      cfg.email,
		userAgent:  cfg.userAgent,
		client:     hc,
		limiter:    rate.NewLimiter(cfg.limit, 1),
		// One search and one route request.
		flightTimeout: 2 * cfg.timeout,
	}
}

// place is one Nominatim search hit.
type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Legs []struct {
			Distance float64 `json:"distance"`
			Steps    []struct {
				Maneuver struct {
					Instruction string    `json:"instruction"`
					Location    []float64 `json:"location"`
				} `json:"maneuver"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// GetDirections implements directions.Provider.
func (p *Provider) GetDirections(ctx context.Context, start geo.Coordinates, query string) (directions.RouteDetails, error) {
	cleaned := directions.CleanQuery(query)
	if cleaned == "" {
		return directions.RouteDetails{}, directions.NewEmptyQueryError()
	}

	key := fmt.Sprintf("%s|%.4f|%.4f", strings.ToLower(cleaned), start.Latitude, start.Longitude)
	ch := p.group.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.flightTimeout)
		defer cancel()
		return p.route(fctx, start, cleaned)
	})
	select {
	case <-ctx.Done():
		return directions.RouteDetails{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return directions.RouteDetails{}, res.Err
		}
		return res.Val.(directions.RouteDetails), nil
	}
}

func (p *Provider) route(ctx context.Context, start geo.Coordinates, cleaned string) (directions.RouteDetails, error) {
	dest, err := p.search(ctx, start, cleaned)
	if err != nil {
		return directions.RouteDetails{}, err
	}
	destCoords, err := dest.coordinates()
	if err != nil {
		return directions.RouteDetails{}, &directions.Error{
			Kind: directions.ErrUnavailable, Message: directions.MsgSearchUnavailable, Err: err,
		}
	}

	routeURL := fmt.Sprintf("%s/route/v1/walking/%s,%s;%s,%s?steps=true&overview=false",
		p.routingURL,
		formatCoord(start.Longitude), formatCoord(start.Latitude),
		formatCoord(destCoords.Longitude), formatCoord(destCoords.Latitude))

	var resp osrmResponse
	if err := p.getJSON(ctx, routeURL, &resp); err != nil {
		return directions.RouteDetails{}, &directions.Error{
			Kind: directions.ErrUnavailable, Message: directions.MsgRouteUnavailable, Err: err,
		}
	}
	if resp.Code != "Ok" || len(resp.Routes) == 0 || len(resp.Routes[0].Legs) == 0 || len(resp.Routes[0].Legs[0].Steps) == 0 {
		return directions.RouteDetails{}, &directions.Error{Kind: directions.ErrNoRoute, Message: directions.MsgNoRoute}
	}

	leg := resp.Routes[0].Legs[0]
	steps := make([]directions.DirectionStep, 0, len(leg.Steps)+1)
	for _, s := range leg.Steps {
		var loc geo.Coordinates
		if len(s.Maneuver.Location) == 2 {
			loc = geo.Coordinates{Latitude: s.Maneuver.Location[1], Longitude: s.Maneuver.Location[0]}
		}
		steps = append(steps, directions.DirectionStep{Instruction: s.Maneuver.Instruction, Location: loc})
	}

	return directions.RouteDetails{
		DestinationName: directions.ShortName(dest.DisplayName),
		TotalDistance:   int(math.Round(leg.Distance)),
		Steps:           directions.AppendArrival(steps, dest.DisplayName),
	}, nil
}

func (p *Provider) search(ctx context.Context, start geo.Coordinates, cleaned string) (place, error) {
	viewbox := strings.Join([]string{
		formatCoord(start.Longitude - viewboxDelta),
		formatCoord(start.Latitude - viewboxDelta),
		formatCoord(start.Longitude + viewboxDelta),
		formatCoord(start.Latitude + viewboxDelta),
	}, ",")

	q := url.Values{}
	q.Set("q", cleaned)
	q.Set("format", "json")
	q.Set("viewbox", viewbox)
	q.Set("bounded", "1")
	q.Set("limit", "1")
	if p.email != "" {
		q.Set("email", p.email)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return place{}, &directions.Error{Kind: directions.ErrUnavailable, Message: directions.MsgSearchUnavailable, Err: err}
	}

	var places []place
	if err := p.getJSON(ctx, p.searchURL+"/search?"+q.Encode(), &places); err != nil {
		return place{}, &directions.Error{Kind: directions.ErrUnavailable, Message: directions.MsgSearchUnavailable, Err: err}
	}
	if len(places) == 0 {
		return place{}, directions.NewNotFoundError(cleaned)
	}
	return places[0], nil
}

type reverseResponse struct {
	Address struct {
		City          string `json:"city"`
		Town          string `json:"town"`
		Village       string `json:"village"`
		StateDistrict string `json:"state_district"`
		State         string `json:"state"`
	} `json:"address"`
}

// Locality implements directions.Locator using Nominatim reverse geocoding.
func (p *Provider) Locality(ctx context.Context, at geo.Coordinates) (string, error) {
	q := url.Values{}
	q.Set("lat", formatCoord(at.Latitude))
	q.Set("lon", formatCoord(at.Longitude))
	q.Set("format", "json")
	q.Set("zoom", "10")
	if p.email != "" {
		q.Set("email", p.email)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("osm: locality: %w", err)
	}
	var resp reverseResponse
	if err := p.getJSON(ctx, p.searchURL+"/reverse?"+q.Encode(), &resp); err != nil {
		return "", fmt.Errorf("osm: locality: %w", err)
	}
	a := resp.Address
	for _, s := range []string{a.City, a.Town, a.Village, a.StateDistrict, a.State} {
		if s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("osm: locality: no city for %s", at)
}

// Ping asks Nominatim for its status. It shares the rate limiter with
// lookups.
func (p *Provider) Ping(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("osm: ping: %w", err)
	}
	var st struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	}
	if err := p.getJSON(ctx, p.searchURL+"/status?format=json", &st); err != nil {
		return fmt.Errorf("osm: ping: %w", err)
	}
	if st.Status != 0 {
		return fmt.Errorf("osm: ping: status %d: %s", st.Status, st.Message)
	}
	return nil
}

func (p *Provider) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (pl place) coordinates() (geo.Coordinates, error) {
	lat, err := strconv.ParseFloat(pl.Lat, 64)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("parse lat %q: %w", pl.Lat, err)
	}
	lon, err := strconv.ParseFloat(pl.Lon, 64)
	if err != nil {
		return geo.Coordinates{}, fmt.Errorf("parse lon %q: %w", pl.Lon, err)
	}
	return geo.Coordinates{Latitude: lat, Longitude: lon}, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var (
	_ directions.Provider = (*Provider)(nil)
	_ directions.Locator  = (*Provider)(nil)
)
