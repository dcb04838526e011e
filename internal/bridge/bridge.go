// Package bridge implements [device.Device] over a WebSocket connection to a
// browser or mobile client.
//
// The client opens the socket and sends a hello carrying its settings
// profile and capabilities. After that the server issues requests (speak,
// capture, position, dial, permissions) correlated by id, and one-way
// notifications (render, pulse, recognition start/stop, speech cancel). The
// client pushes recognition events, taps, settings changes and position
// updates for active watches. All messages are JSON text frames.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/urbansense/urbansense/pkg/device"
	"github.com/urbansense/urbansense/pkg/geo"
	"github.com/urbansense/urbansense/pkg/types"
)

// DefaultProfile is used when the client's hello names no profile.
const DefaultProfile = "default"

// Option configures [Accept].
type Option func(*options)

type options struct {
	originPatterns   []string
	handshakeTimeout time.Duration
	requestTimeout   time.Duration
	readLimit        int64
	logger           *slog.Logger
}

// WithOriginPatterns allows cross-origin clients whose host matches one of
// patterns (see [websocket.AcceptOptions]).
func WithOriginPatterns(patterns ...string) Option {
	return func(o *options) { o.originPatterns = patterns }
}

// WithHandshakeTimeout bounds the wait for the client's hello. Default: 10s.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.handshakeTimeout = d
		}
	}
}

// WithRequestTimeout bounds capture, position and dial requests whose
// context has no deadline. Default: 30s.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithReadLimit sets the maximum inbound message size. Camera frames arrive
// inline, so the default is 8 MiB.
func WithReadLimit(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.readLimit = n
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Device is a connected client. It is safe for concurrent use.
type Device struct {
	conn   *websocket.Conn
	log    *slog.Logger
	caps   Capabilities
	prof   string
	reqTTL time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	nextID  atomic.Int64
	mu      sync.Mutex
	pending map[int64]chan inbound
	watches map[int64]func(device.PositionUpdate)

	events    chan device.Event
	closed    chan struct{}
	closeOnce sync.Once
}

var _ device.Device = (*Device)(nil)

// Accept upgrades the request to a WebSocket, waits for the client's hello
// and starts reading client messages. The returned Device lives until the
// client disconnects or [Device.Close] is called.
func Accept(w http.ResponseWriter, r *http.Request, opts ...Option) (*Device, error) {
	o := options{
		handshakeTimeout: 10 * time.Second,
		requestTimeout:   30 * time.Second,
		readLimit:        8 << 20,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: o.originPatterns})
	if err != nil {
		return nil, fmt.Errorf("bridge: accept: %w", err)
	}
	conn.SetReadLimit(o.readLimit)

	hctx, hcancel := context.WithTimeout(r.Context(), o.handshakeTimeout)
	defer hcancel()
	var hello inbound
	if err := wsjson.Read(hctx, conn, &hello); err != nil {
		conn.Close(websocket.StatusPolicyViolation, "hello expected")
		return nil, fmt.Errorf("bridge: read hello: %w", err)
	}
	if hello.Type != msgHello {
		conn.Close(websocket.StatusPolicyViolation, "hello expected")
		return nil, fmt.Errorf("bridge: first message is %q, want %q", hello.Type, msgHello)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Device{
		conn:    conn,
		log:     o.logger,
		prof:    hello.Profile,
		reqTTL:  o.requestTimeout,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[int64]chan inbound),
		watches: make(map[int64]func(device.PositionUpdate)),
		events:  make(chan device.Event, 32),
		closed:  make(chan struct{}),
	}
	if hello.Capabilities != nil {
		d.caps = *hello.Capabilities
	}
	if d.prof == "" {
		d.prof = DefaultProfile
	}
	go d.readLoop()
	return d, nil
}

// Profile returns the settings profile the client asked for.
func (d *Device) Profile() string { return d.prof }

// Capabilities returns what the client reported in its hello.
func (d *Device) Capabilities() Capabilities { return d.caps }

// Welcome tells the client its session id and preferred voice languages.
func (d *Device) Welcome(ctx context.Context, sessionID string, voiceLanguages []string) error {
	return d.write(ctx, welcome{Type: msgWelcome, SessionID: sessionID, VoiceLanguages: voiceLanguages})
}

// Done is closed once the device has disconnected or been closed.
func (d *Device) Done() <-chan struct{} { return d.closed }

// Close disconnects the client. It is idempotent.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
		d.cancel()
		d.conn.Close(websocket.StatusNormalClosure, "session ended")
	})
	return nil
}

// Events implements device.Device.
func (d *Device) Events() <-chan device.Event { return d.events }

// SpeechAvailable implements device.Synthesizer.
func (d *Device) SpeechAvailable() bool { return d.caps.Speech }

// RecognitionAvailable implements device.Recognizer.
func (d *Device) RecognitionAvailable() bool { return d.caps.Recognition }

// Speak implements device.Synthesizer. It blocks until the client reports the
// utterance ended.
func (d *Device) Speak(ctx context.Context, text string) error {
	_, err := d.request(ctx, opSpeak, speakParams{Text: text}, false)
	return err
}

// CancelSpeech implements device.Synthesizer.
func (d *Device) CancelSpeech(ctx context.Context) error {
	return d.notify(ctx, opCancelSpeech, nil)
}

// StartRecognition implements device.Recognizer. Lifecycle errors arrive as
// recognition events rather than return values.
func (d *Device) StartRecognition(ctx context.Context) error {
	if !d.caps.Recognition {
		return device.ErrUnavailable
	}
	return d.notify(ctx, opStartRecognition, nil)
}

// StopRecognition implements device.Recognizer.
func (d *Device) StopRecognition(ctx context.Context) error {
	return d.notify(ctx, opStopRecognition, nil)
}

// Capture implements device.Camera.
func (d *Device) Capture(ctx context.Context, opts device.CaptureOptions) (types.Image, error) {
	if !d.caps.Camera {
		return types.Image{}, device.ErrUnavailable
	}
	raw, err := d.request(ctx, opCapture, opts, true)
	if err != nil {
		return types.Image{}, err
	}
	var res captureResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return types.Image{}, fmt.Errorf("bridge: capture: decode: %w", err)
	}
	img, err := types.ImageFromDataURL(res.Image)
	if err != nil {
		return types.Image{}, fmt.Errorf("bridge: capture: decode image: %w", err)
	}
	if len(img.Data) == 0 {
		return types.Image{}, errors.New("bridge: capture: empty image")
	}
	return img, nil
}

// CurrentPosition implements device.Geolocator.
func (d *Device) CurrentPosition(ctx context.Context) (geo.Coordinates, error) {
	if !d.caps.Geolocation {
		return geo.Coordinates{}, device.ErrUnavailable
	}
	raw, err := d.request(ctx, opPosition, nil, true)
	if err != nil {
		return geo.Coordinates{}, err
	}
	var c geo.Coordinates
	if err := json.Unmarshal(raw, &c); err != nil {
		return geo.Coordinates{}, fmt.Errorf("bridge: position: decode: %w", err)
	}
	return c, nil
}

// WatchPosition implements device.Geolocator. fn runs on the connection's
// read goroutine.
func (d *Device) WatchPosition(ctx context.Context, fn func(device.PositionUpdate)) (func(), error) {
	if !d.caps.Geolocation {
		return nil, device.ErrUnavailable
	}
	id := d.nextID.Add(1)
	d.mu.Lock()
	d.watches[id] = fn
	d.mu.Unlock()

	if _, err := d.request(ctx, opWatchPosition, watchParams{Watch: id}, true); err != nil {
		d.dropWatch(id)
		return nil, err
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			d.dropWatch(id)
			if err := d.notify(d.ctx, opStopWatch, watchParams{Watch: id}); err != nil {
				d.log.Debug("bridge: stop watch", "watch", id, "err", err)
			}
		})
	}
	context.AfterFunc(ctx, stop)
	return stop, nil
}

func (d *Device) dropWatch(id int64) {
	d.mu.Lock()
	delete(d.watches, id)
	d.mu.Unlock()
}

// Pulse implements device.Feedback.
func (d *Device) Pulse(ctx context.Context, p device.FeedbackPattern) {
	if err := d.notify(ctx, opPulse, p); err != nil {
		d.log.Debug("bridge: pulse", "err", err)
	}
}

// Dial implements device.Dialer by asking the client to open a tel: link.
func (d *Device) Dial(ctx context.Context, number string) error {
	_, err := d.request(ctx, opDial, dialParams{Number: number}, true)
	return err
}

// Render implements device.Display.
func (d *Device) Render(ctx context.Context, v device.View) error {
	return d.notify(ctx, opRender, v)
}

// RequestPermissions implements device.Permissions. It waits as long as ctx
// allows, since the user has to answer a prompt.
func (d *Device) RequestPermissions(ctx context.Context) (bool, error) {
	raw, err := d.request(ctx, opPermissions, nil, false)
	if err != nil {
		return false, err
	}
	var res permissionsResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return false, fmt.Errorf("bridge: permissions: decode: %w", err)
	}
	return res.Granted, nil
}

// request sends op and waits for the matching response. bounded applies the
// default request timeout when ctx has no deadline.
func (d *Device) request(ctx context.Context, op string, params any, bounded bool) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok && bounded {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.reqTTL)
		defer cancel()
	}

	id := d.nextID.Add(1)
	ch := make(chan inbound, 1)
	d.mu.Lock()
	d.pending[id] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
	}()

	msg := outbound{Type: msgRequest, ID: id, Op: op, Params: params}
	if dl, ok := ctx.Deadline(); ok {
		msg.TimeoutMillis = max(time.Until(dl).Milliseconds(), 1)
	}
	if err := d.write(ctx, msg); err != nil {
		return nil, fmt.Errorf("bridge: %s: %w", op, err)
	}

	select {
	case res := <-ch:
		if res.Error != nil {
			return nil, fmt.Errorf("bridge: %s: %w", op, res.Error.err())
		}
		return res.Result, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("bridge: %s: %w", op, ctx.Err())
	case <-d.closed:
		return nil, fmt.Errorf("bridge: %s: %w", op, device.ErrClosed)
	}
}

func (d *Device) notify(ctx context.Context, op string, params any) error {
	if err := d.write(ctx, outbound{Type: msgNotify, Op: op, Params: params}); err != nil {
		return fmt.Errorf("bridge: %s: %w", op, err)
	}
	return nil
}

func (d *Device) write(ctx context.Context, v any) error {
	select {
	case <-d.closed:
		return device.ErrClosed
	default:
	}
	// Writes must not outlive the connection even when ctx never ends.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.ctx, cancel)
	defer stop()
	return wsjson.Write(ctx, d.conn, v)
}

// readLoop owns the events channel and closes it on exit.
func (d *Device) readLoop() {
	defer close(d.events)
	defer d.Close()

	for {
		var m inbound
		if err := wsjson.Read(d.ctx, d.conn, &m); err != nil {
			switch status := websocket.CloseStatus(err); {
			case d.ctx.Err() != nil, status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway:
				d.log.Debug("bridge: client disconnected", "profile", d.prof)
			default:
				d.log.Warn("bridge: read", "profile", d.prof, "err", err)
			}
			return
		}
		d.dispatch(m)
	}
}

func (d *Device) dispatch(m inbound) {
	switch m.Type {
	case msgResponse:
		d.mu.Lock()
		ch, ok := d.pending[m.ID]
		d.mu.Unlock()
		if !ok {
			d.log.Debug("bridge: response for unknown request", "id", m.ID)
			return
		}
		select {
		case ch <- m:
		default:
			d.log.Debug("bridge: duplicate response", "id", m.ID)
		}

	case msgRecognition:
		if m.Recognition == nil {
			return
		}
		ev, ok := m.Recognition.event()
		if !ok {
			d.log.Debug("bridge: unknown recognition kind", "kind", m.Recognition.Kind)
			return
		}
		d.emit(device.Event{Kind: device.EventRecognition, Recognition: ev})

	case msgTap:
		d.emit(device.Event{Kind: device.EventTap, Target: m.Target})

	case msgSettings:
		if len(m.Settings) == 0 {
			return
		}
		d.emit(device.Event{Kind: device.EventSettings, Settings: m.Settings})

	case msgPosition:
		d.mu.Lock()
		fn, ok := d.watches[m.Watch]
		d.mu.Unlock()
		if !ok {
			return
		}
		switch {
		case m.Error != nil:
			fn(device.PositionUpdate{Err: m.Error.err()})
		case m.Coords != nil:
			fn(device.PositionUpdate{Coords: *m.Coords})
		}

	default:
		d.log.Debug("bridge: unknown message type", "type", m.Type)
	}
}

func (d *Device) emit(ev device.Event) {
	select {
	case d.events <- ev:
	case <-d.closed:
	}
}
