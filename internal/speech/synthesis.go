// Package speech coordinates the two voice capabilities of a device: the
// serialized synthesis [Channel] and the single-utterance [Recognition]
// wrapper.
//
// A Channel never speaks over itself. Requests made while an utterance is
// playing are queued in FIFO order, near-duplicates are dropped, and every
// request's completion callback fires exactly once. Recognition is gated on
// [Channel.Active] by the session so the device never listens to its own
// voice.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/urbansense/urbansense/internal/observe"
	"github.com/urbansense/urbansense/pkg/device"
)

const (
	// DefaultSettle is the pause inserted before a queued utterance starts.
	DefaultSettle = 120 * time.Millisecond

	// DefaultTimeout forces completion of an utterance that never ends.
	DefaultTimeout = 30 * time.Second

	// DefaultDedupWindow is how long a spoken text suppresses an identical
	// request.
	DefaultDedupWindow = 5 * time.Second
)

// Utterance outcomes reported to metrics.
const (
	outcomeCompleted   = "completed"
	outcomeError       = "error"
	outcomeTimeout     = "timeout"
	outcomeInterrupted = "interrupted"
	outcomeDeduped     = "deduplicated"
	outcomeSkipped     = "skipped"
)

var (
	stepToken   = regexp.MustCompile(`(?i)\bstep\s+\d+\b|^\s*\d+[.)]\s*`)
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	folder      = cases.Fold()
)

// Normalize reduces text to the form used for duplicate detection: step
// numbering and punctuation removed, case folded, whitespace collapsed.
func Normalize(text string) string {
	s := stepToken.ReplaceAllString(text, " ")
	s = punctuation.ReplaceAllString(s, " ")
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Option configures a [Channel].
type Option func(*Channel)

// WithSettle sets the pause between consecutive utterances.
func WithSettle(d time.Duration) Option {
	return func(c *Channel) { c.settle = d }
}

// WithTimeout sets the forced-completion ceiling for a single utterance.
func WithTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithDedupWindow sets how long a started utterance suppresses repeats.
func WithDedupWindow(d time.Duration) Option {
	return func(c *Channel) { c.dedupWindow = d }
}

// WithClock replaces time.Now for dedup bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(c *Channel) { c.now = now }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// WithActivityHook registers fn to be called on its own goroutine whenever
// [Channel.Active] may have changed. fn should re-read Active rather than
// assume a direction.
func WithActivityHook(fn func()) Option {
	return func(c *Channel) { c.onActivity = fn }
}

type utterance struct {
	text       string
	norm       string
	onComplete func()
	once       sync.Once
}

func (u *utterance) complete() {
	u.once.Do(func() {
		if u.onComplete != nil {
			u.onComplete()
		}
	})
}

// Channel serializes speech output on a [device.Synthesizer].
//
// All exported methods are safe for concurrent use. Completion callbacks run
// on the Channel's dispatch goroutine (or a fresh goroutine for requests that
// never reach the queue) and must not block for long.
type Channel struct {
	synth       device.Synthesizer
	settle      time.Duration
	timeout     time.Duration
	dedupWindow time.Duration
	now         func() time.Time
	log         *slog.Logger
	metrics     *observe.Metrics
	onActivity  func()

	ctx    context.Context
	stop   context.CancelFunc
	notify chan struct{}
	done   chan struct{}

	mu           sync.Mutex
	queue        []*utterance
	active       *utterance
	activeCancel context.CancelFunc
	lastNorm     string
	lastAt       time.Time
	wasActive    bool
	closed       bool
}

// NewChannel creates a Channel speaking through synth and starts its dispatch
// goroutine. Call [Channel.Close] to stop it.
func NewChannel(synth device.Synthesizer, opts ...Option) *Channel {
	c := &Channel{
		synth:       synth,
		settle:      DefaultSettle,
		timeout:     DefaultTimeout,
		dedupWindow: DefaultDedupWindow,
		now:         time.Now,
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.ctx, c.stop = context.WithCancel(context.Background())
	go c.dispatch()
	return c
}

// Speak requests that text be spoken and calls onComplete (which may be nil)
// once the request is finished for any reason. Speak never blocks on
// playback and never interrupts an utterance already in progress.
func (c *Channel) Speak(text string, onComplete func()) {
	u := &utterance{text: text, onComplete: onComplete}

	if strings.TrimSpace(text) == "" || !c.synth.SpeechAvailable() {
		c.metrics.RecordUtterance(c.ctx, outcomeSkipped)
		go u.complete()
		return
	}
	u.norm = Normalize(text)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		go u.complete()
		return
	}
	if c.duplicateLocked(u.norm) {
		c.mu.Unlock()
		c.log.Debug("speech: dropped duplicate utterance", "text", text)
		c.metrics.RecordUtterance(c.ctx, outcomeDeduped)
		go u.complete()
		return
	}
	c.queue = append(c.queue, u)
	changed := c.activityChangedLocked()
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	if changed {
		c.signalActivity()
	}
}

// Active reports whether an utterance is playing or waiting to play.
func (c *Channel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

// Cancel drops every pending request, firing their completions on fresh
// goroutines, and interrupts the utterance currently playing.
func (c *Channel) Cancel(ctx context.Context) {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	interrupting := c.active != nil
	if c.activeCancel != nil {
		c.activeCancel()
	}
	c.lastNorm = ""
	changed := c.activityChangedLocked()
	c.mu.Unlock()

	if interrupting {
		if err := c.synth.CancelSpeech(ctx); err != nil && !errors.Is(err, device.ErrClosed) {
			c.log.Warn("speech: cancel failed", "err", err)
		}
	}
	for _, u := range pending {
		c.metrics.RecordUtterance(ctx, outcomeInterrupted)
		go u.complete()
	}
	if changed {
		c.signalActivity()
	}
}

// Close stops the dispatch goroutine after interrupting playback. Pending
// completions still fire. Close is idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	c.stop()
	<-c.done
	for _, u := range pending {
		u.complete()
	}
	return nil
}

// duplicateLocked reports whether norm repeats the most recently started
// utterance inside the dedup window or matches a request still queued.
func (c *Channel) duplicateLocked(norm string) bool {
	if norm == "" {
		return false
	}
	if norm == c.lastNorm && c.now().Sub(c.lastAt) < c.dedupWindow {
		return true
	}
	for _, q := range c.queue {
		if q.norm == norm {
			return true
		}
	}
	return false
}

func (c *Channel) activeLocked() bool {
	return c.active != nil || len(c.queue) > 0
}

// activityChangedLocked records the current activity and reports whether it
// differs from the last recorded value.
func (c *Channel) activityChangedLocked() bool {
	now := c.activeLocked()
	changed := now != c.wasActive
	c.wasActive = now
	return changed
}

func (c *Channel) signalActivity() {
	if c.onActivity != nil {
		go c.onActivity()
	}
}

// dispatch plays queued utterances one at a time until Close.
func (c *Channel) dispatch() {
	defer close(c.done)

	settle := time.NewTimer(0)
	if !settle.Stop() {
		<-settle.C
	}
	defer settle.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.notify:
		}

		for {
			u, ctx, ok := c.next()
			if !ok {
				break
			}
			c.play(ctx, u)
			more := c.finish(u)

			if more && c.settle > 0 {
				settle.Reset(c.settle)
				select {
				case <-c.ctx.Done():
					if !settle.Stop() {
						<-settle.C
					}
					return
				case <-settle.C:
				}
			}
		}
	}
}

// next pops the head of the queue and marks it active.
func (c *Channel) next() (*utterance, context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 || c.closed {
		return nil, nil, false
	}
	u := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]

	ctx, cancel := context.WithCancel(c.ctx)
	c.active = u
	c.activeCancel = cancel
	c.lastNorm = u.norm
	c.lastAt = c.now()
	return u, ctx, true
}

// play speaks u and returns when it ends, fails, is cancelled, or times out.
func (c *Channel) play(ctx context.Context, u *utterance) {
	start := time.Now()
	res := make(chan error, 1)
	go func() { res <- c.synth.Speak(ctx, u.text) }()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	outcome := outcomeCompleted
	select {
	case err := <-res:
		switch {
		case err == nil:
		case errors.Is(err, device.ErrInterrupted), errors.Is(err, context.Canceled):
			outcome = outcomeInterrupted
		default:
			outcome = outcomeError
			c.log.Warn("speech: utterance failed", "text", u.text, "err", err)
		}
	case <-ctx.Done():
		outcome = outcomeInterrupted
	case <-timer.C:
		outcome = outcomeTimeout
		c.log.Warn("speech: utterance timed out, forcing completion", "text", u.text, "timeout", c.timeout)
	}

	c.metrics.RecordUtterance(ctx, outcome)
	c.metrics.UtteranceDuration.Record(ctx, time.Since(start).Seconds())
}

// finish clears u as the active utterance, fires its completion, and reports
// whether more requests are queued.
func (c *Channel) finish(u *utterance) bool {
	c.mu.Lock()
	if c.active == u {
		c.activeCancel()
		c.active = nil
		c.activeCancel = nil
	}
	more := len(c.queue) > 0
	changed := c.activityChangedLocked()
	c.mu.Unlock()

	u.complete()
	if changed {
		c.signalActivity()
	}
	return more
}
