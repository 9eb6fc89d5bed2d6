// Package seen reports feed items to the server once they have been visible
// long enough to count as read.
package seen

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultThreshold = 0.6
	DefaultDwell     = 2 * time.Second

	reportTimeout = 15 * time.Second
)

// Timer is the part of *time.Timer the reporter needs.
type Timer interface {
	Stop() bool
}

// Clock schedules dwell timers.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock is backed by time.AfterFunc.
var RealClock Clock = realClock{}

// Marker sends the "seen" report for an item.
type Marker interface {
	MarkPostSeen(ctx context.Context, id string) error
}

type item struct {
	visible bool
	timer   Timer
	gen     uint64
}

// Reporter tracks dwell timers for observed items and reports each item at
// most once.
type Reporter struct {
	marker    Marker
	clock     Clock
	log       logrus.FieldLogger
	threshold float64
	dwell     time.Duration

	mu       sync.Mutex
	observed map[string]*item
	seen     map[string]struct{}
	gen      uint64
	closed   bool
	inflight sync.WaitGroup
}

// Option configures a Reporter.
type Option func(*Reporter)

func WithClock(c Clock) Option { return func(r *Reporter) { r.clock = c } }

func WithThreshold(t float64) Option { return func(r *Reporter) { r.threshold = t } }

func WithDwell(d time.Duration) Option { return func(r *Reporter) { r.dwell = d } }

// NewReporter creates a reporter that sends reports through m.
func NewReporter(m Marker, log logrus.FieldLogger, opts ...Option) *Reporter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Reporter{
		marker:    m,
		clock:     RealClock,
		log:       log.WithField("component", "seen"),
		threshold: DefaultThreshold,
		dwell:     DefaultDwell,
		observed:  make(map[string]*item),
		seen:      make(map[string]struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Observe arms visibility tracking for id. Items already reported are not
// re-armed.
func (r *Reporter) Observe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, done := r.seen[id]; done {
		return
	}
	if _, ok := r.observed[id]; !ok {
		r.observed[id] = &item{}
	}
}

// Unobserve disarms id and cancels its pending timer.
func (r *Reporter) Unobserve(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if it, ok := r.observed[id]; ok {
		r.stopLocked(it)
		delete(r.observed, id)
	}
}

// Update feeds an intersection ratio for id.
func (r *Reporter) Update(id string, ratio float64) {
	if ratio >= r.threshold {
		r.OnVisible(id)
	} else {
		r.OnHidden(id)
	}
}

// OnVisible starts the dwell timer for an observed item.
func (r *Reporter) OnVisible(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	it, ok := r.observed[id]
	if !ok || it.visible {
		return
	}
	it.visible = true
	r.gen++
	gen := r.gen
	it.gen = gen
	it.timer = r.clock.AfterFunc(r.dwell, func() { r.fire(id, gen) })
}

// OnHidden cancels a running dwell timer. The item stays armed.
func (r *Reporter) OnHidden(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if it, ok := r.observed[id]; ok {
		r.stopLocked(it)
	}
}

// Seen reports whether id was already reported.
func (r *Reporter) Seen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[id]
	return ok
}

// SeenCount returns the size of the seen set.
func (r *Reporter) SeenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// Reset forgets every observed and reported item, cancelling their timers.
// Used when the signed-in user changes.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, it := range r.observed {
		r.stopLocked(it)
		delete(r.observed, id)
	}
	r.seen = make(map[string]struct{})
}

// Close cancels every pending timer. Reports already sent finish on their
// own and their results are ignored.
func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, it := range r.observed {
		r.stopLocked(it)
		delete(r.observed, id)
	}
}

// Wait blocks until in-flight reports have finished.
func (r *Reporter) Wait() {
	r.inflight.Wait()
}

func (r *Reporter) stopLocked(it *item) {
	if it.timer != nil {
		it.timer.Stop()
		it.timer = nil
	}
	it.visible = false
	it.gen = 0
}

func (r *Reporter) fire(id string, gen uint64) {
	r.mu.Lock()
	it, ok := r.observed[id]
	if r.closed || !ok || it.gen != gen || !it.visible {
		r.mu.Unlock()
		return
	}
	if _, done := r.seen[id]; done {
		delete(r.observed, id)
		r.mu.Unlock()
		return
	}
	r.seen[id] = struct{}{}
	delete(r.observed, id)
	r.inflight.Add(1)
	r.mu.Unlock()

	go r.report(id)
}

func (r *Reporter) report(id string) {
	defer r.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), reportTimeout)
	defer cancel()

	err := r.marker.MarkPostSeen(ctx, id)

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}
	if err != nil {
		r.log.WithError(err).WithField("post_id", id).Warn("seen report failed")
		return
	}
	r.log.WithField("post_id", id).Debug("post reported as seen")
}
