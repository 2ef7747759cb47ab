// Package search implements the debounced artist lookup used by the
// autocomplete. Bursts of Schedule calls collapse into a single trailing
// request and responses for superseded queries are dropped.
package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"Spotify-Likes-Go/pkg/metrics"
	"Spotify-Likes-Go/pkg/music"
)

// State reports whether a request is outstanding.
type State int

const (
	Idle State = iota
	Pending
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "idle"
}

// Result is delivered once per completed, non-stale request. Seq identifies
// the Schedule call that produced it.
type Result struct {
	Seq        uint64
	Query      string
	Candidates []music.Candidate
	Err        error
}

// Options configures a Controller.
type Options struct {
	Searcher music.Searcher
	Delay    time.Duration
	Limit    int
	// Notify receives results. It is called from timer or request
	// goroutines and must not block for long.
	Notify  func(Result)
	Clock   Clock
	Log     logrus.FieldLogger
	Timeout time.Duration
}

// Controller debounces searches. It is safe for concurrent use.
type Controller struct {
	searcher music.Searcher
	delay    time.Duration
	limit    int
	notify   func(Result)
	clock    Clock
	log      logrus.FieldLogger
	timeout  time.Duration

	mu    sync.Mutex
	seq   uint64
	timer Timer
	state State
	// inflight is the seq of the request on the wire, 0 when none.
	inflight uint64
}

// New returns a Controller. Missing options fall back to a 300ms delay, a
// limit of 10, the real clock and the standard logrus logger.
func New(opts Options) *Controller {
	c := &Controller{
		searcher: opts.Searcher,
		delay:    opts.Delay,
		limit:    opts.Limit,
		notify:   opts.Notify,
		clock:    opts.Clock,
		log:      opts.Log,
		timeout:  opts.Timeout,
	}
	if c.delay <= 0 {
		c.delay = 300 * time.Millisecond
	}
	if c.limit <= 0 {
		c.limit = 10
	}
	if c.clock == nil {
		c.clock = RealClock
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	if c.timeout <= 0 {
		c.timeout = 10 * time.Second
	}
	if c.notify == nil {
		c.notify = func(Result) {}
	}
	return c
}

// State returns the current fetch state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Schedule records intent to search for query and returns its sequence
// number. Any earlier timer is discarded, so only the latest query within
// the quiet window is sent. An empty query is answered immediately with an
// empty result.
func (c *Controller) Schedule(query string) uint64 {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	metrics.Debounce.WithLabelValues("scheduled").Inc()

	if strings.TrimSpace(query) == "" {
		c.state = Idle
		c.inflight = 0
		c.mu.Unlock()
		metrics.Debounce.WithLabelValues("short_circuit").Inc()
		c.notify(Result{Seq: seq, Query: query, Candidates: []music.Candidate{}})
		return seq
	}

	c.timer = c.clock.AfterFunc(c.delay, func() { c.fire(seq, query) })
	c.mu.Unlock()
	return seq
}

// Cancel discards any armed timer and marks outstanding requests as stale.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.state = Idle
	c.inflight = 0
}

func (c *Controller) fire(seq uint64, query string) {
	c.mu.Lock()
	if seq != c.seq {
		// replaced after the timer had already started running
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = Pending
	c.inflight = seq
	c.mu.Unlock()
	metrics.Debounce.WithLabelValues("fired").Inc()

	go c.run(seq, query)
}

func (c *Controller) run(seq uint64, query string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	candidates, err := c.searcher.SearchArtists(ctx, query, c.limit)
	if err != nil {
		if !errors.Is(err, music.ErrValidation) {
			c.log.WithError(err).WithField("query", query).Warn("artist search failed")
		}
		candidates = []music.Candidate{}
	}
	if candidates == nil {
		candidates = []music.Candidate{}
	}

	c.mu.Lock()
	if seq == c.inflight {
		// nothing is on the wire any more, even if this answer is stale
		c.inflight = 0
		c.state = Idle
	}
	if seq != c.seq {
		c.mu.Unlock()
		metrics.Debounce.WithLabelValues("stale").Inc()
		c.log.WithField("query", query).Debug("discarding stale search result")
		return
	}
	c.mu.Unlock()

	c.notify(Result{Seq: seq, Query: query, Candidates: candidates, Err: err})
}
