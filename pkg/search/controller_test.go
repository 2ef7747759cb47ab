package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Spotify-Likes-Go/pkg/logging"
	"Spotify-Likes-Go/pkg/metrics"
	"Spotify-Likes-Go/pkg/music"
)

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeClock records timers and fires them on demand.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// fireAll runs every timer that has not been stopped.
func (c *fakeClock) fireAll() {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped {
			t.stopped = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// gatedSearcher blocks each query until its gate is closed. Queries without
// a gate return immediately.
type gatedSearcher struct {
	mu      sync.Mutex
	calls   []string
	gates   map[string]chan struct{}
	started chan string
	results map[string][]music.Candidate
	err     error
}

func newGatedSearcher() *gatedSearcher {
	return &gatedSearcher{
		gates:   map[string]chan struct{}{},
		started: make(chan string, 10),
		results: map[string][]music.Candidate{},
	}
}

func (s *gatedSearcher) SearchArtists(ctx context.Context, query string, limit int) ([]music.Candidate, error) {
	s.mu.Lock()
	s.calls = append(s.calls, query)
	gate := s.gates[query]
	res := s.results[query]
	err := s.err
	s.mu.Unlock()
	s.started <- query
	if gate != nil {
		<-gate
	}
	return res, err
}

func (s *gatedSearcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newController(t *testing.T, s music.Searcher, clock Clock) (*Controller, chan Result) {
	t.Helper()
	results := make(chan Result, 10)
	c := New(Options{
		Searcher: s,
		Delay:    300 * time.Millisecond,
		Limit:    5,
		Clock:    clock,
		Log:      logging.Discard(),
		Notify:   func(r Result) { results <- r },
	})
	return c, results
}

func receive(t *testing.T, ch chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

func TestRapidInputsCollapseToOneCall(t *testing.T) {
	s := newGatedSearcher()
	s.results["abc"] = []music.Candidate{{ID: "1", Name: "ABC"}}
	clock := &fakeClock{}
	c, results := newController(t, s, clock)

	c.Schedule("a")
	c.Schedule("ab")
	last := c.Schedule("abc")
	assert.Equal(t, 1, clock.armed(), "only one timer may be armed")
	assert.Zero(t, s.callCount(), "nothing is sent inside the quiet window")

	clock.fireAll()
	r := receive(t, results)
	assert.Equal(t, last, r.Seq)
	assert.Equal(t, "abc", r.Query)
	assert.Equal(t, []string{"abc"}, s.calls)
	assert.Len(t, r.Candidates, 1)
	assert.Equal(t, 300*time.Millisecond, clock.timers[2].d)
}

func TestRapidInputsRealClock(t *testing.T) {
	s := newGatedSearcher()
	results := make(chan Result, 10)
	c := New(Options{
		Searcher: s,
		Delay:    50 * time.Millisecond,
		Log:      logging.Discard(),
		Notify:   func(r Result) { results <- r },
	})
	c.Schedule("a")
	c.Schedule("ab")
	c.Schedule("abc")

	r := receive(t, results)
	assert.Equal(t, "abc", r.Query)
	assert.Equal(t, 1, s.callCount())
}

func TestLateStaleResponseIsDiscarded(t *testing.T) {
	s := newGatedSearcher()
	s.gates["abc"] = make(chan struct{})
	s.gates["xyz"] = make(chan struct{})
	s.results["abc"] = []music.Candidate{{ID: "a", Name: "abc"}}
	s.results["xyz"] = []music.Candidate{{ID: "x", Name: "xyz"}}
	clock := &fakeClock{}
	c, results := newController(t, s, clock)

	c.Schedule("abc")
	clock.fireAll()
	require.Equal(t, "abc", <-s.started)
	assert.Equal(t, Pending, c.State())

	xyz := c.Schedule("xyz")
	clock.fireAll()
	require.Equal(t, "xyz", <-s.started)

	close(s.gates["xyz"])
	r := receive(t, results)
	assert.Equal(t, xyz, r.Seq)
	assert.Equal(t, "xyz", r.Candidates[0].Name)
	assert.Equal(t, Idle, c.State())

	stale := metrics.Debounce.WithLabelValues("stale")
	before := testutil.ToFloat64(stale)
	close(s.gates["abc"])
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(stale) == before+1
	}, 2*time.Second, 5*time.Millisecond)

	select {
	case r := <-results:
		t.Fatalf("stale result delivered: %+v", r)
	default:
	}
}

func TestEmptyQueryShortCircuits(t *testing.T) {
	s := newGatedSearcher()
	clock := &fakeClock{}
	c, results := newController(t, s, clock)

	c.Schedule("abc")
	c.Schedule("   ")

	select {
	case r := <-results:
		assert.Empty(t, r.Candidates)
		assert.NotNil(t, r.Candidates)
		assert.NoError(t, r.Err)
	default:
		t.Fatal("empty query must be answered synchronously")
	}
	assert.Zero(t, clock.armed(), "pending timer should have been discarded")
	clock.fireAll()
	assert.Zero(t, s.callCount())
	assert.Equal(t, Idle, c.State())
}

func TestUpstreamErrorYieldsEmptyResult(t *testing.T) {
	s := newGatedSearcher()
	s.err = music.Upstream("search", errors.New("unreachable"))
	clock := &fakeClock{}
	c, results := newController(t, s, clock)

	c.Schedule("abc")
	clock.fireAll()
	r := receive(t, results)
	assert.Empty(t, r.Candidates)
	assert.True(t, music.IsUpstream(r.Err))
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, 1, s.callCount(), "failures are not retried")
}

func TestCancelDropsArmedTimer(t *testing.T) {
	s := newGatedSearcher()
	clock := &fakeClock{}
	c, results := newController(t, s, clock)

	c.Schedule("abc")
	c.Cancel()
	clock.fireAll()
	assert.Zero(t, s.callCount())
	assert.Empty(t, results)
}

func TestStaleArrivalWithNextQueryArmedIsIdle(t *testing.T) {
	s := newGatedSearcher()
	s.gates["abc"] = make(chan struct{})
	s.results["xyz"] = []music.Candidate{{ID: "x", Name: "xyz"}}
	clock := &fakeClock{}
	c, results := newController(t, s, clock)

	c.Schedule("abc")
	clock.fireAll()
	require.Equal(t, "abc", <-s.started)
	assert.Equal(t, Pending, c.State())

	// xyz waits on its timer while abc is still on the wire
	xyz := c.Schedule("xyz")
	assert.Equal(t, 1, clock.armed())
	close(s.gates["abc"])
	require.Eventually(t, func() bool {
		return c.State() == Idle
	}, 2*time.Second, 5*time.Millisecond, "no request is in flight")
	assert.Empty(t, results)
	assert.Equal(t, 1, s.callCount())

	clock.fireAll()
	require.Equal(t, "xyz", <-s.started)
	r := receive(t, results)
	assert.Equal(t, xyz, r.Seq)
	assert.Equal(t, Idle, c.State())
}
