package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/five82/roomwatch/internal/metrics"
	"github.com/five82/roomwatch/internal/state"
)

// Fetcher loads the current items for one id. q.Date is always resolved to a
// concrete day before the call. Implementations must honour ctx.
type Fetcher[T any] func(ctx context.Context, id string, q Query) ([]T, error)

const (
	defaultInterval = 5 * time.Second
	defaultTimeout  = 10 * time.Second
)

// Options configures a Coordinator.
type Options[T any] struct {
	// Name labels logs and metrics, e.g. "alerts" or "readings".
	Name     string
	Fetch    Fetcher[T]
	Policy   MergePolicy
	Interval time.Duration
	// Timeout bounds a single fetch.
	Timeout time.Duration
	// NotFound reports errors that mean "no data" rather than failure.
	NotFound func(error) bool
	// Equal compares item slices. Defaults to reflect.DeepEqual with empty
	// and nil treated alike.
	Equal   func(a, b []T) bool
	Logger  *slog.Logger
	Metrics *metrics.Refresh
	Now     func() time.Time
}

type handle struct {
	seq    uint64
	cancel context.CancelFunc
}

// Coordinator keeps a reconciled collection in step with a remote source for
// the ids currently of interest. It runs at most one poll loop at a time and
// at most one in-flight fetch per id.
type Coordinator[T any] struct {
	opts     Options[T]
	log      *slog.Logger
	notifier state.Notifier

	mu      sync.Mutex
	coll    collection[T]
	ids     []string
	query   Query
	running bool
	gen     uint64
	seq     uint64
	handles map[string]*handle
	ctx     context.Context
	cancel  context.CancelFunc
	wake    chan struct{}

	loops   sync.WaitGroup
	fetches sync.WaitGroup
}

// New builds a stopped coordinator. Fetch is required.
func New[T any](opts Options[T]) *Coordinator[T] {
	if opts.Fetch == nil {
		panic("refresh: Options.Fetch is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Name == "" {
		opts.Name = "refresh"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator[T]{
		opts:    opts,
		log:     logger.With("loop", opts.Name),
		coll:    newCollection(opts.Equal),
		handles: make(map[string]*handle),
	}
}

// Name returns the loop label.
func (c *Coordinator[T]) Name() string {
	return c.opts.Name
}

// Start cancels any running loop, fetches every id immediately and then keeps
// polling the current id set while the query targets today.
func (c *Coordinator[T]) Start(ids []string, q Query) {
	c.mu.Lock()
	now := c.opts.Now()
	if !c.query.sameDay(q, now) {
		c.coll.markRebase()
	}
	c.stopLocked()

	c.gen++
	gen := c.gen
	c.ids = dedupe(ids)
	c.query = q
	for _, id := range c.ids {
		c.coll.reserve(id)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wake = make(chan struct{}, 1)
	c.running = true
	c.issueLocked(true)

	ctx, wake := c.ctx, c.wake
	c.loops.Add(1)
	c.mu.Unlock()

	c.log.Debug("refresh loop started", "ids", len(ids), "date", q.Day(now).Format(time.DateOnly))
	go c.loop(ctx, gen, wake)
}

// SetIDs replaces the monitored id set. The next tick fetches the new set.
// Ids that drop out keep their last entity but lose any in-flight fetch.
func (c *Coordinator[T]) SetIDs(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := dedupe(ids)
	keep := make(map[string]struct{}, len(next))
	for _, id := range next {
		keep[id] = struct{}{}
		c.coll.reserve(id)
	}
	for id, h := range c.handles {
		if _, ok := keep[id]; !ok {
			h.cancel()
			delete(c.handles, id)
		}
	}
	c.ids = next
}

// SetQuery changes the fetch parameters. A running coordinator fetches
// immediately with the new query and re-evaluates whether to keep polling.
func (c *Coordinator[T]) SetQuery(q Query) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.query.sameDay(q, c.opts.Now()) {
		c.coll.markRebase()
	}
	c.query = q
	if !c.running {
		return
	}
	c.issueLocked(true)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Refresh fetches every monitored id now, cancelling fetches already in flight.
func (c *Coordinator[T]) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.issueLocked(true)
	}
}

// Stop cancels the loop and all in-flight fetches. No result is applied to
// the collection after Stop returns. Stopping a stopped coordinator is a no-op.
func (c *Coordinator[T]) Stop() {
	c.mu.Lock()
	stopped := c.stopLocked()
	c.mu.Unlock()
	if stopped {
		c.log.Debug("refresh loop stopped")
	}
}

// Wait blocks until goroutines from stopped runs have exited.
func (c *Coordinator[T]) Wait() {
	c.loops.Wait()
	c.fetches.Wait()
}

// Reset drops every entity. It is meant for a stopped coordinator, e.g. after
// the user logs out.
func (c *Coordinator[T]) Reset() {
	c.mu.Lock()
	c.coll.reset()
	for _, id := range c.ids {
		c.coll.reserve(id)
	}
	c.mu.Unlock()
	c.opts.Metrics.SetEntities(c.opts.Name, 0)
	c.notifier.Notify()
}

// Acknowledge clears the liveness flag of id.
func (c *Coordinator[T]) Acknowledge(id string) {
	c.mu.Lock()
	changed := c.coll.acknowledge(id)
	c.mu.Unlock()
	if changed {
		c.notifier.Notify()
	}
}

// Snapshot returns a copy of every fetched entity in stable order.
func (c *Coordinator[T]) Snapshot() []Entity[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coll.snapshot()
}

// Entity returns a copy of one entity.
func (c *Coordinator[T]) Entity(id string) (Entity[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coll.get(id)
}

// IDs returns the monitored id set.
func (c *Coordinator[T]) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

// Query returns the current fetch parameters.
func (c *Coordinator[T]) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// Running reports whether a loop is active.
func (c *Coordinator[T]) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Subscribe returns a channel signalled after every collection change.
func (c *Coordinator[T]) Subscribe() (<-chan struct{}, func()) {
	return c.notifier.Subscribe()
}

func (c *Coordinator[T]) stopLocked() bool {
	if !c.running {
		return false
	}
	c.running = false
	c.gen++
	c.cancel()
	for id, h := range c.handles {
		h.cancel()
		delete(c.handles, id)
	}
	return true
}

func (c *Coordinator[T]) loop(ctx context.Context, gen uint64, wake <-chan struct{}) {
	defer c.loops.Done()

	for {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		recurring := c.query.IsToday(c.opts.Now())
		c.mu.Unlock()

		var (
			timer *time.Timer
			tick  <-chan time.Time
		)
		if recurring {
			timer = time.NewTimer(c.opts.Interval)
			tick = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case <-wake:
			stopTimer(timer)
		case <-tick:
			c.tick(gen)
		}
	}
}

// tick issues a scheduled round. Ids whose previous fetch is still in flight
// are skipped.
func (c *Coordinator[T]) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || !c.running {
		return
	}
	c.issueLocked(false)
}

// issueLocked starts one fetch per monitored id. With force set, an
// in-flight fetch is cancelled and replaced; otherwise the id is skipped.
func (c *Coordinator[T]) issueLocked(force bool) {
	q := Query{Date: c.query.Day(c.opts.Now())}
	for _, id := range c.ids {
		if h, ok := c.handles[id]; ok {
			if !force {
				continue
			}
			h.cancel()
		}
		c.seq++
		ctx, cancel := context.WithTimeout(c.ctx, c.opts.Timeout)
		c.handles[id] = &handle{seq: c.seq, cancel: cancel}
		c.fetches.Add(1)
		go c.fetch(ctx, c.gen, id, c.seq, q)
	}
}

func (c *Coordinator[T]) fetch(ctx context.Context, gen uint64, id string, seq uint64, q Query) {
	defer c.fetches.Done()

	started := time.Now()
	items, err := c.opts.Fetch(ctx, id, q)
	took := time.Since(started)

	outcome := metrics.OutcomeOK
	if err != nil && c.opts.NotFound != nil && c.opts.NotFound(err) {
		items, err = nil, nil
		outcome = metrics.OutcomeNotFound
	}

	c.mu.Lock()
	h, ok := c.handles[id]
	if c.gen != gen || !ok || h.seq != seq {
		c.mu.Unlock()
		c.opts.Metrics.ObserveFetch(c.opts.Name, metrics.OutcomeDiscarded, took)
		return
	}
	delete(c.handles, id)
	h.cancel()

	if err != nil {
		c.mu.Unlock()
		c.opts.Metrics.ObserveFetch(c.opts.Name, metrics.OutcomeError, took)
		c.log.Warn("refresh fetch failed", "id", id, "err", err)
		return
	}

	changed, raised := c.coll.merge(id, items, c.opts.Policy, c.opts.Now())
	size := c.coll.size()
	c.mu.Unlock()

	c.opts.Metrics.ObserveFetch(c.opts.Name, outcome, took)
	c.opts.Metrics.SetEntities(c.opts.Name, size)
	if raised {
		c.opts.Metrics.LiveRaised(c.opts.Name)
		c.log.Debug("new items", "id", id, "count", len(items))
	}
	if changed {
		c.notifier.Notify()
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
