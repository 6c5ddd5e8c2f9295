// Package callback keeps one-shot expectations for inbound packets, such as
// the reply to a PING or the end of a LINKS listing.
//
// A Callback either matches one packet or times out, never both and never
// twice. The registry is consulted tier by tier before ordinary event
// handlers run.
package callback

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-log/log"

	"github.com/dalnet/ircore/internal/event"
	"github.com/dalnet/ircore/internal/metrics"
	"github.com/dalnet/ircore/internal/packet"
)

// ErrInvalidCallback is returned for a callback without a predicate.
var ErrInvalidCallback = errors.New("invalid callback")

const (
	DefaultTimeout       = 30 * time.Second
	DefaultSweepInterval = time.Second
)

type state int

const (
	pending state = iota
	matched
	timedOut
)

// Callback waits for a packet.
type Callback struct {
	// Codes lists the commands or numerics the callback listens to. Nil
	// listens to everything.
	Codes []string

	Priority event.Priority

	// Timeout is measured from registration. Zero means DefaultTimeout.
	Timeout time.Duration

	// OnPacket returns true when the packet is the one it waited for.
	OnPacket func(p packet.Packet) bool

	// OnTimeout runs asynchronously if nothing matched in time.
	OnTimeout func()

	// Scope restricts the callback to packets from one connection. Empty
	// accepts packets from any connection.
	Scope string

	mu       sync.Mutex
	state    state
	deadline time.Time
}

func (c *Callback) listens(code string) bool {
	if c.Codes == nil {
		return true
	}
	for _, want := range c.Codes {
		if strings.EqualFold(want, code) {
			return true
		}
	}
	return false
}

// Deadline returns the absolute expiry time, set by Register.
func (c *Callback) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// Scheduler runs timeout notifications off the dispatch path.
type Scheduler interface {
	Go(fn func()) error
}

// Registry holds callbacks partitioned by priority, each tier ordered by
// deadline.
type Registry struct {
	mu    sync.Mutex
	tiers map[event.Priority][]*Callback

	sched   Scheduler
	metrics *metrics.Metrics
	now     func() time.Time

	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// Option configures a Registry.
type Option func(*Registry)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithSweepInterval sets how often Start sweeps idle expirations.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

// NewRegistry returns a registry that delivers timeouts through sched. A nil
// sched runs each timeout in its own goroutine.
func NewRegistry(sched Scheduler, opts ...Option) *Registry {
	r := &Registry{
		tiers:    make(map[event.Priority][]*Callback),
		sched:    sched,
		now:      time.Now,
		interval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds cb. A callback must not be registered twice.
func (r *Registry) Register(cb *Callback) error {
	if cb == nil || cb.OnPacket == nil {
		return ErrInvalidCallback
	}
	if !cb.Priority.Valid() {
		return ErrInvalidCallback
	}
	timeout := cb.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cb.mu.Lock()
	cb.state = pending
	cb.deadline = r.now().Add(timeout)
	deadline := cb.deadline
	cb.mu.Unlock()

	r.mu.Lock()
	tier := r.tiers[cb.Priority]
	i := sort.Search(len(tier), func(i int) bool {
		return tier[i].deadline.After(deadline)
	})
	next := make([]*Callback, 0, len(tier)+1)
	next = append(next, tier[:i]...)
	next = append(next, cb)
	next = append(next, tier[i:]...)
	r.tiers[cb.Priority] = next
	n := r.lenLocked()
	r.mu.Unlock()

	r.metrics.CallbacksPending(n)
	return nil
}

// Remove drops cb without firing anything. It reports whether cb was still
// pending.
func (r *Registry) Remove(cb *Callback) bool {
	cb.mu.Lock()
	was := cb.state == pending
	if was {
		cb.state = matched
	}
	cb.mu.Unlock()
	r.remove(cb)
	return was
}

func (r *Registry) remove(cb *Callback) {
	r.mu.Lock()
	tier := r.tiers[cb.Priority]
	for i, c := range tier {
		if c == cb {
			next := make([]*Callback, 0, len(tier)-1)
			next = append(next, tier[:i]...)
			next = append(next, tier[i+1:]...)
			r.tiers[cb.Priority] = next
			break
		}
	}
	n := r.lenLocked()
	r.mu.Unlock()
	r.metrics.CallbacksPending(n)
}

// Dispatch offers pk to the callbacks of one tier. Expired callbacks met on
// the way time out. The first callback whose predicate accepts pk is removed
// and Dispatch returns true without consulting the rest of the tier.
func (r *Registry) Dispatch(p event.Priority, scope string, pk packet.Packet) bool {
	r.mu.Lock()
	tier := r.tiers[p]
	r.mu.Unlock()

	now := r.now()
	for _, cb := range tier {
		if r.offer(cb, now, scope, pk) {
			return true
		}
	}
	return false
}

// offer runs under the callback's own lock so the predicate and the
// timeout cannot both win, while other callbacks stay free to register.
func (r *Registry) offer(cb *Callback, now time.Time, scope string, pk packet.Packet) bool {
	cb.mu.Lock()
	if cb.state != pending {
		cb.mu.Unlock()
		return false
	}
	if !now.Before(cb.deadline) {
		cb.state = timedOut
		cb.mu.Unlock()
		r.expire(cb)
		return false
	}
	if (cb.Scope != "" && scope != "" && cb.Scope != scope) || !cb.listens(pk.Command) {
		cb.mu.Unlock()
		return false
	}

	ok := r.match(cb, pk)
	if ok {
		cb.state = matched
	}
	cb.mu.Unlock()

	if ok {
		r.remove(cb)
		r.metrics.CallbackMatched()
	}
	return ok
}

func (r *Registry) match(cb *Callback, pk packet.Packet) (ok bool) {
	defer func() {
		if v := recover(); v != nil {
			log.Logf("[callback] predicate panicked on %s: %v", pk.Command, v)
			ok = false
		}
	}()
	return cb.OnPacket(pk)
}

func (r *Registry) expire(cb *Callback) {
	r.remove(cb)
	r.metrics.CallbackExpired()
	if cb.OnTimeout == nil {
		return
	}
	if r.sched == nil || r.sched.Go(cb.OnTimeout) != nil {
		go cb.OnTimeout()
	}
}

// Sweep times out every expired callback.
func (r *Registry) Sweep() {
	now := r.now()

	r.mu.Lock()
	var expired []*Callback
	for _, tier := range r.tiers {
		for _, cb := range tier {
			// tiers are ordered by deadline
			if now.Before(cb.deadline) {
				break
			}
			expired = append(expired, cb)
		}
	}
	r.mu.Unlock()

	for _, cb := range expired {
		cb.mu.Lock()
		if cb.state != pending {
			cb.mu.Unlock()
			continue
		}
		cb.state = timedOut
		cb.mu.Unlock()
		r.expire(cb)
	}
}

// Len returns the number of pending callbacks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lenLocked()
}

func (r *Registry) lenLocked() int {
	n := 0
	for _, tier := range r.tiers {
		n += len(tier)
	}
	return n
}

// Start runs Sweep periodically until Stop.
func (r *Registry) Start() {
	r.mu.Lock()
	if r.stop != nil {
		r.mu.Unlock()
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

// Stop ends the sweep loop started by Start.
func (r *Registry) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}
