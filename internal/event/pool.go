package event

import (
	"context"
	"errors"
	"hash/fnv"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/go-log/log"
)

// ErrPoolStopped is returned when submitting to a stopped pool.
var ErrPoolStopped = errors.New("worker pool stopped")

const (
	DefaultShards    = 8
	DefaultQueueSize = 1024
)

// Pool runs tasks on a fixed set of shards. Tasks submitted with the same
// key always land on the same shard and run in submission order. Shard
// queues grow as needed, so a task may submit more tasks to its own shard.
type Pool struct {
	shards []*shard
	next   atomic.Uint32

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

type shard struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
}

func newShard(capacity int) *shard {
	s := &shard{tasks: make([]func(), 0, capacity)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *shard) push(fn func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, fn)
	s.mu.Unlock()
	s.cond.Signal()
}

// pop waits for the next task. It returns false once the shard is closed
// and drained.
func (s *shard) pop() (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.tasks) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.tasks) == 0 {
		return nil, false
	}
	task := s.tasks[0]
	s.tasks[0] = nil
	s.tasks = s.tasks[1:]
	return task, true
}

func (s *shard) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// PoolOption configures a Pool.
type PoolOption func(*poolConfig)

type poolConfig struct {
	shards    int
	queueSize int
}

// WithShards sets the number of shards.
func WithShards(n int) PoolOption {
	return func(c *poolConfig) {
		if n > 0 {
			c.shards = n
		}
	}
}

// WithQueueSize sets the initial queue capacity of each shard.
func WithQueueSize(n int) PoolOption {
	return func(c *poolConfig) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// NewPool starts a pool.
func NewPool(opts ...PoolOption) *Pool {
	cfg := poolConfig{shards: DefaultShards, queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	p := &Pool{shards: make([]*shard, cfg.shards)}
	for i := range p.shards {
		p.shards[i] = newShard(cfg.queueSize)
		p.wg.Add(1)
		go p.worker(p.shards[i])
	}
	return p
}

func (p *Pool) worker(s *shard) {
	defer p.wg.Done()
	for {
		task, ok := s.pop()
		if !ok {
			return
		}
		run(task)
	}
}

func run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Logf("[pool] task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	task()
}

func (p *Pool) shard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return p.shards[h.Sum32()%uint32(len(p.shards))]
}

// Submit queues fn on the shard owning key. It never blocks.
func (p *Pool) Submit(key string, fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	p.shard(key).push(fn)
	return nil
}

// Go runs fn on any shard. It never blocks.
func (p *Pool) Go(fn func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	i := p.next.Add(1) % uint32(len(p.shards))
	p.shards[i].push(fn)
	return nil
}

// Stop refuses new tasks and waits until the queued ones finished or ctx
// is done.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	for _, s := range p.shards {
		s.close()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
