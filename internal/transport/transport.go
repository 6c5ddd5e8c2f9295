// Package transport moves IRC lines over a socket.
//
// A Transport runs two goroutines per connection. The receiver reads lines
// with a short timeout and hands each one to the owner. The sender drains a
// queue at a fixed pace so that servers do not disconnect the client for
// flooding; producers only append to the queue and never block on the
// socket.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-log/log"

	"github.com/dalnet/ircore/internal/metrics"
)

var (
	// ErrConnectFailed wraps socket and TLS setup failures.
	ErrConnectFailed = errors.New("connect failed")

	// ErrClosed is returned when writing to a stopped transport.
	ErrClosed = errors.New("transport closed")
)

const (
	DefaultReadTimeout = time.Second
	DefaultSendDelay   = 500 * time.Millisecond
	DefaultDialTimeout = 30 * time.Second
)

// Hooks connect a Transport to its owner.
type Hooks struct {
	// Ingest receives every complete line verbatim, without its terminator.
	// It runs on the receiver goroutine.
	Ingest func(line string)

	// OnClosed is called once when the receiver sees the connection end.
	// It is not called for a Kill initiated by the owner. It runs on the
	// receiver goroutine, so it must not call Kill synchronously.
	OnClosed func(err error)
}

// Options tune the loops.
type Options struct {
	// Name labels log lines and metrics, usually the server name.
	Name string

	ReadTimeout time.Duration
	SendDelay   time.Duration

	Metrics *metrics.Metrics
}

func (o *Options) setDefaults() {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.SendDelay < 0 {
		o.SendDelay = 0
	} else if o.SendDelay == 0 {
		o.SendDelay = DefaultSendDelay
	}
}

// Transport is a duplex line transport for one connection.
type Transport struct {
	conn  lineConn
	opts  Options
	hooks Hooks

	mu     sync.Mutex
	urgent []string
	normal []string
	wake   chan struct{}

	writeMu sync.Mutex

	stopping chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
	killOnce sync.Once
	wg       sync.WaitGroup
}

// Dial connects to e and returns a started Transport.
func Dial(ctx context.Context, e Endpoint, opts Options, hooks Hooks) (*Transport, error) {
	if e.DialTimeout == 0 {
		e.DialTimeout = DefaultDialTimeout
	}
	conn, err := dial(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnectFailed, e.Addr(), err)
	}
	t := newTransport(conn, opts, hooks)
	t.start()
	return t, nil
}

func newTransport(conn lineConn, opts Options, hooks Hooks) *Transport {
	opts.setDefaults()
	return &Transport{
		conn:     conn,
		opts:     opts,
		hooks:    hooks,
		wake:     make(chan struct{}, 1),
		stopping: make(chan struct{}),
	}
}

func (t *Transport) start() {
	t.wg.Add(2)
	go t.receive()
	go t.send()
}

// Enqueue appends a line to the send queue.
func (t *Transport) Enqueue(line string) error {
	return t.enqueue(line, false)
}

// EnqueueFirst puts a line ahead of every line added with Enqueue. Lines
// added with EnqueueFirst keep their relative order.
func (t *Transport) EnqueueFirst(line string) error {
	return t.enqueue(line, true)
}

func (t *Transport) enqueue(line string, first bool) error {
	if t.stopped.Load() {
		return ErrClosed
	}
	t.mu.Lock()
	if first {
		t.urgent = append(t.urgent, line)
	} else {
		t.normal = append(t.normal, line)
	}
	depth := len(t.urgent) + len(t.normal)
	t.mu.Unlock()

	t.opts.Metrics.SendQueue(t.opts.Name, depth)
	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of queued lines.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.urgent) + len(t.normal)
}

// WriteNow writes a line immediately, bypassing the queue and the pacing.
func (t *Transport) WriteNow(line string) error {
	if t.stopped.Load() {
		return ErrClosed
	}
	return t.write(line)
}

func (t *Transport) write(line string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteLine(line); err != nil {
		t.opts.Metrics.SendError(t.opts.Name)
		return err
	}
	t.opts.Metrics.LineSent(t.opts.Name)
	return nil
}

func (t *Transport) next() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var line string
	switch {
	case len(t.urgent) > 0:
		line, t.urgent = t.urgent[0], t.urgent[1:]
	case len(t.normal) > 0:
		line, t.normal = t.normal[0], t.normal[1:]
	default:
		return "", false
	}
	t.opts.Metrics.SendQueue(t.opts.Name, len(t.urgent)+len(t.normal))
	return line, true
}

func (t *Transport) send() {
	defer t.wg.Done()

	for {
		line, ok := t.next()
		if !ok {
			select {
			case <-t.stopping:
				return
			case <-t.wake:
				continue
			}
		}

		if err := t.write(line); err != nil {
			// dropped; reconnecting is the owner's business
			log.Logf("[transport] %s: send failed, line dropped: %v", t.opts.Name, err)
		}

		select {
		case <-t.stopping:
			return
		case <-time.After(t.opts.SendDelay):
		}
	}
}

func (t *Transport) receive() {
	defer t.wg.Done()

	for !t.stopped.Load() {
		line, err := t.conn.ReadLine(time.Now().Add(t.opts.ReadTimeout))
		if err != nil {
			if errors.Is(err, errReadTimeout) {
				continue
			}
			if t.stopped.Load() {
				return
			}
			if isTerminal(err) {
				log.Logf("[transport] %s: connection closed: %v", t.opts.Name, err)
				if t.hooks.OnClosed != nil {
					t.hooks.OnClosed(err)
				}
				return
			}
			log.Logf("[transport] %s: read error: %v", t.opts.Name, err)
			select {
			case <-t.stopping:
				return
			case <-time.After(t.opts.ReadTimeout):
			}
			continue
		}
		if line == "" {
			continue
		}

		t.opts.Metrics.LineReceived(t.opts.Name)
		if t.hooks.Ingest != nil {
			t.hooks.Ingest(line)
		}
	}
}

// AskStop asks both loops to exit at their next iteration. It does not wait.
func (t *Transport) AskStop() {
	t.stopOnce.Do(func() {
		t.stopped.Store(true)
		close(t.stopping)
	})
}

// Kill stops both loops, waits for them to exit and closes the socket.
// Calling Kill more than once is safe.
func (t *Transport) Kill() {
	t.AskStop()
	t.killOnce.Do(func() {
		t.wg.Wait()
		if err := t.conn.Close(); err != nil {
			log.Logf("[transport] %s: close: %v", t.opts.Name, err)
		}
		t.opts.Metrics.SendQueue(t.opts.Name, 0)
	})
}

// Stopped reports whether AskStop or Kill was called.
func (t *Transport) Stopped() bool {
	return t.stopped.Load()
}
