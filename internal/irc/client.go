// Package irc supervises IRC server connections and turns their traffic
// into events.
package irc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-log/log"

	"github.com/dalnet/ircore/internal/callback"
	"github.com/dalnet/ircore/internal/config"
	"github.com/dalnet/ircore/internal/event"
	"github.com/dalnet/ircore/internal/metrics"
)

// Client owns the dispatch engine shared by every server.
type Client struct {
	dispatcher *event.Dispatcher
	callbacks  *callback.Registry
	pool       *event.Pool
	metrics    *metrics.Metrics
	ctx        context.Context

	mu      sync.RWMutex
	servers map[string]*Server
	closed  bool
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	metrics      *metrics.Metrics
	poolOpts     []event.PoolOption
	callbackOpts []callback.Option
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *clientOptions) {
		o.metrics = m
	}
}

// WithPoolOptions tunes the worker pool that runs dispatches.
func WithPoolOptions(opts ...event.PoolOption) Option {
	return func(o *clientOptions) {
		o.poolOpts = append(o.poolOpts, opts...)
	}
}

// WithSweepInterval sets how often expired callbacks are reclaimed.
func WithSweepInterval(d time.Duration) Option {
	return func(o *clientOptions) {
		o.callbackOpts = append(o.callbackOpts, callback.WithSweepInterval(d))
	}
}

// NewClient creates a client with the stock protocol handlers installed.
func NewClient(opts ...Option) *Client {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	pool := event.NewPool(o.poolOpts...)
	callbacks := callback.NewRegistry(pool, append([]callback.Option{callback.WithMetrics(o.metrics)}, o.callbackOpts...)...)
	c := &Client{
		pool:      pool,
		callbacks: callbacks,
		metrics:   o.metrics,
		ctx:       context.Background(),
		servers:   make(map[string]*Server),
		dispatcher: event.NewDispatcher(
			event.WithPool(pool),
			event.WithInterceptor(callbacks),
			event.WithMetrics(o.metrics),
		),
	}

	if err := c.dispatcher.RegisterInternal(c.stockHandlers()); err != nil {
		// the stock set is static; failing here is a programming error
		panic(fmt.Sprintf("irc: stock handlers rejected: %v", err))
	}
	callbacks.Start()
	return c
}

// NewClientFromConfig creates a client and one server per config entry.
func NewClientFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	c := NewClient(opts...)
	for _, sc := range cfg.Servers {
		s := &Server{
			Name:          sc.Name,
			URL:           sc.URL,
			Port:          sc.Port,
			TLS:           sc.TLSMode(),
			Proxy:         sc.Proxy,
			Nick:          sc.Nick,
			AltNick:       sc.Alternate,
			User:          cfg.Username,
			RealName:      cfg.IRCName,
			Password:      sc.ServerPass,
			Channels:      sc.Channels,
			SendDelay:     cfg.SendDelay,
			ProbeInterval: cfg.ProbeInterval,
			ProbeTimeout:  cfg.ProbeTimeout,
		}
		if err := c.AddServer(s); err != nil {
			c.Close(context.Background())
			return nil, err
		}
	}
	return c, nil
}

// Register adds application handlers.
func (c *Client) Register(set event.HandlerSet) error {
	return c.dispatcher.Register(set)
}

func (c *Client) Unregister(set event.HandlerSet, ignoreIfAbsent bool) error {
	return c.dispatcher.Unregister(set, ignoreIfAbsent)
}

// Callbacks returns the registry consulted before handlers run.
func (c *Client) Callbacks() *callback.Registry {
	return c.callbacks
}

// AddServer attaches s to the client and fills in defaults.
func (c *Client) AddServer(s *Server) error {
	if s.Name == "" || s.URL == "" || s.Nick == "" {
		return fmt.Errorf("server needs a name, url and nick")
	}
	if s.User == "" {
		s.User = s.Nick
	}
	if s.RealName == "" {
		s.RealName = s.Nick
	}
	if s.Port == 0 {
		s.Port = 6667
	}
	if s.ProbeInterval <= 0 {
		s.ProbeInterval = DefaultProbeInterval
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = DefaultProbeTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.servers[s.Name]; ok {
		return fmt.Errorf("server %q already added", s.Name)
	}
	s.client = c
	c.servers[s.Name] = s
	return nil
}

// Server returns the server called name, or nil.
func (c *Client) Server(name string) *Server {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.servers[name]
}

// Servers returns every server sorted by name.
func (c *Client) Servers() []*Server {
	c.mu.RLock()
	servers := make([]*Server, 0, len(c.servers))
	for _, s := range c.servers {
		servers = append(servers, s)
	}
	c.mu.RUnlock()

	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })
	return servers
}

// ConnectAll connects every disconnected server. Failures are collected;
// one bad server does not stop the others.
func (c *Client) ConnectAll(ctx context.Context) error {
	var errs []error
	for _, s := range c.Servers() {
		if s.State() != Disconnected {
			continue
		}
		if err := s.Connect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Close quits every connected server and stops the dispatch engine once
// the queued events ran or ctx is done.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	for _, s := range c.Servers() {
		if s.State() != Disconnected {
			s.Disconnect("Shutting down")
		}
	}
	c.callbacks.Stop()
	return c.pool.Stop(ctx)
}

// emit queues ev on the shard of s, keeping each server's events in
// arrival order.
func (c *Client) emit(s *Server, ev event.Event) {
	if err := c.dispatcher.Call(c.ctx, s.Name, ev); err != nil {
		log.Logf("[irc] %s: event dropped: %v", s.Name, err)
	}
}

// fire dispatches a derived event inline, on the shard already running.
func (c *Client) fire(ctx context.Context, ev event.Event) {
	c.dispatcher.Dispatch(ctx, ev)
}
