package irc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-log/log"

	"github.com/dalnet/ircore/internal/callback"
	"github.com/dalnet/ircore/internal/event"
	"github.com/dalnet/ircore/internal/packet"
	"github.com/dalnet/ircore/internal/transport"
)

var (
	// ErrNotConnected is returned when sending on a disconnected server.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected is returned by Connect on a live server.
	ErrAlreadyConnected = errors.New("already connected")
)

const (
	DefaultProbeInterval = 120 * time.Second
	DefaultProbeTimeout  = 60 * time.Second

	// MaxNickAttempts bounds the replacement nicks tried during registration.
	MaxNickAttempts = 5
)

// State is the lifecycle position of a Server.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Joined
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Joined:
		return "joined"
	default:
		return "unknown"
	}
}

// Server is one IRC network connection. The exported fields are read when
// Connect is called.
type Server struct {
	Name  string
	URL   string
	Port  int
	TLS   transport.TLSMode
	Proxy string

	Nick     string
	AltNick  string
	User     string
	RealName string
	Password string
	Channels []string

	SendDelay     time.Duration
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration

	client *Client

	mu    sync.Mutex
	state State
	nick  string
	// nickTries counts replacement nicks sent since Connect.
	nickTries int
	conn      *transport.Transport
	// gen counts connections; late callbacks of an old connection must
	// not end a newer one.
	gen   uint64
	ended bool
	stop  chan struct{}
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentNick returns the nick the server knows the client by.
func (s *Server) CurrentNick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

// IsSelf reports whether nick is the client's current nick.
func (s *Server) IsSelf(nick string) bool {
	return sameNick(nick, s.CurrentNick())
}

// Channel returns a handle for name on this server.
func (s *Server) Channel(name string) *Channel {
	return &Channel{Name: name, server: s}
}

func (s *Server) endpoint() transport.Endpoint {
	return transport.Endpoint{Host: s.URL, Port: s.Port, TLS: s.TLS, Proxy: s.Proxy}
}

// Connect dials the server and starts registration. It returns once the
// socket is up; the welcome arrives later as ServerJoined.
func (s *Server) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Disconnected {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = Connecting
	s.gen++
	gen := s.gen
	s.ended = false
	s.mu.Unlock()

	log.Logf("[irc] %s: connecting to %s (tls %s)", s.Name, s.endpoint().Addr(), s.TLS)

	conn, err := transport.Dial(ctx, s.endpoint(), transport.Options{
		Name:      s.Name,
		SendDelay: s.SendDelay,
		Metrics:   s.client.metrics,
	}, transport.Hooks{
		Ingest: func(line string) { s.queue(gen, line) },
		OnClosed: func(err error) {
			s.lost(gen, "connection closed", err)
		},
	})
	if err != nil {
		s.mu.Lock()
		s.state = Disconnected
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.state = Connected
	s.nick = s.Nick
	s.nickTries = 0
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	if s.Password != "" {
		conn.EnqueueFirst(packet.Build(packet.Pass(s.Password)))
	}
	conn.EnqueueFirst(packet.Build(packet.Nick(s.Nick)))
	conn.EnqueueFirst(packet.Build(packet.User(s.User, s.RealName)))

	go s.probe(gen, stop)
	return nil
}

// Disconnect sends QUIT right away and closes the connection. It emits
// ClientQuitServer.
func (s *Server) Disconnect(reason string) error {
	s.mu.Lock()
	if s.state == Disconnected || s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	gen, conn := s.gen, s.conn
	s.mu.Unlock()

	if err := conn.WriteNow(packet.Build(packet.Quit(reason))); err != nil {
		log.Logf("[irc] %s: quit: %v", s.Name, err)
	}
	s.terminate(gen, &ClientQuitServer{Server: s, Reason: reason}, "")
	return nil
}

// lost ends the connection gen with ConnectionLost.
func (s *Server) lost(gen uint64, reason string, err error) {
	s.terminate(gen, &ConnectionLost{Server: s, Reason: reason, Err: err}, reason)
}

// terminate moves the server to Disconnected and emits ev, the single
// terminal event of connection gen. Later calls for the same connection
// do nothing.
func (s *Server) terminate(gen uint64, ev event.Event, lostReason string) bool {
	s.mu.Lock()
	if gen != s.gen || s.ended || s.state == Disconnected {
		s.mu.Unlock()
		return false
	}
	s.ended = true
	s.state = Disconnected
	conn := s.conn
	s.conn = nil
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.mu.Unlock()

	if conn != nil {
		// never on the caller's goroutine: it may be the receiver itself
		go conn.Kill()
	}
	if lostReason != "" {
		log.Logf("[irc] %s: connection lost: %s", s.Name, lostReason)
		s.client.metrics.ConnectionLost(s.Name, lostReason)
	}
	s.client.emit(s, ev)
	return true
}

// queue parses one raw line from connection gen and hands it to the
// dispatcher.
func (s *Server) queue(gen uint64, line string) {
	p, err := packet.Parse(line)
	if err != nil {
		log.Logf("[irc] %s: dropping line %q: %v", s.Name, line, err)
		return
	}
	s.mu.Lock()
	current := gen == s.gen && !s.ended
	s.mu.Unlock()
	if !current {
		return
	}
	s.client.emit(s, &PacketReceived{Server: s, pk: p})
}

func (s *Server) live() (*transport.Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	return s.conn, nil
}

// SendRaw queues a raw line. The line terminator is added if missing.
func (s *Server) SendRaw(line string) error {
	conn, err := s.live()
	if err != nil {
		return err
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimRight(line, "\r\n") + "\r\n"
	}
	return conn.Enqueue(line)
}

// Send queues p behind everything already queued.
func (s *Server) Send(p packet.Packet) error {
	return s.SendRaw(packet.Build(p))
}

// SendFirst queues p ahead of every packet sent with Send.
func (s *Server) SendFirst(p packet.Packet) error {
	conn, err := s.live()
	if err != nil {
		return err
	}
	return conn.EnqueueFirst(packet.Build(p))
}

// SendWithCallback registers cb for replies from this server, then sends
// p. The callback is withdrawn if p could not be queued.
func (s *Server) SendWithCallback(p packet.Packet, cb *callback.Callback) error {
	cb.Scope = s.Name
	if err := s.client.callbacks.Register(cb); err != nil {
		return err
	}
	if err := s.Send(p); err != nil {
		s.client.callbacks.Remove(cb)
		return err
	}
	return nil
}

// probe sends a PING with a fresh nonce every ProbeInterval. A PONG that
// does not echo the nonce within ProbeTimeout ends the connection.
func (s *Server) probe(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(s.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.ping(gen); err != nil {
				log.Logf("[irc] %s: liveness probe: %v", s.Name, err)
			}
		}
	}
}

func (s *Server) ping(gen uint64) error {
	nonce, err := newNonce()
	if err != nil {
		return err
	}
	return s.SendWithCallback(packet.Ping(nonce), &callback.Callback{
		Codes:    []string{string(packet.CmdPong)},
		Priority: event.PriorityHigh,
		Timeout:  s.ProbeTimeout,
		OnPacket: func(p packet.Packet) bool {
			return p.Last() == nonce
		},
		OnTimeout: func() {
			s.lost(gen, fmt.Sprintf("no reply to ping within %s", s.ProbeTimeout), nil)
		},
	})
}

func newNonce() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
