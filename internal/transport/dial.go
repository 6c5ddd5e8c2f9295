package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

// TLSMode selects how the socket is secured.
type TLSMode int

const (
	// TLSNone uses a plain TCP socket.
	TLSNone TLSMode = iota
	// TLSTrustAny performs a TLS handshake but accepts any certificate.
	// It protects against passive eavesdropping only and is insecure
	// against an active attacker.
	TLSTrustAny
	// TLSVerified performs a TLS handshake with full chain validation.
	TLSVerified
)

func (m TLSMode) String() string {
	switch m {
	case TLSNone:
		return "none"
	case TLSTrustAny:
		return "trust-any"
	case TLSVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// ParseTLSMode converts the textual form used in configuration files.
// An empty string means TLSNone.
func ParseTLSMode(s string) (TLSMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off", "false":
		return TLSNone, nil
	case "trust-any", "trustany", "insecure":
		return TLSTrustAny, nil
	case "verified", "on", "true":
		return TLSVerified, nil
	default:
		return TLSNone, fmt.Errorf("unknown tls mode %q", s)
	}
}

// Endpoint describes where to connect.
type Endpoint struct {
	// Host is a host name, or a ws:// or wss:// URL for IRC over WebSocket.
	Host string
	Port int
	TLS  TLSMode

	// Proxy is an optional proxy URL such as socks5://127.0.0.1:9050.
	// It applies to TCP connections only.
	Proxy string

	// DialTimeout bounds connection setup including the TLS handshake.
	DialTimeout time.Duration
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) isWebSocket() bool {
	return strings.HasPrefix(e.Host, "ws://") || strings.HasPrefix(e.Host, "wss://")
}

func (e Endpoint) tlsConfig() *tls.Config {
	host := e.Host
	if u, err := url.Parse(e.Host); err == nil && u.Hostname() != "" && e.isWebSocket() {
		host = u.Hostname()
	}
	return &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: e.TLS == TLSTrustAny,
		MinVersion:         tls.VersionTLS12,
	}
}

// dial opens the socket for e. It is the only place where the TLS mode,
// the proxy and the WebSocket variant matter.
func dial(ctx context.Context, e Endpoint) (lineConn, error) {
	if e.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.DialTimeout)
		defer cancel()
	}

	if e.isWebSocket() {
		return dialWebSocket(ctx, e)
	}

	conn, err := dialTCP(ctx, e)
	if err != nil {
		return nil, err
	}
	if e.TLS == TLSNone {
		return newStreamConn(conn), nil
	}

	tlsConn := tls.Client(conn, e.tlsConfig())
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return newStreamConn(tlsConn), nil
}

func dialTCP(ctx context.Context, e Endpoint) (net.Conn, error) {
	forward := &net.Dialer{KeepAlive: 3 * time.Minute}
	if e.Proxy == "" {
		return forward.DialContext(ctx, "tcp", e.Addr())
	}

	u, err := url.Parse(e.Proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	d, err := proxy.FromURL(u, forward)
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, "tcp", e.Addr())
	}
	return d.Dial("tcp", e.Addr())
}

func dialWebSocket(ctx context.Context, e Endpoint) (lineConn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: e.DialTimeout,
		Subprotocols:     []string{"text.ircv3.net"},
	}
	if strings.HasPrefix(e.Host, "wss://") {
		dialer.TLSClientConfig = e.tlsConfig()
	}
	conn, _, err := dialer.DialContext(ctx, e.Host, nil)
	if err != nil {
		return nil, err
	}
	return newWSConn(conn), nil
}
