package transport

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/binary"
	"errors"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "irc.test.net"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

// tlsGreeter accepts TLS connections and greets each with one line.
func tlsGreeter(t *testing.T) int {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{selfSignedCert(t)}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.WriteString(conn, ":s 001 x :hi\r\n")
				io.Copy(io.Discard, conn)
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func waitLine(t *testing.T, got <-chan string) string {
	t.Helper()
	select {
	case line := <-got:
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for line")
		return ""
	}
}

func TestDialTLSTrustAny(t *testing.T) {
	port := tlsGreeter(t)

	got := make(chan string, 1)
	tr, err := Dial(context.Background(),
		Endpoint{Host: "127.0.0.1", Port: port, TLS: TLSTrustAny},
		Options{Name: "tls", ReadTimeout: 20 * time.Millisecond},
		Hooks{Ingest: func(line string) { got <- line }})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Kill()

	if line := waitLine(t, got); line != ":s 001 x :hi" {
		t.Errorf("Unexpected line %q", line)
	}
}

func TestDialTLSVerifiedRejectsSelfSigned(t *testing.T) {
	port := tlsGreeter(t)

	_, err := Dial(context.Background(),
		Endpoint{Host: "127.0.0.1", Port: port, TLS: TLSVerified, DialTimeout: 5 * time.Second},
		Options{Name: "tls"}, Hooks{})
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("Expected ErrConnectFailed, got %v", err)
	}
	var unknown x509.UnknownAuthorityError
	if !errors.As(err, &unknown) && !strings.Contains(err.Error(), "certificate") {
		t.Errorf("Expected a certificate error, got %v", err)
	}
}

func TestDialWebSocket(t *testing.T) {
	received := make(chan string, 1)
	upgrader := websocket.Upgrader{Subprotocols: []string{"text.ircv3.net"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(":s 001 x :hi"))
		conn.WriteMessage(websocket.TextMessage, []byte("PING :a\r\nPING :b\r\n"))
		if _, data, err := conn.ReadMessage(); err == nil {
			received <- string(data)
		}
	}))
	defer srv.Close()

	got := make(chan string, 4)
	closed := make(chan error, 1)
	tr, err := Dial(context.Background(),
		Endpoint{Host: "ws" + strings.TrimPrefix(srv.URL, "http")},
		Options{Name: "ws", ReadTimeout: 20 * time.Millisecond, SendDelay: -1},
		Hooks{
			Ingest:   func(line string) { got <- line },
			OnClosed: func(err error) { closed <- err },
		})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Kill()

	for _, want := range []string{":s 001 x :hi", "PING :a", "PING :b"} {
		if line := waitLine(t, got); line != want {
			t.Errorf("Expected %q, got %q", want, line)
		}
	}

	tr.Enqueue("NICK bot\r\n")
	select {
	case frame := <-received:
		if frame != "NICK bot" {
			t.Errorf("Expected one frame without terminator, got %q", frame)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Server never got the frame")
	}

	// the handler returned and closed the socket
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("OnClosed not called after the peer closed")
	}
}

// socks5Relay is a minimal no-auth SOCKS5 server handling CONNECT.
func socks5Relay(t *testing.T, connects chan<- string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			client, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer client.Close()
				r := bufio.NewReader(client)
				hdr := make([]byte, 2)
				if _, err := io.ReadFull(r, hdr); err != nil {
					return
				}
				if _, err := io.ReadFull(r, make([]byte, hdr[1])); err != nil {
					return
				}
				client.Write([]byte{5, 0})

				req := make([]byte, 4)
				if _, err := io.ReadFull(r, req); err != nil {
					return
				}
				var host string
				switch req[3] {
				case 1:
					ip := make([]byte, 4)
					io.ReadFull(r, ip)
					host = net.IP(ip).String()
				case 3:
					n, _ := r.ReadByte()
					name := make([]byte, n)
					io.ReadFull(r, name)
					host = string(name)
				case 4:
					ip := make([]byte, 16)
					io.ReadFull(r, ip)
					host = net.IP(ip).String()
				}
				pb := make([]byte, 2)
				io.ReadFull(r, pb)
				addr := net.JoinHostPort(host, strconv.Itoa(int(binary.BigEndian.Uint16(pb))))
				connects <- addr

				upstream, err := net.Dial("tcp", addr)
				if err != nil {
					client.Write([]byte{5, 5, 0, 1, 0, 0, 0, 0, 0, 0})
					return
				}
				defer upstream.Close()
				client.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0})

				go io.Copy(upstream, r)
				io.Copy(client, upstream)
			}()
		}
	}()
	return ln.Addr().String()
}

func TestDialThroughSocks5(t *testing.T) {
	target, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer target.Close()
	go func() {
		conn, err := target.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.WriteString(conn, ":s NOTICE * :via proxy\r\n")
		io.Copy(io.Discard, conn)
	}()

	connects := make(chan string, 1)
	proxyAddr := socks5Relay(t, connects)

	got := make(chan string, 1)
	port := target.Addr().(*net.TCPAddr).Port
	tr, err := Dial(context.Background(),
		Endpoint{Host: "127.0.0.1", Port: port, Proxy: "socks5://" + proxyAddr},
		Options{Name: "socks", ReadTimeout: 20 * time.Millisecond},
		Hooks{Ingest: func(line string) { got <- line }})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer tr.Kill()

	if addr := <-connects; addr != target.Addr().String() {
		t.Errorf("Expected proxy to connect to %s, got %s", target.Addr(), addr)
	}
	if line := waitLine(t, got); line != ":s NOTICE * :via proxy" {
		t.Errorf("Unexpected line %q", line)
	}
}

func TestDialBadProxy(t *testing.T) {
	_, err := Dial(context.Background(),
		Endpoint{Host: "127.0.0.1", Port: 6667, Proxy: "gopher://nowhere"},
		Options{}, Hooks{})
	if !errors.Is(err, ErrConnectFailed) {
		t.Errorf("Expected ErrConnectFailed, got %v", err)
	}
}
