package transport

import (
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// errReadTimeout is returned by ReadLine when no complete line arrived
// before the deadline.
var errReadTimeout = errors.New("read timeout")

// writeTimeout bounds a single write so a stalled peer cannot pin the sender.
const writeTimeout = 30 * time.Second

// lineConn is a connection that exchanges whole IRC lines.
type lineConn interface {
	// ReadLine returns one line without its terminator, or errReadTimeout.
	ReadLine(deadline time.Time) (string, error)
	// WriteLine writes one CRLF-terminated line.
	WriteLine(line string) error
	Close() error
}

// streamConn frames lines on a byte stream (TCP or TLS).
type streamConn struct {
	conn    net.Conn
	buf     []byte
	pending []byte
}

func newStreamConn(conn net.Conn) *streamConn {
	return &streamConn{conn: conn, buf: make([]byte, 4096)}
}

func (c *streamConn) ReadLine(deadline time.Time) (string, error) {
	for {
		if i := indexNewline(c.pending); i >= 0 {
			line := strings.TrimRight(string(c.pending[:i]), "\r")
			c.pending = c.pending[i+1:]
			return line, nil
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return "", err
		}
		n, err := c.conn.Read(c.buf)
		c.pending = append(c.pending, c.buf[:n]...)
		if err != nil {
			if isTimeout(err) {
				return "", errReadTimeout
			}
			return "", err
		}
	}
}

func indexNewline(b []byte) int {
	for i, ch := range b {
		if ch == '\n' {
			return i
		}
	}
	return -1
}

func (c *streamConn) WriteLine(line string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	_, err := io.WriteString(c.conn, line)
	return err
}

func (c *streamConn) Close() error {
	return c.conn.Close()
}

// wsConn carries one IRC line per WebSocket text frame. Read deadlines are
// fatal on a gorilla connection, so frames are pumped by a goroutine and
// ReadLine waits on a channel instead.
type wsConn struct {
	conn    *websocket.Conn
	lines   chan string
	errs    chan error
	closing chan struct{}
	once    sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	c := &wsConn{
		conn:    conn,
		lines:   make(chan string, 64),
		errs:    make(chan error, 1),
		closing: make(chan struct{}),
	}
	go c.pump()
	return c
}

func (c *wsConn) pump() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			// gorilla connections are unusable after any read error
			c.errs <- errors.Join(net.ErrClosed, err)
			return
		}
		for _, line := range strings.Split(strings.TrimRight(string(data), "\r\n"), "\n") {
			select {
			case c.lines <- strings.TrimRight(line, "\r"):
			case <-c.closing:
				return
			}
		}
	}
}

func (c *wsConn) ReadLine(deadline time.Time) (string, error) {
	select {
	case line := <-c.lines:
		return line, nil
	default:
	}

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case line := <-c.lines:
		return line, nil
	case err := <-c.errs:
		// keep the error for every later call
		c.errs <- err
		return "", err
	case <-timer.C:
		return "", errReadTimeout
	}
}

func (c *wsConn) WriteLine(line string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(strings.TrimRight(line, "\r\n")))
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closing)
		err = c.conn.Close()
	})
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isTerminal reports whether a read error means the connection is gone.
func isTerminal(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
