package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"beacon/internal/discovery"
	"beacon/internal/protocol"
)

// EnvHost names the environment variable that bypasses discovery entirely.
const EnvHost = "BEACON_HOST"

// DefaultRequestTimeout bounds how long a caller waits for a reply before
// giving up and resending.
const DefaultRequestTimeout = 30 * time.Second

// ErrClosed reports an operation on a closed client.
var ErrClosed = errors.New("client: connection closed")

// RemoteError is a per-request failure reported by the daemon.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("beacon: %s: %s", e.Code, e.Message)
}

// IsCode reports whether err is a RemoteError with the given protocol code.
func IsCode(err error, code string) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Code == code
}

type pendingReply struct {
	msgType protocol.MsgType
	body    []byte
	err     error
}

// Client is one connection to the beacon daemon.
type Client struct {
	conn    *protocol.Conn
	timeout time.Duration

	mu      sync.Mutex
	pending map[string]chan pendingReply
	watches map[int]*watchEntry
	nextID  int
	closed  bool
	readErr error
}

type watchEntry struct {
	prefix string
	events chan protocol.Event
}

// Dial connects to a daemon at host:port.
func Dial(addr string) (*Client, error) {
	raw, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial beacon %s: %w", addr, err)
	}
	c := &Client{
		conn:    protocol.NewConn(raw),
		timeout: DefaultRequestTimeout,
		pending: make(map[string]chan pendingReply),
		watches: make(map[int]*watchEntry),
	}
	go c.readLoop()
	return c, nil
}

// Connect resolves the daemon address from BEACON_HOST, falling back to UDP
// discovery on the local network.
func Connect(ctx context.Context) (*Client, error) {
	if host := strings.TrimSpace(os.Getenv(EnvHost)); host != "" {
		return Dial(host)
	}
	reply, err := discovery.Locate(ctx, discovery.LocateOptions{})
	if err != nil {
		return nil, err
	}
	return Dial(net.JoinHostPort(reply.Host, fmt.Sprint(reply.Port)))
}

// SetTimeout overrides the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Close tears the connection down. Outstanding calls fail with ErrClosed.
func (c *Client) Close() error {
	c.fail(ErrClosed)
	return c.conn.Close()
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.readErr = err
	for key, ch := range c.pending {
		ch <- pendingReply{err: err}
		delete(c.pending, key)
	}
	for id, entry := range c.watches {
		close(entry.events)
		delete(c.watches, id)
	}
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	for {
		msgType, body, err := c.conn.ReadFrame()
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		if msgType == protocol.MsgEvent {
			c.dispatchEvent(body)
			continue
		}
		key := replyKey(body)
		c.mu.Lock()
		ch, ok := c.pending[key]
		if ok {
			delete(c.pending, key)
		}
		c.mu.Unlock()
		if ok {
			ch <- pendingReply{msgType: msgType, body: body}
		}
	}
}

// call sends one request and waits for its correlated reply.
func (c *Client) call(reqType protocol.MsgType, request any, key string, wantType protocol.MsgType, into any) error {
	ch := make(chan pendingReply, 1)

	c.mu.Lock()
	if c.closed {
		err := c.readErr
		c.mu.Unlock()
		if err == nil {
			err = ErrClosed
		}
		return err
	}
	c.pending[key] = ch
	c.mu.Unlock()

	if err := c.conn.WriteFrame(reqType, request); err != nil {
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		return err
	}

	select {
	case reply := <-ch:
		if reply.err != nil {
			return reply.err
		}
		if reply.msgType == protocol.MsgReplyError {
			var remote protocol.ErrorReply
			if err := unmarshal(reply.body, &remote); err != nil {
				return err
			}
			return &RemoteError{Code: remote.Code, Message: remote.Message}
		}
		if reply.msgType != wantType {
			return fmt.Errorf("client: unexpected reply type %d", reply.msgType)
		}
		return unmarshal(reply.body, into)
	case <-time.After(c.timeout):
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
		return protocol.ErrTimeout
	}
}

func newKey() string { return uuid.NewString() }
