package logserver

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

// Client streams log records to an aggregator.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder
}

// DialClient connects to an aggregator at host:port.
func DialClient(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial log server %s: %w", addr, err)
	}
	return &Client{conn: conn, enc: json.NewEncoder(conn)}, nil
}

// Send ships one record for the named session. Extra fields ride along
// untouched.
func (c *Client) Send(session string, fields map[string]any) error {
	record := make(map[string]any, len(fields)+2)
	for key, value := range fields {
		record[key] = value
	}
	record["session"] = session
	if _, ok := record["time"]; !ok {
		record["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(record)
}

// Close drops the connection.
func (c *Client) Close() error { return c.conn.Close() }
