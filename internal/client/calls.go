package client

import (
	"encoding/json"
	"strings"
	"sync"

	"beacon/internal/protocol"
)

// Node is one repository entry as seen by a client.
type Node struct {
	Path    string
	Version int64
}

// List returns the repository nodes under prefix, sorted by path.
func (c *Client) List(prefix string) ([]Node, error) {
	key := newKey()
	var reply protocol.ListReply
	err := c.call(protocol.MsgList, protocol.ListRequest{Key: key, Prefix: prefix}, key, protocol.MsgReplyList, &reply)
	if err != nil {
		return nil, err
	}
	nodes := make([]Node, len(reply.Nodes))
	for i, node := range reply.Nodes {
		nodes[i] = Node{Path: node.Path, Version: node.Version}
	}
	return nodes, nil
}

// Read fetches a document and its current version.
func (c *Client) Read(path string) ([]byte, int64, error) {
	key := newKey()
	var reply protocol.ReadReply
	err := c.call(protocol.MsgRead, protocol.ReadRequest{Key: key, Path: path}, key, protocol.MsgReplyRead, &reply)
	if err != nil {
		return nil, 0, err
	}
	return reply.Content, reply.Version, nil
}

// Write stores a document. expectedVersion zero means create-only; any other
// value must match the current version or the daemon answers with a conflict.
// The new version is returned.
func (c *Client) Write(path string, content []byte, expectedVersion int64) (int64, error) {
	key := newKey()
	var reply protocol.WriteReply
	err := c.call(protocol.MsgWrite, protocol.WriteRequest{
		Key:             key,
		Path:            path,
		Content:         content,
		ExpectedVersion: expectedVersion,
	}, key, protocol.MsgReplyWrite, &reply)
	if err != nil {
		return 0, err
	}
	return reply.Version, nil
}

// Delete removes a document under the same optimistic concurrency rule as
// Write.
func (c *Client) Delete(path string, expectedVersion int64) error {
	key := newKey()
	var reply protocol.DeleteReply
	return c.call(protocol.MsgDelete, protocol.DeleteRequest{
		Key:             key,
		Path:            path,
		ExpectedVersion: expectedVersion,
	}, key, protocol.MsgReplyDelete, &reply)
}

// Watch subscribes to change events for every path under prefix. The
// returned channel closes when the watch is canceled or the connection
// drops.
func (c *Client) Watch(prefix string) (<-chan protocol.Event, func(), error) {
	key := newKey()
	var reply protocol.WatchReply
	err := c.call(protocol.MsgWatch, protocol.WatchRequest{Key: key, Prefix: prefix}, key, protocol.MsgReplyWatch, &reply)
	if err != nil {
		return nil, nil, err
	}

	entry := &watchEntry{prefix: prefix, events: make(chan protocol.Event, 64)}
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watches[id] = entry
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			if got, ok := c.watches[id]; ok {
				delete(c.watches, id)
				close(got.events)
			}
			remaining := false
			for _, other := range c.watches {
				if other.prefix == prefix {
					remaining = true
					break
				}
			}
			c.mu.Unlock()
			if !remaining {
				unwatchKey := newKey()
				var unwatchReply protocol.WatchReply
				_ = c.call(protocol.MsgUnwatch, protocol.WatchRequest{Key: unwatchKey, Prefix: prefix}, unwatchKey, protocol.MsgReplyUnwatch, &unwatchReply)
			}
		})
	}
	return entry.events, cancel, nil
}

// EngineAddr asks where the settings engine lives. Local clients may get a
// unix socket back.
func (c *Client) EngineAddr() (protocol.EngineAddrReply, error) {
	key := newKey()
	var reply protocol.EngineAddrReply
	err := c.call(protocol.MsgEngineAddr, protocol.EngineAddrRequest{Key: key}, key, protocol.MsgReplyEngineAddr, &reply)
	return reply, err
}

// LogAddr asks where the log aggregator listens.
func (c *Client) LogAddr() (host string, port int, err error) {
	key := newKey()
	var reply protocol.LogAddrReply
	err = c.call(protocol.MsgLogAddr, protocol.LogAddrRequest{Key: key}, key, protocol.MsgReplyLogAddr, &reply)
	return reply.Host, reply.Port, err
}

// Status reports supervised service states and connected client names.
func (c *Client) Status() (protocol.StatusReply, error) {
	key := newKey()
	var reply protocol.StatusReply
	err := c.call(protocol.MsgStatus, protocol.StatusRequest{Key: key}, key, protocol.MsgReplyStatus, &reply)
	return reply, err
}

// SetName registers a human-readable name for this connection, shown in the
// daemon's status output.
func (c *Client) SetName(name string) error {
	key := newKey()
	var reply protocol.ClientNameReply
	return c.call(protocol.MsgSetClientName, protocol.ClientNameRequest{Key: key, Name: name}, key, protocol.MsgReplyClientName, &reply)
}

// Name returns the name previously registered on this connection.
func (c *Client) Name() (string, error) {
	key := newKey()
	var reply protocol.ClientNameReply
	err := c.call(protocol.MsgGetClientName, protocol.ClientNameRequest{Key: key}, key, protocol.MsgReplyClientName, &reply)
	return reply.Name, err
}

// Ping round-trips a no-op request.
func (c *Client) Ping() error {
	key := newKey()
	var reply protocol.PongReply
	return c.call(protocol.MsgPing, protocol.PingRequest{Key: key}, key, protocol.MsgPong, &reply)
}

// dispatchEvent fans one event frame out to every watch whose prefix covers
// the path. Slow consumers lose events rather than stall the reader.
func (c *Client) dispatchEvent(body []byte) {
	var ev protocol.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.watches {
		if !underPrefix(ev.Path, entry.prefix) {
			continue
		}
		select {
		case entry.events <- ev:
		default:
		}
	}
}

func underPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func replyKey(body []byte) string {
	var probe struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.Key
}

func unmarshal(body []byte, into any) error {
	if into == nil {
		return nil
	}
	return json.Unmarshal(body, into)
}
