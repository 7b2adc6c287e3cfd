package protocol

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// MsgType identifies the payload carried by a frame.
type MsgType uint32

const (
	// Requests (client to server).
	MsgList          MsgType = 10
	MsgRead          MsgType = 11
	MsgWrite         MsgType = 12
	MsgDelete        MsgType = 13
	MsgWatch         MsgType = 14
	MsgUnwatch       MsgType = 15
	MsgEngineAddr    MsgType = 20
	MsgLogAddr       MsgType = 21
	MsgStatus        MsgType = 22
	MsgSetClientName MsgType = 23
	MsgGetClientName MsgType = 24
	MsgPing          MsgType = 30

	// Replies and pushes (server to client).
	MsgReplyList       MsgType = 110
	MsgReplyRead       MsgType = 111
	MsgReplyWrite      MsgType = 112
	MsgReplyDelete     MsgType = 113
	MsgReplyWatch      MsgType = 114
	MsgReplyUnwatch    MsgType = 115
	MsgReplyEngineAddr MsgType = 120
	MsgReplyLogAddr    MsgType = 121
	MsgReplyStatus     MsgType = 122
	MsgReplyClientName MsgType = 123
	MsgPong            MsgType = 130
	MsgReplyError      MsgType = 140
	MsgEvent           MsgType = 141
)

const (
	headerSize = 8

	// MaxPayload bounds a single frame so a broken peer cannot make the
	// reader allocate unbounded memory.
	MaxPayload = 16 << 20
)

var (
	// ErrFrameTooLarge reports a frame whose declared length exceeds MaxPayload.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum payload size")

	// ErrTimeout reports a request the server dropped after its deadline.
	ErrTimeout = errors.New("protocol: request timed out")
)

// Conn frames messages over a net.Conn. Reads are single-consumer; writes
// are serialized internally so handler goroutines and the event dispatcher
// can share one connection.
type Conn struct {
	raw net.Conn
	r   *bufio.Reader

	wmu sync.Mutex
	w   *bufio.Writer
}

// NewConn wraps a stream connection with the beacon frame codec.
func NewConn(raw net.Conn) *Conn {
	return &Conn{
		raw: raw,
		r:   bufio.NewReaderSize(raw, 32*1024),
		w:   bufio.NewWriterSize(raw, 32*1024),
	}
}

// Raw exposes the underlying connection, mainly for deadlines and addresses.
func (c *Conn) Raw() net.Conn { return c.raw }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.raw.Close() }

// WriteFrame marshals payload as JSON and writes one frame.
func (c *Conn) WriteFrame(t MsgType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("protocol: marshal %d: %w", t, err)
	}
	if len(body) > MaxPayload {
		return ErrFrameTooLarge
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(t))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)))

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := c.w.Write(body); err != nil {
		return err
	}
	return c.w.Flush()
}

// ReadFrame reads one frame and returns its type and raw JSON payload.
func (c *Conn) ReadFrame() (MsgType, []byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		return 0, nil, err
	}
	t := MsgType(binary.LittleEndian.Uint32(header[0:4]))
	size := binary.LittleEndian.Uint32(header[4:8])
	if size > MaxPayload {
		return 0, nil, ErrFrameTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return 0, nil, err
	}
	return t, body, nil
}
