package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"

	"beacon/internal/engine"
	"beacon/internal/logging"
	"beacon/internal/protocol"
	"beacon/internal/repository"
)

// session is the server side of one client connection.
type session struct {
	server *Server
	conn   *protocol.Conn
	logger *slog.Logger

	mu      sync.Mutex
	name    string
	watches map[string]*repository.Watch
	closed  bool
}

func newSession(server *Server, raw net.Conn) *session {
	return &session{
		server: server,
		conn:   protocol.NewConn(raw),
		logger: server.logger.With(logging.String(logging.FieldPeer, raw.RemoteAddr().String())),
		watches: make(map[string]*repository.Watch),
	}
}

func (s *session) clientName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// close tears the connection down and releases every subscription held by
// this session.
func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	watches := make([]*repository.Watch, 0, len(s.watches))
	for _, watch := range s.watches {
		watches = append(watches, watch)
	}
	s.watches = make(map[string]*repository.Watch)
	s.mu.Unlock()

	for _, watch := range watches {
		watch.Cancel()
	}
	s.conn.Close()
}

func (s *session) serve(ctx context.Context) {
	defer s.close()
	s.logger.Debug("client connected")

	for {
		msgType, body, err := s.conn.ReadFrame()
		if err != nil {
			s.logger.Debug("client disconnected", logging.Error(err))
			return
		}
		s.dispatch(ctx, msgType, body)
	}
}

// dispatch runs one request with the server's bounded timeout. On deadline
// the client gets a timeout error frame and the in-flight result, when the
// handler eventually finishes, is discarded.
func (s *session) dispatch(ctx context.Context, msgType protocol.MsgType, body []byte) {
	reqCtx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	w := &responder{session: s}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handle(w, msgType, body)
	}()

	select {
	case <-done:
	case <-reqCtx.Done():
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			w.timeout(requestKey(body))
		}
	}
}

// responder guards the single reply frame of one request. A request answers
// exactly once: after the timeout frame has gone out, a handler result
// arriving later is dropped so the client never sees two replies for one
// correlation key.
type responder struct {
	session *session

	mu       sync.Mutex
	sent     bool
	timedOut bool
}

func (w *responder) send(msgType protocol.MsgType, payload any) {
	w.mu.Lock()
	if w.timedOut {
		w.mu.Unlock()
		return
	}
	w.sent = true
	w.mu.Unlock()
	w.session.send(msgType, payload)
}

func (w *responder) sendError(key, code, message string) {
	w.send(protocol.MsgReplyError, protocol.ErrorReply{Key: key, Code: code, Message: message})
}

// timeout emits the deadline error unless a reply already went out.
func (w *responder) timeout(key string) {
	w.mu.Lock()
	if w.sent || w.timedOut {
		w.mu.Unlock()
		return
	}
	w.timedOut = true
	w.mu.Unlock()
	w.session.send(protocol.MsgReplyError, protocol.ErrorReply{
		Key:     key,
		Code:    protocol.CodeTimeout,
		Message: "request timed out",
	})
}

// sendStoreError maps repository and engine errors onto protocol codes.
// Per-request failures never take the session down.
func (w *responder) sendStoreError(key string, err error) {
	code := protocol.CodeIOError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		code = protocol.CodeNotFound
	case errors.Is(err, repository.ErrConflict):
		code = protocol.CodeConflict
	case errors.Is(err, repository.ErrInvalidPath):
		code = protocol.CodeBadRequest
	case errors.Is(err, engine.ErrUnavailable):
		code = protocol.CodeUnavailable
	}
	w.sendError(key, code, err.Error())
}

func (s *session) handle(w *responder, msgType protocol.MsgType, body []byte) {
	switch msgType {
	case protocol.MsgList:
		s.handleList(w, body)
	case protocol.MsgRead:
		s.handleRead(w, body)
	case protocol.MsgWrite:
		s.handleWrite(w, body)
	case protocol.MsgDelete:
		s.handleDelete(w, body)
	case protocol.MsgWatch:
		s.handleWatch(w, body)
	case protocol.MsgUnwatch:
		s.handleUnwatch(w, body)
	case protocol.MsgEngineAddr:
		s.handleEngineAddr(w, body)
	case protocol.MsgLogAddr:
		s.handleLogAddr(w, body)
	case protocol.MsgStatus:
		s.handleStatus(w, body)
	case protocol.MsgSetClientName, protocol.MsgGetClientName:
		s.handleClientName(w, msgType, body)
	case protocol.MsgPing:
		s.handlePing(w, body)
	default:
		w.sendError(requestKey(body), protocol.CodeBadRequest, "unknown message type")
	}
}

func (s *session) handleList(w *responder, body []byte) {
	var req protocol.ListRequest
	if !s.decode(w, body, &req) {
		return
	}
	nodes := s.server.store.List(req.Prefix)
	reply := protocol.ListReply{Key: req.Key, Nodes: make([]protocol.NodeInfo, len(nodes))}
	for i, node := range nodes {
		reply.Nodes[i] = protocol.NodeInfo{Path: node.Path, Version: node.Version}
	}
	w.send(protocol.MsgReplyList, reply)
}

func (s *session) handleRead(w *responder, body []byte) {
	var req protocol.ReadRequest
	if !s.decode(w, body, &req) {
		return
	}
	content, version, err := s.server.store.Read(req.Path)
	if err != nil {
		w.sendStoreError(req.Key, err)
		return
	}
	w.send(protocol.MsgReplyRead, protocol.ReadReply{
		Key:     req.Key,
		Path:    req.Path,
		Content: content,
		Version: version,
	})
}

func (s *session) handleWrite(w *responder, body []byte) {
	var req protocol.WriteRequest
	if !s.decode(w, body, &req) {
		return
	}
	version, err := s.server.store.Write(req.Path, req.Content, req.ExpectedVersion)
	if err != nil {
		w.sendStoreError(req.Key, err)
		return
	}
	w.send(protocol.MsgReplyWrite, protocol.WriteReply{Key: req.Key, Version: version})
}

func (s *session) handleDelete(w *responder, body []byte) {
	var req protocol.DeleteRequest
	if !s.decode(w, body, &req) {
		return
	}
	if err := s.server.store.Delete(req.Path, req.ExpectedVersion); err != nil {
		w.sendStoreError(req.Key, err)
		return
	}
	w.send(protocol.MsgReplyDelete, protocol.DeleteReply{Key: req.Key})
}

func (s *session) handleWatch(w *responder, body []byte) {
	var req protocol.WatchRequest
	if !s.decode(w, body, &req) {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, exists := s.watches[req.Prefix]; exists {
		s.mu.Unlock()
		w.send(protocol.MsgReplyWatch, protocol.WatchReply{Key: req.Key})
		return
	}
	watch := s.server.store.Watch(req.Prefix)
	s.watches[req.Prefix] = watch
	s.mu.Unlock()

	go s.pumpEvents(watch)
	w.send(protocol.MsgReplyWatch, protocol.WatchReply{Key: req.Key})
}

func (s *session) handleUnwatch(w *responder, body []byte) {
	var req protocol.WatchRequest
	if !s.decode(w, body, &req) {
		return
	}

	s.mu.Lock()
	watch, ok := s.watches[req.Prefix]
	if ok {
		delete(s.watches, req.Prefix)
	}
	s.mu.Unlock()

	if ok {
		watch.Cancel()
	}
	w.send(protocol.MsgReplyUnwatch, protocol.WatchReply{Key: req.Key})
}

// pumpEvents forwards store events to the client until the watch is
// canceled. Event frames interleave safely with reply frames because the
// codec serializes writes.
func (s *session) pumpEvents(watch *repository.Watch) {
	for ev := range watch.C {
		err := s.conn.WriteFrame(protocol.MsgEvent, protocol.Event{
			Path:    ev.Path,
			Version: ev.Version,
			Kind:    string(ev.Kind),
		})
		if err != nil {
			return
		}
	}
}

func (s *session) handleEngineAddr(w *responder, body []byte) {
	var req protocol.EngineAddrRequest
	if !s.decode(w, body, &req) {
		return
	}
	reply := s.server.engineReply(s.conn.Raw().RemoteAddr(), req.Key)
	w.send(protocol.MsgReplyEngineAddr, reply)
}

func (s *session) handleLogAddr(w *responder, body []byte) {
	var req protocol.LogAddrRequest
	if !s.decode(w, body, &req) {
		return
	}
	if s.server.addresses.LogPort == 0 {
		w.sendError(req.Key, protocol.CodeNotFound, "no log server")
		return
	}
	w.send(protocol.MsgReplyLogAddr, protocol.LogAddrReply{
		Key:  req.Key,
		Host: s.server.addresses.Hostname,
		Port: s.server.addresses.LogPort,
	})
}

func (s *session) handleStatus(w *responder, body []byte) {
	var req protocol.StatusRequest
	if !s.decode(w, body, &req) {
		return
	}
	w.send(protocol.MsgReplyStatus, protocol.StatusReply{
		Key:      req.Key,
		Services: s.server.serviceStatuses(),
		Clients:  s.server.clientNames(),
	})
}

func (s *session) handleClientName(w *responder, msgType protocol.MsgType, body []byte) {
	var req protocol.ClientNameRequest
	if !s.decode(w, body, &req) {
		return
	}
	s.mu.Lock()
	if msgType == protocol.MsgSetClientName {
		s.name = req.Name
	}
	name := s.name
	s.mu.Unlock()
	w.send(protocol.MsgReplyClientName, protocol.ClientNameReply{Key: req.Key, Name: name})
}

func (s *session) handlePing(w *responder, body []byte) {
	var req protocol.PingRequest
	if !s.decode(w, body, &req) {
		return
	}
	w.send(protocol.MsgPong, protocol.PongReply{Key: req.Key})
}

func (s *session) decode(w *responder, body []byte, into any) bool {
	if err := json.Unmarshal(body, into); err != nil {
		w.sendError(requestKey(body), protocol.CodeBadRequest, "malformed request payload")
		return false
	}
	return true
}

func (s *session) send(msgType protocol.MsgType, payload any) {
	if err := s.conn.WriteFrame(msgType, payload); err != nil {
		s.logger.Debug("reply write failed", logging.Error(err))
	}
}

// requestKey best-effort extracts the correlation key from a payload whose
// full decoding failed or whose type is unknown.
func requestKey(body []byte) string {
	var probe struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.Key
}
