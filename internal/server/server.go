package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"beacon/internal/logging"
	"beacon/internal/protocol"
	"beacon/internal/repository"
)

// RequestTimeout bounds every repository request. When a handler exceeds it
// the server answers with a timeout error and drops the in-flight result;
// the client owns the resend.
const RequestTimeout = 30 * time.Second

// StatusSource reports supervised service liveness for the status endpoint.
type StatusSource interface {
	ServiceStatuses() []protocol.ServiceStatus
}

// Addresses tells connecting clients where the sibling services live.
type Addresses struct {
	Hostname string

	// EngineAddr is the host:port of the settings engine; EngineSocket is
	// its unix socket, handed to local clients when non-empty.
	EngineAddr   string
	EngineSocket string

	// EngineDataAddr is the host:port of the data engine instance.
	EngineDataAddr string

	// LogPort is the log aggregator port, zero when disabled.
	LogPort int
}

// Server accepts repository protocol connections.
type Server struct {
	store     *repository.Store
	status    StatusSource
	addresses Addresses
	logger    *slog.Logger

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu       sync.Mutex
	sessions map[*session]struct{}
}

// New configures a server on the given listener. The listener is owned by
// the server from here on.
func New(ctx context.Context, listener net.Listener, store *repository.Store, status StatusSource, addresses Addresses, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, errors.New("server requires a repository store")
	}
	if addresses.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "localhost"
		}
		addresses.Hostname = hostname
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		store:     store,
		status:    status,
		addresses: addresses,
		logger:    logging.NewComponentLogger(logger, "server"),
		listener:  listener,
		ctx:       serverCtx,
		cancel:    cancel,
		sessions:  make(map[*session]struct{}),
	}, nil
}

// Port returns the bound TCP port.
func (s *Server) Port() int {
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Serve accepts connections until the context is canceled or Close is
// called.
func (s *Server) Serve() {
	s.logger.Info("repository listening", logging.String("addr", s.listener.Addr().String()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			sess := newSession(s, conn)
			s.mu.Lock()
			s.sessions[sess] = struct{}{}
			s.mu.Unlock()
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				sess.serve(s.ctx)
				s.mu.Lock()
				delete(s.sessions, sess)
				s.mu.Unlock()
			}()
		}
	}()
}

// Close stops accepting and terminates every session.
func (s *Server) Close() {
	s.cancel()
	s.listener.Close()

	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.close()
	}
	s.wg.Wait()
}

// clientNames lists the names of currently connected sessions, sorted.
func (s *Server) clientNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.sessions))
	for sess := range s.sessions {
		if name := sess.clientName(); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Server) serviceStatuses() []protocol.ServiceStatus {
	if s.status == nil {
		return nil
	}
	return s.status.ServiceStatuses()
}

// engineReply builds the engine address answer for a peer. Local peers are
// pointed at the unix socket when one is configured.
func (s *Server) engineReply(peer net.Addr, key string) protocol.EngineAddrReply {
	reply := protocol.EngineAddrReply{
		Key:      key,
		Network:  "tcp",
		Addr:     s.addresses.EngineAddr,
		DataAddr: s.addresses.EngineDataAddr,
	}
	if s.addresses.EngineSocket != "" && isLoopback(peer) {
		reply.Network = "unix"
		reply.Addr = s.addresses.EngineSocket
	}
	return reply
}

func isLoopback(addr net.Addr) bool {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return false
	}
	return tcpAddr.IP.IsLoopback()
}

// Listen is a helper for the daemon: bind the repository port (zero picks a
// free one).
func Listen(port int) (net.Listener, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind repository port %d: %w", port, err)
	}
	return listener, nil
}
