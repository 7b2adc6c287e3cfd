package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"sync"

	"beacon/internal/config"
	"beacon/internal/logging"
	"beacon/internal/protocol"
)

// Responder answers discovery datagrams on a fixed UDP port.
type Responder struct {
	conn     *net.UDPConn
	hostname string
	port     int
	rules    []config.FilterRule
	logger   *slog.Logger

	wg       sync.WaitGroup
	closeOne sync.Once
}

// Options configures a Responder.
type Options struct {
	// UDPPort is the fixed discovery port. A bind failure is fatal to the
	// daemon, never silently ignored.
	UDPPort int

	// Hostname and RepositoryPort are what replies advertise.
	Hostname       string
	RepositoryPort int

	// Rules is the ordered address filter list. Empty means allow everyone.
	// A non-empty list carries an implicit trailing deny.
	Rules []config.FilterRule

	Logger *slog.Logger
}

// NewResponder binds the discovery port and starts answering requests.
func NewResponder(opts Options) (*Responder, error) {
	addr := &net.UDPAddr{Port: opts.UDPPort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind discovery port %d: %w", opts.UDPPort, err)
	}

	r := &Responder{
		conn:     conn,
		hostname: opts.Hostname,
		port:     opts.RepositoryPort,
		rules:    opts.Rules,
		logger:   logging.NewComponentLogger(opts.Logger, "discovery"),
	}
	r.wg.Add(1)
	go r.serve()
	r.logger.Info("discovery listening",
		logging.Int("udp_port", opts.UDPPort),
		logging.Int("repository_port", opts.RepositoryPort))
	return r, nil
}

// Close stops the responder and releases the UDP port.
func (r *Responder) Close() {
	r.closeOne.Do(func() {
		r.conn.Close()
	})
	r.wg.Wait()
}

// Port returns the bound UDP port.
func (r *Responder) Port() int {
	if addr, ok := r.conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}

func (r *Responder) serve() {
	defer r.wg.Done()
	buf := make([]byte, 64)
	for {
		n, sender, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		version, ok := protocol.ParseDiscoveryRequest(buf[:n])
		if !ok {
			continue
		}
		if !r.permitted(sender.IP) {
			r.logger.Debug("discovery request denied",
				logging.String(logging.FieldPeer, sender.String()))
			continue
		}
		reply, err := protocol.EncodeDiscoveryReply(protocol.DiscoveryReply{
			Host:    r.hostname,
			Port:    r.port,
			Version: int(version),
		})
		if err != nil {
			continue
		}
		if _, err := r.conn.WriteToUDP(reply, sender); err != nil {
			r.logger.Debug("discovery reply failed",
				logging.String(logging.FieldPeer, sender.String()),
				logging.Error(err))
		}
	}
}

// permitted applies the ordered rules, first match wins. An empty rule list
// allows everyone; a non-empty one denies what no rule matched.
func (r *Responder) permitted(ip net.IP) bool {
	if len(r.rules) == 0 {
		return true
	}
	for _, rule := range r.rules {
		if rule.Network.Contains(ip) {
			return rule.Allow
		}
	}
	return false
}
