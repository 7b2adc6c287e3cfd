package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"beacon/internal/config"
	"beacon/internal/protocol"
)

// LocateOptions tunes the client-side probe. Zero values select sensible
// defaults.
type LocateOptions struct {
	// UDPPort overrides the discovery port to probe.
	UDPPort int

	// Target overrides the broadcast destination, mainly for tests that
	// probe a responder on loopback.
	Target string

	// Attempts is the number of probe datagrams before giving up.
	Attempts int

	// PerAttempt is how long each probe waits for a reply.
	PerAttempt time.Duration
}

func (o *LocateOptions) fill() {
	if o.UDPPort == 0 {
		o.UDPPort = config.DefaultDiscoveryPort
	}
	if o.Target == "" {
		o.Target = net.JoinHostPort("255.255.255.255", fmt.Sprint(o.UDPPort))
	}
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.PerAttempt <= 0 {
		o.PerAttempt = time.Second
	}
}

// Locate broadcasts discovery probes and returns the first well-formed
// reply. Retry is entirely client-side.
func Locate(ctx context.Context, opts LocateOptions) (protocol.DiscoveryReply, error) {
	opts.fill()

	target, err := net.ResolveUDPAddr("udp", opts.Target)
	if err != nil {
		return protocol.DiscoveryReply{}, fmt.Errorf("resolve discovery target: %w", err)
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return protocol.DiscoveryReply{}, fmt.Errorf("open discovery socket: %w", err)
	}
	defer conn.Close()

	request := protocol.DiscoveryRequest()
	buf := make([]byte, 1024)

	for attempt := 0; attempt < opts.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return protocol.DiscoveryReply{}, err
		}
		if _, err := conn.WriteToUDP(request, target); err != nil {
			return protocol.DiscoveryReply{}, fmt.Errorf("send discovery probe: %w", err)
		}

		deadline := time.Now().Add(opts.PerAttempt)
		if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
		conn.SetReadDeadline(deadline)

		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				break
			}
			reply, err := protocol.DecodeDiscoveryReply(buf[:n])
			if err != nil || reply.Port == 0 {
				continue
			}
			return reply, nil
		}
	}
	return protocol.DiscoveryReply{}, fmt.Errorf("no beacon daemon answered after %d probes", opts.Attempts)
}
