package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"beacon/internal/logging"
	"beacon/internal/protocol"
)

// State is a service lifecycle phase.
type State string

const (
	Stopped  State = "stopped"
	Starting State = "starting"
	Running  State = "running"
	Crashed  State = "crashed"
)

var (
	// ErrPortInUse reports that a service port is already bound.
	ErrPortInUse = errors.New("supervisor: port already in use")

	// ErrStartupFailed reports that a required service did not come up.
	ErrStartupFailed = errors.New("supervisor: required service failed to start")
)

// StopGracePeriod is how long a signaled child gets before the kill.
const StopGracePeriod = 5 * time.Second

// Spec declares one child service.
type Spec struct {
	Name    string
	Command string
	Args    []string
	Dir     string
	Env     []string

	// Ports are reserved (bound and released) immediately before the spawn,
	// so a clash fails fast instead of surfacing as a child crash.
	Ports []int

	// Required marks services whose failure aborts daemon startup.
	Required bool

	// ReadyTimeout, when positive, makes startup wait until the first port
	// accepts a TCP connection.
	ReadyTimeout time.Duration
}

type service struct {
	spec Spec

	mu    sync.Mutex
	state State
	err   error
	cmd   *exec.Cmd
	done  chan struct{}
}

func (s *service) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.err = err
	s.mu.Unlock()
}

// Supervisor owns the child service set.
type Supervisor struct {
	logger   *slog.Logger
	services []*service

	mu       sync.Mutex
	started  bool
	stopping bool
}

// New builds a supervisor over an ordered service list.
func New(specs []Spec, logger *slog.Logger) *Supervisor {
	sup := &Supervisor{logger: logging.NewComponentLogger(logger, "supervisor")}
	for _, spec := range specs {
		sup.services = append(sup.services, &service{spec: spec, state: Stopped})
	}
	return sup
}

// Start brings services up in order. A required service failure aborts with
// an error naming the service; optional failures are logged and recorded.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("supervisor: already started")
	}
	s.started = true
	s.mu.Unlock()

	for _, svc := range s.services {
		if err := s.startService(ctx, svc); err != nil {
			if svc.spec.Required {
				return err
			}
			s.logger.Warn("optional service failed",
				logging.String(logging.FieldService, svc.spec.Name),
				logging.Error(err))
		}
	}
	return nil
}

func (s *Supervisor) startService(ctx context.Context, svc *service) error {
	spec := svc.spec
	svc.setState(Starting, nil)

	if err := reservePorts(spec.Ports); err != nil {
		err = fmt.Errorf("%s: %w", spec.Name, err)
		svc.setState(Crashed, err)
		return err
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	if err := cmd.Start(); err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrStartupFailed, spec.Name, err)
		svc.setState(Crashed, err)
		return err
	}

	done := make(chan struct{})
	svc.mu.Lock()
	svc.cmd = cmd
	svc.done = done
	svc.mu.Unlock()

	go func() {
		waitErr := cmd.Wait()
		close(done)
		s.mu.Lock()
		stopping := s.stopping
		s.mu.Unlock()
		if stopping {
			svc.setState(Stopped, nil)
			return
		}
		svc.setState(Crashed, waitErr)
		s.logger.Error("service exited",
			logging.String(logging.FieldService, spec.Name),
			logging.Error(waitErr))
	}()

	if spec.ReadyTimeout > 0 && len(spec.Ports) > 0 {
		if err := waitReady(ctx, spec.Ports[0], spec.ReadyTimeout, done); err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrStartupFailed, spec.Name, err)
			svc.setState(Crashed, err)
			s.killService(svc)
			return err
		}
	}

	// A fast-exiting child may already be marked Crashed by its waiter.
	svc.mu.Lock()
	if svc.state == Starting {
		svc.state = Running
		svc.err = nil
	}
	svc.mu.Unlock()
	s.logger.Info("service started",
		logging.String(logging.FieldService, spec.Name),
		logging.Int("pid", cmd.Process.Pid),
		logging.Bool("required", spec.Required))
	return nil
}

// reservePorts binds then releases each port, proving it is free right
// before the spawn.
func reservePorts(ports []int) error {
	for _, port := range ports {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return fmt.Errorf("%w: %d", ErrPortInUse, port)
		}
		listener.Close()
	}
	return nil
}

// waitReady polls until the port accepts connections, the child dies, or
// the deadline passes.
func waitReady(ctx context.Context, port int, timeout time.Duration, died <-chan struct{}) error {
	deadline := time.Now().Add(timeout)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	for {
		conn, err := net.DialTimeout("tcp", addr, 250*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-died:
			return errors.New("process exited before becoming ready")
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("port %d not ready after %s", port, timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Stop terminates children in reverse start order: SIGTERM, then a kill
// after the grace period.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	for i := len(s.services) - 1; i >= 0; i-- {
		svc := s.services[i]
		svc.mu.Lock()
		cmd, done, state := svc.cmd, svc.done, svc.state
		svc.mu.Unlock()
		if cmd == nil || cmd.Process == nil || (state != Running && state != Starting) {
			continue
		}

		s.logger.Info("stopping service", logging.String(logging.FieldService, svc.spec.Name))
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			continue
		}
		select {
		case <-done:
		case <-time.After(StopGracePeriod):
			s.logger.Warn("service ignored SIGTERM, killing",
				logging.String(logging.FieldService, svc.spec.Name))
			cmd.Process.Kill()
			<-done
		}
		svc.setState(Stopped, nil)
	}
}

func (s *Supervisor) killService(svc *service) {
	svc.mu.Lock()
	cmd, done := svc.cmd, svc.done
	svc.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	cmd.Process.Kill()
	if done != nil {
		<-done
	}
}

// ServiceStatuses satisfies the repository server's status source.
func (s *Supervisor) ServiceStatuses() []protocol.ServiceStatus {
	statuses := make([]protocol.ServiceStatus, 0, len(s.services))
	for _, svc := range s.services {
		svc.mu.Lock()
		status := protocol.ServiceStatus{
			Name:     svc.spec.Name,
			State:    string(svc.state),
			Required: svc.spec.Required,
			Ports:    svc.spec.Ports,
		}
		if svc.err != nil {
			status.Error = svc.err.Error()
		}
		svc.mu.Unlock()
		statuses = append(statuses, status)
	}
	return statuses
}
