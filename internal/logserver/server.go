package logserver

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"beacon/internal/fileutil"
	"beacon/internal/logging"
)

// DefaultRotateBytes is the rotation threshold when none is configured:
// 10 MiB, matching the repository default.
const DefaultRotateBytes = 10 << 20

// Options configures the aggregator.
type Options struct {
	// Port is the TCP listener port. Zero picks a free one.
	Port int

	// OutputFolder must exist and be writable; a bad folder is fatal for
	// this service.
	OutputFolder string

	// RotateBytes is the per-file size threshold.
	RotateBytes int64

	Logger *slog.Logger
}

// Server accepts log record streams.
type Server struct {
	listener net.Listener
	folder   string
	rotate   int64
	logger   *slog.Logger

	mu       sync.Mutex
	writers  map[string]*sessionWriter
	closed   bool
	connWG   sync.WaitGroup
	acceptWG sync.WaitGroup
}

// New validates the output folder, binds the port, and starts accepting.
func New(opts Options) (*Server, error) {
	if err := fileutil.DirWritable(opts.OutputFolder); err != nil {
		return nil, fmt.Errorf("log output folder: %w", err)
	}
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", opts.Port))
	if err != nil {
		return nil, fmt.Errorf("bind log server port %d: %w", opts.Port, err)
	}

	rotate := opts.RotateBytes
	if rotate <= 0 {
		rotate = DefaultRotateBytes
	}
	s := &Server{
		listener: listener,
		folder:   opts.OutputFolder,
		rotate:   rotate,
		logger:   logging.NewComponentLogger(opts.Logger, "logserver"),
		writers:  make(map[string]*sessionWriter),
	}
	s.acceptWG.Add(1)
	go s.serve()
	s.logger.Info("log aggregator listening",
		logging.String("addr", listener.Addr().String()),
		logging.String(logging.FieldPath, opts.OutputFolder))
	return s, nil
}

// Port returns the bound TCP port.
func (s *Server) Port() int {
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Close stops accepting, waits for in-flight connections, and closes every
// session file.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.listener.Close()
	s.acceptWG.Wait()
	s.connWG.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, writer := range s.writers {
		writer.close()
	}
}

func (s *Server) serve() {
	defer s.acceptWG.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			s.handle(conn)
		}()
	}
}

// record is the slice of each line the server itself needs.
type record struct {
	Session string `json:"session"`
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil || rec.Session == "" {
			continue
		}
		writer := s.writer(rec.Session)
		if writer == nil {
			return
		}
		if err := writer.write(line); err != nil {
			s.logger.Warn("log write failed",
				logging.String(logging.FieldSession, rec.Session),
				logging.Error(err))
		}
	}
}

// writer returns the single writer for the file the session maps to. The
// map is keyed by the sanitized name so sessions that collide after
// sanitizing share one writer instead of racing on the same file.
func (s *Server) writer(session string) *sessionWriter {
	name := sanitizeSession(session)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if writer, ok := s.writers[name]; ok {
		return writer
	}
	writer := &sessionWriter{
		folder:  s.folder,
		session: name,
		rotate:  s.rotate,
	}
	s.writers[name] = writer
	return writer
}

// sanitizeSession keeps session-derived file names inside the output
// folder.
func sanitizeSession(session string) string {
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		default:
			return r
		}
	}, session)
	return strings.TrimLeft(replaced, ".")
}

// sessionWriter serializes all writes for one session and owns its file.
type sessionWriter struct {
	folder  string
	session string
	rotate  int64

	mu      sync.Mutex
	file    *os.File
	size    int64
	archive int
}

func (w *sessionWriter) path() string {
	return filepath.Join(w.folder, w.session+".log")
}

func (w *sessionWriter) write(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		if err := w.open(); err != nil {
			return err
		}
	}
	n, err := w.file.Write(append(append([]byte{}, line...), '\n'))
	w.size += int64(n)
	if err != nil {
		return err
	}
	if w.size >= w.rotate {
		return w.doRotate()
	}
	return nil
}

func (w *sessionWriter) open() error {
	file, err := os.OpenFile(w.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// doRotate renames the live file to the next free numbered sibling and
// reopens a fresh one.
func (w *sessionWriter) doRotate() error {
	w.file.Close()
	w.file = nil
	w.size = 0

	for {
		w.archive++
		target := fmt.Sprintf("%s.%d", w.path(), w.archive)
		if _, err := os.Stat(target); os.IsNotExist(err) {
			return os.Rename(w.path(), target)
		}
	}
}

func (w *sessionWriter) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}
