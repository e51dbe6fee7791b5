package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultServerHost     = "127.0.0.1"
	defaultServerPort     = 8080
	defaultStartupTimeout = 30 * time.Second
	defaultPollInterval   = 100 * time.Millisecond
)

// ErrServerExited is returned by Start when the child process terminates
// before it begins answering HTTP requests.
var ErrServerExited = errors.New("whisper: server process exited during startup")

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithHost sets the interface the server binds to. Defaults to 127.0.0.1.
func WithHost(host string) ServerOption {
	return func(s *Server) { s.host = host }
}

// WithPort sets the TCP port the server listens on. Defaults to 8080.
func WithPort(port int) ServerOption {
	return func(s *Server) { s.port = port }
}

// WithStartupTimeout bounds how long Start waits for the server to answer.
// Defaults to 30 s.
func WithStartupTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.startupTimeout = d }
}

// WithExtraArgs appends arguments to the server command line (e.g., "-t", "8").
func WithExtraArgs(args ...string) ServerOption {
	return func(s *Server) { s.extraArgs = append(s.extraArgs, args...) }
}

// WithOutput sets where the child's stdout and stderr go. Defaults to
// io.Discard.
func WithOutput(w io.Writer) ServerOption {
	return func(s *Server) { s.output = w }
}

// Server supervises a whisper.cpp server process (whisper-server or a
// whisperfile) started as
//
//	<binary> --server -m <model> --host <host> --port <port> [extra args]
//
// Start blocks until the server answers GET / or the startup timeout expires.
type Server struct {
	binary         string
	model          string
	host           string
	port           int
	startupTimeout time.Duration
	pollInterval   time.Duration
	extraArgs      []string
	output         io.Writer
	command        func(name string, args ...string) *exec.Cmd

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

// NewServer creates a Server for binary serving the model at modelPath. The
// process is not started until Start is called.
func NewServer(binary, modelPath string, opts ...ServerOption) (*Server, error) {
	if binary == "" {
		return nil, errors.New("whisper: server binary must not be empty")
	}
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	s := &Server{
		binary:         binary,
		model:          modelPath,
		host:           defaultServerHost,
		port:           defaultServerPort,
		startupTimeout: defaultStartupTimeout,
		pollInterval:   defaultPollInterval,
		output:         io.Discard,
		command:        exec.Command,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Args returns the command-line arguments passed to the binary.
func (s *Server) Args() []string {
	args := []string{"--server", "-m", s.model, "--host", s.host, "--port", strconv.Itoa(s.port)}
	return append(args, s.extraArgs...)
}

// URL returns the base URL of the server.
func (s *Server) URL() string {
	return "http://" + net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// Start launches the process and waits until it serves HTTP. If the server
// does not come up in time, or the process exits, the process is killed and an
// error is returned. Calling Start on a running server is a no-op.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil {
		return nil
	}

	cmd := s.command(s.binary, s.Args()...)
	cmd.Stdout = s.output
	cmd.Stderr = s.output
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("whisper: start server %q: %w", s.binary, err)
	}
	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		slog.Debug("whisper: server process exited", "binary", s.binary, "err", err)
		close(exited)
	}()

	slog.Info("whisper: waiting for server", "url", s.URL(), "timeout", s.startupTimeout)
	if err := s.waitReady(ctx, exited); err != nil {
		_ = cmd.Process.Kill()
		<-exited
		return err
	}

	s.cmd = cmd
	s.exited = exited
	slog.Info("whisper: server ready", "url", s.URL())
	return nil
}

// waitReady polls GET / at a fixed interval until it gets any HTTP response.
func (s *Server) waitReady(ctx context.Context, exited <-chan struct{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.startupTimeout)
	defer cancel()

	client := &http.Client{Timeout: time.Second}
	op := func() error {
		select {
		case <-exited:
			return backoff.Permanent(ErrServerExited)
		default:
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL()+"/", nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(s.pollInterval), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		if errors.Is(err, ErrServerExited) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("whisper: server at %s not ready after %s: %w", s.URL(), s.startupTimeout, ctxErr)
		}
		return fmt.Errorf("whisper: wait for server: %w", err)
	}
	return nil
}

// Stop kills the server process and waits for it to exit. Stop on a server
// that is not running returns nil.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return nil
	}
	err := s.cmd.Process.Kill()
	<-s.exited
	s.cmd = nil
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("whisper: kill server: %w", err)
	}
	return nil
}

// Provider returns an HTTP Provider bound to this server.
func (s *Server) Provider(opts ...Option) (*Provider, error) {
	return New(s.URL(), opts...)
}
