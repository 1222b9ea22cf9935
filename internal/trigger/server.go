package trigger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// maxTokenBytes bounds a request line; every valid token is far shorter.
const maxTokenBytes = 128

// readTimeout bounds how long a connection may sit idle before sending its
// token.
const readTimeout = 5 * time.Second

// Handler processes one trigger event and returns the reply line to send
// back. It is invoked from per-connection goroutines; serialization happens
// behind it in the coordinator.
type Handler func(ctx context.Context, event Event) string

// Server accepts trigger tokens on an owner-only Unix socket, one token per
// connection.
type Server struct {
	path    string
	handler Handler
	log     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    sync.WaitGroup
}

// ServerOption is a functional option for configuring a Server.
type ServerOption func(*Server)

// WithLogger sets the logger for connection-level events.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// NewServer creates a Server that will listen on the socket at path.
func NewServer(path string, handler Handler, opts ...ServerOption) *Server {
	s := &Server{
		path:    path,
		handler: handler,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Listen binds the socket with owner-only permissions, removing a stale
// socket file left by a previous run. It does not accept connections yet;
// call Serve for that.
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("trigger: create socket directory: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("trigger: remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("trigger: listen on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("trigger: restrict socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed, handling each connection in its own goroutine. Listen must have
// been called first.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("trigger: Serve called before Listen")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info("trigger socket listening", "path", s.path)
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.conns.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("trigger: accept: %w", err)
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close shuts the listener down and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()

	if ln == nil {
		return nil
	}
	err := ln.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// handleConn reads one token line, dispatches it, and writes the reply.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

	token, err := readToken(conn)
	if err != nil {
		s.log.Warn("trigger request rejected", "error", err)
		writeReply(conn, ReplyError+": "+err.Error())
		return
	}

	event := ParseToken(token)
	if event == EventUnknown {
		s.log.Warn("unknown trigger token", "token", token)
		writeReply(conn, ReplyError+": unknown token")
		return
	}

	s.log.Debug("trigger received", "event", event.String())
	writeReply(conn, s.handler(ctx, event))
}

// readToken reads a single newline-terminated token, enforcing the line
// length bound. A clean EOF after some bytes is accepted as an unterminated
// token.
func readToken(conn net.Conn) (string, error) {
	r := bufio.NewReaderSize(io.LimitReader(conn, maxTokenBytes), maxTokenBytes)
	line, err := r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimRight(line, "\r\n")
	if token == "" {
		return "", errors.New("empty token")
	}
	return token, nil
}

func writeReply(conn net.Conn, reply string) {
	_ = conn.SetWriteDeadline(time.Now().Add(readTimeout))
	_, _ = io.WriteString(conn, reply+"\n")
}
