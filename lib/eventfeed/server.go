// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package eventfeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/commtrail/commtrail/lib/codec"
)

// ActionFunc processes a one-shot request. The raw parameter is the
// full CBOR request including the "action" field; the handler decodes
// its own fields from it. A non-nil result is marshaled into the
// response's "data" field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// StreamFunc processes a streaming request. The handler owns the
// connection from this point: it writes frames until the stream ends
// and returns when done. The connection is closed after it returns.
type StreamFunc func(ctx context.Context, raw []byte, conn net.Conn)

// Response is the envelope for all one-shot responses.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Server serves the feed protocol on a Unix socket. Connections from
// other users are rejected by peer credential: the event history is
// private to the account running the service.
//
// Register actions with Handle and HandleStream before calling Serve.
type Server struct {
	socketPath string
	handlers   map[string]ActionFunc
	streams    map[string]StreamFunc
	logger     *slog.Logger

	// active tracks in-flight connections so Serve can drain them
	// on shutdown.
	active sync.WaitGroup
}

// NewServer creates a server that will listen on socketPath.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		streams:    make(map[string]StreamFunc),
		logger:     logger,
	}
}

// Handle registers a one-shot action handler. Panics on duplicate
// registration; action wiring is a startup-time mistake, not a
// runtime condition.
func (s *Server) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("eventfeed.Server: duplicate handler for action %q", action))
	}
	if _, exists := s.streams[action]; exists {
		panic(fmt.Sprintf("eventfeed.Server: action %q already registered as a stream", action))
	}
	s.handlers[action] = handler
}

// HandleStream registers a streaming action handler.
func (s *Server) HandleStream(action string, handler StreamFunc) {
	if _, exists := s.streams[action]; exists {
		panic(fmt.Sprintf("eventfeed.Server: duplicate stream handler for action %q", action))
	}
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("eventfeed.Server: action %q already registered as one-shot", action))
	}
	s.streams[action] = handler
}

// Serve accepts connections until ctx is cancelled, then stops
// listening and waits for in-flight handlers. Any stale socket file
// at the path is removed before listening and the socket file is
// removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("feed socket listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		if err := requireSameUser(conn); err != nil {
			s.logger.Warn("rejecting connection", "error", err)
			conn.Close()
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.active.Wait()
	return nil
}

// requireSameUser verifies the peer's credentials: only processes of
// the user running the service may speak the protocol. Unix socket
// file permissions usually enforce this already; the credential check
// holds when the socket lives in a shared directory.
func requireSameUser(conn net.Conn) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("not a unix socket connection")
	}
	rawConn, err := unixConn.SyscallConn()
	if err != nil {
		return fmt.Errorf("peer credentials: %w", err)
	}

	var cred *unix.Ucred
	var credErr error
	err = rawConn.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return fmt.Errorf("peer credentials: %w", err)
	}
	if credErr != nil {
		return fmt.Errorf("peer credentials: %w", credErr)
	}
	if int(cred.Uid) != os.Getuid() {
		return fmt.Errorf("peer uid %d does not match service uid %d", cred.Uid, os.Getuid())
	}
	return nil
}

// requestReadTimeout bounds how long a client may take to send its
// request after connecting.
const requestReadTimeout = 30 * time.Second

// responseWriteTimeout bounds one-shot response writes.
const responseWriteTimeout = 10 * time.Second

// maxRequestSize caps a single CBOR request. The largest legitimate
// request is an add-events batch; 8 MB leaves generous headroom for
// archive-scale imports going through the service.
const maxRequestSize = 8 * 1024 * 1024

// handleConnection decodes one request and routes it: streaming
// actions keep the connection, one-shot actions answer and close.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(requestReadTimeout))

	// One CBOR value is the whole request; CBOR is self-delimiting
	// so no framing is needed. LimitReader bounds memory.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	if stream, exists := s.streams[header.Action]; exists {
		// Stream handlers pace their own writes.
		conn.SetReadDeadline(time.Time{})
		stream(ctx, []byte(raw), conn)
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		s.writeError(conn, err.Error())
		return
	}
	s.writeSuccess(conn, result)
}

func (s *Server) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(responseWriteTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{OK: false, Error: message}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

func (s *Server) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(responseWriteTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
