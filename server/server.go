// Package server wires CallHandler to a gRPC transport over a Unix domain
// socket, following a chainable builder pattern: a chainable With*
// configuration surface, a server-info handshake file written at startup,
// and graceful shutdown triggered either by an OS signal or by
// CallHandler's own error-drain signal.
package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/yhl25/numaflow-go/apis/reduce"
	"github.com/yhl25/numaflow-go/pb"
)

const (
	// DefaultSocketFile is the endpoint the transport listens on absent an
	// explicit WithSocketFile.
	DefaultSocketFile = "/var/run/numaflow/reduce.sock"
	// DefaultServerInfoFile is the handshake descriptor path written at
	// startup absent an explicit WithServerInfoFile.
	DefaultServerInfoFile = "/var/run/numaflow/reducer-server-info"
	// DefaultMaxMessageSize is the gRPC message size ceiling, in bytes,
	// absent an explicit WithMaxMessageSize.
	DefaultMaxMessageSize = 64 * 1024 * 1024
)

// Server builds and runs the reduce UDF transport. Construct with New and
// configure with the With* methods before calling Start or
// StartWithShutdown.
type Server struct {
	factory        reduce.ReducerFactory
	socketFile     string
	serverInfoFile string
	maxMessageSize int
	log            logrus.FieldLogger
}

// New creates a Server for factory with default configuration.
func New(factory reduce.ReducerFactory) *Server {
	return &Server{
		factory:        factory,
		socketFile:     DefaultSocketFile,
		serverInfoFile: DefaultServerInfoFile,
		maxMessageSize: DefaultMaxMessageSize,
		log:            logrus.StandardLogger(),
	}
}

// WithSocketFile overrides the listener endpoint.
func (s *Server) WithSocketFile(path string) *Server {
	s.socketFile = path

	return s
}

// WithServerInfoFile overrides the handshake descriptor path.
func (s *Server) WithServerInfoFile(path string) *Server {
	s.serverInfoFile = path

	return s
}

// WithMaxMessageSize overrides the gRPC message size ceiling, in bytes, for
// both sent and received messages.
func (s *Server) WithMaxMessageSize(size int) *Server {
	s.maxMessageSize = size

	return s
}

// WithLogger overrides the logger used by the server and the components it
// constructs. Defaults to logrus.StandardLogger().
func (s *Server) WithLogger(log logrus.FieldLogger) *Server {
	s.log = log

	return s
}

// SocketFile returns the configured listener endpoint.
func (s *Server) SocketFile() string { return s.socketFile }

// ServerInfoFile returns the configured handshake descriptor path.
func (s *Server) ServerInfoFile() string { return s.serverInfoFile }

// MaxMessageSize returns the configured gRPC message size ceiling.
func (s *Server) MaxMessageSize() int { return s.maxMessageSize }

// Start runs the server until an OS termination signal (SIGINT, SIGTERM)
// or a call-reported error triggers shutdown. It is equivalent to
// StartWithShutdown(ctx, nil).
func (s *Server) Start(ctx context.Context) error {
	return s.StartWithShutdown(ctx, nil)
}

// StartWithShutdown runs the server until shutdown is triggered by, in
// whichever order occurs first: an OS termination signal, a call-reported
// fatal error, the caller-supplied userShutdown channel (if non-nil), or
// ctx itself being cancelled. Active calls are allowed to finish via
// GracefulStop.
func (s *Server) StartWithShutdown(ctx context.Context, userShutdown <-chan struct{}) error {
	if err := os.MkdirAll(filepath.Dir(s.socketFile), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	_ = os.Remove(s.socketFile)

	lis, err := net.Listen("unix", s.socketFile)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketFile, err)
	}

	handler := NewCallHandler(s.factory, s.log)

	grpcServer := grpc.NewServer(
		grpc.ForceServerCodec(pb.Codec()),
		grpc.MaxRecvMsgSize(s.maxMessageSize),
		grpc.MaxSendMsgSize(s.maxMessageSize),
	)
	pb.RegisterReduceServiceServer(grpcServer, handler)

	if err := s.writeServerInfoFile(); err != nil {
		return fmt.Errorf("writing server info file: %w", err)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	serveErr := make(chan error, 1)
	go func() {
		s.log.WithField("socket", s.socketFile).Info("reduce UDF server listening")
		serveErr <- grpcServer.Serve(lis)
	}()

	select {
	case err := <-serveErr:
		return err
	case sig := <-signalCh:
		s.log.WithField("signal", sig).Info("caught signal, shutting down")
	case <-handler.Shutdown():
		s.log.Warn("call reported a fatal error, shutting down")
	case <-userShutdown:
		s.log.Info("shutdown requested by caller")
	case <-ctx.Done():
		s.log.WithError(ctx.Err()).Info("context cancelled, shutting down")
	}

	grpcServer.GracefulStop()

	return nil
}

func (s *Server) writeServerInfoFile() error {
	if err := os.MkdirAll(filepath.Dir(s.serverInfoFile), 0o755); err != nil {
		return err
	}

	content := fmt.Sprintf("{\"protocol\":\"uds\",\"language\":\"go\",\"version\":\"v1\",\"metadata\":{\"codec\":%q}}\n", pb.CodecName)

	return os.WriteFile(s.serverInfoFile, []byte(content), 0o644)
}
