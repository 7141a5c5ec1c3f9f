package sync

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/untoldecay/beadsreplica/internal/ids"
)

// ReplicaEngine is the slice of *engine.Engine this transport consumes. A
// named interface (rather than importing internal/engine directly for the
// concrete type) keeps the dependency one-directional and testable against
// a fake.
type ReplicaEngine interface {
	GetVectorClockBytes(ctx context.Context) ([]byte, error)
	GetOpsByActorAfter(ctx context.Context, actor ids.ActorID, afterHLC [12]byte) ([]WireBundle, error)
	IngestWireBundle(ctx context.Context, bundle WireBundle) error
}

// Server listens on a Unix socket and answers vector-clock and pull
// requests from peers against one Engine. Grounded on
// internal/rpc.Server's listen/accept/dispatch shape, stripped down to the
// handful of operations a sync peer actually needs.
type Server struct {
	socketPath string
	engine     ReplicaEngine
	log        *EventLog

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	done     chan struct{}
}

// NewServer returns a Server that will listen on socketPath once Start is
// called.
func NewServer(socketPath string, engine ReplicaEngine, log *EventLog) *Server {
	return &Server{socketPath: socketPath, engine: engine, log: log, done: make(chan struct{})}
}

// Start binds the socket and begins accepting connections in the
// background. Returns once the listener is ready.
func (s *Server) Start() error {
	if err := EnsureSocketDir(s.socketPath); err != nil {
		return err
	}
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("sync: listen on %s: %w", s.socketPath, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// Stop closes the listener and waits for in-flight connections to finish.
func (s *Server) Stop() error {
	close(s.done)
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	s.wg.Wait()
	_ = CleanupSocketDir(s.socketPath)
	return err
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				if s.log != nil {
					s.log.Warn("sync: accept error: %v", err)
				}
				return
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { _ = conn.Close() }()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	ctx := context.Background()
	reader := bufio.NewReader(conn)

	var req Request
	if err := readMessage(reader, &req); err != nil {
		return
	}

	resp := s.dispatch(ctx, req)
	_ = writeMessage(conn, resp)
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Operation {
	case OpPing:
		resp, _ := okResponse(PingResult{ProtocolVersion: ProtocolVersion})
		return resp

	case OpVectorClock:
		vc, err := s.engine.GetVectorClockBytes(ctx)
		if err != nil {
			return errResponse(err)
		}
		resp, err := okResponse(VectorClockResult{VectorClock: vc})
		if err != nil {
			return errResponse(err)
		}
		return resp

	case OpPull:
		var args PullArgs
		if err := unmarshalArgs(req.Args, &args); err != nil {
			return errResponse(err)
		}
		actor, err := ids.ActorIDFromBytes(args.Actor)
		if err != nil {
			return errResponse(err)
		}
		var after [12]byte
		copy(after[:], args.AfterHLC)
		bundles, err := s.engine.GetOpsByActorAfter(ctx, actor, after)
		if err != nil {
			return errResponse(err)
		}
		resp, err := okResponse(PullResult{Bundles: bundles})
		if err != nil {
			return errResponse(err)
		}
		return resp

	case OpPush:
		var args PushArgs
		if err := unmarshalArgs(req.Args, &args); err != nil {
			return errResponse(err)
		}
		if err := s.engine.IngestWireBundle(ctx, args.Bundle); err != nil {
			return errResponse(err)
		}
		if s.log != nil {
			s.log.BundleIngested(args.Bundle)
		}
		resp, _ := okResponse(struct{}{})
		return resp

	default:
		return errResponse(fmt.Errorf("sync: unknown operation %q", req.Operation))
	}
}
