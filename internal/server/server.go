// Package server implements the Connection Supervisor: it accepts
// connections off a listener, bounds how many run concurrently, and
// drives each one through the protocol state machine until it closes.
package server

import (
	"context"
	"net"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/boatd/boatd/internal/boatlog"
	"github.com/boatd/boatd/internal/protocol"
)

// Server owns the shared, read-only Machine and the concurrency bound
// every accepted connection is weighed against. One Server may drive
// several listeners (e.g. one per configured bind address).
type Server struct {
	machine *protocol.Machine
	log     *boatlog.Logger
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
}

// New builds a Server. maxConnections bounds the number of connections
// handled concurrently across every listener this Server serves; a
// connection beyond the bound waits for one to finish before its
// goroutine begins protocol handling.
func New(machine *protocol.Machine, lg *boatlog.Logger, maxConnections int64) *Server {
	return &Server{
		machine: machine,
		log:     lg,
		sem:     semaphore.NewWeighted(maxConnections),
	}
}

// Serve accepts connections from l until ctx is cancelled or l.Accept
// fails persistently. It returns nil on a clean shutdown (ctx cancelled,
// or the listener was closed out from under it) and a non-nil error if
// accept failures exceeded the retry budget.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	defer l.Close()

	var failCount int
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			failCount++
			s.log.Warn("accept failed", boatlog.KVErr(err))
			if failCount > 3 {
				return err
			}
			continue
		}
		failCount = 0

		if err := s.sem.Acquire(ctx, 1); err != nil {
			conn.Close()
			return nil
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.handleConnection(conn)
		}()
	}
}

// Wait blocks until every in-flight connection handler has returned.
// Callers call it after Serve returns, as part of a graceful shutdown.
func (s *Server) Wait() {
	s.wg.Wait()
}
