package server

import (
	"errors"
	"net"

	"github.com/google/uuid"

	"github.com/boatd/boatd/internal/boatlog"
	"github.com/boatd/boatd/internal/protocol"
)

// handleConnection drives one accepted connection through the protocol
// state machine until QUIT, EOF, a framing error, or a write failure ends
// it. It is the sole writer of the connection's ConnectionState, and it
// guarantees that Machine.Cleanup runs on every exit path so an open
// staging file is never leaked.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	id := uuid.New()
	lg := s.log
	lg.Info("connection accepted", boatlog.KV("conn", id), boatlog.KV("remote", conn.RemoteAddr()))
	defer lg.Info("connection closed", boatlog.KV("conn", id))

	framer := protocol.NewFramer(conn)
	cs := protocol.NewConnectionState()

	if !s.writeReply(conn, id, protocol.Greeting) {
		s.machine.Cleanup(cs)
		return
	}

	for {
		line, err := framer.ReadLine()
		if err != nil {
			if errors.Is(err, protocol.ErrLineTooLong) {
				lg.Warn("line too long, disconnecting", boatlog.KV("conn", id))
			}
			s.machine.Cleanup(cs)
			return
		}

		reply, directive := s.machine.HandleLine(cs, line)
		if !s.writeReply(conn, id, reply) {
			s.machine.Cleanup(cs)
			return
		}

		switch directive.Kind {
		case protocol.DirClose:
			return
		case protocol.DirReadBlock:
			if !s.receiveBlock(conn, id, framer, cs) {
				return
			}
		}
	}
}

// receiveBlock handles one DirReadBlock directive: it copies the
// declared block into the staging sink and, on success, writes the 257
// reply. It returns false if the connection should be closed, having
// already performed any cleanup and best-effort reply required.
func (s *Server) receiveBlock(conn net.Conn, id uuid.UUID, framer *protocol.Framer, cs *protocol.ConnectionState) bool {
	reply, directive, err := s.machine.ReceiveBlock(framer, cs)
	if err != nil {
		var sinkErr *protocol.SinkWriteError
		if errors.As(err, &sinkErr) {
			s.log.Error("staging sink write failed", boatlog.KV("conn", id), boatlog.KVErr(err))
			s.writeReply(conn, id, "599 system error; server is disconnecting")
		} else {
			s.log.Warn("block read failed", boatlog.KV("conn", id), boatlog.KVErr(err))
		}
		s.machine.Cleanup(cs)
		return false
	}

	if !s.writeReply(conn, id, reply) {
		s.machine.Cleanup(cs)
		return false
	}
	return directive.Kind != protocol.DirClose
}

// writeReply writes one reply line and reports whether the write
// succeeded; a failure is logged and treated like any other transport
// error by the caller.
func (s *Server) writeReply(conn net.Conn, id uuid.UUID, reply string) bool {
	if _, err := conn.Write([]byte(reply + "\n")); err != nil {
		s.log.Warn("write failed", boatlog.KV("conn", id), boatlog.KVErr(err))
		return false
	}
	return true
}
