package protocol

import (
	"os"
	"strconv"
	"strings"

	"github.com/boatd/boatd/internal/auth"
	"github.com/boatd/boatd/internal/registry"
	"github.com/boatd/boatd/internal/repo"
	"github.com/boatd/boatd/internal/validate"
)

// Greeting is the line the server emits immediately on accept.
const Greeting = "220 boat server"

// ReplyUnknownCommand is the uniform reply for an unrecognised verb or a
// verb that is not valid for the connection's current phase.
const ReplyUnknownCommand = "500 unknown command or inappropriate command for current state"

// DirectiveKind tells the Connection Supervisor what to do after a
// command has been dispatched.
type DirectiveKind int

const (
	// DirContinue means keep reading text lines.
	DirContinue DirectiveKind = iota
	// DirReadBlock means read exactly BlockSize raw bytes next, then call
	// Machine.BlockReceived (or report a transport/system error).
	DirReadBlock
	// DirClose means reply bytes, if any, have already been queued; the
	// supervisor should flush them and close the connection.
	DirClose
)

// Directive is the Machine's instruction to the supervisor alongside a
// reply string.
type Directive struct {
	Kind      DirectiveKind
	BlockSize int
}

// Machine is the Protocol State Machine. One Machine is shared, read-only
// after construction, across every connection; all mutable state lives on
// the ConnectionState passed into each call.
type Machine struct {
	registry *registry.Registry
	layout   *repo.Layout
}

// NewMachine builds a Machine bound to the given user registry and
// repository layout manager.
func NewMachine(reg *registry.Registry, layout *repo.Layout) *Machine {
	return &Machine{registry: reg, layout: layout}
}

// HandleLine parses one text line and dispatches it. line must already
// have its trailing \r\n or \n stripped (see Framer.ReadLine).
func (m *Machine) HandleLine(cs *ConnectionState, line []byte) (string, Directive) {
	verb, args := splitCommand(line)
	switch verb {
	case "USER":
		return m.handleUser(cs, args)
	case "PASS":
		return m.handlePass(cs, args)
	case "PUT":
		return m.handlePut(cs, args)
	case "BLOCK":
		return m.handleBlock(cs, args)
	case "SAVE":
		return m.handleSave(cs, args)
	case "QUIT":
		return m.handleQuit(cs)
	default:
		return ReplyUnknownCommand, Directive{Kind: DirContinue}
	}
}

// splitCommand uppercases the verb and returns everything after the first
// space, trimmed of that one leading space only. A line with no space has
// an empty args.
func splitCommand(line []byte) (verb string, args []byte) {
	idx := -1
	for i, b := range line {
		if b == ' ' {
			idx = i
			break
		}
	}
	if idx == -1 {
		return strings.ToUpper(string(line)), nil
	}
	return strings.ToUpper(string(line[:idx])), line[idx+1:]
}

func (m *Machine) handleUser(cs *ConnectionState, args []byte) (string, Directive) {
	if cs.phase != PhaseInit {
		return ReplyUnknownCommand, Directive{Kind: DirContinue}
	}
	if len(args) == 0 {
		return "510 must specify a username", Directive{Kind: DirContinue}
	}
	cs.pendingUsername = string(args)
	cs.user = nil
	cs.phase = PhaseAwaitPassword
	return "251 hi, password please", Directive{Kind: DirContinue}
}

func (m *Machine) handlePass(cs *ConnectionState, args []byte) (string, Directive) {
	if cs.phase != PhaseAwaitPassword {
		return ReplyUnknownCommand, Directive{Kind: DirContinue}
	}
	if len(args) == 0 {
		return "510 must specify a password", Directive{Kind: DirContinue}
	}

	password := args
	defer auth.Zero(password)

	user, found := m.registry.Lookup(cs.pendingUsername)
	cs.pendingUsername = ""

	if !found {
		auth.Dummy(password)
		cs.phase = PhaseInit
		return "552 invalid password", Directive{Kind: DirContinue}
	}

	ok, err := auth.Verify(user.PasswordRecord, password)
	if err != nil || !ok {
		cs.phase = PhaseInit
		return "552 invalid password", Directive{Kind: DirContinue}
	}

	u := user
	cs.user = &u
	cs.phase = PhaseAuthenticated
	return "252 authenticated", Directive{Kind: DirContinue}
}

func (m *Machine) handlePut(cs *ConnectionState, args []byte) (string, Directive) {
	if cs.phase != PhaseAuthenticated {
		return ReplyUnknownCommand, Directive{Kind: DirContinue}
	}
	filename := string(args)
	if filename == "" {
		return "510 must specify a filename", Directive{Kind: DirContinue}
	}
	if len(filename) > validate.MaxFilenameLength {
		return "510 filename is too long", Directive{Kind: DirContinue}
	}
	if !validate.Filename(filename) {
		return "510 invalid characters in filename", Directive{Kind: DirContinue}
	}

	if !cs.user.VersioningEnabled {
		exists, err := m.layout.ExistsCurrent(*cs.user, filename)
		if err != nil {
			return m.systemError(cs)
		}
		if exists {
			return "520 file already exists", Directive{Kind: DirContinue}
		}
	}

	tempPath, _ := m.layout.StagePath()
	sink, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE, 0640)
	if err != nil {
		return m.systemError(cs)
	}

	cs.staging = &stagingRecord{tempPath: tempPath, sink: sink, targetFilename: filename}
	cs.phase = PhasePutOpen
	return "255 ok", Directive{Kind: DirContinue}
}

func (m *Machine) handleBlock(cs *ConnectionState, args []byte) (string, Directive) {
	if cs.phase != PhasePutOpen {
		return ReplyUnknownCommand, Directive{Kind: DirContinue}
	}
	if len(args) == 0 {
		return "510 must specify a block size", Directive{Kind: DirContinue}
	}
	if len(args) > 9 {
		return "510 invalid block size", Directive{Kind: DirContinue}
	}
	for _, b := range args {
		if b < '0' || b > '9' {
			return "510 invalid block size", Directive{Kind: DirContinue}
		}
	}
	n, err := strconv.Atoi(string(args))
	if err != nil || n < 1 || n > MaxBlockSize {
		return "510 invalid block size", Directive{Kind: DirContinue}
	}

	cs.staging.bytesRemainingInBlock = n
	cs.phase = PhaseReceivingBlock
	return "256 commence data upload", Directive{Kind: DirReadBlock, BlockSize: n}
}

// BlockReceived is called by the Connection Supervisor after it has
// successfully copied the declared number of block bytes into the
// staging sink via Framer.ReadBlock. It returns the 257 reply and
// transitions back to PhasePutOpen, ready for another BLOCK or a SAVE.
func (m *Machine) BlockReceived(cs *ConnectionState) (string, Directive) {
	cs.staging.bytesRemainingInBlock = 0
	cs.phase = PhasePutOpen
	return "257 block received", Directive{Kind: DirContinue}
}

// ReceiveBlock drives framer to copy the connection's declared block
// bytes into the staging sink and reports the resulting reply. A non-nil
// error means the supervisor should not reply 257: it should inspect the
// error with errors.As(*SinkWriteError) to decide between a 599 reply
// (sink failed) and a silent disconnect (the stream itself failed).
func (m *Machine) ReceiveBlock(framer *Framer, cs *ConnectionState) (string, Directive, error) {
	n := cs.staging.bytesRemainingInBlock
	if err := framer.ReadBlock(cs.staging.sink, n); err != nil {
		return "", Directive{}, err
	}
	reply, directive := m.BlockReceived(cs)
	return reply, directive, nil
}

func (m *Machine) handleSave(cs *ConnectionState, args []byte) (string, Directive) {
	if cs.phase != PhasePutOpen {
		return ReplyUnknownCommand, Directive{Kind: DirContinue}
	}
	if len(args) != 0 {
		return "510 save does not take an argument", Directive{Kind: DirContinue}
	}

	st := cs.staging
	cs.staging = nil

	if err := st.sink.Close(); err != nil {
		os.Remove(st.tempPath)
		return "599 system error; server is disconnecting", Directive{Kind: DirClose}
	}

	versioned, err := m.layout.Publish(st.tempPath, *cs.user, st.targetFilename)
	if err != nil {
		os.Remove(st.tempPath)
		return "599 system error; server is disconnecting", Directive{Kind: DirClose}
	}

	if err := m.layout.UpdateCurrentAlias(*cs.user, st.targetFilename, versioned); err != nil {
		return "599 system error; server is disconnecting", Directive{Kind: DirClose}
	}

	cs.phase = PhaseAuthenticated
	return "259 file saved", Directive{Kind: DirContinue}
}

func (m *Machine) handleQuit(cs *ConnectionState) (string, Directive) {
	m.Cleanup(cs)
	return "221 bye", Directive{Kind: DirClose}
}

// systemError releases any open staging record and returns the uniform
// 599 reply with a close directive.
func (m *Machine) systemError(cs *ConnectionState) (string, Directive) {
	m.Cleanup(cs)
	return "599 system error; server is disconnecting", Directive{Kind: DirClose}
}

// Cleanup releases any open staging record: the sink is closed and the
// temp file unlinked. It is idempotent and safe to call on a connection
// with no staging open. The Connection Supervisor calls it on every exit
// path that QUIT does not already cover: peer EOF, TLS error, and
// transport-level read/write failure.
func (m *Machine) Cleanup(cs *ConnectionState) {
	if cs.staging == nil {
		return
	}
	st := cs.staging
	cs.staging = nil
	st.sink.Close()
	os.Remove(st.tempPath)
}
