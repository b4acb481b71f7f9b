// Package boatlog is a leveled, structured logger for the boat server,
// adapted from the ingest/log package this project's teacher depends on:
// the same rfc5424 structured-data record shape, the same KV/KVErr
// helper style, and the same multi-writer fan-out, trimmed to what a
// single-process line-protocol daemon needs.
package boatlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

// Level is a logging severity, ordered low to high.
type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

func (l Level) String() string {
	switch l {
	case OFF:
		return "OFF"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// LevelFromString parses a config-file level name; it accepts the same
// spellings as Level.String, plus WARNING, case-insensitively.
func LevelFromString(s string) (Level, error) {
	switch strings.ToUpper(s) {
	case "OFF":
		return OFF, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "CRITICAL":
		return CRITICAL, nil
	default:
		return OFF, fmt.Errorf("boatlog: invalid level %q", s)
	}
}

// KV builds a structured-data parameter the way ingest/log does, for use
// in a leveled call such as lg.Info("accepted connection", boatlog.KV("remote", addr)).
func KV(name string, value interface{}) rfc5424.SDParam {
	var r rfc5424.SDParam
	r.Name = name
	if s, ok := value.(string); ok {
		r.Value = s
	} else {
		r.Value = fmt.Sprintf("%v", value)
	}
	return r
}

// KVErr is KV("error", err), the common case of logging a failure.
func KVErr(err error) rfc5424.SDParam {
	return KV("error", err)
}

// Logger fans a stream of leveled, structured log lines out to one or
// more writers. The zero value is not usable; construct with New.
type Logger struct {
	mtx      sync.Mutex
	wtrs     []io.Writer
	lvl      Level
	hostname string
	appname  string
}

// New constructs a Logger writing to wtr at INFO level. AddWriter may be
// used to fan out to additional destinations (e.g. a log file plus
// stderr during development).
func New(wtr io.Writer) *Logger {
	hostname, _ := os.Hostname()
	return &Logger{
		wtrs:     []io.Writer{wtr},
		lvl:      INFO,
		hostname: hostname,
		appname:  "boatd",
	}
}

// NewDiscard builds a Logger that drops everything, for tests and
// components that take a *Logger but run outside a real server process.
func NewDiscard() *Logger {
	return New(io.Discard)
}

// AddWriter adds an additional destination for every subsequent log line.
func (l *Logger) AddWriter(wtr io.Writer) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.wtrs = append(l.wtrs, wtr)
}

// SetLevel changes the minimum level that will be emitted.
func (l *Logger) SetLevel(lvl Level) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.lvl = lvl
}

func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam) { l.output(DEBUG, msg, sds...) }
func (l *Logger) Info(msg string, sds ...rfc5424.SDParam)  { l.output(INFO, msg, sds...) }
func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam)  { l.output(WARN, msg, sds...) }
func (l *Logger) Error(msg string, sds ...rfc5424.SDParam) { l.output(ERROR, msg, sds...) }
func (l *Logger) Critical(msg string, sds ...rfc5424.SDParam) {
	l.output(CRITICAL, msg, sds...)
}

// FatalCode logs msg at CRITICAL and terminates the process with code,
// matching ingest/log's FatalCode used for unrecoverable startup errors.
func (l *Logger) FatalCode(code int, msg string, sds ...rfc5424.SDParam) {
	l.output(CRITICAL, msg, sds...)
	os.Exit(code)
}

func (l *Logger) output(lvl Level, msg string, sds ...rfc5424.SDParam) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.lvl == OFF || lvl < l.lvl {
		return
	}
	line := l.render(time.Now(), lvl, msg, sds...)
	for _, w := range l.wtrs {
		io.WriteString(w, line)
		io.WriteString(w, "\n")
	}
}

func (l *Logger) render(ts time.Time, lvl Level, msg string, sds ...rfc5424.SDParam) string {
	m := rfc5424.Message{
		Priority:  priority(lvl),
		Timestamp: ts,
		Hostname:  l.hostname,
		AppName:   l.appname,
		MessageID: lvl.String(),
		Message:   []byte(msg),
	}
	if len(sds) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: "boat@0", Parameters: sds}}
	}
	b, err := m.MarshalBinary()
	if err != nil {
		return fmt.Sprintf("%s %s %s", ts.UTC().Format(time.RFC3339), lvl, msg)
	}
	return string(b)
}

func priority(lvl Level) rfc5424.Priority {
	switch lvl {
	case DEBUG:
		return rfc5424.User | rfc5424.Debug
	case INFO:
		return rfc5424.User | rfc5424.Info
	case WARN:
		return rfc5424.User | rfc5424.Warning
	case ERROR:
		return rfc5424.User | rfc5424.Error
	case CRITICAL:
		return rfc5424.User | rfc5424.Crit
	default:
		return rfc5424.User | rfc5424.Info
	}
}
