// Package protocol implements the per-connection line/block framer, the
// protocol state machine, and the upload pipeline that together form the
// core of the server: the parts that combine a stateful line protocol
// with a mode switch to raw binary framing on the same byte stream.
package protocol

import (
	"bufio"
	"errors"
	"io"
)

// MaxLineLength bounds a single buffered text line, including any
// trailing \r but excluding the terminating \n. A line that would exceed
// it fails the connection rather than growing the buffer without bound.
const MaxLineLength = 8192

// MaxBlockSize bounds a single BLOCK's declared byte count.
const MaxBlockSize = 64 * 1024 * 1024

// ErrLineTooLong is returned by ReadLine when a line exceeds MaxLineLength
// before a newline is seen.
var ErrLineTooLong = errors.New("protocol: line exceeds maximum length")

// Framer sits above the raw connection and yields either text lines or
// raw block bytes, depending on which the Protocol State Machine is
// currently expecting. Both modes share a single bufio.Reader, so bytes
// read ahead of a mode switch (e.g. the first bytes of a block arriving
// in the same TCP segment as the BLOCK command's newline) are never
// dropped: they simply remain buffered until the next Read call, in
// whichever mode that call happens in.
type Framer struct {
	r *bufio.Reader
}

// NewFramer wraps conn for framing. conn is expected to already be a
// TLS-terminated stream; the framer has no notion of TLS itself.
func NewFramer(conn io.Reader) *Framer {
	return &Framer{r: bufio.NewReaderSize(conn, MaxLineLength)}
}

// ReadLine reads one newline-terminated text line, stripping a trailing
// \r if present, and returns it without the terminator. The returned
// slice is freshly allocated and safe for the caller to retain or zero.
func (f *Framer) ReadLine() ([]byte, error) {
	var buf []byte
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b == '\n' {
			break
		}
		buf = append(buf, b)
		if len(buf) > MaxLineLength {
			return nil, ErrLineTooLong
		}
	}
	if n := len(buf); n > 0 && buf[n-1] == '\r' {
		buf = buf[:n-1]
	}
	return buf, nil
}

// ReadBlock reads exactly n raw bytes from the stream and appends them to
// sink, in file order, tolerating short writes to sink. It returns as
// soon as all n bytes have been read and written, an error reading from
// the stream, or a *SinkWriteError if sink rejects the data.
func (f *Framer) ReadBlock(sink io.Writer, n int) error {
	return copyBlock(f.r, sink, n)
}
