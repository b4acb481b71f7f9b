package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadLineStripsTrailingCR(t *testing.T) {
	f := NewFramer(strings.NewReader("USER alice\r\nPASS secret\n"))

	line, err := f.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "USER alice", string(line))

	line, err = f.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "PASS secret", string(line))
}

func TestReadLineTooLong(t *testing.T) {
	f := NewFramer(strings.NewReader(strings.Repeat("a", MaxLineLength+1) + "\n"))

	_, err := f.ReadLine()
	require.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadLineEOFWithNoTerminator(t *testing.T) {
	f := NewFramer(strings.NewReader("partial"))

	_, err := f.ReadLine()
	require.ErrorIs(t, err, io.EOF)
}

func TestReadBlockWritesExactBytes(t *testing.T) {
	f := NewFramer(strings.NewReader("hello" + "REST OF STREAM\n"))
	var sink bytes.Buffer

	err := f.ReadBlock(&sink, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", sink.String())

	// bytes after the block remain available for the next ReadLine call.
	line, err := f.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "REST OF STREAM", string(line))
}

func TestReadBlockPreservesBufferedBytesAcrossModeSwitch(t *testing.T) {
	// Simulates the BLOCK command's newline and the block's data bytes
	// arriving in the same read: the framer must not lose the data bytes
	// buffered ahead of the mode switch.
	f := NewFramer(strings.NewReader("BLOCK 5\nhello\n"))

	line, err := f.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "BLOCK 5", string(line))

	var sink bytes.Buffer
	require.NoError(t, f.ReadBlock(&sink, 5))
	require.Equal(t, "hello", sink.String())

	next, err := f.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "", string(next))
}

func TestReadBlockShortStreamIsError(t *testing.T) {
	f := NewFramer(strings.NewReader("ab"))
	var sink bytes.Buffer

	err := f.ReadBlock(&sink, 5)
	require.Error(t, err)
}

type shortWriter struct {
	max int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.max {
		p = p[:w.max]
	}
	return len(p), nil
}

func TestReadBlockToleratesShortSinkWrites(t *testing.T) {
	f := NewFramer(strings.NewReader("abcdefghij"))
	sink := &shortWriter{max: 3}

	err := f.ReadBlock(sink, 10)
	require.NoError(t, err)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestReadBlockWrapsSinkFailure(t *testing.T) {
	f := NewFramer(strings.NewReader("abcde"))

	err := f.ReadBlock(failingWriter{}, 5)
	var sinkErr *SinkWriteError
	require.ErrorAs(t, err, &sinkErr)
}
