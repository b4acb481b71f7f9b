package server

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/boatd/boatd/internal/boatlog"
	"github.com/boatd/boatd/internal/protocol"
	"github.com/boatd/boatd/internal/registry"
	"github.com/boatd/boatd/internal/repo"
)

func buildMachine(t *testing.T) (*protocol.Machine, string) {
	t.Helper()
	root := t.TempDir()
	salt := []byte("0123456789abcdef")
	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte("hunter2"))
	record := append(append([]byte{}, salt...), hex.EncodeToString(mac.Sum(nil))...)

	reg, err := registry.New([]registry.User{
		{Username: "alice", PasswordRecord: record, Repository: "alice-repo", VersioningEnabled: true},
	})
	require.NoError(t, err)

	layout := repo.New(root, os.Getpid())
	require.NoError(t, layout.Bootstrap(reg.Repositories()))

	return protocol.NewMachine(reg, layout), root
}

func TestHandleConnectionHappyPath(t *testing.T) {
	machine, root := buildMachine(t)
	s := New(machine, boatlog.NewDiscard(), 4)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	done := make(chan struct{})
	go func() {
		s.handleConnection(serverConn)
		close(done)
	}()

	r := bufio.NewReader(clientConn)
	readLine := func() string {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		return line[:len(line)-1]
	}
	send := func(s string) {
		_, err := clientConn.Write([]byte(s + "\n"))
		require.NoError(t, err)
	}

	require.Equal(t, "220 boat server", readLine())

	send("USER alice")
	require.Equal(t, "251 hi, password please", readLine())

	send("PASS hunter2")
	require.Equal(t, "252 authenticated", readLine())

	send("PUT notes.txt")
	require.Equal(t, "255 ok", readLine())

	send("BLOCK 5")
	require.Equal(t, "256 commence data upload", readLine())

	_, err := clientConn.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "257 block received", readLine())

	send("SAVE")
	require.Equal(t, "259 file saved", readLine())

	send("QUIT")
	require.Equal(t, "221 bye", readLine())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleConnection did not return after QUIT")
	}

	data, err := os.ReadFile(filepath.Join(root, "alice-repo", "current.notes.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestHandleConnectionCleansUpOnPeerEOF(t *testing.T) {
	machine, root := buildMachine(t)
	s := New(machine, boatlog.NewDiscard(), 4)

	clientConn, serverConn := net.Pipe()

	done := make(chan struct{})
	go func() {
		s.handleConnection(serverConn)
		close(done)
	}()

	r := bufio.NewReader(clientConn)
	readLine := func() string {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		return line[:len(line)-1]
	}
	send := func(s string) {
		_, err := clientConn.Write([]byte(s + "\n"))
		require.NoError(t, err)
	}

	require.Equal(t, "220 boat server", readLine())
	send("USER alice")
	readLine()
	send("PASS hunter2")
	readLine()
	send("PUT orphan.txt")
	readLine()

	clientConn.Close() // abrupt disconnect mid-PUT

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleConnection did not return after peer close")
	}

	entries, err := os.ReadDir(filepath.Join(root, "tmp"))
	require.NoError(t, err)
	require.Empty(t, entries, "temp file must be unlinked on abrupt disconnect")
}

func TestServeStopsOnContextCancel(t *testing.T) {
	machine, _ := buildMachine(t)
	s := New(machine, boatlog.NewDiscard(), 4)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() { serveErr <- s.Serve(ctx, l) }()

	cancel()
	l.Close()

	select {
	case err := <-serveErr:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancel")
	}
}
