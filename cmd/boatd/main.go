package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/boatd/boatd/internal/boatcfg"
	"github.com/boatd/boatd/internal/boatlog"
	"github.com/boatd/boatd/internal/protocol"
	"github.com/boatd/boatd/internal/registry"
	"github.com/boatd/boatd/internal/repo"
	"github.com/boatd/boatd/internal/server"
)

const defaultConfigLoc = `/opt/boat/etc/boatd.conf`

var (
	confLoc = flag.String("config-file", defaultConfigLoc, "Location for configuration file")
	verbose = flag.Bool("v", false, "Display verbose status updates to stdout")
)

func main() {
	flag.Parse()

	cfg, err := boatcfg.Load(*confLoc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", *confLoc, err)
		os.Exit(1)
	}

	lg := newLogger(cfg)
	boatlog.PrintHostInfo(os.Stdout)

	reg, err := registry.New(cfg.Users)
	if err != nil {
		lg.FatalCode(1, "invalid user registry", boatlog.KVErr(err))
	}

	layout := repo.New(cfg.RepositoryRoot, os.Getpid())
	if err := layout.Bootstrap(reg.Repositories()); err != nil {
		lg.FatalCode(1, "failed to bootstrap repository layout", boatlog.KVErr(err))
	}

	machine := protocol.NewMachine(reg, layout)
	srv := server.New(machine, lg, cfg.MaxConnections)

	listener, err := listenTLS(cfg)
	if err != nil {
		lg.FatalCode(1, "failed to establish TLS listener", boatlog.KVErr(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ctx, listener); err != nil {
			lg.Error("listener stopped", boatlog.KVErr(err))
		}
	}()

	lg.Info("boat server listening", boatlog.KV("addr", listener.Addr().String()))

	sig := waitForQuit()
	lg.Info("shutting down", boatlog.KV("signal", sig.String()))
	cancel()
	listener.Close()
	wg.Wait()
	srv.Wait()
}

func newLogger(cfg *boatcfg.Config) *boatlog.Logger {
	var lg *boatlog.Logger
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0640)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v\n", cfg.LogFile, err)
			os.Exit(1)
		}
		lg = boatlog.New(f)
	} else {
		lg = boatlog.New(os.Stderr)
	}
	if *verbose {
		lg.AddWriter(os.Stdout)
	}
	lg.SetLevel(cfg.LogLevel)
	return lg
}

func listenTLS(cfg *boatcfg.Config) (net.Listener, error) {
	cert, err := tls.LoadX509KeyPair(cfg.SSLCertFile, cfg.SSLKeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	tlsCfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	addr := net.JoinHostPort(cfg.ListenAddress, strconv.Itoa(cfg.ListenPort))
	return tls.Listen("tcp", addr, tlsCfg)
}

// waitForQuit blocks until the process receives a termination signal and
// returns it, the way the teacher's utils.WaitForQuit does for its
// ingesters.
func waitForQuit() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	return <-quit
}
