package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/me/jobd/internal/archive"
	"github.com/me/jobd/internal/config"
	"github.com/me/jobd/internal/daemon"
	"github.com/me/jobd/internal/logging"
	"github.com/me/jobd/internal/runner"
	"github.com/me/jobd/internal/scheduler"
	"github.com/me/jobd/internal/server"
	"github.com/me/jobd/internal/store"
	"github.com/me/jobd/pkg/model"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "jobd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "", "Path to YAML config file")
	dataDir := flag.String("data-dir", "", "State directory: snapshot, pid file, socket (default .data)")
	logDir := flag.String("log-dir", "", "Directory for per-job log files (default logs)")
	workDir := flag.String("work-dir", "", "Working directory for jobs that do not set one")
	socket := flag.String("socket", "", "Control socket path (default <data-dir>/jobd.sock)")
	addr := flag.String("addr", "", "Optional TCP listen address for the control API")
	driver := flag.String("store", "", "Store driver: sqlite or file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (text, json)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	flag.Parse()

	cfg := config.DefaultDaemonConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return err
		}
	}
	// Flags override the file.
	overrides := map[*string]*string{
		dataDir: &cfg.DataDir, logDir: &cfg.LogDir, workDir: &cfg.WorkDir,
		socket: &cfg.Socket, addr: &cfg.Addr, driver: &cfg.Store.Driver,
		logLevel: &cfg.Log.Level, logFormat: &cfg.Log.Format,
	}
	for flagVal, field := range overrides {
		if *flagVal != "" {
			*field = *flagVal
		}
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.Log.Level))
	logger := logging.NewLogger(level, cfg.Log.Format, os.Stderr)

	for _, dir := range []string{cfg.DataDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	lock, err := daemon.Acquire(cfg.PIDPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.StorePath(), logger)
	if err != nil {
		var corrupt *model.StateCorruptionError
		if errors.As(err, &corrupt) {
			return fmt.Errorf("refusing to start: %w (move the file aside to start empty)", err)
		}
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	logger.Info("store ready", "driver", cfg.Store.Driver, "path", cfg.StorePath())

	var schedOpts []scheduler.Option
	if cfg.Archive.Enabled {
		arch, err := archive.NewFromConfig(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix,
			cfg.Archive.Region, cfg.Archive.Endpoint, logger)
		if err != nil {
			return fmt.Errorf("configure log archive: %w", err)
		}
		arch.Timeout = cfg.Archive.Timeout
		schedOpts = append(schedOpts, scheduler.WithFinishHook(arch.Hook(context.Background())))
		logger.Info("log archive enabled", "bucket", cfg.Archive.Bucket, "prefix", cfg.Archive.Prefix)
	}

	sched := scheduler.New(st, runner.New(logger), scheduler.Config{
		LogDir:  cfg.LogDir,
		WorkDir: cfg.WorkDir,
	}, logger, schedOpts...)
	if err := sched.Recover(ctx); err != nil {
		return fmt.Errorf("recover state: %w", err)
	}

	srv := server.New(sched, cfg.LogDir, logger,
		server.WithProber(server.CommandProber{
			Command: cfg.Reachability.Command,
			Timeout: cfg.Reachability.Timeout,
		}),
		server.WithShutdown(stop),
	)
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listeners := make([]net.Listener, 0, 2)
	ul, err := server.ListenUnix(cfg.SocketPath())
	if err != nil {
		return err
	}
	listeners = append(listeners, ul)
	if cfg.Addr != "" {
		tl, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			ul.Close()
			return fmt.Errorf("listen %s: %w", cfg.Addr, err)
		}
		listeners = append(listeners, tl)
	}

	serveErr := make(chan error, len(listeners))
	for _, l := range listeners {
		go func() {
			logger.Info("server starting", "addr", l.Addr().String())
			if err := httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("serve %s: %w", l.Addr(), err)
			}
		}()
	}
	daemon.Ready(logger)

	if *configFile != "" {
		go func() {
			err := config.Watch(ctx, *configFile, logger, func(next config.DaemonConfig) {
				lvl := logging.ParseLevel(next.Log.Level)
				if lvl != level.Level() {
					level.Set(lvl)
					logger.Info("log level changed", "level", lvl.String())
				}
			})
			if err != nil {
				logger.Warn("config watch stopped", "error", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		logger.Error("server failed", "error", runErr)
	}
	logger.Info("shutting down")
	daemon.Stopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	// Jobs keep running; the next daemon recovers them as stale.
	sched.Shutdown()
	logger.Info("server stopped")
	return runErr
}
