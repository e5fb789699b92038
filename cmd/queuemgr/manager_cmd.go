package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/assaf/reliable-msg/internal/config"
	"github.com/assaf/reliable-msg/internal/manager"
	"github.com/assaf/reliable-msg/internal/transport"
)

func managerCmd(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "missing subcommand: start | stop")
		return 2
	}
	switch args[0] {
	case "start":
		return managerStart(args[1:])
	case "stop":
		return managerStop(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown manager subcommand: %s\n", args[0])
		return 2
	}
}

func managerStart(args []string) int {
	fs := flag.NewFlagSet("manager start", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	configPath := fs.String("config", "./queuemgr.yml", "path to config file")
	pidFile := fs.String("pid-file", "", "write process PID to file (for manager stop)")
	logLevel := fs.String("log-level", "info", "log level (debug|info|warn|error)")
	watch := fs.Bool("watch", false, "hot-reload the ACL on config change")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	log, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 2
	}
	slog.SetDefault(log)

	release, err := claimPIDFile(*pidFile)
	if err != nil {
		log.Error("pid_file_failed", slog.Any("err", err))
		return 1
	}
	defer release()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("load_config_failed", slog.Any("err", err))
		return 1
	}
	if res := config.Validate(cfg); !res.OK {
		log.Error("invalid_config", slog.Any("errors", res.Errors))
		return 1
	}

	backend, err := buildStore(cfg, log)
	if err != nil {
		log.Error("build_store_failed", slog.Any("err", err))
		return 1
	}
	if err := backend.Setup(); err != nil {
		log.Error("store_setup_failed", slog.Any("err", err))
		return 1
	}

	mgr, err := manager.Start(backend, manager.WithLogger(log))
	if err != nil {
		log.Error("manager_start_failed", slog.Any("err", err))
		return 1
	}
	defer mgr.Stop()

	shutdownTracing, err := initTracing(context.Background(), cfg.Tracing)
	if err != nil {
		log.Error("tracing_init_failed", slog.Any("err", err))
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	acl, err := config.CompileACL(cfg.DRB.ACL)
	if err != nil {
		log.Error("invalid_acl", slog.Any("err", err))
		return 1
	}

	srv := transport.NewServer(mgr, acl, log, cfg.Tracing.Enabled)
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.DRB.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("listen_failed", slog.Any("err", err))
		return 1
	}

	httpServer := &http.Server{Handler: srv.Handler()}
	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Error("http_server_error", slog.Any("err", err))
		}
	}()
	log.Info("manager_listening", slog.String("addr", addr))

	var stopWatch func() error
	if *watch {
		stopWatch, err = config.Watch(*configPath, log, func(next config.Config) {
			if next.DRB.ACL != cfg.DRB.ACL {
				if newACL, err := config.CompileACL(next.DRB.ACL); err == nil {
					srv.SetACL(newACL)
				}
			}
		})
		if err != nil {
			log.Warn("config_watch_failed", slog.Any("err", err))
		} else {
			defer stopWatch()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	log.Info("manager_shutting_down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	return 0
}

func managerStop(args []string) int {
	fs := flag.NewFlagSet("manager stop", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	pidFile := fs.String("pid-file", "", "path to pid file written by manager start")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*pidFile) == "" {
		fmt.Fprintln(os.Stderr, "manager stop requires --pid-file")
		return 2
	}

	pid, err := readPIDFile(*pidFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	if !processExists(pid) {
		fmt.Fprintf(os.Stderr, "no running process for pid %d\n", pid)
		return 1
	}
	if err := terminate(pid); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}
