package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/assaf/reliable-msg/internal/config"
)

// installCmd provisions a store backend (disk, sqlite, postgres) by
// calling its Setup() idempotently.
func installCmd(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "missing backend: disk | sqlite | postgres")
		return 2
	}

	switch args[0] {
	case "disk":
		path := "./queuemgr-data"
		if len(args) > 1 {
			path = args[1]
		}
		cfg := config.Config{Store: config.StoreConfig{Type: "disk", Path: path}}
		return runInstall(cfg)
	case "sqlite":
		path := "./queuemgr.db"
		if len(args) > 1 {
			path = args[1]
		}
		cfg := config.Config{Store: config.StoreConfig{Type: "sqlite", Path: path}}
		return runInstall(cfg)
	case "postgres":
		return installPostgres(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown backend: %s\n", args[0])
		return 2
	}
}

func installPostgres(args []string) int {
	fs := flag.NewFlagSet("install postgres", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	port := fs.Int("port", 5432, "database port")
	socket := fs.String("socket", "", "unix socket path (stored in the config; the connection uses host and port)")
	prefix := fs.String("prefix", config.DefaultPrefix, "table name prefix")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	pos := fs.Args()
	if len(pos) != 4 {
		fmt.Fprintln(os.Stderr, "usage: queuemgr install postgres <host> <user> <pass> <db> [--port --socket --prefix]")
		return 2
	}

	cfg := config.Config{Store: config.StoreConfig{
		Type:     "postgres",
		Host:     pos[0],
		Username: pos[1],
		Password: pos[2],
		Database: pos[3],
		Port:     *port,
		Socket:   *socket,
		Prefix:   *prefix,
	}}
	return runInstall(cfg)
}

func runInstall(cfg config.Config) int {
	log, _ := newLogger("info")
	backend, err := buildStore(cfg.WithDefaults(), log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	if err := backend.Setup(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	fmt.Fprintf(os.Stdout, "installed %s store\n", cfg.Store.Type)
	return 0
}
