package main

import (
	"fmt"
	"log/slog"

	"github.com/assaf/reliable-msg/internal/config"
	"github.com/assaf/reliable-msg/internal/store"
	"github.com/assaf/reliable-msg/internal/store/disk"
	"github.com/assaf/reliable-msg/internal/store/sqlstore"
)

// buildStore constructs the MessageStore backend named by cfg.Store,
// the way the CLI's `install`/`manager start` commands both need to
// resolve a backend from the same config document.
func buildStore(cfg config.Config, log *slog.Logger) (store.MessageStore, error) {
	switch cfg.Store.Type {
	case "disk":
		return disk.New(cfg.Store.Path, disk.WithFsync(cfg.Store.Fsync), disk.WithLogger(log)), nil
	case "sqlite":
		return sqlstore.NewSQLite(cfg.Store.Path, cfg.Store.Prefix, log), nil
	case "postgres", "mysql":
		dsn := postgresDSN(cfg.Store)
		return sqlstore.NewPostgres(dsn, cfg.Store.Prefix, log), nil
	default:
		return nil, fmt.Errorf("unrecognized store.type %q", cfg.Store.Type)
	}
}

func postgresDSN(s config.StoreConfig) string {
	port := s.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", s.Username, s.Password, s.Host, port, s.Database)
}
