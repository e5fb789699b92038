package main

import (
	"testing"

	"github.com/assaf/reliable-msg/internal/config"
	"github.com/assaf/reliable-msg/internal/store/disk"
	"github.com/assaf/reliable-msg/internal/store/sqlstore"
)

func TestBuildStoreDisk(t *testing.T) {
	s, err := buildStore(config.Config{Store: config.StoreConfig{Type: "disk", Path: "./data"}}, nil)
	if err != nil {
		t.Fatalf("buildStore: %v", err)
	}
	if _, ok := s.(*disk.Store); !ok {
		t.Fatalf("expected a *disk.Store, got %T", s)
	}
}

func TestBuildStoreSQLite(t *testing.T) {
	s, err := buildStore(config.Config{Store: config.StoreConfig{Type: "sqlite", Path: "./data.db"}}, nil)
	if err != nil {
		t.Fatalf("buildStore: %v", err)
	}
	if _, ok := s.(*sqlstore.Store); !ok {
		t.Fatalf("expected a *sqlstore.Store, got %T", s)
	}
}

func TestBuildStoreUnrecognizedType(t *testing.T) {
	if _, err := buildStore(config.Config{Store: config.StoreConfig{Type: "mongo"}}, nil); err == nil {
		t.Fatalf("expected an error for an unrecognized store type")
	}
}

func TestPostgresDSNDefaultsPort(t *testing.T) {
	dsn := postgresDSN(config.StoreConfig{Host: "db", Username: "u", Password: "p", Database: "msg"})
	want := "postgres://u:p@db:5432/msg?sslmode=disable"
	if dsn != want {
		t.Fatalf("postgresDSN = %q, want %q", dsn, want)
	}
}

func TestPostgresDSNHonorsExplicitPort(t *testing.T) {
	dsn := postgresDSN(config.StoreConfig{Host: "db", Username: "u", Password: "p", Database: "msg", Port: 6000})
	want := "postgres://u:p@db:6000/msg?sslmode=disable"
	if dsn != want {
		t.Fatalf("postgresDSN = %q, want %q", dsn, want)
	}
}
