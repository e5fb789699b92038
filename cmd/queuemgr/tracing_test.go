package main

import (
	"context"
	"testing"

	"github.com/assaf/reliable-msg/internal/config"
)

func TestInitTracingDisabledIsNoop(t *testing.T) {
	shutdown, err := initTracing(context.Background(), config.TracingConfig{})
	if err != nil {
		t.Fatalf("initTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingEnabledInstallsProvider(t *testing.T) {
	shutdown, err := initTracing(context.Background(), config.TracingConfig{
		Enabled:   true,
		Collector: "http://127.0.0.1:4318",
		Insecure:  true,
	})
	if err != nil {
		t.Fatalf("initTracing: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected a non-nil shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
