package config

import "testing"

func TestWithDefaults(t *testing.T) {
	cfg := Config{Store: StoreConfig{Type: "disk", Path: "./data"}}.WithDefaults()
	if cfg.DRB.Port != DefaultPort {
		t.Errorf("DRB.Port = %d, want %d", cfg.DRB.Port, DefaultPort)
	}
	if cfg.DRB.ACL == "" {
		t.Errorf("expected a default ACL")
	}
}

func TestWithDefaultsFillsSQLPrefix(t *testing.T) {
	cfg := Config{Store: StoreConfig{Type: "sqlite", Path: "./data.db"}}.WithDefaults()
	if cfg.Store.Prefix != DefaultPrefix {
		t.Errorf("sqlite Prefix = %q, want %q", cfg.Store.Prefix, DefaultPrefix)
	}
}

func TestWithDefaultsPreservesExplicitValues(t *testing.T) {
	cfg := Config{
		Store: StoreConfig{Type: "postgres", Host: "db", Database: "msg", Prefix: "custom_"},
		DRB:   DRBConfig{Port: 7000, ACL: "allow *"},
	}.WithDefaults()
	if cfg.DRB.Port != 7000 || cfg.DRB.ACL != "allow *" || cfg.Store.Prefix != "custom_" {
		t.Errorf("WithDefaults overwrote explicit values: %+v", cfg)
	}
}

func TestParseAndFormatRoundTrip(t *testing.T) {
	data := []byte("store:\n  type: disk\n  path: ./data\ndrb:\n  port: 9000\n  acl: allow 127.0.0.1\n")
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Store.Type != "disk" || cfg.Store.Path != "./data" || cfg.DRB.Port != 9000 {
		t.Fatalf("unexpected parsed config: %+v", cfg)
	}

	out, err := Format(cfg)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	reparsed, err := Parse(out)
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if reparsed.Store.Path != cfg.Store.Path || reparsed.DRB.Port != cfg.DRB.Port {
		t.Fatalf("round trip mismatch: %+v vs %+v", reparsed, cfg)
	}
}

func TestValidateRequiresStoreType(t *testing.T) {
	res := Validate(Config{})
	if res.OK {
		t.Fatalf("expected validation failure for empty store type")
	}
}

func TestValidateDiskRequiresPath(t *testing.T) {
	res := Validate(Config{Store: StoreConfig{Type: "disk"}, DRB: DRBConfig{Port: 1, ACL: "allow *"}})
	if res.OK {
		t.Fatalf("expected validation failure for missing disk path")
	}
}

func TestValidatePostgresRequiresHostAndDatabase(t *testing.T) {
	res := Validate(Config{Store: StoreConfig{Type: "postgres"}, DRB: DRBConfig{Port: 1, ACL: "allow *"}})
	if res.OK {
		t.Fatalf("expected validation failure for missing postgres host/database")
	}
	if len(res.Errors) != 2 {
		t.Fatalf("expected two errors, got %v", res.Errors)
	}
}

func TestValidateRejectsBadACL(t *testing.T) {
	res := Validate(Config{Store: StoreConfig{Type: "disk", Path: "./data"}, DRB: DRBConfig{Port: 1, ACL: "nonsense"}})
	if res.OK {
		t.Fatalf("expected validation failure for malformed ACL")
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	res := Validate(Config{Store: StoreConfig{Type: "disk", Path: "./data"}, DRB: DRBConfig{Port: 6438, ACL: "allow 127.0.0.1"}})
	if !res.OK {
		t.Fatalf("expected validation to pass, got errors: %v", res.Errors)
	}
}

func TestValidateTracingRequiresCollectorWhenEnabled(t *testing.T) {
	res := Validate(Config{
		Store:   StoreConfig{Type: "disk", Path: "./data"},
		DRB:     DRBConfig{Port: 1, ACL: "allow *"},
		Tracing: TracingConfig{Enabled: true},
	})
	if res.OK {
		t.Fatalf("expected validation failure for tracing.enabled without a collector")
	}
}

func TestFormatValidationJSONIsValidJSON(t *testing.T) {
	res := Validate(Config{})
	out, err := FormatValidationJSON(res)
	if err != nil {
		t.Fatalf("format json: %v", err)
	}
	if out == "" {
		t.Fatalf("expected non-empty json")
	}
}
