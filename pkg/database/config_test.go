package database_test

import (
	"strings"
	"testing"

	"github.com/JaimeStill/evidence-lab/pkg/database"
)

func TestConfig_Finalize_Defaults(t *testing.T) {
	cfg := database.Config{Name: "evidence_lab", User: "evidence"}

	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	if cfg.Host != "localhost" || cfg.Port != 5432 {
		t.Errorf("host:port = %s:%d, want localhost:5432", cfg.Host, cfg.Port)
	}
	if cfg.SSLMode != "disable" {
		t.Errorf("SSLMode = %q, want disable", cfg.SSLMode)
	}
	if !cfg.Migrates() {
		t.Error("Migrates() = false, want true by default")
	}
	if !strings.Contains(cfg.Dsn(), "dbname=evidence_lab") {
		t.Errorf("Dsn() = %q", cfg.Dsn())
	}
}

func TestConfig_Finalize_Env(t *testing.T) {
	t.Setenv("TEST_DB_NAME", "from_env")
	t.Setenv("TEST_DB_AUTO_MIGRATE", "false")

	cfg := database.Config{User: "evidence"}
	env := &database.Env{Name: "TEST_DB_NAME", AutoMigrate: "TEST_DB_AUTO_MIGRATE"}

	if err := cfg.Finalize(env); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if cfg.Name != "from_env" {
		t.Errorf("Name = %q, want from_env", cfg.Name)
	}
	if cfg.Migrates() {
		t.Error("Migrates() = true, want false from env")
	}
}

func TestConfig_Finalize_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  database.Config
	}{
		{"missing name", database.Config{User: "u"}},
		{"missing user", database.Config{Name: "n"}},
		{"bad timeout", database.Config{Name: "n", User: "u", ConnTimeout: "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Finalize(nil); err == nil {
				t.Error("Finalize() error = nil, want error")
			}
		})
	}
}

func TestConfig_Merge(t *testing.T) {
	off := false
	base := database.Config{Host: "db", Name: "base"}
	base.Merge(&database.Config{Name: "overlay", AutoMigrate: &off})

	if base.Host != "db" || base.Name != "overlay" {
		t.Errorf("merged = %+v", base)
	}
	if base.Migrates() {
		t.Error("Migrates() = true after overlay disabled it")
	}
}

func TestErrNotReady(t *testing.T) {
	if database.ErrNotReady.Error() != "database not ready" {
		t.Errorf("ErrNotReady = %q", database.ErrNotReady.Error())
	}
}
