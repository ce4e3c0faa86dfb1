package cmd

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLogger_DefaultsToJSON(t *testing.T) {
	log := newLogger()
	if _, ok := log.Handler().(*slog.JSONHandler); !ok {
		t.Fatalf("expected a JSONHandler by default, got %T", log.Handler())
	}
}

func TestNewLogger_TextOptIn(t *testing.T) {
	t.Setenv("TABLESYNC_LOG_FORMAT", "text")
	log := newLogger()
	if _, ok := log.Handler().(*slog.TextHandler); !ok {
		t.Fatalf("expected a TextHandler when TABLESYNC_LOG_FORMAT=text, got %T", log.Handler())
	}
}

func TestNewLogger_DebugLevel(t *testing.T) {
	t.Setenv("TABLESYNC_DEBUG", "1")
	log := newLogger()
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("expected debug level to be enabled when TABLESYNC_DEBUG is set")
	}
}

func TestStores_RegistersAllBackends(t *testing.T) {
	reg := stores()
	for _, dbType := range []string{"sqlite", "mysql", "generic"} {
		if _, ok := reg[dbType]; !ok {
			t.Errorf("expected a registered store for db_type %q", dbType)
		}
	}
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3")
	if versionStr != "1.2.3" {
		t.Errorf("versionStr = %q, want 1.2.3", versionStr)
	}
	if rootCmd.Version != "1.2.3" {
		t.Errorf("rootCmd.Version = %q, want 1.2.3", rootCmd.Version)
	}
}
