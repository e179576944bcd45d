package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("expected default database path, got %q", cfg.DatabasePath)
	}
	if cfg.BlobDir != defaultBlobDir {
		t.Fatalf("expected default blob dir, got %q", cfg.BlobDir)
	}
	if cfg.Quorum != defaultQuorum {
		t.Fatalf("expected default quorum %d, got %d", defaultQuorum, cfg.Quorum)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Fatalf("expected default log level, got %q", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value interface{}
		want  string
	}{
		{name: "empty database path", key: "database.path", value: "  ", want: "database.path"},
		{name: "empty blob dir", key: "blob.dir", value: "", want: "blob.dir"},
		{name: "zero quorum", key: "register.quorum", value: 0, want: "register.quorum"},
		{name: "negative quorum", key: "register.quorum", value: -3, want: "register.quorum"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := NewViper()
			v.Set(tc.key, tc.value)
			_, err := Load(v)
			if err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error to mention %s, got %v", tc.want, err)
			}
		})
	}
}

func TestQuorumOverride(t *testing.T) {
	v := NewViper()
	v.Set("register.quorum", 7)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Quorum != 7 {
		t.Fatalf("expected quorum 7, got %d", cfg.Quorum)
	}
}
