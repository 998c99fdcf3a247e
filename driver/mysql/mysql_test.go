package mysql

import (
	"strings"
	"testing"
)

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "127.0.0.1:3306"},
		{"tcp://127.0.0.1:3306", "127.0.0.1:3306"},
		{"db.local:3307", "db.local:3307"},
		{"db.local", "db.local:3306"},
		{"tcp://db.local/", "db.local:3306"},
	}
	for _, tt := range tests {
		got, err := NormalizeHost(tt.in)
		if err != nil {
			t.Errorf("NormalizeHost(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeHost(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestNormalizeHostRejectsPath(t *testing.T) {
	if _, err := NormalizeHost("db.local/extra/path"); err == nil {
		t.Error("expected error for host with path")
	}
}

func TestDSNRoundTrip(t *testing.T) {
	cfg := Config{
		Host:     "tcp://10.0.0.5:3306",
		User:     "app",
		Password: "s3cret",
		Database: "shop",
		Params:   map[string]string{"sql_mode": "ANSI"},
	}
	dsn, err := cfg.DSN()
	if err != nil {
		t.Fatalf("DSN failed: %v", err)
	}
	if !strings.HasPrefix(dsn, "app:s3cret@tcp(10.0.0.5:3306)/shop") {
		t.Errorf("unexpected dsn %s", dsn)
	}

	back, err := ConfigFromDSN(dsn)
	if err != nil {
		t.Fatalf("ConfigFromDSN failed: %v", err)
	}
	if back.Host != "10.0.0.5:3306" || back.User != "app" || back.Database != "shop" {
		t.Errorf("round trip mismatch: %+v", back)
	}
	if back.Params["sql_mode"] != "ANSI" {
		t.Errorf("expected sql_mode param to survive, got %v", back.Params)
	}
}

func TestValidate(t *testing.T) {
	if err := (Config{Database: "x"}).Validate(); err == nil {
		t.Error("expected error for missing user")
	}
	if err := (Config{User: "root"}).Validate(); err == nil {
		t.Error("expected error for missing database")
	}
	if err := (Config{User: "root", Database: "x"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
