package config

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback string
		want     string
	}{
		{"unset uses fallback", "", "postgres://localhost", "postgres://localhost"},
		{"set wins", "postgres://db:5432", "postgres://localhost", "postgres://db:5432"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOOKOUT_TEST_VAR", tt.value)
			if got := GetEnv("LOOKOUT_TEST_VAR", tt.fallback); got != tt.want {
				t.Fatalf("GetEnv = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback int
		want     int
	}{
		{"unset", "", 600, 600},
		{"valid", "300", 600, 300},
		{"garbage falls back", "ten minutes", 600, 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOOKOUT_TEST_INT", tt.value)
			if got := GetEnvInt("LOOKOUT_TEST_INT", tt.fallback); got != tt.want {
				t.Fatalf("GetEnvInt = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("LOOKOUT_TEST_BOOL", "")
	if !GetEnvBool("LOOKOUT_TEST_BOOL", true) {
		t.Fatalf("expected fallback true when unset")
	}
	t.Setenv("LOOKOUT_TEST_BOOL", "false")
	if GetEnvBool("LOOKOUT_TEST_BOOL", true) {
		t.Fatalf("expected explicit false to win over fallback")
	}
	t.Setenv("LOOKOUT_TEST_BOOL", "nope")
	if !GetEnvBool("LOOKOUT_TEST_BOOL", true) {
		t.Fatalf("expected unparseable value to fall back")
	}
}

func TestGetLogLevel(t *testing.T) {
	tests := []struct {
		value string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warning", logrus.WarnLevel},
		{"error", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"shouting", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Setenv("LOG_LEVEL", tt.value)
		if got := GetLogLevel(); got != tt.want {
			t.Fatalf("GetLogLevel(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestLoadEnvWithoutFiles(t *testing.T) {
	// No .env in the test working directory; must be a quiet no-op.
	LoadEnv(logrus.New())
}
