package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// LoadEnv layers local .env files over the process environment. Values
// already exported by the deployment environment win over file contents,
// so containers keep their injected configuration.
func LoadEnv(logger *logrus.Logger) {
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			if logger != nil {
				logger.WithError(err).WithField("file", file).Warn("Skipping unreadable env file")
			}
			continue
		}
		if logger != nil {
			logger.WithField("file", file).Debug("Loaded env file")
		}
	}
}

// GetEnv returns the variable's value, or fallback when unset or empty.
func GetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetEnvInt parses the variable as an integer; unset or unparseable
// values fall back silently, matching GetEnv's lenient contract.
func GetEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// GetEnvBool parses the variable with strconv.ParseBool semantics
// (1/t/true/TRUE and friends).
func GetEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// GetLogLevel maps LOG_LEVEL to a logrus level, defaulting to info on
// anything unrecognized.
func GetLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(GetEnv("LOG_LEVEL", "info"))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// RequireEnv fetches a variable and exits the process if it is empty.
// Used only during startup for configuration the service cannot run without.
func RequireEnv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		logrus.Fatalf("environment variable %s is required but not set", key)
	}
	return v
}
