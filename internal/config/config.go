// Package config loads the fabric's configuration from the environment.
// There is no configuration file: the scheduler binary and the admin CLIs
// read everything from env vars at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Settings holds the core configuration. Per-adapter credentials
// (HOLFUY_KEY, IWEATHAR_KEY, ...) are not interpreted here; adapters read
// them through Getenv.
type Settings struct {
	MongoURL     string
	RedisURL     string
	GoogleAPIKey string
	SentryURL    string
	Environment  string
	MetricsAddr  string

	// WindlineSQLURL is the windline adapter's relational source,
	// WINDLINE_SQL_URL with ADMIN_DB_URL as fallback.
	WindlineSQLURL string

	// PreferredProviders biases the duplicate-station rating.
	PreferredProviders []string
}

// Load reads the settings from the environment. MONGODB_URL and REDIS_URL
// are required; everything else has a usable default or is optional.
func Load() (*Settings, error) {
	s := &Settings{
		MongoURL:       os.Getenv("MONGODB_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		GoogleAPIKey:   os.Getenv("GOOGLE_API_KEY"),
		SentryURL:      os.Getenv("SENTRY_URL"),
		Environment:    Getenv("ENVIRONMENT", "development"),
		WindlineSQLURL: Getenv("WINDLINE_SQL_URL", os.Getenv("ADMIN_DB_URL")),
		MetricsAddr:    os.Getenv("METRICS_ADDR"),
	}
	if s.MongoURL == "" {
		return nil, fmt.Errorf("MONGODB_URL is required")
	}
	if s.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	preferred := Getenv("PREFERRED_PROVIDERS", "meteoswiss,pioupiou")
	for _, p := range strings.Split(preferred, ",") {
		if p = strings.TrimSpace(p); p != "" {
			s.PreferredProviders = append(s.PreferredProviders, p)
		}
	}
	return s, nil
}

// Getenv returns the value of key, or def when unset or empty.
func Getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetenvInt returns the integer value of key, or def when unset or
// unparseable.
func GetenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Truthy parses the loose boolean convention used by the provider gates:
// "true", "yes" and "1" (any case) are true, everything else is false.
func Truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "1":
		return true
	}
	return false
}

// ProviderDisabled reports whether DISABLE_PROVIDER_<NAME> is set truthy
// for the given provider code.
func ProviderDisabled(code string) bool {
	return Truthy(os.Getenv("DISABLE_PROVIDER_" + strings.ToUpper(code)))
}
