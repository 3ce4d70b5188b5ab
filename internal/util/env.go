package util

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// GetEnv returns the value of the environment variable key, or defaultVal if
// unset or empty.
func GetEnv(key string, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetEnvAsInt returns the environment variable parsed as int, or defaultVal
// if unset or unparseable.
func GetEnvAsInt(key string, defaultVal int) int {
	strVal, ok := os.LookupEnv(key)
	if !ok || strVal == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(strVal)
	if err != nil {
		log.Warn().Str("key", key).Str("value", strVal).Msg("Failed to parse env as int, using default")
		return defaultVal
	}
	return val
}

// GetEnvAsDuration returns the environment variable parsed with
// time.ParseDuration, or defaultVal if unset or unparseable.
func GetEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	strVal, ok := os.LookupEnv(key)
	if !ok || strVal == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(strVal)
	if err != nil {
		log.Warn().Str("key", key).Str("value", strVal).Msg("Failed to parse env as duration, using default")
		return defaultVal
	}
	return val
}

// GetEnvAsStringMap parses a "key=value,key2=value2" environment variable
// into a map. Entries without "=" are skipped. Returns an empty map when the
// variable is unset.
func GetEnvAsStringMap(key string) map[string]string {
	out := make(map[string]string)
	strVal, ok := os.LookupEnv(key)
	if !ok || strVal == "" {
		return out
	}
	for _, pair := range strings.Split(strVal, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || k == "" {
			log.Warn().Str("key", key).Str("entry", pair).Msg("Skipping malformed map entry in env")
			continue
		}
		out[k] = v
	}
	return out
}
