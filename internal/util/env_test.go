package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("UTIL_TEST_STRING", "value")
	assert.Equal(t, "value", GetEnv("UTIL_TEST_STRING", "default"))
	assert.Equal(t, "default", GetEnv("UTIL_TEST_UNSET", "default"))

	t.Setenv("UTIL_TEST_EMPTY", "")
	assert.Equal(t, "default", GetEnv("UTIL_TEST_EMPTY", "default"))
}

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("UTIL_TEST_INT", "4711")
	assert.Equal(t, 4711, GetEnvAsInt("UTIL_TEST_INT", 1))

	t.Setenv("UTIL_TEST_INT_BAD", "not-a-number")
	assert.Equal(t, 1, GetEnvAsInt("UTIL_TEST_INT_BAD", 1))
	assert.Equal(t, 1, GetEnvAsInt("UTIL_TEST_INT_UNSET", 1))
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("UTIL_TEST_DURATION", "1500ms")
	assert.Equal(t, 1500*time.Millisecond, GetEnvAsDuration("UTIL_TEST_DURATION", time.Second))

	t.Setenv("UTIL_TEST_DURATION_BAD", "soon")
	assert.Equal(t, time.Second, GetEnvAsDuration("UTIL_TEST_DURATION_BAD", time.Second))
}

func TestGetEnvAsStringMap(t *testing.T) {
	t.Setenv("UTIL_TEST_MAP", "region=eu-west-1, version=1.4.2,malformed,=nokey")
	m := GetEnvAsStringMap("UTIL_TEST_MAP")
	assert.Equal(t, map[string]string{"region": "eu-west-1", "version": "1.4.2"}, m)

	assert.Empty(t, GetEnvAsStringMap("UTIL_TEST_MAP_UNSET"))
}
