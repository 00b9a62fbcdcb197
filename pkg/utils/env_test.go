package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetEnv_Existing(t *testing.T) {
	t.Setenv("FOO_BAR", "qux")
	val := GetEnv("FOO_BAR", "baz")
	require.Equal(t, "qux", val)
}

func TestGetEnv_Default(t *testing.T) {
	os.Unsetenv("FOO_BAR")
	val := GetEnv("FOO_BAR", "baz")
	require.Equal(t, "baz", val)
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("CACHE_MAX_ENTRIES", "75")
	require.Equal(t, 75, GetEnvInt("CACHE_MAX_ENTRIES", 50))

	t.Setenv("CACHE_MAX_ENTRIES", "lots")
	require.Equal(t, 50, GetEnvInt("CACHE_MAX_ENTRIES", 50))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("CACHE_TTL", "45m")
	require.Equal(t, 45*time.Minute, GetEnvDuration("CACHE_TTL", time.Minute))

	t.Setenv("CACHE_TTL", "forever")
	require.Equal(t, time.Minute, GetEnvDuration("CACHE_TTL", time.Minute))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(file, []byte("AWAKEN_LOADED=yes\nAWAKEN_KEPT=file\n"), 0o644))

	t.Setenv("AWAKEN_KEPT", "process")
	t.Cleanup(func() { os.Unsetenv("AWAKEN_LOADED") })

	require.NoError(t, LoadEnv(file))
	require.Equal(t, "yes", os.Getenv("AWAKEN_LOADED"))
	require.Equal(t, "process", os.Getenv("AWAKEN_KEPT"), "existing variables win")
}

func TestLoadEnv_MissingFile(t *testing.T) {
	require.NoError(t, LoadEnv(filepath.Join(t.TempDir(), "absent.env")))
}
