package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(nil))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
	require.Equal(t, 3, cfg.ConnectAttempts)
	require.Equal(t, 1, cfg.Parallel)
}

func TestFromEnvOverrides(t *testing.T) {
	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	require.NoError(t, os.WriteFile(knownHosts, nil, 0o600))

	cfg, err := FromEnv(lookupFrom(map[string]string{
		"MLA_LOG_LEVEL":        "INFO",
		"MLA_NO_COLOR":         "true",
		"MLA_KNOWN_HOSTS":      knownHosts,
		"MLA_SSH_AGENT":        "1",
		"MLA_CONNECT_TIMEOUT":  "2s",
		"MLA_CONNECT_ATTEMPTS": "5",
		"MLA_PARALLEL":         "4",
		"MLA_METRICS_FILE":     "/tmp/mla.prom",
	}))
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.True(t, cfg.NoColor)
	require.True(t, cfg.UseAgent)
	require.Equal(t, knownHosts, cfg.KnownHostsFile)
	require.Equal(t, 2*time.Second, cfg.ConnectTimeout)
	require.Equal(t, 5, cfg.ConnectAttempts)
	require.Equal(t, 4, cfg.Parallel)
	require.Equal(t, "/tmp/mla.prom", cfg.MetricsFile)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad level":         {"MLA_LOG_LEVEL": "loud"},
		"bad bool":          {"MLA_NO_COLOR": "maybe"},
		"bad duration":      {"MLA_CONNECT_TIMEOUT": "soon"},
		"zero attempts":     {"MLA_CONNECT_ATTEMPTS": "0"},
		"negative parallel": {"MLA_PARALLEL": "-1"},
		"missing known":     {"MLA_KNOWN_HOSTS": "/does/not/exist"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(lookupFrom(env))
			require.Error(t, err)
		})
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MLA_PARALLEL=3\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("MLA_PARALLEL", "")
	require.NoError(t, os.Unsetenv("MLA_PARALLEL"))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Parallel)
}
