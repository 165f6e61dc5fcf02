package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" INFO ":  zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseLevel("loud")
	assert.False(t, ok)
	_, ok = ParseLevel("")
	assert.False(t, ok)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "1")
	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	assert.Equal(t, zerolog.ErrorLevel, cfg.Level)
	assert.False(t, cfg.Timestamp)
	assert.True(t, cfg.NoColor)
}

func TestResolveLevelPrecedence(t *testing.T) {
	previous := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(previous) })

	t.Setenv(EnvLogLevel, "")
	ResolveLevel("", "warn")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	ResolveLevel("debug", "warn")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	t.Setenv(EnvLogLevel, "error")
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	ResolveLevel("", "trace")
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())
}
