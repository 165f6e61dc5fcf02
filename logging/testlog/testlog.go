package testlog

import (
	"testing"

	"go_blackbox/logging"

	"github.com/rs/zerolog/log"
)

// Start routes the global logger into t for the length of the test
func Start(t *testing.T) {
	t.Helper()
	logging.ConfigureTests()
	log.Info().Str("test", t.Name()).Msg("start")
}
