package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

// TestSetupLevels ensures Setup accepts every documented level without panic.
func TestSetupLevels(t *testing.T) {
	levels := []string{"trace", "debug", "info", "warn", "error", "invalid"}
	for _, l := range levels {
		Setup(l)
	}
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Fatalf("unknown levels should fall back to info, got %s", zerolog.GlobalLevel())
	}
}

// TestSetupInstallsContextFallback ensures log.Ctx on a bare context resolves
// to a usable logger after Setup.
func TestSetupInstallsContextFallback(t *testing.T) {
	Setup("info")
	if zerolog.DefaultContextLogger == nil {
		t.Fatal("Setup must install a fallback context logger")
	}
}
