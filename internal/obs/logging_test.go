package obs

import (
	"log/slog"
	"testing"
)

func TestInitLoggingReturnsAComponentScopedLogger(t *testing.T) {
	t.Setenv("DAGSCHED_JSON_LOG", "")
	t.Setenv("DAGSCHED_LOG_LEVEL", "")
	logger := InitLogging("scheduler")
	if logger == nil {
		t.Fatal("InitLogging returned nil")
	}
	if !logger.Enabled(nil, slog.LevelInfo) {
		t.Fatal("default level should enable Info")
	}
}

func TestLevelFromEnvParsesEveryRecognizedLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for env, want := range cases {
		t.Setenv("DAGSCHED_LOG_LEVEL", env)
		if got := levelFromEnv(); got.Level() != want {
			t.Fatalf("DAGSCHED_LOG_LEVEL=%q: levelFromEnv() = %v, want %v", env, got.Level(), want)
		}
	}
}
