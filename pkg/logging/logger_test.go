package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetup_LevelFiltering(t *testing.T) {
	tests := []struct {
		level LogLevel
		shown []string
		muted []string
	}{
		{level: LevelDebug, shown: []string{"cache decision", "purged", "store degraded", "origin down"}},
		{level: LevelInfo, shown: []string{"purged", "store degraded", "origin down"}, muted: []string{"cache decision"}},
		{level: LevelWarn, shown: []string{"store degraded", "origin down"}, muted: []string{"cache decision", "purged"}},
		{level: LevelError, shown: []string{"origin down"}, muted: []string{"cache decision", "purged", "store degraded"}},
		{level: "verbose", shown: []string{"purged"}, muted: []string{"cache decision"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{Level: tt.level, Output: buf})

			logger.Debug().Msg("cache decision")
			logger.Info().Msg("purged")
			logger.Warn().Msg("store degraded")
			logger.Error().Msg("origin down")

			out := buf.String()
			for _, msg := range tt.shown {
				if !strings.Contains(out, msg) {
					t.Errorf("level %s should log %q, got %q", tt.level, msg, out)
				}
			}
			for _, msg := range tt.muted {
				if strings.Contains(out, msg) {
					t.Errorf("level %s should filter %q", tt.level, msg)
				}
			}
		})
	}
}

func TestParseLevel_Aliases(t *testing.T) {
	tests := map[LogLevel]zerolog.Level{
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"Error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
	}
	for input, want := range tests {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestSetup_Output(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Output: buf})
	logger.Info().Msg("json line")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"time":`) {
		t.Errorf("default output should be timestamped JSON, got %q", buf.String())
	}

	pretty := &bytes.Buffer{}
	logger = Setup(Config{Level: LevelInfo, Pretty: true, Output: pretty})
	logger.Info().Msg("console line")
	if strings.HasPrefix(pretty.String(), "{") || !strings.Contains(pretty.String(), "console line") {
		t.Errorf("pretty output should be console formatted, got %q", pretty.String())
	}

	if logger := Setup(Config{Level: LevelError}); logger.GetLevel() == zerolog.Disabled {
		t.Error("Setup with nil output should still return an enabled logger")
	}
}

func TestNewLogger_Component(t *testing.T) {
	buf := &bytes.Buffer{}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	base := zerolog.New(buf).With().Str("node", "edge-1").Logger()

	logger := NewLogger(base, "edgecache")
	logger.Info().Msg("Cache hit")

	out := buf.String()
	for _, want := range []string{`"component":"edgecache"`, `"node":"edge-1"`, `"message":"Cache hit"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %q", want, out)
		}
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	fallback := zerolog.New(buf).With().Str("source", "fallback").Logger()
	scoped := zerolog.New(buf).With().Str("source", "context").Logger()

	first := FromContext(context.Background(), fallback)
	first.Info().Msg("one")
	second := FromContext(scoped.WithContext(context.Background()), fallback)
	second.Info().Msg("two")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"source":"fallback"`) {
		t.Errorf("context without logger should use fallback, got %q", lines[0])
	}
	if !strings.Contains(lines[1], `"source":"context"`) {
		t.Errorf("context logger should win, got %q", lines[1])
	}
}
