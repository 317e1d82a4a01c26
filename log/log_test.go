package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"testing"
)

func TestMake_Defaults(t *testing.T) {
	l := Make(&bytes.Buffer{})

	if l.Level() != LevelInfo {
		t.Errorf("level = %v, want %v", l.Level(), LevelInfo)
	}

	if l.Format() != FormatText {
		t.Errorf("format = %v, want %v", l.Format(), FormatText)
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	tests := []struct {
		name  string
		level Level
		emit  func(Logger)
		want  bool
	}{
		{"trace below debug", LevelDebug, func(l Logger) { l.Trace("m") }, false},
		{"trace at trace", LevelTrace, func(l Logger) { l.Trace("m") }, true},
		{"info at warn", LevelWarn, func(l Logger) { l.Info("m") }, false},
		{"error at warn", LevelWarn, func(l Logger) { l.Error("m") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			tt.emit(Make(&buf, WithLevel(tt.level), WithFormat(FormatJSON)))

			if got := buf.Len() > 0; got != tt.want {
				t.Errorf("emitted = %v, want %v (output %q)", got, tt.want, buf.String())
			}
		})
	}
}

func TestLogger_JSONLevelName(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithLevel(LevelTrace), WithFormat(FormatJSON))
	l.Trace("hello", slog.Int("n", 3))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}

	if rec["level"] != "TRACE" {
		t.Errorf("level = %v, want TRACE", rec["level"])
	}

	if rec["n"] != float64(3) {
		t.Errorf("n = %v, want 3", rec["n"])
	}
}

func TestLogger_TimeLayoutNone(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithFormat(FormatJSON), WithTimeLayout("none"))
	l.Info("x")

	if strings.Contains(buf.String(), `"time"`) {
		t.Errorf("time present in %q", buf.String())
	}
}

func TestLogger_WithKeepsAttrs(t *testing.T) {
	for _, pretty := range []bool{false, true} {
		var buf bytes.Buffer

		l := Make(&buf, WithFormat(FormatText), WithPretty(pretty), WithTimeLayout(""))
		l.With(slog.String("file", "a.lg")).Info("parsed")

		if !strings.Contains(buf.String(), "file=") ||
			!strings.Contains(buf.String(), "a.lg") {
			t.Errorf("pretty=%v: attribute missing from %q", pretty, buf.String())
		}
	}
}

func TestLogger_WrapDoesNotAffectOriginal(t *testing.T) {
	var a, b bytes.Buffer

	orig := Make(&a, WithLevel(LevelError))
	wrapped := orig.Wrap(WithOutput(&b), WithLevel(LevelDebug))

	orig.Info("one")
	wrapped.Debug("two")

	if a.Len() != 0 {
		t.Errorf("original emitted %q", a.String())
	}

	if !strings.Contains(b.String(), "two") {
		t.Errorf("wrapped output %q", b.String())
	}
}

func TestLogger_ZeroValue(t *testing.T) {
	var l Logger

	l.Error("ignored")

	if l.Enabled(context.Background(), LevelError) {
		t.Error("zero logger reports enabled")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"trace":   LevelTrace,
		"TRACE":   LevelTrace,
		"debug":   LevelDebug,
		"warn":    LevelWarn,
		"error":   LevelError,
		"bogus":   DefaultLevel,
		"info+2":  LevelInfo + 2,
		" debug ": LevelDebug,
	}

	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelString(t *testing.T) {
	if s := (LevelTrace + 1).String(); s != "trace+1" {
		t.Errorf("got %q", s)
	}

	if got := slices.Collect(Levels()); !slices.Equal(
		got, []string{"trace", "debug", "info", "warn", "error"},
	) {
		t.Errorf("Levels() = %v", got)
	}
}

func TestParseFormat(t *testing.T) {
	if ParseFormat("JSON") != FormatJSON {
		t.Error("json")
	}

	if ParseFormat("?") != DefaultFormat {
		t.Error("default")
	}

	if got := slices.Collect(Formats()); !slices.Equal(got, []string{"text", "json"}) {
		t.Errorf("Formats() = %v", got)
	}
}

func TestConfig_DefaultLogger(t *testing.T) {
	prev := Default()
	t.Cleanup(func() {
		defaultMu.Lock()
		defaultLog = prev
		defaultMu.Unlock()
	})

	var buf bytes.Buffer

	Config(WithOutput(&buf), WithFormat(FormatJSON), WithLevel(LevelDebug))
	Debug("package level", slog.Bool("ok", true))

	if !strings.Contains(buf.String(), `"ok":true`) {
		t.Errorf("output %q", buf.String())
	}
}
