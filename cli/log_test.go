package cli

import "testing"

func TestLogConfig_Scan(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		level  logLevel
		format logFormat
		pretty bool
		caller bool
	}{
		{"none", []string{"eval", "A", "a.lg"}, "", "", true, false},
		{"separate values", []string{"--log-level", "debug", "--log-format", "json"}, "debug", "json", true, false},
		{"assigned values", []string{"check", "--log-level=trace", "a.lg"}, "trace", "", true, false},
		{"negated toggle", []string{"--no-log-pretty", "--log-caller"}, "", "", false, true},
		{"assigned toggle", []string{"--log-pretty=false", "--no-log-caller=false"}, "", "", false, true},
		{"bad toggle value", []string{"--log-caller=maybe"}, "", "", true, false},
		{"stops at terminator", []string{"--", "--log-level=debug"}, "", "", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := logConfig{Pretty: true}
			f.scan(tt.args)

			if f.Level != tt.level {
				t.Errorf("expected level %q, got %q", tt.level, f.Level)
			}

			if f.Format != tt.format {
				t.Errorf("expected format %q, got %q", tt.format, f.Format)
			}

			if f.Pretty != tt.pretty {
				t.Errorf("expected pretty %v, got %v", tt.pretty, f.Pretty)
			}

			if f.Caller != tt.caller {
				t.Errorf("expected caller %v, got %v", tt.caller, f.Caller)
			}
		})
	}
}
