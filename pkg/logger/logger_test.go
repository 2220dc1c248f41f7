package logger

import (
	"bytes"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	cfg := DefaultConfig()
	cfg.Output = buf
	cfg.Level = level
	cfg.Colorize = false
	cfg.ShowTime = false
	return New(cfg)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, WARN)

	l.Debugf("debug %d", 1)
	l.Infof("info %d", 2)
	l.Warnf("warn %d", 3)
	l.Errorf("error %d", 4)

	out := buf.String()
	if strings.Contains(out, "debug 1") || strings.Contains(out, "info 2") {
		t.Errorf("Messages below WARN leaked: %q", out)
	}
	if !strings.Contains(out, "[WARN] warn 3") {
		t.Errorf("Missing warn line: %q", out)
	}
	if !strings.Contains(out, "[ERROR] error 4") {
		t.Errorf("Missing error line: %q", out)
	}
}

func TestErrorAboveWarn(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, ERROR)
	l.Warnf("quiet")
	l.Errorf("loud")
	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Errorf("Unexpected output at ERROR level: %q", buf.String())
	}
}

func TestNamedPrefixesComponent(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, INFO)

	l.Named("session").Named("matcher").Infof("armed at %d", 10)
	if !strings.Contains(buf.String(), "(session.matcher) armed at 10") {
		t.Errorf("Expected component tag, got %q", buf.String())
	}

	buf.Reset()
	l.Infof("plain")
	if strings.Contains(buf.String(), "(") {
		t.Errorf("Parent logger should not carry the child's component: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", DEBUG, true},
		{"INFO", INFO, true},
		{"warning", WARN, true},
		{" error ", ERROR, true},
		{"fatal", FATAL, true},
		{"verbose", INFO, false},
		{"", INFO, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestShowCallerPointsAtCallSite(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	cfg.Colorize = false
	cfg.ShowTime = false
	cfg.ShowCaller = true
	cfg.Prefix = "[rhythm]"
	New(cfg).Named("cli").Warnf("late by %dms", 12)

	out := buf.String()
	if !strings.HasPrefix(out, "[WARN] logger_test.go:") {
		t.Errorf("Expected caller in this file, got %q", out)
	}
	if !strings.HasSuffix(out, "[rhythm] (cli) late by 12ms\n") {
		t.Errorf("Unexpected line layout: %q", out)
	}
}
