package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw     string
		want    Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"WARN", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.raw)
		if tc.wantErr != (err != nil) {
			t.Fatalf("ParseLevel(%q) err=%v, wantErr=%v", tc.raw, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseLevel(%q)=%v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetLevel(LevelWarn)
	defer SetLevel(LevelInfo)

	Debugf("quiet %d", 1)
	Infof("quiet %d", 2)
	Warnf("loud %d", 3)
	Errorf("loud %d", 4)

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("filtered levels leaked into output: %q", out)
	}
	if !strings.Contains(out, "loud 3") || !strings.Contains(out, "loud 4") {
		t.Fatalf("expected warn/error output, got: %q", out)
	}
}

func TestEnabled(t *testing.T) {
	SetLevel(LevelDebug)
	defer SetLevel(LevelInfo)

	if Enabled(LevelTrace) {
		t.Fatal("trace should be disabled at debug level")
	}
	if !Enabled(LevelDebug) || !Enabled(LevelError) {
		t.Fatal("debug and error should be enabled at debug level")
	}
}
