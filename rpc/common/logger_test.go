package common

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetLogOutput(&buf)
	t.Cleanup(func() { SetLogOutput(os.Stderr) })
	return &buf
}

// TestLoggerLevels tests that messages below the level are dropped
func TestLoggerLevels(t *testing.T) {
	buf := captureOutput(t)
	l := CreateLogger("driver")

	l.Infof("hidden %d", 1)
	l.Warningf("shown %d", 2)
	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("Info message written at the default level: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "WARN  | driver    | shown 2") {
		t.Errorf("Unexpected warning line: %q", buf.String())
	}

	buf.Reset()
	l.SetLevel(logger.DEBUG)
	l.Debugf("frame %s", "x")
	if !strings.Contains(buf.String(), "DEBUG | driver    | frame x") {
		t.Errorf("Unexpected debug line: %q", buf.String())
	}
}

// TestLoggerPanicf tests that Panicf panics even if the level hides the message
func TestLoggerPanicf(t *testing.T) {
	buf := captureOutput(t)
	l := CreateLogger("protocol")
	l.SetLevel(logger.ERROR)

	defer func() {
		r := recover()
		if r != "broken 7" {
			t.Errorf("Expected panic with the message, got %v", r)
		}
		if !strings.Contains(buf.String(), "CRIT  | protocol  | broken 7") {
			t.Errorf("Expected the message to be logged, got %q", buf.String())
		}
	}()
	l.Panicf("broken %d", 7)
}

// TestParseLogLevel tests the accepted level names
func TestParseLogLevel(t *testing.T) {
	for input, want := range map[string]logger.LogLevel{
		"debug": logger.DEBUG,
		"INFO":  logger.INFO,
		"warn":  logger.WARNING,
		"error": logger.ERROR,
		"crit":  logger.CRITICAL,
	} {
		got, err := ParseLogLevel(input)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("Expected an error for an unknown level")
	}
}

// TestInitLoggersTwice tests that the level can be changed after the first call
func TestInitLoggersTwice(t *testing.T) {
	buf := captureOutput(t)
	if err := InitLoggers("error"); err != nil {
		t.Fatalf("InitLoggers failed: %v", err)
	}
	if err := InitLoggers("debug"); err != nil {
		t.Fatalf("Second InitLoggers failed: %v", err)
	}

	logger.GetLogger("transport").Debugf("reactor started")
	if !strings.Contains(buf.String(), "| transport | reactor started") {
		t.Errorf("Expected the debug message after raising the level, got %q", buf.String())
	}
	if err := InitLoggers("loud"); err == nil {
		t.Error("Expected an error for an unknown level")
	}
}
