package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeConfig struct{ level string }

func (f fakeConfig) LogLevelName() string { return f.level }

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(fakeConfig{level: "WARNING"}, "Estimator")
	l.SetOutput(&buf)

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Warning("shown %d", 3)
	l.Error("shown %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[Estimator] WARNING: shown 3")
	assert.Contains(t, out, "[Estimator] ERROR: shown 4")
}

func TestNamedSharesOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(nil, "App")
	l.SetOutput(&buf)

	l.Named("Storage").Info("ready")
	assert.Contains(t, buf.String(), "[Storage] INFO: ready")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarning, ParseLevel("WARN"))
	assert.Equal(t, LevelError, ParseLevel(" ERROR "))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}

func TestNilLoggerIsSilent(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Info("nothing") })
}
