package trustlog

import (
	"bytes"
	"os"
	"testing"

	log15 "github.com/inconshreveable/log15"
	"github.com/stretchr/testify/assert"
)

func TestNewChildLoggerInheritsContext(t *testing.T) {
	root := New(log15.LvlInfo, os.Stderr)
	child := root.New("task", "Heater")

	assert.NotNil(t, child)
	assert.Implements(t, (*Logger)(nil), child)
}

func TestDiscardLoggerNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard.Info("cycle overrun", "task", "Heater", "missed", 3)
		Discard.New("component", "scheduler").Warn("paused")
	})
}

func TestCallStackNotEmpty(t *testing.T) {
	var out string
	func() {
		out = CallStack(0)
	}()
	assert.NotEmpty(t, out)
}

func TestJSONFormatWritesToGivenWriter(t *testing.T) {
	r, w, err := os.Pipe()
	assert.NoError(t, err)
	logger := NewJSON(log15.LvlDebug, w)
	logger.Info("started", "version", "1.0.0")
	w.Close()

	var buf bytes.Buffer
	buf.ReadFrom(r)
	assert.Contains(t, buf.String(), "started")
}
