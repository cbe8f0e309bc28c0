package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" Warn "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
}

func TestLevelFilteringAndFormat(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})

	SetLevel(LevelWarn)
	Info("hidden", "k", 1)
	assert.Empty(t, buf.String())

	Warn("series truncated", "group", "g-1", "title", "Jour fixe")
	out := buf.String()
	assert.Contains(t, out, "[WARN] series truncated")
	assert.Contains(t, out, "group=g-1")
	assert.Contains(t, out, `title="Jour fixe"`)

	buf.Reset()
	Error("save failed", errors.New("boom"), "id", "abc")
	assert.Contains(t, buf.String(), "[ERROR] save failed err=boom id=abc")
}
