package console_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/danielpatrickdp/shine/go-controller/internal/console"
)

func TestPrinter_Lines(t *testing.T) {
	var buf bytes.Buffer
	p := console.New(&buf)

	p.Header("Setting up directories")
	p.Success("Created directory: %s", "models")
	p.Failure("Detection failed: %s", "exit status 1")
	p.Info("plain %d", 7)

	out := buf.String()
	assert.Contains(t, out, "\n=== Setting up directories ===\n")
	assert.Contains(t, out, "✓ Created directory: models\n")
	assert.Contains(t, out, "✗ Detection failed: exit status 1\n")
	assert.Contains(t, out, "plain 7\n")
}

func TestPrinter_Banner(t *testing.T) {
	var buf bytes.Buffer
	console.New(&buf).Banner("Processing pong with block pattern")

	rule := strings.Repeat("=", 50)
	assert.Contains(t, buf.String(), rule)
	assert.Contains(t, buf.String(), "Processing pong with block pattern")
}

func TestPrinter_Progress(t *testing.T) {
	var buf bytes.Buffer
	p := console.New(&buf)

	p.Progress("episodes", 3, 10)
	assert.Contains(t, buf.String(), "episodes 3/10")
	assert.False(t, strings.HasSuffix(buf.String(), "\n"))

	p.Progress("episodes", 10, 10)
	assert.True(t, strings.HasSuffix(buf.String(), "episodes 10/10\n"))

	buf.Reset()
	p.Progress("episodes", 0, 0)
	assert.Empty(t, buf.String())
}
