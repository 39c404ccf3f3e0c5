package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})

	logger.Info().Str("component", "tpu").Log("listening")

	require.Contains(t, buf.String(), `"component":"tpu"`)
	require.Contains(t, buf.String(), "listening")
}

func TestNoOp_DoesNotPanic(t *testing.T) {
	logger := NoOp()
	logger.Info().Str("k", "v").Log("should be discarded")
}
