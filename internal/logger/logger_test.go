package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{
		Service: "pdftools-test",
		Level:   "debug",
		Console: &buf,
		File:    filepath.Join(t.TempDir(), "logs", "test.log"),
	}))
	defer Close()

	log.Info().Str("tool", "delete").Msg("ran")

	var ev map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &ev))
	assert.Equal(t, "pdftools-test", ev["service"])
	assert.Equal(t, "delete", ev["tool"])
	assert.Equal(t, "info", ev["level"])
}

func TestInitFallsBackToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(Options{Level: "nonsense", Console: &buf}))
	defer Close()

	Get().Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
}
