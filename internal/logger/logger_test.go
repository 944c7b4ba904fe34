package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	require.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	require.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestInitializeWithFileWritesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dpool.log")
	InitializeWithFile("info", path)
	defer Initialize("info")

	l := GetForComponent("logger_test")
	l.Info().Str("action", "deposit").Msg("written")

	bz, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(bz), `"component":"logger_test"`)
	require.Contains(t, string(bz), `"action":"deposit"`)
}
