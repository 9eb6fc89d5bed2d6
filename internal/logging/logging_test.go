package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToWriter(t *testing.T) {
	var buf bytes.Buffer
	log, closer, err := New("debug", "", &buf)
	require.NoError(t, err)
	defer closer.Close()

	log.WithField("user_id", "u1").Debug("hello")
	assert.Contains(t, buf.String(), `"user_id":"u1"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := New("warn", "", &buf)
	require.NoError(t, err)

	log.Info("quiet")
	log.Warn("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clique.log")
	log, closer, err := New("info", path, nil)
	require.NoError(t, err)

	log.Info("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "to file"))
}

func TestNewBadLevel(t *testing.T) {
	_, _, err := New("chatty", "", nil)
	assert.Error(t, err)
}
