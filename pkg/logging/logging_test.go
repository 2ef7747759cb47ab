package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New("debug", "json", &buf)
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.WithField("query", "abc").Info("search")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc", entry["query"])
	assert.Equal(t, "search", entry["msg"])
}

func TestNewUnknownLevel(t *testing.T) {
	l := New("loud", "", nil)
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "picker.log")
	l, closeFn, err := NewFile(path, "warn")
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
}
