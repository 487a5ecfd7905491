package helper

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUUID(t *testing.T) {
	a, err := GenerateUUID()
	require.NoError(t, err)
	b, err := GenerateUUID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	_, err = uuid.Parse(a)
	assert.NoError(t, err)
}

func TestJSONFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "out.json")
	in := map[string]int{"chunks": 3}
	require.NoError(t, WriteJSON(path, in))

	var out map[string]int
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, in, out)

	assert.Error(t, ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &out))
}

func TestPrettyPrint(t *testing.T) {
	var buf bytes.Buffer
	PrettyPrint(&buf, map[string]string{"answer": "yes"})
	assert.Equal(t, "{\n  \"answer\": \"yes\"\n}\n", buf.String())
}
