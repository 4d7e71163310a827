package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/qnabot/core/buildinfo"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, buildinfo.String()+"\n", out)
}

func TestConfigCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
telegram:
  token: "123:abc"
qna:
  storage: memory
  areas: [Tax, Law]
`), 0o600))

	out, err := execute(t, "config", "check", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "config ok")
	assert.Contains(t, out, "storage:      memory")
	assert.Contains(t, out, "areas:        2")
}

func TestConfigCheckReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("qna:\n  storage: sqlite\n"), 0o600))

	_, err := execute(t, "config", "check", "-c", path)
	assert.Error(t, err)
}

func TestMigrateRequiresPostgres(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telegram:\n  token: t\nqna:\n  storage: memory\n"), 0o600))

	_, err := execute(t, "migrate", "--config", path)
	assert.ErrorContains(t, err, "nothing to migrate")
}
