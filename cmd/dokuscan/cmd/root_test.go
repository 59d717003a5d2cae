package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokuscan/dokuscan/internal/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "dokuscan", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommandHelp(t *testing.T) {
	output, err := execute(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, output, "identity documents")
	assert.Contains(t, output, "Available Commands:")
	assert.Contains(t, output, "passport")
	assert.Contains(t, output, "ktp")
	assert.Contains(t, output, "serve")
}

func TestVersionCommand(t *testing.T) {
	output, err := execute(t, "version")
	require.NoError(t, err)

	assert.Contains(t, output, "dokuscan")
	assert.Contains(t, output, "Commit:")
}

func TestExtractCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["passport"])
	assert.True(t, names["ktp"])
	assert.True(t, names["serve"])
	assert.True(t, names["version"])
}

func TestExtractRequiresInput(t *testing.T) {
	_, err := execute(t, "ktp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input files")
}

func TestExtractMissingFile(t *testing.T) {
	_, err := execute(t, "ktp", filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
}

func TestExtractRejectsUnknownFormat(t *testing.T) {
	file := testutil.WritePNG(t, t.TempDir(), "card.png",
		testutil.DocPhoto(t, testutil.DefaultPhotoConfig("NIK 3171234567890123")))

	_, err := execute(t, "ktp", file, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestExtractRejectsBadHistoryFile(t *testing.T) {
	dir := t.TempDir()
	history := filepath.Join(dir, "history.json")
	require.NoError(t, os.WriteFile(history, []byte("{broken"), 0o600))

	file := testutil.WritePNG(t, dir, "card.png",
		testutil.DocPhoto(t, testutil.DefaultPhotoConfig("NIK 3171234567890123")))

	// Flag values persist across Execute calls, so reset the format.
	_, err := execute(t, "ktp", file, "--format", "json", "--history-file", history)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse history file")
}

func TestLoadHistorySnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")
	want := map[string][]string{"name": {"BUDI SANTOSO"}}
	data, err := json.Marshal(want)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	got, err := loadHistorySnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
