package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileSource_Flat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeFile(t, path, "table_log.enable: on\n")

	got, err := FileSource{Path: path}.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{EnableSetting: "on"}, got)
}

func TestFileSource_Nested(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeFile(t, path, "table_log:\n  enable: \"off\"\n  extra: 3\n")

	got, err := FileSource{Path: path}.Load()
	require.NoError(t, err)
	assert.Equal(t, "off", got[EnableSetting])
	assert.Equal(t, "3", got["table_log.extra"])
}

func TestFileSource_Missing(t *testing.T) {
	got, err := FileSource{Path: filepath.Join(t.TempDir(), "absent.yaml")}.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileSource_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeFile(t, path, "table_log.enable: [on\n")

	_, err := FileSource{Path: path}.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing settings YAML")
}

func TestFileSource_ListRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeFile(t, path, "table_log.enable:\n  - on\n")

	_, err := FileSource{Path: path}.Load()
	require.Error(t, err)
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	writeFile(t, path, "table_log.enable: off\n")

	reg := NewRegistry(FileSource{Path: path})
	require.NoError(t, reg.Define(enableDef()))
	_, err := reg.Reload()
	require.NoError(t, err)
	toggle := NewToggle(reg, EnableSetting)
	require.False(t, toggle.Enabled())

	reloaded := make(chan struct{}, 1)
	w, err := NewWatcher(path, func() {
		_, _ = reg.Reload()
		select {
		case reloaded <- struct{}{}:
		default:
		}
	}, testLogger())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	writeFile(t, path, "table_log.enable: on\n")

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for settings reload")
	}
	assert.True(t, toggle.Enabled())
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	writeFile(t, path, "table_log.enable: off\n")

	changed := make(chan struct{}, 1)
	w, err := NewWatcher(path, func() { changed <- struct{}{} }, testLogger())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	writeFile(t, filepath.Join(dir, "other.yaml"), "x: 1\n")

	select {
	case <-changed:
		t.Error("unexpected reload for an unrelated file")
	case <-time.After(time.Second):
	}
}

func TestNewWatcher_MissingDirectory(t *testing.T) {
	_, err := NewWatcher("/nonexistent/dir/settings.yaml", func() {}, testLogger())
	require.Error(t, err)
}
