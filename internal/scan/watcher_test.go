package scan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWatcherReportsNewMatchingFile checks a created .mpg triggers a rescan.
func TestWatcherReportsNewMatchingFile(t *testing.T) {
	dir := t.TempDir()
	changes := make(chan []string, 4)

	w, err := NewScanner().Watch(dir, 20*time.Millisecond, func(files []string) {
		changes <- files
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	mustWriteFile(t, filepath.Join(dir, "new.mpg"), "data")

	select {
	case files := <-changes:
		assert.Equal(t, []string{filepath.Join(dir, "new.mpg")}, files)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for rescan")
	}
}

// TestWatcherIgnoresOtherExtensions checks unrelated files do not rescan.
func TestWatcherIgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	changes := make(chan []string, 4)

	w, err := NewScanner().Watch(dir, 20*time.Millisecond, func(files []string) {
		changes <- files
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	mustWriteFile(t, filepath.Join(dir, "notes.txt"), "data")

	select {
	case files := <-changes:
		t.Fatalf("unexpected rescan: %v", files)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestWatcherReportsRemoval checks deletes shrink the reported list.
func TestWatcherReportsRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.mpg")
	mustWriteFile(t, path, "data")
	changes := make(chan []string, 4)

	w, err := NewScanner().Watch(dir, 20*time.Millisecond, func(files []string) {
		changes <- files
	}, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.Remove(path))

	select {
	case files := <-changes:
		assert.Empty(t, files)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for rescan")
	}
}

// TestWatchMissingDirectoryFails checks watch setup surfaces scan errors.
func TestWatchMissingDirectoryFails(t *testing.T) {
	_, err := NewScanner().Watch(filepath.Join(t.TempDir(), "gone"), 0, nil, nil)
	var scanErr *ScanError
	assert.ErrorAs(t, err, &scanErr)
}

// TestWatcherCloseIsIdempotent checks repeated Close calls are safe.
func TestWatcherCloseIsIdempotent(t *testing.T) {
	w, err := NewScanner().Watch(t.TempDir(), 0, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
