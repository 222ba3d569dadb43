package ply

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func mkEvent(t *testing.T, root, group, name string) {
	t.Helper()
	dir := filepath.Join(root, "events", group, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "id"), []byte("123\n"), 0o644))
}

func TestDiscoverEvents(t *testing.T) {
	root := t.TempDir()
	mkEvent(t, root, "grp", "p2a_vfs_read")
	mkEvent(t, root, "grp", "p2a_vfs_write")
	mkEvent(t, root, "grp", "p2b_vfs_read") // other instance
	mkEvent(t, root, "other", "p2a_vfs_read")

	events, err := discoverEvents(root, "grp", 0x2a)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "grp/p2a_vfs_read", events[0].Name)
	require.Equal(t, filepath.Join(root, "events", "grp", "p2a_vfs_read"), events[0].Path)
	require.Equal(t, "grp/p2a_vfs_write", events[1].Name)
}

func TestDiscoverEventsEmpty(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "events"), 0o755))

	// zero materialized probes is a valid outcome, not an error
	events, err := discoverEvents(root, "grp", 1)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestDiscoverEventsBadPattern(t *testing.T) {
	_, err := discoverEvents(t.TempDir(), "grp[", 1)
	require.Error(t, err)
}
