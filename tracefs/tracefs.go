// Package tracefs locates the kernel tracing filesystem and provides
// path-relative accessors for the files underneath it.
package tracefs

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// candidate mountpoints, most common first. The debugfs fallback covers
// kernels where tracefs is only reachable through /sys/kernel/debug.
var roots = []string{
	"/sys/kernel/tracing",
	"/sys/kernel/debug/tracing",
}

var mnt = struct {
	once sync.Once
	path string
	err  error
}{}

func detectRoot() (string, error) {
	for _, p := range roots {
		var fs unix.Statfs_t
		if err := unix.Statfs(p, &fs); err != nil {
			continue
		}
		if fs.Type == unix.TRACEFS_MAGIC || fs.Type == unix.DEBUGFS_MAGIC {
			return p, nil
		}
	}
	return "", fmt.Errorf("tracefs: not mounted under any of %v", roots)
}

// Root returns the tracefs mountpoint. The result is cached for the
// lifetime of the process.
func Root() (string, error) {
	mnt.once.Do(func() {
		mnt.path, mnt.err = detectRoot()
	})
	return mnt.path, mnt.err
}

// Available returns true if a tracefs mountpoint could be resolved.
func Available() bool {
	_, err := Root()
	return err == nil
}

// Open opens the named file under the tracefs root for reading.
func Open(relname string) (*os.File, error) {
	root, err := Root()
	if err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(root, relname))
}

// OpenFile opens the named file under the tracefs root with the provided
// flags and mode.
func OpenFile(relname string, flag int, mode os.FileMode) (*os.File, error) {
	root, err := Root()
	if err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(root, relname), flag, mode)
}

// ReadFile reads the whole content of the named file under the tracefs root.
func ReadFile(relname string) ([]byte, error) {
	root, err := Root()
	if err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(root, relname))
}
