package ply

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/DataDog/gopsutil/process"
	"github.com/sirupsen/logrus"

	"github.com/iamben/ply/tracefs"
)

// staleGroupRegex matches groups created by DefaultGroup, capturing the pid
// of the owning process.
var staleGroupRegex = regexp.MustCompile(`^ply([0-9]+)$`)

// CleanupStaleGroups deletes the events of default-style groups whose
// owning process no longer exists.
//
// A process killed before detaching leaves its events registered. Those
// orphans accumulate across restarts until the control file hits the kernel
// limit of 65k entries, at which point new probes are refused with "no such
// device". Run this before attaching to reclaim the namespace.
func CleanupStaleGroups(logger logrus.FieldLogger) error {
	root, err := tracefs.Root()
	if err != nil {
		return err
	}
	return cleanupStaleGroups(root, logger, pidExists)
}

func pidExists(pid int) bool {
	running, err := process.PidExists(int32(pid))
	return err == nil && running
}

func cleanupStaleGroups(root string, logger logrus.FieldLogger, alive func(pid int) bool) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	dirs, err := os.ReadDir(filepath.Join(root, "events"))
	if err != nil {
		return fmt.Errorf("read events directory: %w", err)
	}

	self := Getpid()
	var stale []string
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		m := staleGroupRegex.FindStringSubmatch(d.Name())
		if m == nil {
			continue
		}
		pid, err := strconv.Atoi(m[1])
		if err != nil || pid == self || alive(pid) {
			continue
		}
		stale = append(stale, d.Name())
	}
	if len(stale) == 0 {
		return nil
	}

	f, err := os.OpenFile(filepath.Join(root, defaultControlFile), os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("open control channel %s: %w", defaultControlFile, err)
	}
	dw := newDirectiveWriter(f, flushPolicy{})

	var errs error
	for _, group := range stale {
		entries, err := os.ReadDir(filepath.Join(root, "events", group))
		if err != nil {
			errs = ConcatErrors(errs, err)
			continue
		}
		deleted := 0
		for _, ev := range entries {
			// a group directory also carries "enable" and "filter" files
			if !ev.IsDir() {
				continue
			}
			if _, err := dw.deleteEvent(group + "/" + ev.Name()); err != nil {
				errs = ConcatErrors(errs, err)
				continue
			}
			deleted++
		}
		logger.Warnf("removed %d stale events of dead process group %s", deleted, group)
	}
	errs = ConcatErrors(errs, dw.flush())
	return ConcatErrors(errs, f.Close())
}
