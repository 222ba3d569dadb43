package ply

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unsafe"

	"github.com/cilium/ebpf"
	"golang.org/x/sys/unix"
)

// Monitor is an open monitoring handle for one kernel event. A downstream
// consumer polls it for trace records; the owning probe closes it exactly
// once during detach or rollback.
type Monitor interface {
	// FD returns the underlying perf event file descriptor.
	FD() (uint32, error)
	// Pause stops the event from producing records without detaching it.
	Pause() error
	// Resume re-enables a paused event.
	Resume() error
	Close() error
}

// PerfEvent is the perf_event_open backed Monitor implementation.
type PerfEvent struct {
	fd *fd
}

func (pe *PerfEvent) FD() (uint32, error) {
	return pe.fd.Value()
}

func (pe *PerfEvent) Pause() error {
	return ioctlPerfEventDisable(pe.fd)
}

func (pe *PerfEvent) Resume() error {
	return ioctlPerfEventEnable(pe.fd)
}

func (pe *PerfEvent) Close() error {
	return pe.fd.Close()
}

// openTracingEvent opens a monitoring handle on a discovered event: it
// resolves the event id from the event directory, opens a tracepoint-type
// perf event on it, optionally wires the given eBPF program to the fd, and
// enables the event.
func openTracingEvent(ev Event, prog *ebpf.Program) (Monitor, error) {
	id, err := readEventID(ev.Path)
	if err != nil {
		return nil, err
	}

	efd, err := perfEventOpenTracingEvent(id, -1)
	if err != nil {
		return nil, fmt.Errorf("open perf event for %s: %w", ev.Name, err)
	}
	pe := &PerfEvent{fd: efd}

	if prog != nil {
		if err := ioctlPerfEventSetBPF(pe.fd, prog.FD()); err != nil {
			_ = pe.Close()
			return nil, fmt.Errorf("set perf event bpf on %s: %w", ev.Name, err)
		}
	}
	if err := ioctlPerfEventEnable(pe.fd); err != nil {
		_ = pe.Close()
		return nil, fmt.Errorf("enable perf event %s: %w", ev.Name, err)
	}
	return pe, nil
}

// readEventID reads the tracefs-assigned event id from <eventDir>/id.
func readEventID(eventDir string) (int, error) {
	raw, err := os.ReadFile(filepath.Join(eventDir, "id"))
	if err != nil {
		return -1, fmt.Errorf("cannot read event id: %w", err)
	}
	idStr := strings.TrimSpace(string(raw))
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return -1, fmt.Errorf("invalid event id %q: %w", idStr, err)
	}
	return id, nil
}

func perfEventOpenTracingEvent(probeID int, pid int) (*fd, error) {
	if pid <= 0 {
		pid = -1
	}
	cpu := 0
	if pid != -1 {
		cpu = -1
	}
	attr := unix.PerfEventAttr{
		Type:        unix.PERF_TYPE_TRACEPOINT,
		Sample_type: unix.PERF_SAMPLE_RAW,
		Sample:      1,
		Wakeup:      1,
		Config:      uint64(probeID),
	}
	attr.Size = uint32(unsafe.Sizeof(attr))
	return perfEventOpenRaw(&attr, pid, cpu, -1, unix.PERF_FLAG_FD_CLOEXEC)
}

func perfEventOpenRaw(attr *unix.PerfEventAttr, pid int, cpu int, groupFd int, flags int) (*fd, error) {
	efd, err := unix.PerfEventOpen(attr, pid, cpu, groupFd, flags)
	if efd < 0 {
		return nil, fmt.Errorf("perf_event_open error: %v", err)
	}
	return newFD(uint32(efd)), nil
}

func ioctlPerfEventSetBPF(perfEventOpenFD *fd, progFD int) error {
	v, err := perfEventOpenFD.Value()
	if err != nil {
		return err
	}
	return unix.IoctlSetInt(int(v), unix.PERF_EVENT_IOC_SET_BPF, progFD)
}

func ioctlPerfEventEnable(perfEventOpenFD *fd) error {
	v, err := perfEventOpenFD.Value()
	if err != nil {
		return err
	}
	return unix.IoctlSetInt(int(v), unix.PERF_EVENT_IOC_ENABLE, 0)
}

func ioctlPerfEventDisable(perfEventOpenFD *fd) error {
	v, err := perfEventOpenFD.Value()
	if err != nil {
		return err
	}
	return unix.IoctlSetInt(int(v), unix.PERF_EVENT_IOC_DISABLE, 0)
}
