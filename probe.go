package ply

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cilium/ebpf"
)

// ErrProbeNotInitialized - The probe was used before being registered with
// a session.
var ErrProbeNotInitialized = errors.New("the probe is not initialized, register it with a session first")

// defaultControlFile - control channel for kernel function probes.
const defaultControlFile = "kprobe_events"

// Probe instruments the kernel locations matching a literal name or a
// wildcard pattern, and owns one monitoring handle per event the kernel
// materialized for it. All of its events live under a namespace derived
// from the session group and a unique instance id, which is what keeps
// concurrently active probes from stepping on each other: the control file
// is a shared, globally visible resource and the only collision avoidance
// is disjoint naming.
type Probe struct {
	// Type is the single-character probe kind from the control file
	// grammar: 'p' hooks function entry, 'r' hooks function return.
	// Defaults to 'p'.
	Type byte

	// Pattern is either a literal probe target ("vfs_read", "tcp_v4_rcv+16")
	// or a shell-style wildcard expression expanded against the session's
	// symbol catalog ("tcp_*").
	Pattern string

	// Program, when set, is attached to every monitor this probe opens, so
	// the program runs each time one of the events fires.
	Program *ebpf.Program

	// ControlFile is the name of the control channel under the tracefs
	// root. Defaults to "kprobe_events".
	ControlFile string

	session *Session

	id       uint64
	stem     string
	state    state
	ctrlFile io.WriteCloser
	ctrl     *directiveWriter
	nevs     int
	monitors []Monitor

	// overridable for tests
	openControl func() (io.WriteCloser, error)
	openMonitor func(ev Event, prog *ebpf.Program) (Monitor, error)
}

func (p *Probe) init(s *Session) error {
	if p.session != nil && p.session != s {
		return fmt.Errorf("probe %q is already registered with another session", p.Pattern)
	}
	p.session = s
	if p.Type == 0 {
		p.Type = 'p'
	}
	if p.Type != 'p' && p.Type != 'r' {
		return fmt.Errorf("unknown probe type %q for %q", string(p.Type), p.Pattern)
	}
	if len(p.Pattern) == 0 {
		return errors.New("a probe needs a pattern")
	}
	if p.ControlFile == "" {
		p.ControlFile = defaultControlFile
	}
	if p.id == 0 {
		p.id = nextProbeID()
	}
	if p.openControl == nil {
		p.openControl = func() (io.WriteCloser, error) {
			return os.OpenFile(filepath.Join(s.root, p.ControlFile), os.O_APPEND|os.O_WRONLY, 0666)
		}
	}
	if p.openMonitor == nil {
		p.openMonitor = openTracingEvent
	}
	return nil
}

// Attach opens the control channel, submits the create directives, and
// opens one monitor per event the kernel materialized. Any failure along
// the way triggers a full rollback, so a failed Attach leaves no open
// channel and no dangling events behind.
func (p *Probe) Attach() error {
	if p.session == nil {
		return ErrProbeNotInitialized
	}
	if p.state == attached {
		return nil
	}

	f, err := p.openControl()
	if err != nil {
		return fmt.Errorf("open control channel %s: %w", p.ControlFile, err)
	}
	p.ctrlFile = f
	p.ctrl = newDirectiveWriter(f, p.session.flushPolicy)
	p.state = channelOpen

	if err := p.create(); err != nil {
		return p.rollback(fmt.Errorf("create %q: %w", p.Pattern, err))
	}
	p.state = directivesWritten

	events, err := p.discover()
	if err != nil {
		return p.rollback(err)
	}

	// The monitors opened before a failure are kept on the probe so
	// rollback can close them.
	p.monitors, err = p.attachAll(events)
	if err != nil {
		return p.rollback(err)
	}
	p.state = attached
	return nil
}

// create submits one create directive per target. A literal pattern is a
// single directive; a wildcard pattern sweeps the symbol catalog.
func (p *Probe) create() error {
	p.stem = probeStem(p.Type, p.session.Group, p.id)

	if IsWildcard(p.Pattern) {
		p.createPattern()
	} else {
		if _, err := p.ctrl.createProbe(p.stem, p.Pattern); err != nil {
			return err
		}
		p.nevs++
	}
	return p.ctrl.flush()
}

// createPattern sweeps the catalog. Each match is flushed on its own so a
// definition the kernel rejects can be pinned to its symbol; a failed
// symbol is logged, left uncounted and skipped. Only the final flush in
// create can fail the sweep as a whole.
func (p *Probe) createPattern() {
	for _, sym := range matchAll(p.Pattern, p.session.Catalog) {
		if _, err := p.ctrl.createProbe(p.stem, sym); err != nil {
			p.session.log().Warnf("unable to create probe on %s, skipping: %v", sym, err)
			continue
		}
		if err := p.ctrl.flush(); err != nil {
			p.session.log().Warnf("unable to create probe on %s, skipping: %v", sym, err)
			continue
		}
		p.nevs++
	}
}

// discover enumerates the events that actually materialized for this
// probe's namespace and reconciles the count against the accepted
// directives. The kernel may have rejected individual targets (inlined or
// otherwise untraceable functions), so a shortfall is only a warning.
func (p *Probe) discover() ([]Event, error) {
	events, err := discoverEvents(p.session.root, p.session.Group, p.id)
	if err != nil {
		return nil, err
	}
	if len(events) != p.nevs {
		p.session.log().Warnf("found %d events, expected %d: failed to create some probes? (check dmesg for hints)", len(events), p.nevs)
	}
	return events, nil
}

// attachAll opens one monitor per discovered event. It stops at the first
// failure and returns the monitors opened so far; closing them on failure
// is the caller's job.
func (p *Probe) attachAll(events []Event) ([]Monitor, error) {
	monitors := make([]Monitor, 0, len(events))
	for _, ev := range events {
		m, err := p.openMonitor(ev, p.Program)
		if err != nil {
			return monitors, fmt.Errorf("attach %s: %w", ev.Name, err)
		}
		monitors = append(monitors, m)
	}
	return monitors, nil
}

// Detach releases everything the probe holds, in reverse order of
// acquisition: monitors first, then the events (rediscovered, so entries
// left by an earlier incarnation are cleaned up too), then the control
// channel. It is safe to call on a probe that never attached, and calling
// it twice is a no-op.
func (p *Probe) Detach() error {
	if p.ctrl == nil {
		p.reset()
		return nil
	}
	p.state = detaching

	err := p.closeMonitors()
	err = ConcatErrors(err, p.deleteAll())
	err = ConcatErrors(err, p.closeControl())
	p.reset()
	return err
}

// rollback unwinds a partially attached probe in strict reverse order of
// acquisition. Cleanup failures are logged but never mask the error that
// started the unwind.
func (p *Probe) rollback(cause error) error {
	p.state = detaching
	if err := p.closeMonitors(); err != nil {
		p.session.log().Warnf("rollback of %q: closing monitors: %v", p.Pattern, err)
	}
	if err := p.deleteAll(); err != nil {
		p.session.log().Warnf("rollback of %q: deleting events: %v", p.Pattern, err)
	}
	if err := p.closeControl(); err != nil {
		p.session.log().Warnf("rollback of %q: closing control channel: %v", p.Pattern, err)
	}
	p.reset()
	return cause
}

// deleteAll deletes every event currently present in the probe's
// namespace, whether or not this instance created it. Cleanup trusts the
// observed set, not the intended one: intended directives may have silently
// failed, and orphans from a previous failure share the namespace.
func (p *Probe) deleteAll() error {
	events, err := discoverEvents(p.session.root, p.session.Group, p.id)
	if err != nil {
		return err
	}
	if len(events) != p.nevs {
		p.session.log().Warnf("found %d events, expected %d: failed to create some probes? (check dmesg for hints)", len(events), p.nevs)
	}
	for _, ev := range events {
		if _, err := p.ctrl.deleteEvent(ev.Name); err != nil {
			return err
		}
	}
	return p.ctrl.flush()
}

func (p *Probe) closeMonitors() error {
	var err error
	for _, m := range p.monitors {
		err = ConcatErrors(err, m.Close())
	}
	p.monitors = nil
	return err
}

func (p *Probe) closeControl() error {
	if p.ctrlFile == nil {
		return nil
	}
	err := p.ctrl.flush()
	err = ConcatErrors(err, p.ctrlFile.Close())
	p.ctrl = nil
	p.ctrlFile = nil
	return err
}

func (p *Probe) reset() {
	p.state = closed
	p.nevs = 0
	p.stem = ""
}

// Pause stops the probe's monitors from producing records without
// detaching anything.
func (p *Probe) Pause() error {
	var err error
	for _, m := range p.monitors {
		err = ConcatErrors(err, m.Pause())
	}
	return err
}

// Resume re-enables paused monitors.
func (p *Probe) Resume() error {
	var err error
	for _, m := range p.monitors {
		err = ConcatErrors(err, m.Resume())
	}
	return err
}

// Monitors returns the monitoring handles of an attached probe. The probe
// keeps ownership; callers must not close them.
func (p *Probe) Monitors() []Monitor {
	return p.monitors
}
