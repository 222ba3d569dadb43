package ply

import (
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"

	"github.com/iamben/ply/tracefs"
)

// DefaultGroup returns the tracefs group used when none is configured:
// "ply<pid>". Embedding the pid keeps the groups of concurrent processes
// disjoint and lets CleanupStaleGroups identify groups whose owner died.
func DefaultGroup() string {
	return fmt.Sprintf("ply%d", Getpid())
}

// Session owns a set of probes sharing one tracefs group, one symbol
// catalog and one diagnostics sink. It is the orchestrator driving each
// probe through its attach and detach sequences.
type Session struct {
	// Group is the tracefs group all probe events are created under. It
	// must not contain path-breaking characters. Defaults to DefaultGroup.
	Group string

	// Probes registered with the session.
	Probes []*Probe

	// Catalog resolves wildcard patterns. A nil catalog degrades wildcard
	// expansion to zero matches.
	Catalog SymbolCatalog

	// TracefsRoot overrides tracefs mountpoint autodetection.
	TracefsRoot string

	// Logger receives non-fatal warnings. Defaults to the logrus standard
	// logger.
	Logger logrus.FieldLogger

	// AttachRetry is the number of additional attach attempts per probe on
	// error. The default is zero: a transient I/O failure during attach
	// surfaces immediately.
	AttachRetry uint

	// AttachRetryDelay is the delay between attach attempts.
	AttachRetryDelay time.Duration

	root        string
	flushPolicy flushPolicy
	started     bool
}

// Init resolves the session defaults and registers its probes. It must be
// called before Attach.
func (s *Session) Init() error {
	if s.Group == "" {
		s.Group = DefaultGroup()
	}
	if s.root == "" {
		s.root = s.TracefsRoot
	}
	if s.root == "" {
		root, err := tracefs.Root()
		if err != nil {
			return err
		}
		s.root = root
	}
	if s.flushPolicy.pageSize == 0 {
		s.flushPolicy = flushPolicy{pageSize: defaultPageSize, margin: defaultFlushMargin}
	}
	for _, p := range s.Probes {
		if err := p.init(s); err != nil {
			return err
		}
	}
	return nil
}

// Attach attaches every registered probe. If one of them fails, the probes
// attached so far are detached again before the error is returned, so a
// failed Attach leaves nothing behind.
func (s *Session) Attach() error {
	for i, p := range s.Probes {
		if err := s.attachWithRetry(p); err != nil {
			for j := i - 1; j >= 0; j-- {
				if derr := s.Probes[j].Detach(); derr != nil {
					s.log().Warnf("detach of %q after failed attach: %v", s.Probes[j].Pattern, derr)
				}
			}
			return err
		}
	}
	s.started = true
	return nil
}

func (s *Session) attachWithRetry(p *Probe) error {
	return retry.Do(
		p.Attach,
		retry.Attempts(s.AttachRetry+1),
		retry.Delay(s.AttachRetryDelay),
		retry.LastErrorOnly(true),
	)
}

// Detach detaches every probe. Failures do not stop the teardown of the
// remaining probes; all errors are reported together.
func (s *Session) Detach() error {
	var err error
	for _, p := range s.Probes {
		err = ConcatErrors(err, p.Detach())
	}
	s.started = false
	return err
}

// AddProbe registers an additional probe with the session, attaching it
// right away if the session is already attached.
func (s *Session) AddProbe(p *Probe) error {
	if err := p.init(s); err != nil {
		return err
	}
	s.Probes = append(s.Probes, p)
	if s.started {
		return s.attachWithRetry(p)
	}
	return nil
}

func (s *Session) log() logrus.FieldLogger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}
