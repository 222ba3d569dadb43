package ply

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionDefaults(t *testing.T) {
	s := &Session{TracefsRoot: t.TempDir()}
	require.NoError(t, s.Init())
	require.Equal(t, DefaultGroup(), s.Group)
	require.Equal(t, defaultPageSize, s.flushPolicy.pageSize)
	require.Equal(t, defaultFlushMargin, s.flushPolicy.margin)
}

func TestSessionProbeDefaults(t *testing.T) {
	k := newFakeKernel(t)
	p := &Probe{Pattern: "vfs_read"}
	k.session(p)

	require.Equal(t, byte('p'), p.Type)
	require.Equal(t, defaultControlFile, p.ControlFile)
	require.NotZero(t, p.id)
}

func TestSessionRejectsInvalidProbes(t *testing.T) {
	s := &Session{TracefsRoot: t.TempDir(), Probes: []*Probe{{Pattern: "x", Type: 'q'}}}
	require.Error(t, s.Init())

	s = &Session{TracefsRoot: t.TempDir(), Probes: []*Probe{{}}}
	require.Error(t, s.Init())
}

func TestSessionAttachDetach(t *testing.T) {
	k := newFakeKernel(t)
	entry := &Probe{Type: 'p', Pattern: "vfs_read"}
	ret := &Probe{Type: 'r', Pattern: "vfs_read"}
	s := k.session(entry, ret)

	require.NoError(t, s.Attach())
	require.Len(t, entry.Monitors(), 1)
	require.Len(t, ret.Monitors(), 1)

	require.NoError(t, s.Detach())
	require.Empty(t, k.eventNames())
	require.Equal(t, 2, k.ctrlCloses)
	require.Equal(t, 2, k.monitorCloses)
}

func TestSessionAttachRollsBackEarlierProbes(t *testing.T) {
	k := newFakeKernel(t)
	// the first probe attaches one monitor, then the second probe's
	// monitor open fails
	k.failMonitorAfter = 1
	first := &Probe{Pattern: "sym1"}
	second := &Probe{Pattern: "sym2"}
	s := k.session(first, second)

	require.Error(t, s.Attach())
	require.Empty(t, k.eventNames())
	require.Equal(t, 1, k.monitorOpens)
	require.Equal(t, 1, k.monitorCloses)
	require.Equal(t, 2, k.ctrlOpens)
	require.Equal(t, 2, k.ctrlCloses)
}

func TestSessionAddProbeWhileAttached(t *testing.T) {
	k := newFakeKernel(t)
	s := k.session(&Probe{Pattern: "sym1"})
	require.NoError(t, s.Attach())

	late := &Probe{Pattern: "sym2"}
	late.openControl = k.openControl
	late.openMonitor = k.openMonitor
	require.NoError(t, s.AddProbe(late))
	require.Len(t, late.Monitors(), 1)

	require.NoError(t, s.Detach())
	require.Empty(t, k.eventNames())
}
