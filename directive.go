package ply

import (
	"bufio"
	"io"
	"strings"
)

const (
	// defaultPageSize - granularity of the buffered writes to the control
	// file, mirroring the kernel page size.
	defaultPageSize = 0x1000
	// defaultFlushMargin - the kprobe_events parser cannot resume a probe
	// definition split across two writes, so the buffer is flushed once
	// fewer than this many bytes remain before the page boundary.
	defaultFlushMargin = 0x200
)

// flushPolicy decides when the directive buffer must be flushed so that no
// directive line ever straddles two underlying writes.
type flushPolicy struct {
	pageSize int
	margin   int
}

func (fp flushPolicy) threshold() int {
	return fp.pageSize - fp.margin
}

// directiveWriter serializes create and delete directives for a
// kprobe_events style control file, fully buffered at page-size
// granularity. Write errors only surface at flush time, which is also the
// only point the kernel parses (and may reject) the buffered lines.
type directiveWriter struct {
	out     io.Writer
	w       *bufio.Writer
	policy  flushPolicy
	pending int
}

func newDirectiveWriter(w io.Writer, policy flushPolicy) *directiveWriter {
	if policy.pageSize == 0 {
		policy = flushPolicy{pageSize: defaultPageSize, margin: defaultFlushMargin}
	}
	return &directiveWriter{
		out:    w,
		w:      bufio.NewWriterSize(w, policy.pageSize),
		policy: policy,
	}
}

// reserve flushes the buffer if adding n more bytes would cross the flush
// threshold, guaranteeing the next directive lands whole in one write.
func (dw *directiveWriter) reserve(n int) error {
	if dw.pending > 0 && dw.pending+n > dw.policy.threshold() {
		return dw.flush()
	}
	return nil
}

// createProbe emits "<stem><sanitized-target> <target>\n". The sanitized
// copy only names the event; the original target is what the kernel
// resolves and instruments. Returns the size of the emitted line.
func (dw *directiveWriter) createProbe(stem, target string) (int, error) {
	var sb strings.Builder
	sb.Grow(len(stem) + 2*len(target) + 2)
	sb.WriteString(stem)
	sb.WriteString(sanitizeTarget(target))
	sb.WriteByte(' ')
	sb.WriteString(target)
	sb.WriteByte('\n')
	return dw.emit(sb.String())
}

// deleteEvent emits "-:<name>\n", where name is the group-qualified event
// name as discovered under the events directory.
func (dw *directiveWriter) deleteEvent(name string) (int, error) {
	var sb strings.Builder
	sb.Grow(2 + len(name) + 1)
	sb.WriteString("-:")
	sb.WriteString(name)
	sb.WriteByte('\n')
	return dw.emit(sb.String())
}

func (dw *directiveWriter) emit(line string) (int, error) {
	if err := dw.reserve(len(line)); err != nil {
		return 0, err
	}
	n, err := dw.w.WriteString(line)
	dw.pending += n
	return n, err
}

func (dw *directiveWriter) flush() error {
	dw.pending = 0
	if err := dw.w.Flush(); err != nil {
		// Drop the rejected lines and clear the sticky bufio error so the
		// caller can keep emitting directives for the remaining targets.
		dw.w.Reset(dw.out)
		return err
	}
	return nil
}
