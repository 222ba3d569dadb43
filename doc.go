// Package ply manages the lifecycle of dynamic kernel function probes: it
// creates probe events through the tracefs control file, discovers the
// events the kernel actually materialized, opens one perf-event monitoring
// handle per event, and guarantees that everything is torn down again, even
// when an attach fails partway through.
//
// Probes are grouped into a Session, which provides the shared tracefs
// group, the symbol catalog used for wildcard patterns, and the
// diagnostics sink.
package ply
