package ply

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// probeSeq hands out process-wide unique probe instance ids. Together with
// the pid-scoped default group this keeps the event namespaces of
// concurrently active probes disjoint without any locking.
var probeSeq atomic.Uint64

func nextProbeID() uint64 {
	return probeSeq.Add(1)
}

// probeStem builds the unique event-name prefix shared by every event the
// probe creates: "<type>:<group>/p<id>_". The part after the colon is the
// path of the events as they appear under tracefs.
func probeStem(typ byte, group string, id uint64) string {
	return fmt.Sprintf("%c:%s/p%x_", typ, group, id)
}

var targetSanitizer = strings.NewReplacer("+", "_", ".", "_")

// sanitizeTarget maps a probe target to an identifier the kprobe_events
// parser accepts as an event name. Offsets ("func+0x10") and sub-function
// suffixes ("func.isra.0") carry characters that are legal in a target but
// not in an event name.
func sanitizeTarget(target string) string {
	return targetSanitizer.Replace(target)
}
