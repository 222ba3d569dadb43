package ply

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// chunkWriter records every underlying write, one entry per flush.
type chunkWriter struct {
	chunks []string
}

func (w *chunkWriter) Write(b []byte) (int, error) {
	w.chunks = append(w.chunks, string(b))
	return len(b), nil
}

type failingWriter struct {
	failures int
	writes   int
}

func (w *failingWriter) Write(b []byte) (int, error) {
	w.writes++
	if w.failures > 0 {
		w.failures--
		return 0, errors.New("injected write failure")
	}
	return len(b), nil
}

func TestCreateProbeLine(t *testing.T) {
	out := &chunkWriter{}
	dw := newDirectiveWriter(out, flushPolicy{})

	n, err := dw.createProbe("p:grp/p1_", "vfs_read.isra.0+8")
	require.NoError(t, err)
	require.NoError(t, dw.flush())

	line := "p:grp/p1_vfs_read_isra_0_8 vfs_read.isra.0+8\n"
	require.Equal(t, len(line), n)
	require.Equal(t, []string{line}, out.chunks)
}

func TestDeleteEventLine(t *testing.T) {
	out := &chunkWriter{}
	dw := newDirectiveWriter(out, flushPolicy{})

	n, err := dw.deleteEvent("grp/p1_vfs_read")
	require.NoError(t, err)
	require.NoError(t, dw.flush())

	require.Equal(t, len("-:grp/p1_vfs_read\n"), n)
	require.Equal(t, []string{"-:grp/p1_vfs_read\n"}, out.chunks)
}

// No directive line may be split across two flushes, and pending bytes may
// never exceed pageSize-margin before a flush is forced. Verified with a
// small synthetic page size.
func TestFlushThreshold(t *testing.T) {
	out := &chunkWriter{}
	policy := flushPolicy{pageSize: 64, margin: 16}
	dw := newDirectiveWriter(out, policy)

	for i := 0; i < 100; i++ {
		_, err := dw.deleteEvent(fmt.Sprintf("grp/p1_sym%04d", i))
		require.NoError(t, err)
		require.LessOrEqual(t, dw.pending, policy.threshold())
	}
	require.NoError(t, dw.flush())

	var total int
	for _, chunk := range out.chunks {
		require.LessOrEqual(t, len(chunk), policy.threshold())
		require.True(t, strings.HasSuffix(chunk, "\n"), "chunk ends mid-line: %q", chunk)
		for _, line := range strings.Split(strings.TrimSuffix(chunk, "\n"), "\n") {
			require.Regexp(t, `^-:grp/p1_sym[0-9]{4}$`, line)
			total++
		}
	}
	require.Equal(t, 100, total)
}

func TestFlushErrorDoesNotStick(t *testing.T) {
	out := &failingWriter{failures: 1}
	dw := newDirectiveWriter(out, flushPolicy{})

	_, err := dw.createProbe("p:grp/p1_", "bad_target")
	require.NoError(t, err)
	require.Error(t, dw.flush())

	// the writer stays usable for the remaining targets
	_, err = dw.createProbe("p:grp/p1_", "good_target")
	require.NoError(t, err)
	require.NoError(t, dw.flush())
	require.Equal(t, 0, dw.pending)
}
