package process

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestOutputTracker_KeepsMostRecentLines(t *testing.T) {
	tr := NewOutputTracker(3)
	for i := 0; i < 5; i++ {
		tr.Append(fmt.Sprintf("line %d", i), StreamStdout)
	}
	tr.Append("err", StreamStderr)

	require.Equal(t, []string{"line 2", "line 3", "line 4"}, tr.Output())
	require.Equal(t, []string{"err"}, tr.ErrorOutput())
	require.Equal(t, "line 2\nline 3\nline 4\nerr", tr.Combined())

	tr.Reset()
	require.Empty(t, tr.Output())
	require.Empty(t, tr.ErrorOutput())
}

func TestOutputTracker_SnapshotsAreCopies(t *testing.T) {
	tr := NewOutputTracker(2)
	tr.Append("a", StreamStdout)

	out := tr.Output()
	out[0] = "mutated"

	require.Equal(t, []string{"a"}, tr.Output())
}

func TestOutputTracker_BoundedSuffixProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 10).Draw(t, "capacity")
		lines := rapid.SliceOf(rapid.StringMatching(`[a-z]{0,5}`)).Draw(t, "lines")

		tr := NewOutputTracker(capacity)
		for _, l := range lines {
			tr.Append(l, StreamStdout)
		}

		want := lines
		if len(want) > capacity {
			want = want[len(want)-capacity:]
		}
		got := tr.Output()
		if len(want) == 0 {
			if len(got) != 0 {
				t.Fatalf("expected no lines, got %v", got)
			}
			return
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
}

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		want ProgressRecord
	}{
		{
			name: "valid",
			line: "!progress\ttransfer\tremote\t100\t40\t2048\t/home/u\tfile.bin",
			ok:   true,
			want: ProgressRecord{Operation: "transfer", Side: "remote", OverallProgress: 1, FileProgress: 0.4, CPS: 2048, Directory: "/home/u", FileName: "file.bin"},
		},
		{
			name: "clamped",
			line: "!progress\ttransfer\tlocal\t150\t-3\t0\t\tx",
			ok:   true,
			want: ProgressRecord{Operation: "transfer", Side: "local", OverallProgress: 1, FileProgress: 0, Directory: "", FileName: "x"},
		},
		{name: "plain output", line: "Session started.", ok: false},
		{name: "too few fields", line: "!progress\ttransfer\tlocal", ok: false},
		{name: "bad number", line: "!progress\ttransfer\tlocal\tx\t1\t1\td\tf", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseProgressLine(tt.line)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				require.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFormatExitCode(t *testing.T) {
	require.Equal(t, "3", FormatExitCode(3))
	require.Equal(t, "-1073741510 (C000013A)", FormatExitCode(-1073741510))
	require.Equal(t, "-1 (FFFFFFFF)", FormatExitCode(-1))
}

func TestStatus_String(t *testing.T) {
	require.Equal(t, "running", StatusRunning.String())
	require.True(t, StatusKilled.IsTerminal())
	require.False(t, StatusPending.IsTerminal())
	require.Equal(t, "unknown", Status(42).String())
}
