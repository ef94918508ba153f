package flags

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/fsync/internal/log"
)

func TestRegistry_Enabled(t *testing.T) {
	tests := []struct {
		name     string
		registry *Registry
		flag     string
		want     bool
	}{
		{name: "history on", registry: New(map[string]bool{FlagHistory: true}), flag: FlagHistory, want: true},
		{name: "archive off", registry: New(map[string]bool{FlagArchiveXML: false}), flag: FlagArchiveXML},
		{name: "unset flag", registry: New(map[string]bool{FlagHistory: true}), flag: FlagVerifyRemote},
		{name: "nil registry", registry: nil, flag: FlagHistory},
		{name: "nil map", registry: New(nil), flag: FlagHistory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.registry.Enabled(tt.flag))
		})
	}
}

func TestRegistry_All(t *testing.T) {
	require.Equal(t, map[string]bool{}, (*Registry)(nil).All())
	require.Equal(t, map[string]bool{}, New(nil).All())

	r := New(map[string]bool{FlagHistory: true, FlagArchiveXML: false})
	all := r.All()
	require.Equal(t, map[string]bool{FlagHistory: true, FlagArchiveXML: false}, all)

	all[FlagHistory] = false
	all[FlagVerifyRemote] = true
	require.True(t, r.Enabled(FlagHistory), "All returns a copy")
	require.False(t, r.Enabled(FlagVerifyRemote))
}

func TestNew_CopiesInputMap(t *testing.T) {
	in := map[string]bool{FlagHistory: true}
	r := New(in)

	in[FlagHistory] = false
	require.True(t, r.Enabled(FlagHistory))
}

func TestNew_WithLoggerLogsUnknownFlags(t *testing.T) {
	var buf bytes.Buffer
	r := New(map[string]bool{FlagArchiveXML: true}, WithLogger(log.New(&buf)))

	require.True(t, r.Enabled(FlagArchiveXML))
	require.False(t, r.Enabled(FlagVerifyRemote))
	require.Contains(t, buf.String(), "Feature flags initialized")
	require.Contains(t, buf.String(), "Unknown flag accessed")
	require.Contains(t, buf.String(), "flag="+FlagVerifyRemote)
}

func TestNew_WarnsAboutMisspelledFlags(t *testing.T) {
	var buf bytes.Buffer
	r := New(map[string]bool{"histroy": true, FlagHistory: true}, WithLogger(log.New(&buf)))

	require.True(t, r.Enabled(FlagHistory))
	require.Contains(t, buf.String(), "[WARN] [config] Ignoring unknown feature flag flag=histroy")
}

func TestKnown(t *testing.T) {
	k := Known()
	require.ElementsMatch(t, []string{FlagHistory, FlagArchiveXML, FlagVerifyRemote}, k)

	k[0] = "changed"
	require.Contains(t, Known(), FlagHistory)
}
