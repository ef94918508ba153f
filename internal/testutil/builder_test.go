package testutil

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilder_WritesScript(t *testing.T) {
	b := NewEngine(t).
		WithHome("/srv").
		WithBanner("engine 1.0").
		WithResponse("ls", Body(Listing("/srv/")), Stdout("listing")).
		WithResponse("put", Hang())

	factory := b.Build()
	cmd := factory(context.Background(), "ignored", "/xmllog=/tmp/x.xml")

	var scriptPath string
	for _, kv := range cmd.Env {
		if v, ok := strings.CutPrefix(kv, EngineScriptEnv+"="); ok {
			scriptPath = v
		}
	}
	require.NotEmpty(t, scriptPath)
	require.Equal(t, []string{os.Args[0], "/xmllog=/tmp/x.xml"}, cmd.Args)

	data, err := os.ReadFile(scriptPath)
	require.NoError(t, err)
	var script EngineScript
	require.NoError(t, json.Unmarshal(data, &script))

	require.Equal(t, "/srv", script.Home)
	require.Equal(t, []string{"engine 1.0"}, script.Banner)
	require.Len(t, script.Responses, 2)
	require.Equal(t, "ls", script.Responses[0].Match)
	require.Contains(t, script.Responses[0].Body, "<ls>")
	require.Equal(t, []string{"listing"}, script.Responses[0].Stdout)
	require.True(t, script.Responses[1].Hang)
	require.NotEmpty(t, script.RecordPath)
}

func TestBuilder_CommandsBeforeStartIsEmpty(t *testing.T) {
	require.Empty(t, NewEngine(t).Commands())
}

func TestExitWith_SetsCode(t *testing.T) {
	var resp EngineResponse
	ExitWith(3)(&resp)
	require.NotNil(t, resp.Exit)
	require.Equal(t, 3, *resp.Exit)
}

func TestNewTestDB_IsUsable(t *testing.T) {
	db := NewTestDB(t)
	_, err := db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO t (id) VALUES (1)`)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n))
	require.Equal(t, 1, n)
}
