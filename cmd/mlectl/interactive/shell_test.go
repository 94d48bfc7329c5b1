package interactive

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/mle-go/internal/scenario"
)

const shellScenario = `
name: shell
node:
  ext_address: "02:00:00:00:00:00:00:01"
parents:
  - ext_address: "0a:00:00:00:00:00:00:01"
    short_address: 0x0400
    partition_id: 4
    weighting: 64
    link_quality_3: 1
    leader_cost: 1
    id_sequence: 1
    active_routers: 1
    dbm: -50
    link_margin: 40
    network_data: "0802aabb"
`

func newShell(t *testing.T) (*Shell, *bytes.Buffer) {
	t.Helper()
	sc, err := scenario.Parse([]byte(shellScenario))
	require.NoError(t, err)
	session, err := scenario.NewSession(sc, scenario.Options{Start: time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	var buf bytes.Buffer
	return New(sc.Name, session, &buf), &buf
}

func TestShellAttach(t *testing.T) {
	sh, out := newShell(t)

	assert.False(t, sh.Exec("parent"))
	assert.Contains(t, out.String(), "No parent")

	out.Reset()
	sh.Exec("update")
	assert.Contains(t, out.String(), "Error:")

	out.Reset()
	sh.Exec("scan")
	assert.Contains(t, out.String(), "OK")

	out.Reset()
	sh.Exec("run 3s")
	assert.Contains(t, out.String(), "-> CONNECTED")

	out.Reset()
	sh.Exec("STATE")
	assert.Contains(t, out.String(), "State:    CONNECTED")

	out.Reset()
	sh.Exec("p")
	assert.Contains(t, out.String(), "Parent:   0a:00:00:00:00:00:00:01 (0x0400, router 1)")

	out.Reset()
	sh.Exec("netdata")
	assert.Contains(t, out.String(), "Partition: 4")
	assert.Contains(t, out.String(), "Data:      0802aabb")

	out.Reset()
	sh.Exec("children")
	assert.Contains(t, out.String(), "No children")

	out.Reset()
	sh.Exec("reset")
	assert.Contains(t, out.String(), "OK")
}

func TestShellInputErrors(t *testing.T) {
	sh, out := newShell(t)

	assert.False(t, sh.Exec("   "))
	assert.Empty(t, out.String())

	sh.Exec("scan sideways")
	assert.Contains(t, out.String(), "Error:")

	out.Reset()
	sh.Exec("run soon")
	assert.Contains(t, out.String(), "Invalid duration: soon")

	out.Reset()
	sh.Exec("dance")
	assert.Contains(t, out.String(), "Unknown command: dance")

	out.Reset()
	sh.Exec("routers")
	assert.Contains(t, out.String(), "0a:00:00:00:00:00:00:01 0x0400 partition 4")

	out.Reset()
	sh.Exec("help")
	assert.Contains(t, out.String(), "MLE Attach Commands:")

	assert.True(t, sh.Exec("quit"))
	assert.True(t, sh.Exec("q"))
}
