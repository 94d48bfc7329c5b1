package scenario_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/mle-go/internal/scenario"
	"github.com/mash-protocol/mle-go/pkg/mle"
)

const basicScenario = `
name: best-parent
description: Two routers, the better link wins.
node:
  ext_address: "02:00:00:00:00:00:00:01"
  child_timeout: 120s
parents:
  - ext_address: "0a:00:00:00:00:00:00:01"
    short_address: 0x0400
    partition_id: 1
    weighting: 64
    link_quality_3: 1
    leader_cost: 1
    id_sequence: 5
    active_routers: 2
    dbm: -50
    link_margin: 40
    network_data: "0802aabb"
  - ext_address: "0a:00:00:00:00:00:00:02"
    short_address: 0x0800
    partition_id: 1
    weighting: 64
    link_quality_3: 3
    leader_cost: 1
    id_sequence: 5
    active_routers: 2
    dbm: -50
    link_margin: 40
    network_data: "0802aabb"
duration: 5s
expect:
  state: CONNECTED
  role: REED
  parent: "0a:00:00:00:00:00:00:02"
  short_address: 0x0801
  partition_id: 1
  restarts: 0
`

func TestParseScenario(t *testing.T) {
	sc, err := scenario.Parse([]byte(basicScenario))
	require.NoError(t, err)

	assert.Equal(t, "best-parent", sc.Name)
	assert.Equal(t, mle.ExtAddress{0x02, 0, 0, 0, 0, 0, 0, 0x01}, sc.Node.ExtAddress)
	assert.Equal(t, 120*time.Second, sc.Node.ChildTimeout)
	assert.Equal(t, 5*time.Second, sc.Duration)

	require.Len(t, sc.Parents, 2)
	p := sc.Parents[1]
	assert.Equal(t, mle.ExtAddress{0x0a, 0, 0, 0, 0, 0, 0, 0x02}, p.ExtAddress)
	assert.Equal(t, uint16(0x0800), p.ShortAddress)
	assert.Equal(t, uint8(3), p.LinkQuality3)
	assert.Equal(t, int8(-50), p.DBM)
	assert.Equal(t, "0802aabb", p.NetworkData)

	require.NotNil(t, sc.Expect)
	assert.Equal(t, "CONNECTED", sc.Expect.State)
	require.NotNil(t, sc.Expect.Parent)
	assert.Equal(t, p.ExtAddress, *sc.Expect.Parent)
	require.NotNil(t, sc.Expect.ShortAddress)
	assert.Equal(t, uint16(0x0801), *sc.Expect.ShortAddress)
	require.NotNil(t, sc.Expect.Restarts)
	assert.Zero(t, *sc.Expect.Restarts)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		line int
	}{
		{"invalid yaml", "name: [", 0},
		{"empty", "", 0},
		{"missing name", "node:\n  ext_address: \"02:00:00:00:00:00:00:01\"\n", 1},
		{"missing ext address", "name: x\nnode:\n  device: med\n", 3},
		{"unknown device", "name: x\nnode:\n  ext_address: \"0200000000000001\"\n  device: toaster\n", 3},
		{"unknown attach mode", "name: x\nnode:\n  ext_address: \"0200000000000001\"\n  attach_mode: sideways\n", 3},
		{"invalid address", "name: x\nnode:\n  ext_address: \"0200000000000001\"\n  addresses: [\"fd00::zz\"]\n", 3},
		{"invalid network key", "name: x\nnode:\n  ext_address: \"0200000000000001\"\n  network_key: \"abcd\"\n", 3},
		{"unknown state", "name: x\nnode:\n  ext_address: \"0200000000000001\"\nexpect:\n  state: FLYING\n", 5},
		{"parent without address", "name: x\nnode:\n  ext_address: \"0200000000000001\"\nparents:\n  - short_address: 0x0400\n", 5},
		{"parent is the node", "name: x\nnode:\n  ext_address: \"0200000000000001\"\nparents:\n  - ext_address: \"0200000000000001\"\n", 5},
		{"bad network data", "name: x\nnode:\n  ext_address: \"0200000000000001\"\nparents:\n  - ext_address: \"0a00000000000001\"\n    network_data: \"xyz\"\n", 5},
		{
			"duplicate parent",
			"name: x\nnode:\n  ext_address: \"0200000000000001\"\nparents:\n  - ext_address: \"0a00000000000001\"\n  - ext_address: \"0a00000000000001\"\n",
			6,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scenario.Parse([]byte(tt.yaml))
			var le *scenario.LoadError
			require.True(t, errors.As(err, &le), "got %v", err)
			assert.Equal(t, tt.line, le.Line)
		})
	}
}

func TestLoadErrorFormat(t *testing.T) {
	err := &scenario.LoadError{File: "a.yaml", Line: 12, Message: "boom", Cause: os.ErrNotExist}
	assert.Equal(t, "a.yaml:12: boom", err.Error())
	assert.ErrorIs(t, err, os.ErrNotExist)

	err.Line = 0
	assert.Equal(t, "a.yaml: boom", err.Error())
}

func TestLoadSetsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\n"), 0o644))

	_, err := scenario.Load(path)
	var le *scenario.LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, path, le.File)

	_, err = scenario.Load(filepath.Join(dir, "missing.yaml"))
	require.True(t, errors.As(err, &le))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(basicScenario), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.YML"), []byte(basicScenario), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not yaml"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0o755))

	scs, err := scenario.LoadDirectory(dir)
	require.NoError(t, err)
	assert.Len(t, scs, 2)

	_, err = scenario.LoadDirectory(filepath.Join(dir, "missing"))
	var le *scenario.LoadError
	assert.True(t, errors.As(err, &le))
}

func TestParseAttachMode(t *testing.T) {
	for _, name := range []string{"", "discover", "REATTACH", "reattach_retry", "any"} {
		_, err := scenario.ParseAttachMode(name)
		assert.NoError(t, err, name)
	}
	_, err := scenario.ParseAttachMode("later")
	assert.Error(t, err)
}
