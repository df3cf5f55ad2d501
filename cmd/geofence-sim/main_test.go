package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/geofence-simulator/internal/journal"
	sim "github.com/signalsfoundry/geofence-simulator/internal/sim/state"
	"github.com/signalsfoundry/geofence-simulator/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeLines[T any](t *testing.T, out string) []T {
	t.Helper()
	var items []T
	sc := bufio.NewScanner(bytes.NewBufferString(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var item T
		require.NoError(t, json.Unmarshal(sc.Bytes(), &item), "line %q", sc.Text())
		items = append(items, item)
	}
	require.NoError(t, sc.Err())
	return items
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "geofence-sim", cmd.Use)

	for _, path := range [][]string{{"serve"}, {"simulate"}, {"journal", "tail"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestServeFlags(t *testing.T) {
	cmd := NewRootCommand()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	for name, def := range map[string]string{
		"addr":         ":3000",
		"polygon-addr": ":3001",
		"metrics-addr": ":9090",
		"period":       "5s",
		"autostart":    "false",
		"strict":       "false",
		"proximity-km": "10",
	} {
		flag := serve.Flags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, def, flag.DefValue, name)
	}
}

func TestServeResolveLayersFlags(t *testing.T) {
	root := &RootOptions{}
	root.cfg.HTTPAddr = ":3000"
	root.cfg.PolygonAddr = ":3001"
	root.cfg.MetricsAddr = ":9090"
	root.cfg.TickPeriod = 5 * time.Second
	root.cfg.ProximityKm = 10

	cmd, opts := newServeCommand(root)
	require.NoError(t, cmd.ParseFlags([]string{"--polygon-addr", "-", "--period", "250ms", "--strict", "--seed", "9"}))

	cfg, err := opts.resolve(cmd)
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.HTTPAddr)
	assert.Empty(t, cfg.PolygonAddr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.TickPeriod)
	assert.True(t, cfg.StrictCoordinates)
	assert.Equal(t, int64(9), cfg.Seed)
	assert.Equal(t, 10.0, cfg.ProximityKm)

	cmd, opts = newServeCommand(root)
	require.NoError(t, cmd.ParseFlags([]string{"--proximity-km", "-2"}))
	_, err = opts.resolve(cmd)
	assert.Error(t, err)
}

func TestSimulatePrintsOneLinePerTick(t *testing.T) {
	out, err := execute(t, "simulate", "--ticks", "3", "--seed", "1")
	require.NoError(t, err)

	payloads := decodeLines[sim.TickPayload](t, out)
	require.Len(t, payloads, 3)
	for i, p := range payloads {
		assert.Equal(t, uint64(i+1), p.Seq)
		assert.Len(t, p.Devices, 5)
		assert.NotNil(t, p.Notifications)
	}
}

func TestSimulateWithArea(t *testing.T) {
	out, err := execute(t, "simulate", "--ticks", "1", "--seed", "7", "--area", "Zone A,35.04,33.52")
	require.NoError(t, err)

	payloads := decodeLines[sim.TickPayload](t, out)
	require.Len(t, payloads, 1)
	require.Len(t, payloads[0].Polygons, 1)
	assert.Equal(t, "Zone A", payloads[0].Polygons[0].Name)

	var entered []model.Notification
	for _, n := range payloads[0].Notifications {
		if n.Kind == model.NotificationEntered {
			entered = append(entered, n)
		}
	}
	require.Len(t, entered, 1)
	assert.Equal(t, "Device 5", entered[0].Device)
	assert.Equal(t, "Zone A", entered[0].Area)
}

func TestSimulateRejectsBadInput(t *testing.T) {
	cases := [][]string{
		{"simulate", "--profile", "sideways"},
		{"simulate", "--ticks", "-1"},
		{"simulate", "--area", "nowhere"},
		{"simulate", "--period", "0s"},
		{"simulate", "--strict", "--area", "Zone A,north,1"},
	}
	for _, args := range cases {
		_, err := execute(t, args...)
		var exitErr *ExitError
		require.True(t, errors.As(err, &exitErr), "args %v: err %v", args, err)
		assert.Equal(t, ExitConfigFailure, exitErr.Code, "args %v", args)
	}
}

func TestSimulateJournalsAndTailReadsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.db")

	_, err := execute(t, "simulate", "--ticks", "4", "--seed", "3", "--journal", path)
	require.NoError(t, err)

	out, err := execute(t, "journal", "tail", "--journal", path, "--limit", "2")
	require.NoError(t, err)
	ticks := decodeLines[journal.TickRecord](t, out)
	require.Len(t, ticks, 2)
	assert.Equal(t, uint64(3), ticks[0].Seq)
	assert.Equal(t, uint64(4), ticks[1].Seq)
	assert.Len(t, ticks[1].Devices, 5)
}

func TestJournalTailCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.db")
	_, err := execute(t, "simulate", "--ticks", "0", "--journal", path, "--area", "Zone B,1,1")
	require.NoError(t, err)

	out, err := execute(t, "journal", "tail", "--journal", path, "--commands")
	require.NoError(t, err)
	cmds := decodeLines[journal.CommandRecord](t, out)
	require.Len(t, cmds, 1)
	assert.Equal(t, "polygon", cmds[0].Command)
}

func TestJournalTailRequiresPath(t *testing.T) {
	t.Setenv("SIM_JOURNAL_PATH", "")
	_, err := execute(t, "journal", "tail")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, ExitConfigFailure, exitErr.Code)
}

func TestParseArea(t *testing.T) {
	name, lat, long, err := parseArea("Harbour, north side,35.1, 33.2")
	require.NoError(t, err)
	assert.Equal(t, "Harbour, north side", name)
	assert.Equal(t, "35.1", lat)
	assert.Equal(t, "33.2", long)

	_, _, _, err = parseArea("only,one")
	assert.Error(t, err)
}

func TestListenerAddr(t *testing.T) {
	assert.Equal(t, "", listenerAddr("-"))
	assert.Equal(t, ":3001", listenerAddr(":3001"))
}
