package core

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"SwarmFormation/internal/model"
	"SwarmFormation/internal/operator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swarm.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
swarm:
  leader: 1
  followers: [2, 3]
node:
  id: 2
  role: follower
  tick_ms: 20
radio:
  kind: serial
  device: /dev/ttyUSB0
formations:
  square:
    2: {dx: 0.5, dy: 0}
    3: {dx: 0, dy: 0.5}
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, model.NodeID(1), cfg.Swarm.Leader)
	assert.Equal(t, []model.NodeID{2, 3}, cfg.Swarm.Followers)
	assert.Equal(t, model.RoleFollower, cfg.Node.Role)
	assert.Equal(t, 20*time.Millisecond, cfg.Tick())
	assert.Equal(t, "/dev/ttyUSB0", cfg.Radio.Device)
	assert.Equal(t, 115200, cfg.Radio.Baud, "unset keys keep their defaults")
	assert.Equal(t, 8, cfg.Radio.MaxPacketsPerTick)
	require.Len(t, cfg.Formations, 1)
	assert.Equal(t, model.Offset{DY: 0.5}, cfg.Formations[model.ShapeSquare][3])
}

func TestLoadConfig_DefaultFormations(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeConfig(t, "node:\n  id: 233\n  role: follower\n"))
	require.NoError(t, err)
	assert.Equal(t, model.DefaultFormations(), cfg.Formations)
	assert.Equal(t, 10*time.Millisecond, cfg.Tick())
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "swarm: [not, a, map"))
	assert.ErrorContains(t, err, "parse")

	_, err = LoadConfig(writeConfig(t, "node:\n  id: 232\n  role: leader\n"))
	assert.ErrorContains(t, err, "not the swarm leader")

	_, err = LoadConfig(writeConfig(t, "formations:\n  square:\n    99: {dx: 1}\n"))
	assert.ErrorContains(t, err, "not a follower")

	_, err = LoadConfig(writeConfig(t, "formations:\n  square:\n    232: {dx: 0.2}\n"))
	assert.ErrorContains(t, err, "no offset for follower 230")
}

func TestLoadConfig_MinSeparation(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(writeConfig(t, `
swarm:
  leader: 1
  followers: [2, 3]
  min_separation: 0.25
node:
  id: 1
  role: leader
formations:
  square:
    2: {dx: 0.5, dy: 0}
    3: {dx: 0.5, dy: 0.1}
`))
	assert.ErrorContains(t, err, "formations.square: stations 0.100 m apart, below swarm.min_separation 0.250")

	cfg := model.DefaultConfig()
	cfg.Formations[model.ShapeRhombus][233] = model.Offset{DX: 0.15, DY: -0.15}
	_, err = NewSimulation(cfg, 1)
	assert.ErrorContains(t, err, "formations.rhombus")

	cfg = model.DefaultConfig()
	cfg.Swarm.MinSeparation = 0
	cfg.Formations[model.ShapeRhombus][233] = model.Offset{DX: 0.15, DY: -0.15}
	_, err = NewSimulation(cfg, 1)
	assert.NoError(t, err, "a zero min_separation disables the check")
}

func TestNewRole(t *testing.T) {
	t.Parallel()

	r, err := NewRole(testConfig(231, model.RoleLeader), &fakeRadio{id: 231}, &fixedEstimator{}, operator.NewQueue(1))
	require.NoError(t, err)
	assert.IsType(t, &Leader{}, r)

	r, err = NewRole(testConfig(233, model.RoleFollower), &fakeRadio{id: 233}, &fixedEstimator{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Follower{}, r)
	assert.Equal(t, model.NodeID(233), r.ID())

	_, err = NewRole(testConfig(233, "observer"), &fakeRadio{id: 233}, &fixedEstimator{}, nil)
	assert.Error(t, err)
}

func TestNewSystem_RejectsUnknownAdapters(t *testing.T) {
	t.Parallel()

	cfg := testConfig(231, model.RoleLeader)
	_, err := NewSystem(cfg)
	assert.ErrorContains(t, err, "simulation")

	cfg.Radio.Kind = "carrier-pigeon"
	_, err = NewSystem(cfg)
	assert.ErrorContains(t, err, "unknown radio kind")
}

type countingRole struct {
	ticks int
}

func (r *countingRole) ID() model.NodeID { return 231 }

func (r *countingRole) State() State {
	if r.ticks >= 2 {
		return StateStandby
	}
	return StateIdle
}

func (r *countingRole) Tick(context.Context, time.Time) model.Setpoint {
	r.ticks++
	return model.HoverInPlace(float64(r.ticks))
}

func (r *countingRole) Counters() Counters { return Counters{} }

type recordingCommander struct {
	mu  sync.Mutex
	got []model.Setpoint
}

func (c *recordingCommander) SetSetpoint(sp model.Setpoint) {
	c.mu.Lock()
	c.got = append(c.got, sp)
	c.mu.Unlock()
}

func (c *recordingCommander) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func TestRunner_TicksUntilStopped(t *testing.T) {
	t.Parallel()

	role := &countingRole{}
	cmd := &recordingCommander{}
	r := NewRunner(role, cmd, time.Millisecond)
	r.Start(context.Background())
	require.Eventually(t, func() bool { return cmd.len() >= 3 }, 2*time.Second, time.Millisecond)
	r.Stop()

	n := cmd.len()
	assert.Equal(t, n, r.Ticks())
	assert.Equal(t, n, role.ticks)
	assert.Equal(t, 1.0, cmd.got[0].Z)
	assert.Equal(t, float64(n), cmd.got[n-1].Z)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, n, cmd.len(), "no ticks after Stop")
}

func TestRunner_StopsWithContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(&countingRole{}, &recordingCommander{}, time.Millisecond)
	r.Start(ctx)
	cancel()
	r.Stop()
}
