package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"SwarmFormation/internal/model"
	"SwarmFormation/internal/parser"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_TapAndReadBack(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flight", "log.db")
	r, err := Open(path, 231)
	require.NoError(t, err)
	_, err = uuid.Parse(r.SessionID())
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := base
	r.SetClock(func() time.Time { tick = tick.Add(time.Millisecond); return tick })

	tap := r.Tap(231)
	rep, err := parser.Encode(parser.NewPosition(parser.KindPositionReport, 232, 231, model.Position{X: 1.25, Y: -0.5, Z: 0.5}))
	require.NoError(t, err)
	cmd, err := parser.Encode(parser.NewCommand(231, model.BroadcastID, model.CmdSquare))
	require.NoError(t, err)
	tap(rep)
	tap(cmd)
	tap([]byte{1, 2, 3}) // ignored

	live, err := r.Current()
	require.NoError(t, err)
	require.Len(t, live, 2)
	require.NoError(t, r.Close())

	db, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer db.Close()

	sessions, err := Sessions(db)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, r.SessionID(), sessions[0].ID)
	assert.Equal(t, model.NodeID(231), sessions[0].Node)
	assert.Equal(t, 2, sessions[0].Entries)

	entries, err := Entries(db, r.SessionID())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "position-report", entries[0].Kind)
	assert.Equal(t, model.NodeID(232), entries[0].Source)
	assert.Equal(t, float32(1.25), entries[0].Position.X)
	assert.Equal(t, "square", entries[1].Command)
	assert.Equal(t, model.BroadcastID, entries[1].Target)
	assert.True(t, entries[0].Time.Before(entries[1].Time))

	_, err = Entries(db, "missing")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestRecorder_SessionsAccumulate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "log.db")
	for range 2 {
		r, err := Open(path, 232)
		require.NoError(t, err)
		r.Record(Entry{Kind: "note"})
		require.NoError(t, r.Close())
		// closed recorders ignore late frames from the radio
		r.Record(Entry{Kind: "late"})
	}

	db, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer db.Close()
	sessions, err := Sessions(db)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.NotEqual(t, sessions[0].ID, sessions[1].ID)
	assert.Equal(t, 1, sessions[1].Entries)
}
