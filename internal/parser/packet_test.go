package parser

import (
	"testing"

	"SwarmFormation/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTopo = model.NewTopology(231, []model.NodeID{232, 230, 233})

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		pkt  Packet
	}{
		{"command", NewCommand(231, 232, model.CmdSquare)},
		{"command broadcast", NewCommand(231, model.BroadcastID, model.CmdLand)},
		{"legacy command", Packet{Source: 231, Target: 233, Kind: KindCommand, Command: model.CmdStart, Legacy: true}},
		{"report", NewPosition(KindPositionReport, 232, 231, model.Position{X: 1.25, Y: -0.5, Z: 0.5})},
		{"broadcast", NewPosition(KindPositionBroadcast, 231, model.BroadcastID, model.Position{X: -3, Y: 7.75, Z: 0.125})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			frame, err := Encode(tc.pkt)
			require.NoError(t, err)
			got, err := Decode(frame, &testTopo)
			require.NoError(t, err)
			assert.Equal(t, tc.pkt, got)
		})
	}
}

func TestEncode_WireLayout(t *testing.T) {
	t.Parallel()

	frame, err := Encode(NewPosition(KindPositionBroadcast, 231, model.BroadcastID, model.Position{X: 1, Y: 2, Z: 0.5}))
	require.NoError(t, err)
	assert.Equal(t, []byte{
		231, 0xFF, 3, 12,
		0x00, 0x00, 0x80, 0x3F, // 1.0
		0x00, 0x00, 0x00, 0x40, // 2.0
		0x00, 0x00, 0x00, 0x3F, // 0.5
	}, frame)

	frame, err = Encode(NewCommand(231, 232, model.CmdLand))
	require.NoError(t, err)
	assert.Equal(t, []byte{231, 232, 1, 4, 3, 0, 0, 0}, frame)
}

func TestEncode_DropsYaw(t *testing.T) {
	t.Parallel()

	pkt := NewPosition(KindPositionReport, 232, 231, model.Position{X: 1, Yaw: 1.5})
	assert.Zero(t, pkt.Position.Yaw)
}

func TestEncode_LegacyOutOfRange(t *testing.T) {
	t.Parallel()

	_, err := Encode(Packet{Source: 231, Target: 232, Kind: KindCommand, Command: 300, Legacy: true})
	assert.Error(t, err)
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		frame []byte
		want  error
	}{
		{"short", []byte{231, 232}, ErrShortFrame},
		{"five byte body", []byte{231, 232, 1, 5, 1, 2, 3, 4, 5}, ErrLengthMismatch},
		{"five byte position", []byte{231, 232, 3, 5, 1, 2, 3, 4, 5}, ErrLengthMismatch},
		{"header disagrees with body", []byte{231, 232, 1, 4, 1, 0}, ErrLengthMismatch},
		{"position with command size", []byte{231, 232, 3, 4, 1, 0, 0, 0}, ErrLengthMismatch},
		{"unknown kind", []byte{231, 232, 9, 1, 0}, ErrUnknownKind},
		{"unknown source", []byte{17, 232, 1, 4, 1, 0, 0, 0}, ErrUnknownTargetOrSource},
		{"unknown target", []byte{231, 17, 1, 4, 1, 0, 0, 0}, ErrUnknownTargetOrSource},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tc.frame, &testTopo)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			var de *DecodeError
			assert.ErrorAs(t, err, &de)
		})
	}
}

func TestDecode_NoTopologySkipsMembership(t *testing.T) {
	t.Parallel()

	p, err := Decode([]byte{17, 18, 1, 1, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.CmdSendData, p.Command)
	assert.True(t, p.Legacy)
}

func TestTarget(t *testing.T) {
	t.Parallel()

	id, ok := Target([]byte{231, 232, 1, 1, 2})
	assert.True(t, ok)
	assert.Equal(t, model.NodeID(232), id)

	_, ok = Target([]byte{1})
	assert.False(t, ok)
}
