package log

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEvent(t *testing.T) {
	event := Event{
		Timestamp:    time.Now().UTC(),
		ConnectionID: "conn-1234",
		Direction:    DirectionOut,
		Layer:        LayerTransport,
		Category:     CategoryMessage,
		LocalRole:    RoleClient,
		RemoteAddr:   "127.0.0.1:12345",
		Datagram: &DatagramEvent{
			Size:     70,
			Data:     []byte("hello"),
			Reliable: true,
		},
	}

	data, err := EncodeEvent(event)
	require.NoError(t, err)

	decoded, err := DecodeEvent(data)
	require.NoError(t, err)

	assert.Equal(t, event.ConnectionID, decoded.ConnectionID)
	assert.Equal(t, event.Direction, decoded.Direction)
	assert.Equal(t, event.Layer, decoded.Layer)
	assert.Equal(t, event.Category, decoded.Category)
	assert.Equal(t, event.RemoteAddr, decoded.RemoteAddr)
	require.NotNil(t, decoded.Datagram)
	assert.Equal(t, event.Datagram.Size, decoded.Datagram.Size)
	assert.Equal(t, event.Datagram.Data, decoded.Datagram.Data)
	assert.True(t, decoded.Datagram.Reliable)
	assert.WithinDuration(t, event.Timestamp, decoded.Timestamp, time.Microsecond)
}

func TestDecodeEventInvalid(t *testing.T) {
	_, err := DecodeEvent([]byte{0xFF, 0x00, 0x01})
	assert.Error(t, err)
}

func TestNewDatagramEventTruncation(t *testing.T) {
	big := make([]byte, MaxLogDatagramSize*2)
	ev := NewDatagramEvent(big, len(big)+64, true)

	assert.True(t, ev.Truncated)
	assert.Len(t, ev.Data, MaxLogDatagramSize)
	assert.Equal(t, len(big)+64, ev.Size)

	small := NewDatagramEvent([]byte("hi"), 2, false)
	assert.False(t, small.Truncated)
	assert.Equal(t, []byte("hi"), small.Data)
}

func TestNewDatagramEventCopiesData(t *testing.T) {
	p := []byte("payload")
	ev := NewDatagramEvent(p, len(p), false)
	p[0] = 'X'
	assert.Equal(t, byte('p'), ev.Data[0])
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "IN", DirectionIn.String())
	assert.Equal(t, "OUT", DirectionOut.String())
	assert.Equal(t, "UNKNOWN", Direction(9).String())

	assert.Equal(t, "TRANSPORT", LayerTransport.String())
	assert.Equal(t, "RELIABILITY", LayerReliability.String())
	assert.Equal(t, "LIFECYCLE", LayerLifecycle.String())

	assert.Equal(t, "MESSAGE", CategoryMessage.String())
	assert.Equal(t, "CONTROL", CategoryControl.String())
	assert.Equal(t, "STATE", CategoryState.String())
	assert.Equal(t, "ERROR", CategoryError.String())

	assert.Equal(t, "CLIENT", RoleClient.String())
	assert.Equal(t, "SERVER", RoleServer.String())

	assert.Equal(t, "PROBE", ControlProbe.String())
	assert.Equal(t, "HANDSHAKE", ControlHandshake.String())
	assert.Equal(t, "ACK", ControlAck.String())

	assert.Equal(t, "CONNECTION", StateEntityConnection.String())
	assert.Equal(t, "PARTICIPANT", StateEntityParticipant.String())
	assert.Equal(t, "SERVER", StateEntityServer.String())
}
