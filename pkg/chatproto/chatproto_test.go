package chatproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	frame, err := Encode(TypeCheckSellerStatus, "req-1", StatusQueryData{SellerID: "s1"})
	require.NoError(t, err)

	msg, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, TypeCheckSellerStatus, msg.Type)
	assert.Equal(t, "req-1", msg.ID)
	assert.NotEmpty(t, msg.Timestamp)

	var q StatusQueryData
	require.NoError(t, msg.DecodeData(&q))
	assert.Equal(t, "s1", q.Target())

	q.UserID = "u2"
	assert.Equal(t, "u2", q.Target())
}

func TestDecodeDataWithoutPayload(t *testing.T) {
	frame, err := Encode(TypePing, "", nil)
	require.NoError(t, err)
	msg, err := Decode(frame)
	require.NoError(t, err)

	var room RoomData
	require.NoError(t, msg.DecodeData(&room))
	assert.Empty(t, room.Room)
}
