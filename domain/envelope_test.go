package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEnvelope_EncodesPayloadOnce(t *testing.T) {
	req := require.New(t)

	envelope, err := NewEnvelope(EventGroupJoined, GroupJoinedPayload{Message: "ok", GroupID: "g1"})
	req.NoError(err)
	req.Equal(EventGroupJoined, envelope.Event)
	req.JSONEq(`{"message":"ok","groupId":"g1"}`, string(envelope.Data))

	raw, err := json.Marshal(envelope)
	req.NoError(err)
	req.JSONEq(`{"event":"group_joined","data":{"message":"ok","groupId":"g1"}}`, string(raw))
}

func TestNewEnvelope_NilPayload(t *testing.T) {
	req := require.New(t)

	envelope, err := NewEnvelope(EventMessage, nil)
	req.NoError(err)
	req.Nil(envelope.Data)
}

func TestNewEnvelope_UnencodablePayload(t *testing.T) {
	_, err := NewEnvelope(EventMessage, make(chan int))
	require.Error(t, err)
}

func TestDeliveryTarget_String(t *testing.T) {
	req := require.New(t)
	req.Equal("user:u1", UserTarget{UserID: "u1"}.String())
	req.Equal("group:g1", GroupTarget{GroupID: "g1"}.String())
	req.Equal(RoomID("g1"), RoomFor("g1"))
	req.Equal(GroupID("g1"), RoomFor("g1").GroupID())
}

func TestGroup_HasMember(t *testing.T) {
	group := Group{ID: "g1", Members: []UserID{"a", "b"}}
	require.True(t, group.HasMember("a"))
	require.False(t, group.HasMember("c"))
}
