package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnection_Send_Then_Close(t *testing.T) {
	req := require.New(t)
	conn := NewConnection(domain.Identity{UserID: "alice"}, "127.0.0.1:1", 2)

	req.NotEmpty(conn.ID())
	req.Equal(domain.UserID("alice"), conn.UserID())
	req.False(conn.IsClosed())

	// Given one queued envelope
	req.NoError(conn.Send(domain.Envelope{Event: "message"}))

	// When the connection closes
	req.True(conn.Close())

	// Then the state is terminal and the queue can still be drained
	req.True(conn.IsClosed())
	req.False(conn.Close())
	req.ErrorIs(conn.Send(domain.Envelope{Event: "message"}), errors.ErrConnectionClosed)

	envelope, ok := <-conn.Outbound()
	req.True(ok)
	req.Equal("message", envelope.Event)
	_, ok = <-conn.Outbound()
	req.False(ok)

	select {
	case <-conn.Done():
	default:
		req.Fail("done should be closed")
	}
}

func TestConnection_Send_Never_Blocks(t *testing.T) {
	req := require.New(t)
	conn := NewConnection(domain.Identity{UserID: "alice"}, "", 1)

	req.NoError(conn.Send(domain.Envelope{Event: "first"}))

	// When the buffer is full
	err := conn.Send(domain.Envelope{Event: "second"})

	// Then the envelope is refused instead of blocking the producer
	req.ErrorIs(err, errors.ErrSlowConsumer)
}

func TestConnection_Expired(t *testing.T) {
	req := require.New(t)
	now := time.Now()

	req.False(NewConnection(domain.Identity{UserID: "a"}, "", 1).Expired(now))
	req.True(NewConnection(domain.Identity{UserID: "a", ExpiresAt: now}, "", 1).Expired(now))
	req.False(NewConnection(domain.Identity{UserID: "a", ExpiresAt: now.Add(time.Second)}, "", 1).Expired(now))
}
