package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type connectionState int

const (
	stateOpen connectionState = iota
	stateClosed
)

// Connection is one live streaming session owned by a single user.
// Its state only moves from open to closed. The outbound channel is closed
// exactly once, together with Done, when the connection closes.
type Connection struct {
	id         domain.ConnectionID
	userID     domain.UserID
	remoteAddr string
	openedAt   time.Time
	expiresAt  time.Time

	mu       sync.RWMutex
	state    connectionState
	outbound chan domain.Envelope
	done     chan struct{}
}

func NewConnection(identity domain.Identity, remoteAddr string, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Connection{
		id:         domain.ConnectionID(uuid.NewString()),
		userID:     identity.UserID,
		remoteAddr: remoteAddr,
		openedAt:   time.Now().UTC(),
		expiresAt:  identity.ExpiresAt,
		state:      stateOpen,
		outbound:   make(chan domain.Envelope, bufferSize),
		done:       make(chan struct{}),
	}
}

func (c *Connection) ID() domain.ConnectionID { return c.id }
func (c *Connection) UserID() domain.UserID   { return c.userID }
func (c *Connection) RemoteAddr() string      { return c.remoteAddr }
func (c *Connection) OpenedAt() time.Time     { return c.openedAt }

// ExpiresAt is the token expiry; the zero time means the session never expires.
func (c *Connection) ExpiresAt() time.Time { return c.expiresAt }

func (c *Connection) Expired(now time.Time) bool {
	return !c.expiresAt.IsZero() && !now.Before(c.expiresAt)
}

// Send enqueues an envelope without blocking.
func (c *Connection) Send(envelope domain.Envelope) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state == stateClosed {
		return errors.ErrConnectionClosed
	}
	select {
	case c.outbound <- envelope:
		return nil
	default:
		return errors.ErrSlowConsumer
	}
}

// Close moves the connection to closed. It reports whether this call did the transition.
func (c *Connection) Close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == stateClosed {
		return false
	}
	c.state = stateClosed
	close(c.outbound)
	close(c.done)
	return true
}

func (c *Connection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == stateClosed
}

// Outbound is drained by the transport writer until it is closed.
func (c *Connection) Outbound() <-chan domain.Envelope { return c.outbound }

func (c *Connection) Done() <-chan struct{} { return c.done }
