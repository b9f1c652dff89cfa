package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newTestConnection(userID domain.UserID) *Connection {
	return NewConnection(domain.Identity{UserID: userID}, "127.0.0.1:1234", 8)
}

func connectionIDs(conns []*Connection) []domain.ConnectionID {
	return lo.Map(conns, func(c *Connection, _ int) domain.ConnectionID { return c.ID() })
}

func TestRegistry_Admit_One_User_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)
	conn := newTestConnection("alice")

	// Given no user is connected
	req.Zero(registry.Count())
	req.Zero(registry.Users())

	// When a connection is admitted
	req.NoError(registry.Admit("alice", conn))

	// Then the user holds exactly that connection
	req.Equal(1, registry.Count())
	req.Equal(1, registry.Users())
	req.Equal([]domain.ConnectionID{conn.ID()}, connectionIDs(registry.ConnectionsOf("alice")))

	found, ok := registry.Lookup(conn.ID())
	req.True(ok)
	req.Same(conn, found)
}

func TestRegistry_Admit_Multiple_Devices(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)
	c1 := newTestConnection("alice")
	c2 := newTestConnection("alice")

	// When the same user opens two connections
	req.NoError(registry.Admit("alice", c1))
	req.NoError(registry.Admit("alice", c2))

	// Then both are live and independent
	req.Equal(2, registry.Count())
	req.Equal(1, registry.Users())
	req.ElementsMatch([]domain.ConnectionID{c1.ID(), c2.ID()}, connectionIDs(registry.ConnectionsOf("alice")))

	// When one of them is retracted
	registry.Retract("alice", c1.ID())

	// Then the other one survives
	req.Equal([]domain.ConnectionID{c2.ID()}, connectionIDs(registry.ConnectionsOf("alice")))
}

func TestRegistry_Admit_Twice_Fails_Fast(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)
	conn := newTestConnection("alice")

	req.NoError(registry.Admit("alice", conn))

	// When the same connection id is admitted again
	err := registry.Admit("alice", conn)

	// Then it is refused and nothing is overwritten
	req.ErrorIs(err, errors.ErrDuplicateConnection)
	req.Len(registry.ConnectionsOf("alice"), 1)
}

func TestRegistry_Admit_Under_Another_User_Fails(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)

	err := registry.Admit("bob", newTestConnection("alice"))

	req.ErrorIs(err, errors.ErrIdentityMismatch)
	req.Zero(registry.Count())
}

func TestRegistry_Retract_Removes_Empty_Entry(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)
	conn := newTestConnection("alice")
	req.NoError(registry.Admit("alice", conn))

	// When the last connection is retracted
	registry.Retract("alice", conn.ID())

	// Then the user has no entry left
	req.Nil(registry.ConnectionsOf("alice"))
	req.Zero(registry.Users())
	req.Zero(registry.Count())
	_, ok := registry.Lookup(conn.ID())
	req.False(ok)
}

func TestRegistry_Retract_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)
	conn := newTestConnection("alice")

	// Retracting a never admitted id is a no-op
	req.NotPanics(func() { registry.Retract("alice", conn.ID()) })

	req.NoError(registry.Admit("alice", conn))
	registry.Retract("alice", conn.ID())

	// Retracting twice is a no-op too
	req.NotPanics(func() { registry.Retract("alice", conn.ID()) })
	req.Zero(registry.Users())
}

func TestRegistry_Retract_With_Wrong_User_Keeps_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)
	conn := newTestConnection("alice")
	req.NoError(registry.Admit("alice", conn))

	registry.Retract("bob", conn.ID())

	req.Len(registry.ConnectionsOf("alice"), 1)
}

func TestRegistry_Expired(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(4)
	now := time.Now()

	stale := NewConnection(domain.Identity{UserID: "alice", ExpiresAt: now.Add(-time.Minute)}, "", 1)
	fresh := NewConnection(domain.Identity{UserID: "alice", ExpiresAt: now.Add(time.Hour)}, "", 1)
	forever := NewConnection(domain.Identity{UserID: "bob"}, "", 1)
	req.NoError(registry.Admit("alice", stale))
	req.NoError(registry.Admit("alice", fresh))
	req.NoError(registry.Admit("bob", forever))

	expired := registry.Expired(now)

	req.Equal([]domain.ConnectionID{stale.ID()}, connectionIDs(expired))
	req.Len(registry.All(), 3)
}

// Random admit/retract sequences on many goroutines leave exactly the admitted-and-not-retracted set.
func TestRegistry_Concurrent_Admit_Retract(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(8)

	const users = 16
	const perUser = 20

	kept := make(map[domain.UserID][]domain.ConnectionID)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for u := 0; u < users; u++ {
		userID := domain.UserID(fmt.Sprintf("user-%d", u))
		for i := 0; i < perUser; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				conn := newTestConnection(userID)
				if err := registry.Admit(userID, conn); err != nil {
					t.Error(err)
					return
				}
				_ = registry.ConnectionsOf(userID)
				if i%2 == 0 {
					registry.Retract(userID, conn.ID())
					return
				}
				mu.Lock()
				kept[userID] = append(kept[userID], conn.ID())
				mu.Unlock()
			}(i)
		}
	}
	wg.Wait()

	req.Equal(users, registry.Users())
	req.Equal(users*perUser/2, registry.Count())
	for userID, ids := range kept {
		req.ElementsMatch(ids, connectionIDs(registry.ConnectionsOf(userID)))
	}
}
