package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"sync"
	"time"

	"github.com/samber/lo"
)

type Set map[domain.ConnectionID]struct{}

type userShard struct {
	mu    sync.RWMutex
	users map[domain.UserID]Set
}

type arenaShard struct {
	mu          sync.RWMutex
	connections map[domain.ConnectionID]*Connection
}

// Registry is the authoritative record of which connections each user currently holds.
// Connections live in an arena indexed by id; users only own sets of ids.
// Both maps are sharded by key hash so unrelated users never contend.
// Lock order is always user shard, then arena shard.
type Registry struct {
	users []*userShard
	arena []*arenaShard
}

func NewRegistry(shards int) *Registry {
	shards = normalizeShards(shards)
	r := &Registry{
		users: make([]*userShard, shards),
		arena: make([]*arenaShard, shards),
	}
	for i := 0; i < shards; i++ {
		r.users[i] = &userShard{users: make(map[domain.UserID]Set)}
		r.arena[i] = &arenaShard{connections: make(map[domain.ConnectionID]*Connection)}
	}
	return r
}

func (r *Registry) userShardFor(userID domain.UserID) *userShard {
	return r.users[shardIndex(string(userID), len(r.users))]
}

func (r *Registry) arenaShardFor(connID domain.ConnectionID) *arenaShard {
	return r.arena[shardIndex(string(connID), len(r.arena))]
}

// Admit records an authenticated connection under its owner.
// A connection id can only be admitted once and must belong to the given user.
func (r *Registry) Admit(userID domain.UserID, conn *Connection) error {
	if conn.UserID() != userID {
		return errors.ErrIdentityMismatch
	}

	us := r.userShardFor(userID)
	as := r.arenaShardFor(conn.ID())

	us.mu.Lock()
	defer us.mu.Unlock()
	as.mu.Lock()
	defer as.mu.Unlock()

	if _, exists := as.connections[conn.ID()]; exists {
		return errors.ErrDuplicateConnection
	}
	as.connections[conn.ID()] = conn

	set, ok := us.users[userID]
	if !ok {
		set = make(Set)
		us.users[userID] = set
	}
	set[conn.ID()] = struct{}{}
	return nil
}

// Retract removes the connection from its owner. Retracting an unknown id is a no-op,
// and a user left without connections is removed entirely.
func (r *Registry) Retract(userID domain.UserID, connID domain.ConnectionID) {
	us := r.userShardFor(userID)
	as := r.arenaShardFor(connID)

	us.mu.Lock()
	defer us.mu.Unlock()

	if set, ok := us.users[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(us.users, userID)
		}
	}

	as.mu.Lock()
	defer as.mu.Unlock()
	if conn, ok := as.connections[connID]; ok && conn.UserID() == userID {
		delete(as.connections, connID)
	}
}

// ConnectionsOf returns a snapshot of the user's live connections.
// The user shard stays read-locked while ids are resolved, so a concurrent Retract
// is either fully visible or not at all.
func (r *Registry) ConnectionsOf(userID domain.UserID) []*Connection {
	us := r.userShardFor(userID)

	us.mu.RLock()
	defer us.mu.RUnlock()

	set, ok := us.users[userID]
	if !ok {
		return nil
	}
	res := make([]*Connection, 0, len(set))
	for connID := range set {
		if conn, found := r.Lookup(connID); found {
			res = append(res, conn)
		}
	}
	return res
}

func (r *Registry) Lookup(connID domain.ConnectionID) (*Connection, bool) {
	as := r.arenaShardFor(connID)
	as.mu.RLock()
	defer as.mu.RUnlock()
	conn, ok := as.connections[connID]
	return conn, ok
}

// Count is the number of admitted connections.
func (r *Registry) Count() int {
	total := 0
	for _, as := range r.arena {
		as.mu.RLock()
		total += len(as.connections)
		as.mu.RUnlock()
	}
	return total
}

// Users is the number of users holding at least one connection.
func (r *Registry) Users() int {
	total := 0
	for _, us := range r.users {
		us.mu.RLock()
		total += len(us.users)
		us.mu.RUnlock()
	}
	return total
}

func (r *Registry) All() []*Connection {
	var res []*Connection
	for _, as := range r.arena {
		as.mu.RLock()
		for _, conn := range as.connections {
			res = append(res, conn)
		}
		as.mu.RUnlock()
	}
	return res
}

// Expired lists connections whose session token is past its expiry.
func (r *Registry) Expired(now time.Time) []*Connection {
	return lo.Filter(r.All(), func(conn *Connection, _ int) bool {
		return conn.Expired(now)
	})
}
