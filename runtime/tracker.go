package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

type roomSet map[domain.RoomID]struct{}

type membershipShard struct {
	mu          sync.Mutex
	connections map[domain.ConnectionID]roomSet
}

type roomShard struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[domain.ConnectionID]*Connection
}

// Tracker owns the room set of every connection and the reverse room index used for
// group broadcast. Membership is checked against the directory when a room is joined
// and never again afterwards: a user removed from a group keeps receiving that room
// until the connection closes.
// Lock order is always membership shard, then room shard. Directory lookups happen
// with no lock held.
type Tracker struct {
	log              *slog.Logger
	directory        contract.IGroupDirectory
	directoryTimeout time.Duration
	memberships      []*membershipShard
	rooms            []*roomShard
}

func NewTracker(log *slog.Logger, directory contract.IGroupDirectory, directoryTimeout time.Duration, shards int) *Tracker {
	shards = normalizeShards(shards)
	t := &Tracker{
		log:              log.With("component", "tracker"),
		directory:        directory,
		directoryTimeout: directoryTimeout,
		memberships:      make([]*membershipShard, shards),
		rooms:            make([]*roomShard, shards),
	}
	for i := 0; i < shards; i++ {
		t.memberships[i] = &membershipShard{connections: make(map[domain.ConnectionID]roomSet)}
		t.rooms[i] = &roomShard{rooms: make(map[domain.RoomID]map[domain.ConnectionID]*Connection)}
	}
	return t
}

func (t *Tracker) membershipShardFor(connID domain.ConnectionID) *membershipShard {
	return t.memberships[shardIndex(string(connID), len(t.memberships))]
}

func (t *Tracker) roomShardFor(roomID domain.RoomID) *roomShard {
	return t.rooms[shardIndex(string(roomID), len(t.rooms))]
}

func (t *Tracker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.directoryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.directoryTimeout)
}

// AutoJoinOnConnect subscribes the connection to the room of every group its user
// belongs to. Directory failures are logged and leave the connection usable for
// direct messages. It returns the rooms actually joined.
func (t *Tracker) AutoJoinOnConnect(ctx context.Context, conn *Connection) []domain.RoomID {
	log := t.log.With("conn_id", conn.ID(), "user_id", conn.UserID())

	lookupCtx, cancel := t.withTimeout(ctx)
	groups, err := t.directory.GroupsContaining(lookupCtx, conn.UserID())
	cancel()
	if err != nil {
		log.Warn("Auto-join skipped, group directory unavailable", "error", err)
		return nil
	}

	joined := make([]domain.RoomID, 0, len(groups))
	for _, groupID := range lo.Uniq(groups) {
		roomID := domain.RoomFor(groupID)
		if err := t.join(conn, roomID); err != nil {
			log.Debug("Auto-join interrupted", "room", roomID, "error", err)
			break
		}
		joined = append(joined, roomID)
	}
	log.Debug("Auto-joined rooms", "count", len(joined))
	return joined
}

// JoinRoom revalidates group existence and current membership against the directory
// before subscribing. Joining a room the connection already holds is a no-op.
func (t *Tracker) JoinRoom(ctx context.Context, conn *Connection, groupID domain.GroupID) error {
	if groupID == "" {
		return errors.ErrGroupIDMissing
	}

	lookupCtx, cancel := t.withTimeout(ctx)
	members, err := t.directory.MembersOf(lookupCtx, groupID)
	cancel()
	if err != nil {
		if errors.Is(err, errors.ErrGroupNotFound) {
			return err
		}
		return fmt.Errorf("checking membership of group %s: %w", groupID, err)
	}
	if !lo.Contains(members, conn.UserID()) {
		return errors.ErrNotAMember
	}
	return t.join(conn, domain.RoomFor(groupID))
}

// join refuses closed connections while holding the membership shard. Connections are
// closed before Discard runs, so a join racing a disconnect either lands before the
// discard and is removed by it, or observes the closed state.
func (t *Tracker) join(conn *Connection, roomID domain.RoomID) error {
	ms := t.membershipShardFor(conn.ID())
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if conn.IsClosed() {
		return errors.ErrConnectionClosed
	}

	rooms, ok := ms.connections[conn.ID()]
	if !ok {
		rooms = make(roomSet)
		ms.connections[conn.ID()] = rooms
	}
	if _, already := rooms[roomID]; already {
		return nil
	}
	rooms[roomID] = struct{}{}

	rs := t.roomShardFor(roomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	members, ok := rs.rooms[roomID]
	if !ok {
		members = make(map[domain.ConnectionID]*Connection)
		rs.rooms[roomID] = members
	}
	members[conn.ID()] = conn
	return nil
}

// Discard drops the whole room set of a connection and its entries in the room index.
func (t *Tracker) Discard(connID domain.ConnectionID) {
	ms := t.membershipShardFor(connID)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	rooms, ok := ms.connections[connID]
	if !ok {
		return
	}
	delete(ms.connections, connID)

	for roomID := range rooms {
		rs := t.roomShardFor(roomID)
		rs.mu.Lock()
		if members, found := rs.rooms[roomID]; found {
			delete(members, connID)
			if len(members) == 0 {
				delete(rs.rooms, roomID)
			}
		}
		rs.mu.Unlock()
	}
}

// Rooms returns a snapshot of the rooms held by a connection.
func (t *Tracker) Rooms(connID domain.ConnectionID) []domain.RoomID {
	ms := t.membershipShardFor(connID)
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return lo.Keys(ms.connections[connID])
}

// ConnectionsIn returns a snapshot of every connection subscribed to a room.
func (t *Tracker) ConnectionsIn(roomID domain.RoomID) []*Connection {
	rs := t.roomShardFor(roomID)
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return lo.Values(rs.rooms[roomID])
}

// RoomCount is the number of rooms with at least one subscriber.
func (t *Tracker) RoomCount() int {
	total := 0
	for _, rs := range t.rooms {
		rs.mu.RLock()
		total += len(rs.rooms)
		rs.mu.RUnlock()
	}
	return total
}
