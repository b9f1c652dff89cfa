package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestTracker(t *testing.T) (*Tracker, *mocks.MockIGroupDirectory) {
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockIGroupDirectory(ctrl)
	return NewTracker(slog.New(slog.DiscardHandler), directory, time.Second, 4), directory
}

func TestTracker_AutoJoinOnConnect(t *testing.T) {
	req := require.New(t)
	tracker, directory := newTestTracker(t)
	conn := newTestConnection("alice")

	// Given alice belongs to two groups
	directory.EXPECT().
		GroupsContaining(gomock.Any(), domain.UserID("alice")).
		Return([]domain.GroupID{"g1", "g2", "g1"}, nil)

	// When she connects
	joined := tracker.AutoJoinOnConnect(context.Background(), conn)

	// Then her connection is subscribed to both rooms
	req.ElementsMatch([]domain.RoomID{"g1", "g2"}, joined)
	req.ElementsMatch([]domain.RoomID{"g1", "g2"}, tracker.Rooms(conn.ID()))
	req.Equal([]domain.ConnectionID{conn.ID()}, connectionIDs(tracker.ConnectionsIn("g1")))
	req.Equal(2, tracker.RoomCount())
}

func TestTracker_AutoJoinOnConnect_Directory_Failure_Is_Not_Fatal(t *testing.T) {
	req := require.New(t)
	tracker, directory := newTestTracker(t)
	conn := newTestConnection("alice")

	directory.EXPECT().
		GroupsContaining(gomock.Any(), domain.UserID("alice")).
		Return(nil, fmt.Errorf("directory down"))

	joined := tracker.AutoJoinOnConnect(context.Background(), conn)

	req.Empty(joined)
	req.Empty(tracker.Rooms(conn.ID()))
	req.False(conn.IsClosed())
}

func TestTracker_AutoJoinOnConnect_Skips_Closed_Connection(t *testing.T) {
	req := require.New(t)
	tracker, directory := newTestTracker(t)
	conn := newTestConnection("alice")

	directory.EXPECT().
		GroupsContaining(gomock.Any(), domain.UserID("alice")).
		DoAndReturn(func(ctx context.Context, _ domain.UserID) ([]domain.GroupID, error) {
			// The client goes away while the lookup is pending
			conn.Close()
			return []domain.GroupID{"g1"}, nil
		})

	joined := tracker.AutoJoinOnConnect(context.Background(), conn)

	req.Empty(joined)
	req.Zero(tracker.RoomCount())
}

func TestTracker_AutoJoinOnConnect_Lookup_Is_Bounded(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	directory := mocks.NewMockIGroupDirectory(ctrl)
	tracker := NewTracker(slog.New(slog.DiscardHandler), directory, 20*time.Millisecond, 4)

	directory.EXPECT().
		GroupsContaining(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.UserID) ([]domain.GroupID, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	start := time.Now()
	joined := tracker.AutoJoinOnConnect(context.Background(), newTestConnection("alice"))

	req.Empty(joined)
	req.Less(time.Since(start), time.Second)
}

func TestTracker_JoinRoom(t *testing.T) {
	tests := []struct {
		name    string
		groupID domain.GroupID
		setup   func(directory *mocks.MockIGroupDirectory)
		wantErr error
	}{
		{
			name:    "member joins",
			groupID: "g1",
			setup: func(directory *mocks.MockIGroupDirectory) {
				directory.EXPECT().MembersOf(gomock.Any(), domain.GroupID("g1")).
					Return([]domain.UserID{"alice", "bob"}, nil)
			},
		},
		{
			name:    "missing group id",
			groupID: "",
			setup:   func(*mocks.MockIGroupDirectory) {},
			wantErr: errors.ErrGroupIDMissing,
		},
		{
			name:    "unknown group",
			groupID: "nope",
			setup: func(directory *mocks.MockIGroupDirectory) {
				directory.EXPECT().MembersOf(gomock.Any(), domain.GroupID("nope")).
					Return(nil, errors.ErrGroupNotFound)
			},
			wantErr: errors.ErrGroupNotFound,
		},
		{
			name:    "not a member",
			groupID: "g2",
			setup: func(directory *mocks.MockIGroupDirectory) {
				directory.EXPECT().MembersOf(gomock.Any(), domain.GroupID("g2")).
					Return([]domain.UserID{"bob"}, nil)
			},
			wantErr: errors.ErrNotAMember,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			tracker, directory := newTestTracker(t)
			conn := newTestConnection("alice")
			tt.setup(directory)

			err := tracker.JoinRoom(context.Background(), conn, tt.groupID)

			if tt.wantErr != nil {
				req.ErrorIs(err, tt.wantErr)
				req.Empty(tracker.Rooms(conn.ID()))
				return
			}
			req.NoError(err)
			req.Equal([]domain.RoomID{domain.RoomFor(tt.groupID)}, tracker.Rooms(conn.ID()))
		})
	}
}

func TestTracker_JoinRoom_Twice_Is_Noop(t *testing.T) {
	req := require.New(t)
	tracker, directory := newTestTracker(t)
	conn := newTestConnection("alice")

	directory.EXPECT().MembersOf(gomock.Any(), domain.GroupID("g1")).
		Return([]domain.UserID{"alice"}, nil).Times(2)

	req.NoError(tracker.JoinRoom(context.Background(), conn, "g1"))
	req.NoError(tracker.JoinRoom(context.Background(), conn, "g1"))

	req.Len(tracker.Rooms(conn.ID()), 1)
	req.Len(tracker.ConnectionsIn("g1"), 1)
}

// Membership is only checked at join time: a user removed from the group afterwards
// stays in the room until the connection is discarded.
func TestTracker_Lazy_Consistency(t *testing.T) {
	req := require.New(t)
	tracker, directory := newTestTracker(t)
	conn := newTestConnection("alice")

	gomock.InOrder(
		directory.EXPECT().MembersOf(gomock.Any(), domain.GroupID("g1")).
			Return([]domain.UserID{"alice"}, nil),
		directory.EXPECT().MembersOf(gomock.Any(), domain.GroupID("g1")).
			Return([]domain.UserID{}, nil),
	)

	req.NoError(tracker.JoinRoom(context.Background(), conn, "g1"))

	// When alice has been removed from the group, the room subscription is kept
	req.Len(tracker.ConnectionsIn("g1"), 1)

	// And a new join attempt is revalidated and refused
	other := newTestConnection("alice")
	req.ErrorIs(tracker.JoinRoom(context.Background(), other, "g1"), errors.ErrNotAMember)
	req.Len(tracker.ConnectionsIn("g1"), 1)
}

func TestTracker_Discard(t *testing.T) {
	req := require.New(t)
	tracker, directory := newTestTracker(t)
	c1 := newTestConnection("alice")
	c2 := newTestConnection("bob")

	directory.EXPECT().MembersOf(gomock.Any(), domain.GroupID("g1")).
		Return([]domain.UserID{"alice", "bob"}, nil).Times(2)
	req.NoError(tracker.JoinRoom(context.Background(), c1, "g1"))
	req.NoError(tracker.JoinRoom(context.Background(), c2, "g1"))

	// When one connection is discarded
	tracker.Discard(c1.ID())

	// Then only the other one remains in the room
	req.Empty(tracker.Rooms(c1.ID()))
	req.Equal([]domain.ConnectionID{c2.ID()}, connectionIDs(tracker.ConnectionsIn("g1")))

	// And the room disappears with its last subscriber
	tracker.Discard(c2.ID())
	req.Zero(tracker.RoomCount())
	req.NotPanics(func() { tracker.Discard(c2.ID()) })
}

func TestTracker_Join_Racing_Close_Never_Resurrects(t *testing.T) {
	req := require.New(t)
	tracker, directory := newTestTracker(t)

	directory.EXPECT().MembersOf(gomock.Any(), gomock.Any()).
		Return([]domain.UserID{"alice"}, nil).AnyTimes()

	for i := 0; i < 200; i++ {
		conn := newTestConnection("alice")
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = tracker.JoinRoom(context.Background(), conn, "g1")
		}()
		go func() {
			defer wg.Done()
			conn.Close()
			tracker.Discard(conn.ID())
		}()
		wg.Wait()

		req.Empty(tracker.Rooms(conn.ID()))
	}
	req.Empty(tracker.ConnectionsIn("g1"))
}
