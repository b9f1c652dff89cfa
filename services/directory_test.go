package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestGroupDirectory(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	groups := mocks.NewMockIGroupRepository(ctrl)
	directory := NewGroupDirectory(groups)

	groups.EXPECT().GroupsContaining(domain.UserID("alice")).Return([]domain.GroupID{"g1"}, nil)
	groups.EXPECT().GetGroup(domain.GroupID("g1")).Return(domain.Group{ID: "g1", Members: []domain.UserID{"alice", "bob"}}, nil)
	groups.EXPECT().GetGroup(domain.GroupID("nope")).Return(domain.Group{}, errors.ErrGroupNotFound)

	ids, err := directory.GroupsContaining(context.Background(), "alice")
	req.NoError(err)
	req.Equal([]domain.GroupID{"g1"}, ids)

	members, err := directory.MembersOf(context.Background(), "g1")
	req.NoError(err)
	req.Equal([]domain.UserID{"alice", "bob"}, members)

	_, err = directory.MembersOf(context.Background(), "nope")
	req.ErrorIs(err, errors.ErrGroupNotFound)

	// A canceled lookup never reaches storage
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = directory.GroupsContaining(ctx, "alice")
	req.ErrorIs(err, context.Canceled)
}

func TestUserDirectory(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	users := mocks.NewMockIUserRepository(ctrl)
	directory := NewUserDirectory(users)

	users.EXPECT().Exists(domain.UserID("alice")).Return(true, nil)
	users.EXPECT().Exists(domain.UserID("ghost")).Return(false, nil)

	exists, err := directory.UserExists(context.Background(), "alice")
	req.NoError(err)
	req.True(exists)

	exists, err = directory.UserExists(context.Background(), "ghost")
	req.NoError(err)
	req.False(exists)
}
