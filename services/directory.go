package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
)

// GroupDirectory exposes the group repository as the read-only membership view
// the presence engine consumes.
type GroupDirectory struct {
	groups repositories.IGroupRepository
}

func NewGroupDirectory(groups repositories.IGroupRepository) *GroupDirectory {
	return &GroupDirectory{groups: groups}
}

func (d *GroupDirectory) GroupsContaining(ctx context.Context, userID domain.UserID) ([]domain.GroupID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.groups.GroupsContaining(userID)
}

func (d *GroupDirectory) MembersOf(ctx context.Context, groupID domain.GroupID) ([]domain.UserID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	group, err := d.groups.GetGroup(groupID)
	if err != nil {
		return nil, err
	}
	return group.Members, nil
}

type UserDirectory struct {
	users repositories.IUserRepository
}

func NewUserDirectory(users repositories.IUserRepository) *UserDirectory {
	return &UserDirectory{users: users}
}

func (d *UserDirectory) UserExists(ctx context.Context, userID domain.UserID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	exists, err := d.users.Exists(userID)
	if errors.Is(err, errors.ErrUserNotFound) {
		return false, nil
	}
	return exists, err
}
