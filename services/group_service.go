package services

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

type IGroupService interface {
	CreateGroup(ctx context.Context, creatorID domain.UserID, req auth.GroupRequest) (domain.Group, error)
}

type GroupService struct {
	log    *slog.Logger
	users  repositories.IUserRepository
	groups repositories.IGroupRepository
}

func NewGroupService(log *slog.Logger, users repositories.IUserRepository, groups repositories.IGroupRepository) IGroupService {
	return &GroupService{log: log.With("component", "group_service"), users: users, groups: groups}
}

// CreateGroup adds the creator to the members when missing. Listed members must be
// unique and must all exist.
func (s *GroupService) CreateGroup(ctx context.Context, creatorID domain.UserID, req auth.GroupRequest) (domain.Group, error) {
	if err := auth.ValidateGroup(req); err != nil {
		return domain.Group{}, err
	}

	members := lo.Map(req.Members, func(m string, _ int) domain.UserID { return domain.UserID(m) })
	if !lo.Contains(members, creatorID) {
		members = append(members, creatorID)
	}
	if len(lo.Uniq(members)) != len(members) {
		return domain.Group{}, errors.ErrDuplicateMembers
	}

	for _, member := range members {
		if err := ctx.Err(); err != nil {
			return domain.Group{}, err
		}
		exists, err := s.users.Exists(member)
		if err != nil {
			return domain.Group{}, err
		}
		if !exists {
			return domain.Group{}, fmt.Errorf("%w: %s", errors.ErrUserNotFound, member)
		}
	}

	group, err := s.groups.CreateGroup(req.Name, creatorID, members)
	if err != nil {
		return domain.Group{}, err
	}
	s.log.Info("Group created", "group_id", group.ID, "creator_id", creatorID, "members", len(members))
	return group, nil
}
