package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGroupRepository_Create_And_Get(t *testing.T) {
	req := require.New(t)
	repository := NewGroupRepository(openTestDB(t))

	group, err := repository.CreateGroup("Team", "alice", []domain.UserID{"alice", "bob"})
	req.NoError(err)

	fetched, err := repository.GetGroup(group.ID)
	req.NoError(err)
	req.Equal("Team", fetched.Name)
	req.Equal(domain.UserID("alice"), fetched.CreatorID)
	req.Equal([]domain.UserID{"alice", "bob"}, fetched.Members)
	req.True(fetched.HasMember("bob"))
}

func TestGroupRepository_Unique_Name(t *testing.T) {
	req := require.New(t)
	repository := NewGroupRepository(openTestDB(t))

	_, err := repository.CreateGroup("Team", "alice", []domain.UserID{"alice"})
	req.NoError(err)

	_, err = repository.CreateGroup("team", "bob", []domain.UserID{"bob"})
	req.ErrorIs(err, errors.ErrGroupAlreadyExists)
}

func TestGroupRepository_Unknown_Group(t *testing.T) {
	req := require.New(t)
	repository := NewGroupRepository(openTestDB(t))

	_, err := repository.GetGroup("nope")

	req.ErrorIs(err, errors.ErrGroupNotFound)
}

func TestGroupRepository_GroupsContaining(t *testing.T) {
	req := require.New(t)
	repository := NewGroupRepository(openTestDB(t))

	g1, err := repository.CreateGroup("one", "alice", []domain.UserID{"alice", "bob"})
	req.NoError(err)
	g2, err := repository.CreateGroup("two", "alice", []domain.UserID{"alice"})
	req.NoError(err)
	// A user id that is a prefix of another must not leak into its scan
	_, err = repository.CreateGroup("three", "alicea", []domain.UserID{"alicea"})
	req.NoError(err)

	groups, err := repository.GroupsContaining("alice")
	req.NoError(err)
	req.ElementsMatch([]domain.GroupID{g1.ID, g2.ID}, groups)

	groups, err = repository.GroupsContaining("bob")
	req.NoError(err)
	req.Equal([]domain.GroupID{g1.ID}, groups)

	groups, err = repository.GroupsContaining("carol")
	req.NoError(err)
	req.Empty(groups)
}
