//go:generate go run go.uber.org/mock/mockgen -source=group.go -destination=../mocks/mock_group_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	groupIDPrefix   = "group:id:"
	groupNamePrefix = "group:name:"
	memberPrefix    = "member:"
)

type IGroupRepository interface {
	CreateGroup(name string, creatorID domain.UserID, members []domain.UserID) (domain.Group, error)
	GetGroup(id domain.GroupID) (domain.Group, error)
	GroupsContaining(userID domain.UserID) ([]domain.GroupID, error)
}

type GroupRepository struct {
	db *badger.DB
}

func NewGroupRepository(db *badger.DB) IGroupRepository {
	return &GroupRepository{db: db}
}

// CreateGroup stores the group, a unique index on its lowercased name and one
// membership entry per member so GroupsContaining is a key-only prefix scan:
//
//	group:id:<id>         -> record
//	group:name:<name>     -> id
//	member:<user>:<group> -> empty
func (g GroupRepository) CreateGroup(name string, creatorID domain.UserID, members []domain.UserID) (domain.Group, error) {
	group := domain.Group{
		ID:        domain.GroupID(uuid.NewString()),
		Name:      name,
		Members:   members,
		CreatorID: creatorID,
		CreatedAt: time.Now().UTC(),
	}

	data, err := marshalRecord(map[string]any{
		"id":         string(group.ID),
		"name":       group.Name,
		"members":    anySlice(group.Members),
		"creator_id": string(group.CreatorID),
		"created_at": timeValue(group.CreatedAt),
	})
	if err != nil {
		return domain.Group{}, err
	}

	nameKey := []byte(groupNamePrefix + strings.ToLower(name))
	err = g.db.Update(func(txn *badger.Txn) error {
		if exists, err := keyExists(txn, nameKey); err != nil {
			return err
		} else if exists {
			return errors.ErrGroupAlreadyExists
		}
		if err := txn.Set([]byte(groupIDPrefix+string(group.ID)), data); err != nil {
			return err
		}
		if err := txn.Set(nameKey, []byte(group.ID)); err != nil {
			return err
		}
		for _, member := range group.Members {
			if err := txn.Set(memberKey(member, group.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Group{}, err
	}
	return group, nil
}

func (g GroupRepository) GetGroup(id domain.GroupID) (domain.Group, error) {
	var group domain.Group
	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(groupIDPrefix + string(id)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrGroupNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			record, err := unmarshalRecord(val)
			if err != nil {
				return err
			}
			createdAt, err := timeField(record, "created_at")
			if err != nil {
				return err
			}
			group = domain.Group{
				ID:   domain.GroupID(stringField(record, "id")),
				Name: stringField(record, "name"),
				Members: lo.Map(stringsField(record, "members"), func(m string, _ int) domain.UserID {
					return domain.UserID(m)
				}),
				CreatorID: domain.UserID(stringField(record, "creator_id")),
				CreatedAt: createdAt,
			}
			return nil
		})
	})
	if err != nil {
		return domain.Group{}, err
	}
	return group, nil
}

// GroupsContaining scans the membership index without fetching values.
func (g GroupRepository) GroupsContaining(userID domain.UserID) ([]domain.GroupID, error) {
	prefix := []byte(fmt.Sprintf("%s%s:", memberPrefix, userID))
	var groups []domain.GroupID

	err := g.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			groups = append(groups, domain.GroupID(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func memberKey(userID domain.UserID, groupID domain.GroupID) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", memberPrefix, userID, groupID))
}
