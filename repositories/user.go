//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	userIDPrefix    = "user:id:"
	userEmailPrefix = "user:email:"
	userNamePrefix  = "user:name:"
)

type IUserRepository interface {
	CreateUser(username, email, hashedPassword string) (domain.User, error)
	GetUserByID(id domain.UserID) (domain.User, error)
	GetUserByEmail(email string) (domain.User, error)
	GetUserByUsername(username string) (domain.User, error)
	Exists(id domain.UserID) (bool, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// CreateUser persists the user with two unique indexes, one on the lowercased
// email and one on the lowercased username. Keys:
//
//	user:id:<id>         -> record
//	user:email:<email>   -> id
//	user:name:<username> -> id
func (u UserRepository) CreateUser(username, email, hashedPassword string) (domain.User, error) {
	user := domain.User{
		ID:           domain.UserID(uuid.NewString()),
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().UTC(),
	}

	data, err := marshalRecord(map[string]any{
		"id":            string(user.ID),
		"username":      user.Username,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"created_at":    timeValue(user.CreatedAt),
	})
	if err != nil {
		return domain.User{}, err
	}

	emailKey := []byte(userEmailPrefix + strings.ToLower(email))
	nameKey := []byte(userNamePrefix + strings.ToLower(username))

	err = u.db.Update(func(txn *badger.Txn) error {
		if exists, err := keyExists(txn, nameKey); err != nil {
			return err
		} else if exists {
			return errors.ErrUsernameExists
		}
		if exists, err := keyExists(txn, emailKey); err != nil {
			return err
		} else if exists {
			return errors.ErrEmailExists
		}
		if err := txn.Set([]byte(userIDPrefix+string(user.ID)), data); err != nil {
			return err
		}
		if err := txn.Set(emailKey, []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(nameKey, []byte(user.ID))
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (u UserRepository) GetUserByID(id domain.UserID) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = readUser(txn, id)
		return err
	})
	return user, err
}

func (u UserRepository) GetUserByEmail(email string) (domain.User, error) {
	return u.getByIndex(userEmailPrefix + strings.ToLower(email))
}

func (u UserRepository) GetUserByUsername(username string) (domain.User, error) {
	return u.getByIndex(userNamePrefix + strings.ToLower(username))
}

func (u UserRepository) Exists(id domain.UserID) (bool, error) {
	var exists bool
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		exists, err = keyExists(txn, []byte(userIDPrefix+string(id)))
		return err
	})
	return exists, err
}

func (u UserRepository) getByIndex(indexKey string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = readUser(txn, domain.UserID(id))
		return err
	})
	return user, err
}

func readUser(txn *badger.Txn, id domain.UserID) (domain.User, error) {
	item, err := txn.Get([]byte(userIDPrefix + string(id)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}

	var user domain.User
	err = item.Value(func(val []byte) error {
		record, err := unmarshalRecord(val)
		if err != nil {
			return err
		}
		createdAt, err := timeField(record, "created_at")
		if err != nil {
			return err
		}
		user = domain.User{
			ID:           domain.UserID(stringField(record, "id")),
			Username:     stringField(record, "username"),
			Email:        stringField(record, "email"),
			PasswordHash: stringField(record, "password_hash"),
			CreatedAt:    createdAt,
		}
		return nil
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("reading user %s: %w", id, err)
	}
	return user, nil
}

func keyExists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}
