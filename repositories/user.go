//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

type IUserRepository interface {
	CreateUser(email, hashedPassword string, role domain.Role, displayName string) (string, error)
	GetUserByEmail(email string) (User, error)
	GetUserByID(id domain.UserID) (User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

// User is the account record behind an identity.
type User struct {
	ID           domain.UserID
	Email        string
	DisplayName  string
	PasswordHash string
	Role         domain.Role
	CreatedAt    time.Time
}

const (
	userFieldID protowire.Number = iota + 1
	userFieldEmail
	userFieldPasswordHash
	userFieldRole
	userFieldCreatedAt
	userFieldDisplayName
)

func encodeUser(u User) []byte {
	var b []byte
	b = appendString(b, userFieldID, string(u.ID))
	b = appendString(b, userFieldEmail, u.Email)
	b = appendString(b, userFieldPasswordHash, u.PasswordHash)
	b = appendString(b, userFieldRole, string(u.Role))
	b = appendTime(b, userFieldCreatedAt, &u.CreatedAt)
	b = appendString(b, userFieldDisplayName, u.DisplayName)
	return b
}

func decodeUser(b []byte) (User, error) {
	var u User
	err := walkFields(b, func(num protowire.Number, v uint64, raw []byte) error {
		switch num {
		case userFieldID:
			u.ID = domain.UserID(raw)
		case userFieldEmail:
			u.Email = string(raw)
		case userFieldPasswordHash:
			u.PasswordHash = string(raw)
		case userFieldRole:
			u.Role = domain.Role(raw)
		case userFieldCreatedAt:
			u.CreatedAt = toTime(v)
		case userFieldDisplayName:
			u.DisplayName = string(raw)
		}
		return nil
	})
	return u, err
}

func userEmailKey(email string) []byte { return []byte("user:" + email) }

func userIDKey(id domain.UserID) []byte { return []byte("uid:" + string(id)) }

// CreateUser persists the user with an already hashed password.
// It returns the newly generated User ID
func (u *UserRepository) CreateUser(email, hashedPassword string, role domain.Role, displayName string) (string, error) {
	user := User{
		ID:           domain.UserID(uuid.NewString()),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hashedPassword,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	err := u.db.Update(func(txn *badger.Txn) error {
		key := userEmailKey(email)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, encodeUser(user)); err != nil {
			return err
		}
		return txn.Set(userIDKey(user.ID), key)
	})
	if err != nil {
		return "", err
	}
	return string(user.ID), nil
}

// GetUserByEmail retrieves a user from Badger and converts it to the repository.User struct.
func (u *UserRepository) GetUserByEmail(email string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = loadUser(txn, userEmailKey(email))
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return User{}, errors.ErrUnknownUser
	}
	return user, err
}

func (u *UserRepository) GetUserByID(id domain.UserID) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		ptr, err := getPointer(txn, userIDKey(id))
		if err != nil {
			return err
		}
		user, err = loadUser(txn, ptr)
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return User{}, fmt.Errorf("%w: %s", errors.ErrUnknownUser, id)
	}
	return user, err
}

// RoleOf makes the repository usable as the user directory of the chat service.
func (u *UserRepository) RoleOf(_ context.Context, userID domain.UserID) (domain.Role, error) {
	user, err := u.GetUserByID(userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func loadUser(txn *badger.Txn, key []byte) (User, error) {
	item, err := txn.Get(key)
	if err != nil {
		return User{}, err
	}
	var user User
	err = item.Value(func(val []byte) error {
		user, err = decodeUser(val)
		return err
	})
	return user, err
}
