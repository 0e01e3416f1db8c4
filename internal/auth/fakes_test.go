package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	pkgerrors "artspire/pkg/errors"
)

type memRepository struct {
	mu     sync.Mutex
	users  map[int]*User
	nextID int
	err    error
}

func newMemRepository() *memRepository {
	return &memRepository{users: map[int]*User{}, nextID: 1}
}

func (r *memRepository) add(t *testing.T, id int, username, password string, active bool) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	r.mu.Lock()
	defer r.mu.Unlock()
	u := &User{ID: id, Username: username, Email: username + "@example.com", PasswordHash: string(hash), IsActive: active}
	r.users[id] = u
	if id >= r.nextID {
		r.nextID = id + 1
	}
	return u
}

func (r *memRepository) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return pkgerrors.ErrConflict
		}
	}
	user.ID = r.nextID
	user.IsActive = true
	r.nextID++
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memRepository) GetByID(_ context.Context, id int) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memRepository) GetByUsername(_ context.Context, username string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pkgerrors.ErrNotFound
}

func (r *memRepository) ListByIDs(_ context.Context, ids []int) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := []User{}
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepository) UpdateProfileImage(_ context.Context, id int, blobName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return pkgerrors.ErrNotFound
	}
	u.ProfileImage = &blobName
	return nil
}

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func testTokens(t *testing.T, now time.Time) *Tokens {
	key := rsaKey(t)
	return NewTokens(key, &key.PublicKey, 5*time.Minute, 30*24*time.Hour, WithClock(func() time.Time { return now }))
}
