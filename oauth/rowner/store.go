package rowner

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"github.com/soteria-id/soteria/oauth"
)

// HashPassword produces the bcrypt hash stored on a user record.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// MongoUserStore backs UserStore with a MongoDB collection.
type MongoUserStore struct {
	coll *mongo.Collection
}

var _ UserStore = (*MongoUserStore)(nil)

func NewMongoUserStore(db *mongo.Database) *MongoUserStore {
	return &MongoUserStore{coll: db.Collection("users")}
}

func (s *MongoUserStore) GetUser(ctx context.Context, username string) (*User, error) {
	var user User
	err := s.coll.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oauth.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *MongoUserStore) SaveUser(ctx context.Context, user *User) error {
	_, err := s.coll.ReplaceOne(ctx, bson.M{"username": user.Username}, user, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoUserStore) DeleteUser(ctx context.Context, username string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"username": username})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return oauth.ErrNotFound
	}
	return nil
}

// MemoryUserStore is the in-memory UserStore used in tests and local
// development.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]*User
}

var _ UserStore = (*MemoryUserStore)(nil)

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*User)}
}

func (s *MemoryUserStore) GetUser(_ context.Context, username string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return nil, oauth.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *MemoryUserStore) SaveUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.Username] = &cp
	return nil
}

func (s *MemoryUserStore) DeleteUser(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return oauth.ErrNotFound
	}
	delete(s.users, username)
	return nil
}
