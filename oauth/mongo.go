package oauth

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoStore implements the persistent store contracts backed by MongoDB.
// Per-document atomicity is what the engine relies on: authorization-code
// single use is FindOneAndDelete, never a read followed by a delete.
type MongoStore struct {
	db           *mongo.Database
	clientsColl  *mongo.Collection
	tokensColl   *mongo.Collection
	codesColl    *mongo.Collection
	devicesColl  *mongo.Collection
	confirmsColl *mongo.Collection
	scopesColl   *mongo.Collection
}

var (
	_ ClientStore            = (*MongoStore)(nil)
	_ TokenStore             = (*MongoStore)(nil)
	_ AuthorizationCodeStore = (*MongoStore)(nil)
	_ DeviceStore            = (*MongoStore)(nil)
	_ ConfirmationCodeStore  = (*MongoStore)(nil)
	_ ScopeStore             = (*MongoStore)(nil)
)

// NewMongoStore creates a MongoStore. Expects a connected mongo.Database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		db:           db,
		clientsColl:  db.Collection("oauth_clients"),
		tokensColl:   db.Collection("oauth_tokens"),
		codesColl:    db.Collection("oauth_codes"),
		devicesColl:  db.Collection("oauth_devices"),
		confirmsColl: db.Collection("oauth_confirmation_codes"),
		scopesColl:   db.Collection("oauth_scopes"),
	}
}

func (s *MongoStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	var c Client
	err := s.clientsColl.FindOne(ctx, bson.M{"client_id": clientID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) RegisterClient(ctx context.Context, client *Client) error {
	_, err := s.clientsColl.InsertOne(ctx, client)
	return err
}

func (s *MongoStore) UpdateClient(ctx context.Context, client *Client) error {
	res, err := s.clientsColl.ReplaceOne(ctx, bson.M{"client_id": client.ClientID}, client)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteClient(ctx context.Context, clientID string) error {
	res, err := s.clientsColl.DeleteOne(ctx, bson.M{"client_id": clientID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListClients(ctx context.Context) ([]*Client, error) {
	cur, err := s.clientsColl.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var list []*Client
	for cur.Next(ctx) {
		var c Client
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, cur.Err()
}

func (s *MongoStore) SaveToken(ctx context.Context, token *GrantedToken) error {
	_, err := s.tokensColl.InsertOne(ctx, token)
	return err
}

func (s *MongoStore) GetByAccessToken(ctx context.Context, value string) (*GrantedToken, error) {
	return s.findToken(ctx, bson.M{"access_token": value})
}

func (s *MongoStore) GetByRefreshToken(ctx context.Context, value string) (*GrantedToken, error) {
	return s.findToken(ctx, bson.M{"refresh_token": value})
}

func (s *MongoStore) findToken(ctx context.Context, filter bson.M) (*GrantedToken, error) {
	var t GrantedToken
	err := s.tokensColl.FindOne(ctx, filter).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindActive narrows by client, scope and expiry server-side, then applies
// the subset claim match in process; claim payloads are small.
func (s *MongoStore) FindActive(ctx context.Context, clientID, scope string, idClaims, userClaims map[string]any) (*GrantedToken, error) {
	cur, err := s.tokensColl.Find(ctx, bson.M{
		"client_id":  clientID,
		"scope":      scope,
		"expires_at": bson.M{"$gt": time.Now()},
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	for cur.Next(ctx) {
		var t GrantedToken
		if err := cur.Decode(&t); err != nil {
			return nil, err
		}
		if t.MatchesClaims(idClaims, userClaims) {
			return &t, nil
		}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

func (s *MongoStore) DeleteToken(ctx context.Context, id string) error {
	res, err := s.tokensColl.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteByParent(ctx context.Context, parentID string) error {
	_, err := s.tokensColl.DeleteMany(ctx, bson.M{"parent_token_id": parentID})
	return err
}

func (s *MongoStore) SaveCode(ctx context.Context, code *AuthorizationCode) error {
	_, err := s.codesColl.InsertOne(ctx, code)
	return err
}

// ConsumeCode is the atomic compare-and-delete: the second of two concurrent
// redemptions gets ErrNoDocuments from the server.
func (s *MongoStore) ConsumeCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	var c AuthorizationCode
	err := s.codesColl.FindOneAndDelete(ctx, bson.M{"code": code}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) SaveDevice(ctx context.Context, d *DeviceAuthorization) error {
	_, err := s.devicesColl.InsertOne(ctx, d)
	return err
}

func (s *MongoStore) GetDevice(ctx context.Context, clientID, deviceCode string) (*DeviceAuthorization, error) {
	var d DeviceAuthorization
	err := s.devicesColl.FindOne(ctx, bson.M{"client_id": clientID, "device_code": deviceCode}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *MongoStore) GetDeviceByUserCode(ctx context.Context, userCode string) (*DeviceAuthorization, error) {
	var d DeviceAuthorization
	err := s.devicesColl.FindOne(ctx, bson.M{"user_code": userCode}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *MongoStore) ApproveDevice(ctx context.Context, userCode, subject string) error {
	res, err := s.devicesColl.UpdateOne(ctx,
		bson.M{"user_code": userCode},
		bson.M{"$set": bson.M{"approved": true, "subject": subject}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteDevice(ctx context.Context, deviceCode string) error {
	res, err := s.devicesColl.DeleteOne(ctx, bson.M{"device_code": deviceCode})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SaveConfirmationCode(ctx context.Context, c *ConfirmationCode) error {
	_, err := s.confirmsColl.InsertOne(ctx, c)
	return err
}

func (s *MongoStore) ConsumeConfirmationCode(ctx context.Context, code string) (*ConfirmationCode, error) {
	var c ConfirmationCode
	err := s.confirmsColl.FindOneAndDelete(ctx, bson.M{"code": code}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *MongoStore) GetScopes(ctx context.Context, names ...string) ([]*Scope, error) {
	cur, err := s.scopesColl.Find(ctx, bson.M{"name": bson.M{"$in": names}})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []*Scope
	for cur.Next(ctx) {
		var sc Scope
		if err := cur.Decode(&sc); err != nil {
			return nil, err
		}
		out = append(out, &sc)
	}
	return out, cur.Err()
}

func (s *MongoStore) SaveScope(ctx context.Context, sc *Scope) error {
	_, err := s.scopesColl.InsertOne(ctx, sc)
	return err
}
