package uma

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/soteria-id/soteria/oauth"
)

// MongoStore backs the UMA store contracts with MongoDB.
type MongoStore struct {
	resourcesColl *mongo.Collection
	ticketsColl   *mongo.Collection
}

var (
	_ ResourceSetStore = (*MongoStore)(nil)
	_ TicketStore      = (*MongoStore)(nil)
)

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		resourcesColl: db.Collection("uma_resource_sets"),
		ticketsColl:   db.Collection("uma_tickets"),
	}
}

func (s *MongoStore) SaveResourceSet(ctx context.Context, rs *ResourceSet) error {
	_, err := s.resourcesColl.InsertOne(ctx, rs)
	return err
}

func (s *MongoStore) GetResourceSet(ctx context.Context, id string) (*ResourceSet, error) {
	var rs ResourceSet
	err := s.resourcesColl.FindOne(ctx, bson.M{"_id": id}).Decode(&rs)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oauth.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &rs, nil
}

func (s *MongoStore) UpdateResourceSet(ctx context.Context, rs *ResourceSet) error {
	res, err := s.resourcesColl.ReplaceOne(ctx, bson.M{"_id": rs.ID}, rs)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return oauth.ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteResourceSet(ctx context.Context, id string) error {
	res, err := s.resourcesColl.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return oauth.ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListResourceSets(ctx context.Context, owner string) ([]*ResourceSet, error) {
	filter := bson.M{}
	if owner != "" {
		filter["owner"] = owner
	}
	cur, err := s.resourcesColl.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []*ResourceSet
	for cur.Next(ctx) {
		var rs ResourceSet
		if err := cur.Decode(&rs); err != nil {
			return nil, err
		}
		out = append(out, &rs)
	}
	return out, cur.Err()
}

func (s *MongoStore) SaveTicket(ctx context.Context, t *Ticket) error {
	_, err := s.ticketsColl.InsertOne(ctx, t)
	return err
}

func (s *MongoStore) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	var t Ticket
	err := s.ticketsColl.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oauth.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *MongoStore) UpdateTicket(ctx context.Context, t *Ticket) error {
	res, err := s.ticketsColl.ReplaceOne(ctx, bson.M{"_id": t.ID}, t)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return oauth.ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteTicket(ctx context.Context, id string) error {
	res, err := s.ticketsColl.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return oauth.ErrNotFound
	}
	return nil
}

func (s *MongoStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.ticketsColl.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": now}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
