package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ciphermesh/internal/domain"
)

const sentCollection = "sent_items"

// ConnectMongo dials uri and pings the primary within 10 seconds.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// MongoSentStore persists sent records in a mongo collection keyed by item id.
type MongoSentStore struct {
	coll *mongo.Collection
}

// NewMongoSentStore uses the sent_items collection of db.
func NewMongoSentStore(db *mongo.Database) *MongoSentStore {
	return &MongoSentStore{coll: db.Collection(sentCollection)}
}

// SaveSent inserts record; a duplicate item id is ErrAlreadyExists.
func (s *MongoSentStore) SaveSent(ctx context.Context, record domain.SentRecord) error {
	_, err := s.coll.InsertOne(ctx, record)
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("sent record %s: %w", record.ItemID, domain.ErrAlreadyExists)
	}
	return err
}

// LoadSent fetches the record for id; mongo.ErrNoDocuments is a miss.
func (s *MongoSentStore) LoadSent(ctx context.Context, id domain.ItemID) (domain.SentRecord, bool, error) {
	var rec domain.SentRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.SentRecord{}, false, nil
	}
	if err != nil {
		return domain.SentRecord{}, false, err
	}
	return rec, true, nil
}

// ListSent returns all records ordered by send time.
func (s *MongoSentStore) ListSent(ctx context.Context) ([]domain.SentRecord, error) {
	cur, err := s.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "sent_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []domain.SentRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Compile-time assertion that MongoSentStore implements domain.SentStore.
var _ domain.SentStore = (*MongoSentStore)(nil)
