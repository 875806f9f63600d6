package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sweetpotato0/ai-factcheck/tracking"
)

// MongoStore keeps one document per article.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

var _ tracking.Store = (*MongoStore)(nil)

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "factcheck",
		Collection: "tracking",
	}
}

// mongoRecord is the stored document. Payload holds the record JSON as text
// so key order survives the round trip through BSON.
type mongoRecord struct {
	ID        string    `bson:"_id"`
	Seq       int64     `bson:"seq"`
	Payload   string    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStore connects to MongoDB and creates the ordering index.
func NewMongoStore(ctx context.Context, config *MongoConfig) (*MongoStore, error) {
	if config == nil {
		config = DefaultMongoConfig()
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(config.Database).Collection(config.Collection),
	}
	if _, err := store.collection.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "seq", Value: 1}}}); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return store, nil
}

// Load implements tracking.Store.
func (s *MongoStore) Load(ctx context.Context) (*tracking.Data, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query tracking records: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoRecord
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode tracking records: %w", err)
	}
	data := tracking.NewData()
	for _, doc := range docs {
		rec, err := tracking.DecodeRecord([]byte(doc.Payload))
		if err != nil {
			return nil, fmt.Errorf("article %s: %w", doc.ID, err)
		}
		data.Put(doc.ID, rec)
	}
	return data, nil
}

// Has implements tracking.Store.
func (s *MongoStore) Has(ctx context.Context, articleID string) (bool, error) {
	err := s.collection.FindOne(ctx, bson.M{"_id": articleID}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check tracking record: %w", err)
	}
	return true, nil
}

// Save implements tracking.Store.
func (s *MongoStore) Save(ctx context.Context, articleID string, rec tracking.Record) error {
	raw, err := tracking.EncodeRecord(rec)
	if err != nil {
		return err
	}
	now := time.Now()
	update := bson.M{
		"$set":         bson.M{"payload": string(raw), "updated_at": now},
		"$setOnInsert": bson.M{"seq": now.UnixNano()},
	}
	_, err = s.collection.UpdateOne(ctx, bson.M{"_id": articleID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store tracking record: %w", err)
	}
	return nil
}

// Clear removes every tracking document.
func (s *MongoStore) Clear(ctx context.Context) error {
	if _, err := s.collection.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to clear tracking records: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks if MongoDB connection is alive
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
