package repository

import (
	"context"
	"fmt"
	"time"

	"odinbook/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDeadLetterSink mirrors dead letters into a MongoDB collection for
// operators who inspect failures outside the primary database.
type MongoDeadLetterSink struct {
	collection *mongo.Collection
}

type mongoDeadLetter struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	EventID   string             `bson:"event_id"`
	EventType string             `bson:"event_type"`
	Key       string             `bson:"key"`
	Payload   string             `bson:"payload"`
	Error     string             `bson:"error"`
	Attempts  int                `bson:"attempts"`
	CreatedAt time.Time          `bson:"created_at"`
}

// NewMongoDeadLetterSink writes into the dead_letters collection of db.
func NewMongoDeadLetterSink(db *mongo.Database) *MongoDeadLetterSink {
	return &MongoDeadLetterSink{collection: db.Collection("dead_letters")}
}

// ConnectMongo opens a client for uri and verifies it with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// Save inserts one document per dead letter.
func (s *MongoDeadLetterSink) Save(ctx context.Context, dl *models.DeadLetter) error {
	createdAt := dl.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.collection.InsertOne(ctx, mongoDeadLetter{
		EventID:   dl.EventID,
		EventType: dl.EventType,
		Key:       dl.Key,
		Payload:   dl.Payload,
		Error:     dl.Error,
		Attempts:  dl.Attempts,
		CreatedAt: createdAt,
	})
	if err != nil {
		return fmt.Errorf("insert dead letter %s: %w", dl.EventID, err)
	}
	return nil
}

// CountByType returns how many dead letters of eventType were mirrored.
func (s *MongoDeadLetterSink) CountByType(ctx context.Context, eventType string) (int64, error) {
	return s.collection.CountDocuments(ctx, bson.M{"event_type": eventType})
}
