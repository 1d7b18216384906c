package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/flockbook/internal/domain/models"
)

const (
	submissionsCollection = "submissions"
	defaultListLimit      = 50
	maxListLimit          = 500
)

// MongoDBJournal stores submission records in MongoDB.
type MongoDBJournal struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoDBJournal connects to MongoDB and prepares the submissions collection.
func NewMongoDBJournal(ctx context.Context, uri string, dbName string) (*MongoDBJournal, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	coll := client.Database(dbName).Collection(submissionsCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "lot_id", Value: 1}, {Key: "submitted_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create submissions index: %w", err)
	}

	return &MongoDBJournal{client: client, coll: coll}, nil
}

// newJournalWithCollection wraps an existing collection.
func newJournalWithCollection(coll *mongo.Collection) *MongoDBJournal {
	return &MongoDBJournal{coll: coll}
}

// RecordSubmission stores one write attempt.
func (j *MongoDBJournal) RecordSubmission(ctx context.Context, record models.SubmissionRecord) error {
	_, err := j.coll.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to insert submission record: %w", err)
	}
	return nil
}

// ListSubmissions returns the latest write attempts for a lot, newest first.
func (j *MongoDBJournal) ListSubmissions(ctx context.Context, lotID string, limit int64) ([]models.SubmissionRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "submitted_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := j.coll.Find(ctx, bson.D{{Key: "lot_id", Value: lotID}}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]models.SubmissionRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode submissions: %w", err)
	}
	return records, nil
}

// Ping reports whether the database answers.
func (j *MongoDBJournal) Ping(ctx context.Context) error {
	if j.client == nil {
		return nil
	}
	return j.client.Ping(ctx, nil)
}

// Close closes the MongoDB connection.
func (j *MongoDBJournal) Close(ctx context.Context) error {
	if j.client == nil {
		return nil
	}
	return j.client.Disconnect(ctx)
}
