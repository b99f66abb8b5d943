package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"preventanyl/models"
)

// DispatchRepository stores the history of help broadcasts.
type DispatchRepository struct {
	collection *mongo.Collection
}

func NewDispatchRepository(db *mongo.Database) *DispatchRepository {
	return &DispatchRepository{
		collection: db.Collection("help_dispatches"),
	}
}

func (dr *DispatchRepository) Create(ctx context.Context, dispatch *models.HelpDispatch) error {
	dispatch.ID = primitive.NewObjectID()
	if dispatch.CompletedAt.IsZero() {
		dispatch.CompletedAt = time.Now()
	}

	_, err := dr.collection.InsertOne(ctx, dispatch)
	return err
}

// List returns one page of dispatches, newest first, and the total count.
func (dr *DispatchRepository) List(ctx context.Context, deviceID string, page, pageSize int) ([]models.HelpDispatch, int64, error) {
	filter := bson.M{}
	if deviceID != "" {
		filter["deviceId"] = deviceID
	}

	total, err := dr.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "requestedAt", Value: -1}}).
		SetSkip(int64((page - 1) * pageSize)).
		SetLimit(int64(pageSize))

	cursor, err := dr.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	dispatches := []models.HelpDispatch{}
	if err := cursor.All(ctx, &dispatches); err != nil {
		return nil, 0, err
	}
	return dispatches, total, nil
}

// DeleteOlderThan removes dispatch records requested before cutoff.
func (dr *DispatchRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := dr.collection.DeleteMany(ctx, bson.M{"requestedAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (dr *DispatchRepository) CreateIndexes(ctx context.Context) error {
	_, err := dr.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "deviceId", Value: 1}, {Key: "requestedAt", Value: -1}}},
		{Keys: bson.D{{Key: "requestedAt", Value: -1}}},
	})
	return err
}
