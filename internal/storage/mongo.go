package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/terra-clan/challenge-tracker/internal/models"
)

const usersCollection = "user"

// MongoRepository implements Repository on a MongoDB user collection
// where completions live embedded in the user document.
type MongoRepository struct {
	client *mongo.Client
	users  *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// NewMongoRepository connects to MongoDB and verifies the connection
func NewMongoRepository(ctx context.Context, cfg MongoConfig) (*MongoRepository, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &MongoRepository{
		client: client,
		users:  client.Database(cfg.Database).Collection(usersCollection),
	}, nil
}

// Ping checks database connectivity
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (r *MongoRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

// GetUser loads a user document by its ObjectId hex string
func (r *MongoRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrUserNotFound
	}

	var user models.User
	if err := r.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.ID = id

	return &user, nil
}

// ApplyCompletion pushes the completion (and progress timestamp) and sets the
// timezone in a single update. A resubmitted challenge is pushed again; readers
// resolve the first entry for an id.
func (r *MongoRepository) ApplyCompletion(ctx context.Context, userID string, update models.UserUpdate) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return ErrUserNotFound
	}

	push := bson.M{"completedChallenges": update.Completion}
	if update.ProgressTimestamp != nil {
		push["progressTimestamps"] = *update.ProgressTimestamp
	}

	doc := bson.M{"$push": push}
	if update.Timezone != "" {
		doc["$set"] = bson.M{"timezone": update.Timezone}
	}

	result, err := r.users.UpdateOne(ctx, bson.M{"_id": oid}, doc)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}

	return nil
}

// IncrementPoints atomically adds delta to the user's points
func (r *MongoRepository) IncrementPoints(ctx context.Context, userID string, delta int) (int, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, ErrUserNotFound
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"points": 1})

	var doc struct {
		Points int `bson:"points"`
	}
	err = r.users.FindOneAndUpdate(ctx, bson.M{"_id": oid}, bson.M{"$inc": bson.M{"points": delta}}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to increment points: %w", err)
	}

	return doc.Points, nil
}

// ListPoints returns users ordered by points
func (r *MongoRepository) ListPoints(ctx context.Context, limit int) ([]models.PointsEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "points", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"username": 1, "points": 1})

	cursor, err := r.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list points: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []models.PointsEntry
	for cursor.Next(ctx) {
		var doc struct {
			ID       primitive.ObjectID `bson:"_id"`
			Username string             `bson:"username"`
			Points   int                `bson:"points"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}
		entries = append(entries, models.PointsEntry{
			UserID:   doc.ID.Hex(),
			Username: doc.Username,
			Points:   float64(doc.Points),
		})
	}

	return entries, cursor.Err()
}
