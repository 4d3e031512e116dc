// Package database provides MongoDB connection management.
package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/citysignal/citysignal/internal/comment"
	"github.com/citysignal/citysignal/internal/signal"
	"github.com/citysignal/citysignal/internal/subscription"
)

// Config holds database connection configuration.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	timeout, _ := time.ParseDuration(getEnvOrDefault("MONGO_CONNECT_TIMEOUT", "10s"))

	var poolSize uint64
	_, _ = fmt.Sscanf(getEnvOrDefault("MONGO_MAX_POOL_SIZE", "20"), "%d", &poolSize)

	return Config{
		URI:            getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		Database:       getEnvOrDefault("MONGO_DB", "citysignal"),
		ConnectTimeout: timeout,
		MaxPoolSize:    poolSize,
	}
}

// Connect creates a new MongoDB client and verifies connectivity.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize)

	cctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(cctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	// Verify connection
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	return client, client.Database(cfg.Database), nil
}

// EnsureIndexes creates the indexes the queries depend on. Index
// creation is idempotent in MongoDB.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ictx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	signals := db.Collection(signal.SignalsCollection)
	signalIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "geo", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "level", Value: -1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	if _, err := signals.Indexes().CreateMany(ictx, signalIndexes); err != nil {
		return fmt.Errorf("creating signal indexes: %w", err)
	}

	subs := db.Collection(subscription.SubscriptionsCollection)
	subIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "geo", Value: "2dsphere"}}},
		{
			Keys:    bson.D{{Key: "endpoint", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "active", Value: 1}}},
	}
	if _, err := subs.Indexes().CreateMany(ictx, subIndexes); err != nil {
		return fmt.Errorf("creating subscription indexes: %w", err)
	}

	comments := db.Collection(comment.CommentsCollection)
	commentIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "signalId", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	if _, err := comments.Indexes().CreateMany(ictx, commentIndexes); err != nil {
		return fmt.Errorf("creating comment indexes: %w", err)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
