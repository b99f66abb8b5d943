package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultDatabaseName = "preventanyl"

var (
	client   *mongo.Client
	database *mongo.Database
)

// Connect establishes connection to MongoDB
func Connect(databaseURL string) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(databaseURL)

	// Configure connection pool
	clientOptions.SetMaxPoolSize(100)
	clientOptions.SetMinPoolSize(5)
	clientOptions.SetMaxConnIdleTime(30 * time.Second)
	clientOptions.SetRetryWrites(true)
	clientOptions.SetRetryReads(true)
	clientOptions.SetReadPreference(readpref.PrimaryPreferred())

	var err error
	client, err = mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := DatabaseName(databaseURL)
	database = client.Database(dbName)

	logrus.Info("✅ Connected to MongoDB successfully")
	logrus.Infof("📊 Database: %s", dbName)

	return database, nil
}

// Disconnect closes the MongoDB connection
func Disconnect() error {
	if client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		logrus.Errorf("Error disconnecting from MongoDB: %v", err)
		return err
	}

	logrus.Info("🔌 Disconnected from MongoDB")
	return nil
}

// Ping checks that the primary is reachable. It backs the /health check.
func Ping(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("database not initialized")
	}
	return client.Ping(ctx, readpref.Primary())
}

// DatabaseName extracts the database name from a MongoDB URI, falling back
// to the default when the path is empty or names the admin database.
func DatabaseName(uri string) string {
	for i := len(uri) - 1; i >= 0; i-- {
		if uri[i] != '/' {
			continue
		}
		if i > 0 && uri[i-1] == '/' {
			// scheme separator, no path
			break
		}
		dbName := uri[i+1:]
		for j, char := range dbName {
			if char == '?' || char == '&' {
				dbName = dbName[:j]
				break
			}
		}
		if dbName != "" && dbName != "admin" {
			return dbName
		}
		break
	}

	return defaultDatabaseName
}
