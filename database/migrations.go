package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"preventanyl/repositories"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, db *mongo.Database) error
}

// migrationRecord tracks applied migrations
type migrationRecord struct {
	Version   int       `bson:"version"`
	AppliedAt time.Time `bson:"appliedAt"`
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Create users collection with indexes",
		Up: func(ctx context.Context, db *mongo.Database) error {
			return repositories.NewUserRepository(db).CreateIndexes(ctx)
		},
	},
	{
		Version:     2,
		Description: "Create kits collection with indexes",
		Up: func(ctx context.Context, db *mongo.Database) error {
			return repositories.NewKitRepository(db, nil, 0).CreateIndexes(ctx)
		},
	},
	{
		Version:     3,
		Description: "Create help dispatch history with indexes",
		Up: func(ctx context.Context, db *mongo.Database) error {
			return repositories.NewDispatchRepository(db).CreateIndexes(ctx)
		},
	},
}

// RunMigrations executes all pending migrations
func RunMigrations(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	migrationsCol := db.Collection("migrations")

	currentVersion := getCurrentMigrationVersion(ctx, migrationsCol)
	logrus.Infof("📋 Current migration version: %d", currentVersion)

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		logrus.Infof("🔄 Running migration %d: %s", migration.Version, migration.Description)

		if err := migration.Up(ctx, db); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		_, err := migrationsCol.InsertOne(ctx, migrationRecord{
			Version:   migration.Version,
			AppliedAt: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		logrus.Infof("✅ Migration %d completed", migration.Version)
	}

	return nil
}

func getCurrentMigrationVersion(ctx context.Context, col *mongo.Collection) int {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	var record migrationRecord
	if err := col.FindOne(ctx, bson.D{}, opts).Decode(&record); err != nil {
		return 0 // No migrations applied yet
	}
	return record.Version
}
