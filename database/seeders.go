package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"preventanyl/interfaces"
	"preventanyl/models"
)

// SeedTargets are the stores the seeders write to. Kits may live outside
// MongoDB, so they go through the configured kit store.
type SeedTargets struct {
	DB   *mongo.Database
	Kits interfaces.KitStore

	AdminEmail    string
	AdminPassword string
}

// Seeder represents a database seeder
type Seeder struct {
	Name        string
	Description string
	Seed        func(ctx context.Context, targets SeedTargets) error
}

var seeders = []Seeder{
	{
		Name:        "admin_user",
		Description: "Create the administrator account",
		Seed:        seedAdminUser,
	},
	{
		Name:        "demo_kits",
		Description: "Create demo naloxone kits around Vancouver",
		Seed:        seedDemoKits,
	},
}

// DemoKits are the kits the demo_kits seeder creates.
func DemoKits() []models.Kit {
	return []models.Kit{
		{
			Title:       "Insite",
			Description: "Supervised consumption site. Naloxone kits and training at the front desk.",
			Latitude:    49.281225,
			Longitude:   -123.100934,
			Address: models.KitAddress{
				Street:     "139 E Hastings St",
				City:       "Vancouver",
				Province:   "BC",
				PostalCode: "V6A 1N5",
				Country:    "Canada",
			},
			Phone: "604-687-7483",
		},
		{
			Title:       "Main Street Pharmacy",
			Description: "Take-home naloxone available from the pharmacist.",
			Latitude:    49.262627,
			Longitude:   -123.100487,
			Address: models.KitAddress{
				Street:   "2590 Main St",
				City:     "Vancouver",
				Province: "BC",
				Country:  "Canada",
			},
		},
		{
			Title:       "Commercial Drive Community Centre",
			Description: "Kit mounted beside the first aid station in the lobby.",
			Latitude:    49.269452,
			Longitude:   -123.069638,
			Address: models.KitAddress{
				Street:   "1661 Napier St",
				City:     "Vancouver",
				Province: "BC",
				Country:  "Canada",
			},
		},
		{
			Title:       "Kitsilano Beach Lifeguard Station",
			Description: "Ask any lifeguard on duty.",
			Latitude:    49.273376,
			Longitude:   -123.153930,
			Address: models.KitAddress{
				City:     "Vancouver",
				Province: "BC",
				Country:  "Canada",
			},
		},
	}
}

// RunSeeders executes every seeder that has not been recorded yet.
func RunSeeders(ctx context.Context, targets SeedTargets) error {
	seedersCol := targets.DB.Collection("seeders")

	logrus.Info("🌱 Running database seeders...")

	for _, seeder := range seeders {
		count, err := seedersCol.CountDocuments(ctx, bson.M{"name": seeder.Name})
		if err == nil && count > 0 {
			logrus.Debugf("Seeder %s already run, skipping", seeder.Name)
			continue
		}

		logrus.Infof("🔄 Running seeder: %s", seeder.Name)

		if err := seeder.Seed(ctx, targets); err != nil {
			logrus.Errorf("❌ Seeder %s failed: %v", seeder.Name, err)
			continue
		}

		_, err = seedersCol.InsertOne(ctx, bson.M{
			"name":      seeder.Name,
			"createdAt": time.Now(),
		})
		if err != nil {
			logrus.Warnf("Failed to record seeder %s: %v", seeder.Name, err)
		}

		logrus.Infof("✅ Seeder %s completed", seeder.Name)
	}

	logrus.Info("🌱 All seeders completed")
	return nil
}

func seedAdminUser(ctx context.Context, targets SeedTargets) error {
	if targets.AdminEmail == "" || targets.AdminPassword == "" {
		logrus.Warn("ADMIN_EMAIL or ADMIN_PASSWORD not set, no administrator created")
		return nil
	}

	usersCol := targets.DB.Collection("users")

	count, err := usersCol.CountDocuments(ctx, bson.M{"email": targets.AdminEmail})
	if err == nil && count > 0 {
		return nil
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(targets.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	admin := models.User{
		ID:           primitive.NewObjectID(),
		Email:        targets.AdminEmail,
		PasswordHash: string(hashedPassword),
		Name:         "Administrator",
		Role:         models.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := usersCol.InsertOne(ctx, admin); err != nil {
		return fmt.Errorf("failed to insert admin: %w", err)
	}
	return nil
}

func seedDemoKits(ctx context.Context, targets SeedTargets) error {
	if targets.Kits == nil {
		return fmt.Errorf("no kit store configured")
	}

	existing, err := targets.Kits.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list kits: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	for _, kit := range DemoKits() {
		kit := kit
		kit.CreatedBy = "seed"
		if err := targets.Kits.Create(ctx, &kit); err != nil {
			return fmt.Errorf("failed to create kit %q: %w", kit.Title, err)
		}
	}
	return nil
}
