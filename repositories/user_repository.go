package repositories

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"preventanyl/models"
	"preventanyl/utils"
)

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		collection: db.Collection("users"),
	}
}

func (ur *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = primitive.NewObjectID()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	user.IsActive = true

	_, err := ur.collection.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return utils.NewConflictError("User with this email already exists")
	}
	return err
}

func (ur *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, utils.NewBadRequestError("Invalid user ID")
	}

	var user models.User
	err = ur.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NewUserNotFoundError()
		}
		return nil, err
	}

	return &user, nil
}

func (ur *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := ur.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NewUserNotFoundError()
		}
		return nil, err
	}

	return &user, nil
}

func (ur *UserRepository) Update(ctx context.Context, id string, update bson.M) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return utils.NewBadRequestError("Invalid user ID")
	}

	update["updatedAt"] = time.Now()
	result, err := ur.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return utils.NewUserNotFoundError()
	}
	return nil
}

func (ur *UserRepository) UpdateLastLogin(ctx context.Context, id string) error {
	return ur.Update(ctx, id, bson.M{"lastLoginAt": time.Now()})
}

// AddFCMToken records a push token for the user without duplicating it.
func (ur *UserRepository) AddFCMToken(ctx context.Context, id, token string) error {
	return ur.updateTokens(ctx, id, bson.M{"$addToSet": bson.M{"fcmTokens": token}})
}

func (ur *UserRepository) RemoveFCMToken(ctx context.Context, id, token string) error {
	return ur.updateTokens(ctx, id, bson.M{"$pull": bson.M{"fcmTokens": token}})
}

func (ur *UserRepository) updateTokens(ctx context.Context, id string, update bson.M) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return utils.NewBadRequestError("Invalid user ID")
	}

	update["$set"] = bson.M{"updatedAt": time.Now()}
	result, err := ur.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return utils.NewUserNotFoundError()
	}
	return nil
}

// SMSRecipients lists the phone numbers of active angels who opted into
// SMS help alerts.
func (ur *UserRepository) SMSRecipients(ctx context.Context) ([]string, error) {
	filter := bson.M{
		"role":      models.RoleAngel,
		"isActive":  true,
		"smsAlerts": true,
		"phone":     bson.M{"$nin": bson.A{"", nil}},
	}
	opts := options.Find().SetProjection(bson.M{"phone": 1})

	cursor, err := ur.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}

	phones := make([]string, 0, len(users))
	for _, user := range users {
		phones = append(phones, user.Phone)
	}
	return phones, nil
}

func (ur *UserRepository) CountByRole(ctx context.Context, role string) (int64, error) {
	return ur.collection.CountDocuments(ctx, bson.M{"role": role, "isActive": true})
}

func (ur *UserRepository) CreateIndexes(ctx context.Context) error {
	_, err := ur.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "smsAlerts", Value: 1}}},
	})
	return err
}
