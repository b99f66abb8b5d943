package repositories

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"preventanyl/models"
	"preventanyl/utils"
)

// KitChangedChannel is the Redis channel announcing kit writes.
const KitChangedChannel = "preventanyl:kits:changed"

// KitRepository stores kits in MongoDB. Writes are announced on Redis so
// every server instance can refresh its kit feed.
type KitRepository struct {
	collection     *mongo.Collection
	redis          *redis.Client
	resyncInterval time.Duration

	list func(ctx context.Context) ([]models.Kit, error)
}

// NewKitRepository creates the store. client may be nil, in which case
// watchers only see changes on the periodic resync.
func NewKitRepository(db *mongo.Database, client *redis.Client, resyncInterval time.Duration) *KitRepository {
	if resyncInterval <= 0 {
		resyncInterval = time.Minute
	}
	kr := &KitRepository{
		collection:     db.Collection("kits"),
		redis:          client,
		resyncInterval: resyncInterval,
	}
	kr.list = kr.List
	return kr
}

func (kr *KitRepository) List(ctx context.Context) ([]models.Kit, error) {
	opts := options.Find().SetSort(bson.D{{Key: "title", Value: 1}})
	cursor, err := kr.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	kits := []models.Kit{}
	err = cursor.All(ctx, &kits)
	return kits, err
}

func (kr *KitRepository) Get(ctx context.Context, id string) (*models.Kit, error) {
	var kit models.Kit
	err := kr.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&kit)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, utils.NewKitNotFoundError()
		}
		return nil, err
	}
	return &kit, nil
}

func (kr *KitRepository) Create(ctx context.Context, kit *models.Kit) error {
	if kit.ID == "" {
		kit.ID = primitive.NewObjectID().Hex()
	}
	now := time.Now()
	kit.CreatedAt = now
	kit.UpdatedAt = now

	if _, err := kr.collection.InsertOne(ctx, kit); err != nil {
		return err
	}
	kr.publishChange(ctx, kit.ID)
	return nil
}

func (kr *KitRepository) Update(ctx context.Context, kit *models.Kit) error {
	kit.UpdatedAt = time.Now()

	result, err := kr.collection.ReplaceOne(ctx, bson.M{"_id": kit.ID}, kit)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return utils.NewKitNotFoundError()
	}
	kr.publishChange(ctx, kit.ID)
	return nil
}

func (kr *KitRepository) Delete(ctx context.Context, id string) error {
	result, err := kr.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return utils.NewKitNotFoundError()
	}
	kr.publishChange(ctx, id)
	return nil
}

// Watch emits the full kit list once, then again after every announced
// change and on each resync tick, until ctx is done.
func (kr *KitRepository) Watch(ctx context.Context, emit func([]models.Kit)) error {
	var changes <-chan *redis.Message
	if kr.redis != nil {
		pubsub := kr.redis.Subscribe(ctx, KitChangedChannel)
		defer pubsub.Close()

		if _, err := pubsub.Receive(ctx); err != nil {
			return err
		}
		changes = pubsub.Channel()
	}

	kits, err := kr.list(ctx)
	if err != nil {
		return err
	}
	emit(kits)

	ticker := time.NewTicker(kr.resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
		case <-ticker.C:
		}

		kits, err := kr.list(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		emit(kits)
	}
}

// CreateIndexes creates the indexes the kit queries rely on.
func (kr *KitRepository) CreateIndexes(ctx context.Context) error {
	_, err := kr.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "title", Value: 1}}},
		{Keys: bson.D{{Key: "latitude", Value: 1}, {Key: "longitude", Value: 1}}},
	})
	return err
}

func (kr *KitRepository) publishChange(ctx context.Context, kitID string) {
	if kr.redis == nil {
		return
	}
	if err := kr.redis.Publish(ctx, KitChangedChannel, kitID).Err(); err != nil {
		logrus.Warnf("Failed to publish kit change for %s: %v", kitID, err)
	}
}
