package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"preventanyl/config"
	"preventanyl/database"
	"preventanyl/interfaces"
	"preventanyl/repositories"
	"preventanyl/services"
	"preventanyl/utils"
)

// app holds the stores and services every command shares.
type app struct {
	cfg      *config.Config
	db       *mongo.Database
	redis    *redis.Client
	firebase *config.FirebaseClients

	users      *repositories.UserRepository
	devices    *repositories.DeviceRepository
	dispatches *repositories.DispatchRepository
	kitStore   interfaces.KitStore

	push       *services.FCMDispatcher
	dispatcher interfaces.Dispatcher
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.RunMigrations(db); err != nil {
		logrus.Warnf("Migration warning: %v", err)
	}

	redisClient := config.InitRedis(cfg)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logrus.Warnf("Redis not reachable at startup: %v", err)
	}

	fb, err := config.InitFirebase(ctx, cfg)
	if err != nil {
		logrus.Errorf("Failed to initialize Firebase: %v", err)
	}

	a := &app{
		cfg:        cfg,
		db:         db,
		redis:      redisClient,
		firebase:   fb,
		users:      repositories.NewUserRepository(db),
		devices:    repositories.NewDeviceRepository(redisClient, cfg.PositionTTL, cfg.ConnectionTTL, cfg.CooldownTTL),
		dispatches: repositories.NewDispatchRepository(db),
		push:       fb.PushDispatcher(),
	}

	if cfg.UseFirestore && fb != nil && fb.Firestore != nil {
		logrus.Infof("Kits served from Firestore collection %q", cfg.FirestoreCollection)
		a.kitStore = repositories.NewFirestoreKitRepository(fb.Firestore, cfg.FirestoreCollection)
	} else {
		if cfg.UseFirestore {
			logrus.Warn("Firestore requested but unavailable, kits served from MongoDB")
		}
		a.kitStore = repositories.NewKitRepository(db, redisClient, cfg.KitResyncInterval)
	}

	a.dispatcher = config.BuildDispatcher(cfg, a.push, a.users, a.dispatches)
	return a, nil
}

// topics is nil when push is not configured.
func (a *app) topics() services.TopicSubscriber {
	if a.push == nil {
		return nil
	}
	return a.push
}

func (a *app) jwtService() *utils.JWTService {
	return utils.NewJWTService(a.cfg.JWTSecret, a.cfg.AccessTokenTTL, a.cfg.RefreshTokenTTL)
}

func (a *app) Close() {
	a.firebase.Close()
	if err := a.redis.Close(); err != nil {
		logrus.Warnf("Failed to close Redis: %v", err)
	}
	_ = database.Disconnect()
}
