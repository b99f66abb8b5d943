package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"preventanyl/config"
	"preventanyl/controllers"
	"preventanyl/database"
	"preventanyl/middleware"
	"preventanyl/models"
	"preventanyl/routes"
	"preventanyl/services"
	"preventanyl/utils"
	"preventanyl/websocket"
	"preventanyl/workers"
)

func newServeCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if !cfg.IsProduction() {
		if err := database.RunSeeders(ctx, a.seedTargets()); err != nil {
			logrus.Warnf("Seeder warning: %v", err)
		}
	}

	// services live until shutdown, not until the signal
	serviceCtx, cancelServices := context.WithCancel(context.Background())
	defer cancelServices()

	clock := utils.SystemClock{}
	locations := services.NewLocationService(a.devices, clock, cfg.LocationMaxAge)
	connectivity := services.NewConnectivityService(a.devices, clock)
	kits := services.NewKitService(a.kitStore)
	kits.Start(serviceCtx)

	hub := websocket.NewHub(websocket.HubConfig{
		MessagesPerSecond: cfg.WSMessagesPerSecond,
		Burst:             cfg.WSBurst,
		IdleTimeout:       cfg.WSIdleTimeout,
		AllowedOrigins:    cfg.CORSOrigins,
	})

	help := services.NewHelpService(serviceCtx, services.HelpServiceOptions{
		Config:       cfg.HelpWorkflowConfig(),
		Dispatcher:   a.dispatcher,
		Connectivity: connectivity,
		Locations:    locations,
		Cooldowns:    a.devices,
		Messenger:    hub,
		Clock:        clock,
	})
	defer help.Shutdown()

	hub.SetSessionFactory(services.NewSessionManager(locations, connectivity, kits, help))
	go hub.Run()
	defer hub.Shutdown()

	cleanupConfig := workers.DefaultCleanupWorkerConfig()
	cleanupConfig.WorkflowIdleTimeout = cfg.HelpIdleTimeout
	cleanupConfig.DispatchRetentionDays = cfg.DispatchRetentionDays
	cleanup, err := workers.StartCleanupWorker(help, a.dispatches, cleanupConfig)
	if err != nil {
		return fmt.Errorf("start cleanup worker: %w", err)
	}
	defer cleanup.Stop()

	jwtService := a.jwtService()
	authMiddleware := middleware.NewAuthMiddleware(jwtService, a.users)

	health := controllers.NewHealthController(cfg.Version, map[string]controllers.HealthCheck{
		"mongodb": database.Ping,
		"redis": func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		},
	}, func() interface{} {
		return map[string]interface{}{
			"websocket":       hub.GetStats(),
			"activeWorkflows": help.ActiveWorkflows(),
			"kitSubscribers":  kits.SubscriberCount(),
			"cleanup": map[string]interface{}{
				"stats": cleanup.GetStats(),
				"tasks": cleanup.GetTasks(),
			},
		}
	})

	router := routes.SetupRoutes(&routes.Controllers{
		Auth:      controllers.NewAuthController(services.NewAuthService(a.users, jwtService, a.topics())),
		Kit:       controllers.NewKitController(kits),
		Help:      controllers.NewHelpController(help, a.dispatches, a.users),
		Device:    controllers.NewDeviceController(locations, connectivity),
		WebSocket: controllers.NewWebSocketController(hub, authMiddleware),
		Health:    health,
	}, routes.Options{
		Environment:           cfg.Environment,
		CORSOrigins:           cfg.CORSOrigins,
		Redis:                 a.redis,
		Auth:                  authMiddleware,
		APIRequestsPerMinute:  cfg.RateLimitRequest,
		HelpRequestsPerMinute: cfg.HelpRateLimitRequest,
	})

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		logrus.Info("🚀 Preventanyl server starting on port ", cfg.Port)
		logrus.Info("📱 WebSocket endpoint: /ws")
		logrus.Info("💖 Health Check: /health")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logrus.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logrus.Info("✅ Server shutdown complete")
	return nil
}

func newSeedCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Run migrations and seed the administrator and demo kits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return database.RunSeeders(ctx, a.seedTargets())
		},
	}
}

func newNotifyAngelsCommand(cfg *config.Config) *cobra.Command {
	var (
		deviceID  string
		latitude  float64
		longitude float64
		withPos   bool
	)

	cmd := &cobra.Command{
		Use:   "notify-angels",
		Short: "Send a help alert to the angels audience through the configured channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.DispatchTimeout)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			alert := models.HelpAlert{
				DeviceID:    utils.NormalizeDeviceID(deviceID),
				RequestedAt: time.Now(),
			}
			if withPos {
				if !utils.IsValidCoordinate(latitude, longitude) {
					return fmt.Errorf("invalid coordinate %f,%f", latitude, longitude)
				}
				alert.Position = &models.Position{
					Latitude:  latitude,
					Longitude: longitude,
					Timestamp: alert.RequestedAt,
				}
			}

			result, err := a.dispatcher.NotifyAll(ctx, models.AudienceAngels, alert)
			if err != nil {
				return fmt.Errorf("notify angels: %w", err)
			}

			logrus.WithFields(logrus.Fields{
				"channels":  result.Channels,
				"delivered": result.Delivered,
			}).Info(utils.NotifyTitle)
			return nil
		},
	}

	cmd.Flags().StringVar(&deviceID, "device", "cli", "device ID recorded with the alert")
	cmd.Flags().Float64Var(&latitude, "lat", 0, "latitude to share")
	cmd.Flags().Float64Var(&longitude, "lng", 0, "longitude to share")
	cmd.Flags().BoolVar(&withPos, "with-position", false, "attach --lat/--lng to the alert")
	return cmd
}

func (a *app) seedTargets() database.SeedTargets {
	return database.SeedTargets{
		DB:            a.db,
		Kits:          a.kitStore,
		AdminEmail:    utils.NormalizeEmail(a.cfg.AdminEmail),
		AdminPassword: a.cfg.AdminPassword,
	}
}
