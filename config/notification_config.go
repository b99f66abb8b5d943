package config

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"preventanyl/interfaces"
	"preventanyl/services"
)

// FirebaseClients holds the Firebase products the server uses. Any field may
// be nil when the product could not be initialized.
type FirebaseClients struct {
	App       *firebase.App
	Messaging *messaging.Client
	Firestore *firestore.Client
}

// Close releases the Firestore connection.
func (fc *FirebaseClients) Close() {
	if fc == nil || fc.Firestore == nil {
		return
	}
	if err := fc.Firestore.Close(); err != nil {
		logrus.Warnf("Failed to close Firestore client: %v", err)
	}
}

// InitFirebase initializes the Firebase app. With no credentials file it
// returns (nil, nil) unless a project ID is set, in which case default
// application credentials are used.
func InitFirebase(ctx context.Context, cfg *Config) (*FirebaseClients, error) {
	if cfg.FirebaseCredentials == "" && cfg.FirebaseProjectID == "" {
		return nil, nil
	}

	var appConfig *firebase.Config
	if cfg.FirebaseProjectID != "" {
		appConfig = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}

	var opts []option.ClientOption
	if cfg.FirebaseCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseCredentials))
	}

	app, err := firebase.NewApp(ctx, appConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase: %w", err)
	}

	clients := &FirebaseClients{App: app}

	clients.Messaging, err = app.Messaging(ctx)
	if err != nil {
		logrus.Errorf("Failed to get FCM client: %v", err)
	}

	if cfg.UseFirestore {
		clients.Firestore, err = app.Firestore(ctx)
		if err != nil {
			logrus.Errorf("Failed to get Firestore client: %v", err)
		}
	}

	return clients, nil
}

// PushDispatcher returns the FCM dispatcher, or nil when messaging is
// unavailable.
func (fc *FirebaseClients) PushDispatcher() *services.FCMDispatcher {
	if fc == nil || fc.Messaging == nil {
		return nil
	}
	return services.NewFCMDispatcher(fc.Messaging)
}

// BuildDispatcher assembles the help broadcast chain: FCM and Twilio in
// parallel, every attempt recorded. With no channel configured the
// broadcast is only logged.
func BuildDispatcher(cfg *Config, push *services.FCMDispatcher, angels services.AngelDirectory, recorder services.DispatchRecorder) interfaces.Dispatcher {
	var channels []interfaces.Dispatcher

	if push != nil {
		channels = append(channels, push)
	} else {
		logrus.Warn("Firebase messaging not configured, push alerts disabled")
	}

	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioPhoneNumber != "" && angels != nil {
		sender := services.NewTwilioSMSSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)
		channels = append(channels, services.NewSMSDispatcher(sender, angels))
	} else {
		logrus.Warn("Twilio credentials not configured, SMS alerts disabled")
	}

	var dispatcher interfaces.Dispatcher
	switch len(channels) {
	case 0:
		dispatcher = services.LogDispatcher{}
	case 1:
		dispatcher = channels[0]
	default:
		dispatcher = services.NewMultiDispatcher(channels...)
	}

	if recorder != nil {
		dispatcher = services.NewRecordingDispatcher(dispatcher, recorder)
	}
	return dispatcher
}

// HelpWorkflowConfig maps the environment onto the workflow settings.
func (c *Config) HelpWorkflowConfig() services.HelpWorkflowConfig {
	wc := services.DefaultHelpWorkflowConfig()
	wc.Cooldown = c.HelpCooldown
	if c.HelpCountdownSeconds > 0 {
		wc.CountdownSeconds = c.HelpCountdownSeconds
	}
	if c.HelpTickInterval > 0 {
		wc.TickInterval = c.HelpTickInterval
	}
	if c.DispatchTimeout > 0 {
		wc.DispatchTimeout = c.DispatchTimeout
	}
	return wc
}
