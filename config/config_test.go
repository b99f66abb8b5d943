package config

import (
	"context"
	"reflect"
	"testing"
	"time"

	"preventanyl/services"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HELP_COOLDOWN", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg := Load()

	if cfg.HelpCooldown != 10*time.Minute {
		t.Errorf("HelpCooldown = %v", cfg.HelpCooldown)
	}
	if cfg.HelpCountdownSeconds != 5 {
		t.Errorf("HelpCountdownSeconds = %d", cfg.HelpCountdownSeconds)
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"*"}) {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HELP_COOLDOWN", "15m")
	t.Setenv("HELP_COUNTDOWN_SECONDS", "3")
	t.Setenv("DISPATCH_TIMEOUT", "45")
	t.Setenv("USE_FIRESTORE", "true")
	t.Setenv("CORS_ORIGINS", "https://preventanyl.app, *.preventanyl.app ,")
	t.Setenv("WS_MESSAGES_PER_SECOND", "2.5")
	t.Setenv("ENVIRONMENT", "production")

	cfg := Load()

	if cfg.HelpCooldown != 15*time.Minute {
		t.Errorf("HelpCooldown = %v", cfg.HelpCooldown)
	}
	if cfg.DispatchTimeout != 45*time.Second {
		t.Errorf("DispatchTimeout = %v", cfg.DispatchTimeout)
	}
	if !cfg.UseFirestore {
		t.Error("UseFirestore should be true")
	}
	if !reflect.DeepEqual(cfg.CORSOrigins, []string{"https://preventanyl.app", "*.preventanyl.app"}) {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.WSMessagesPerSecond != 2.5 {
		t.Errorf("WSMessagesPerSecond = %v", cfg.WSMessagesPerSecond)
	}
	if !cfg.IsProduction() {
		t.Error("IsProduction should be true")
	}

	wc := cfg.HelpWorkflowConfig()
	if wc.Cooldown != 15*time.Minute || wc.CountdownSeconds != 3 || wc.DispatchTimeout != 45*time.Second {
		t.Errorf("HelpWorkflowConfig = %+v", wc)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("HELP_COUNTDOWN_SECONDS", "five")
	t.Setenv("HELP_TICK_INTERVAL", "soon")

	cfg := Load()
	if cfg.HelpCountdownSeconds != 5 || cfg.HelpTickInterval != time.Second {
		t.Errorf("malformed values should fall back: %d %v", cfg.HelpCountdownSeconds, cfg.HelpTickInterval)
	}
}

func TestInitRedisFallsBack(t *testing.T) {
	client := InitRedis(&Config{RedisURL: "not a url"})
	defer client.Close()

	if client.Options().Addr != "localhost:6379" {
		t.Errorf("Addr = %q", client.Options().Addr)
	}
}

func TestBuildDispatcherWithoutChannels(t *testing.T) {
	d := BuildDispatcher(&Config{}, nil, nil, nil)
	if _, ok := d.(services.LogDispatcher); !ok {
		t.Errorf("dispatcher = %T, want LogDispatcher", d)
	}
}

func TestInitFirebaseDisabled(t *testing.T) {
	clients, err := InitFirebase(context.Background(), &Config{})
	if err != nil || clients != nil {
		t.Errorf("InitFirebase() = %v, %v", clients, err)
	}
	// nil clients are safe to use
	if clients.PushDispatcher() != nil {
		t.Error("PushDispatcher should be nil")
	}
	clients.Close()
}
