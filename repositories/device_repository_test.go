package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"preventanyl/models"
)

func newTestDeviceRepository(t *testing.T) (*DeviceRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewDeviceRepository(client, time.Hour, 2*time.Minute, 24*time.Hour), mr
}

func TestDeviceRepository_Position(t *testing.T) {
	repo, mr := newTestDeviceRepository(t)
	ctx := context.Background()

	if _, found, err := repo.GetPosition(ctx, "d1"); err != nil || found {
		t.Fatalf("GetPosition() on empty = found %v, err %v", found, err)
	}

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	want := models.Position{Latitude: 49.28, Longitude: -123.12, Accuracy: 8, Timestamp: at}
	if err := repo.SavePosition(ctx, "d1", want); err != nil {
		t.Fatalf("SavePosition() error = %v", err)
	}

	got, found, err := repo.GetPosition(ctx, "d1")
	if err != nil || !found {
		t.Fatalf("GetPosition() = found %v, err %v", found, err)
	}
	if got.Latitude != want.Latitude || got.Longitude != want.Longitude || !got.Timestamp.Equal(at) {
		t.Errorf("GetPosition() = %+v, want %+v", got, want)
	}

	mr.FastForward(2 * time.Hour)
	if _, found, _ := repo.GetPosition(ctx, "d1"); found {
		t.Error("position survived its TTL")
	}
}

func TestDeviceRepository_Connection(t *testing.T) {
	repo, _ := newTestDeviceRepository(t)
	ctx := context.Background()

	state := models.ConnectionState{Connected: false, Type: models.ConnectionNone, UpdatedAt: time.Now().UTC()}
	if err := repo.SaveConnection(ctx, "d1", state); err != nil {
		t.Fatalf("SaveConnection() error = %v", err)
	}

	got, found, err := repo.GetConnection(ctx, "d1")
	if err != nil || !found {
		t.Fatalf("GetConnection() = found %v, err %v", found, err)
	}
	if got.Connected || got.Type != models.ConnectionNone {
		t.Errorf("GetConnection() = %+v", got)
	}
}

func TestDeviceRepository_Cooldown(t *testing.T) {
	repo, mr := newTestDeviceRepository(t)
	ctx := context.Background()

	if _, found, err := repo.LastHelpSuccess(ctx, "d1"); err != nil || found {
		t.Fatalf("LastHelpSuccess() on empty = found %v, err %v", found, err)
	}

	at := time.Date(2024, 3, 1, 12, 30, 15, 500, time.UTC)
	if err := repo.RecordHelpSuccess(ctx, "d1", at); err != nil {
		t.Fatalf("RecordHelpSuccess() error = %v", err)
	}

	got, found, err := repo.LastHelpSuccess(ctx, "d1")
	if err != nil || !found {
		t.Fatalf("LastHelpSuccess() = found %v, err %v", found, err)
	}
	if !got.Equal(at) {
		t.Errorf("LastHelpSuccess() = %v, want %v", got, at)
	}

	mr.Set(cooldownKey("d2"), "not-a-number")
	if _, _, err := repo.LastHelpSuccess(ctx, "d2"); err == nil {
		t.Error("expected error for corrupt cooldown value")
	}
}
