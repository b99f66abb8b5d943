package repositories

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"preventanyl/models"
)

// countingList serves a fresh kit list on every call, tagged with the call number.
type countingList struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (l *countingList) List(context.Context) ([]models.Kit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil && l.calls > 1 {
		return nil, l.err
	}
	return []models.Kit{{ID: fmt.Sprintf("load-%d", l.calls), Title: "Insite"}}, nil
}

func newWatchedKitRepository(t *testing.T, withRedis bool, resync time.Duration) (*KitRepository, *countingList) {
	t.Helper()
	source := &countingList{}
	repo := &KitRepository{resyncInterval: resync, list: source.List}
	if withRedis {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		repo.redis = client
	}
	return repo, source
}

func startWatch(t *testing.T, repo *KitRepository) (<-chan []models.Kit, <-chan error, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	emitted := make(chan []models.Kit, 8)
	done := make(chan error, 1)
	go func() {
		done <- repo.Watch(ctx, func(kits []models.Kit) { emitted <- kits })
	}()
	return emitted, done, cancel
}

func nextKits(t *testing.T, emitted <-chan []models.Kit) []models.Kit {
	t.Helper()
	select {
	case kits := <-emitted:
		return kits
	case <-time.After(2 * time.Second):
		t.Fatal("no kit list emitted")
		return nil
	}
}

func TestKitRepository_WatchReloadsOnPublish(t *testing.T) {
	repo, _ := newWatchedKitRepository(t, true, time.Hour)
	emitted, done, cancel := startWatch(t, repo)

	if kits := nextKits(t, emitted); len(kits) != 1 || kits[0].ID != "load-1" {
		t.Fatalf("initial kits = %+v", kits)
	}

	repo.publishChange(context.Background(), "insite")
	if kits := nextKits(t, emitted); kits[0].ID != "load-2" {
		t.Errorf("kits after publish = %+v", kits)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop on cancel")
	}
}

func TestKitRepository_WatchResyncs(t *testing.T) {
	repo, _ := newWatchedKitRepository(t, false, 20*time.Millisecond)
	emitted, _, _ := startWatch(t, repo)

	nextKits(t, emitted)
	if kits := nextKits(t, emitted); kits[0].ID != "load-2" {
		t.Errorf("kits after resync = %+v", kits)
	}
}

func TestKitRepository_WatchReloadFailure(t *testing.T) {
	repo, source := newWatchedKitRepository(t, false, 20*time.Millisecond)
	source.err = errors.New("mongo down")
	emitted, done, _ := startWatch(t, repo)

	nextKits(t, emitted)
	select {
	case err := <-done:
		if !errors.Is(err, source.err) {
			t.Errorf("Watch() error = %v, want %v", err, source.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch kept running after a failed reload")
	}
}

type storedKit struct {
	kit models.Kit
	err error
}

func (s storedKit) DataTo(p interface{}) error {
	if s.err != nil {
		return s.err
	}
	*p.(*models.Kit) = s.kit
	return nil
}

func TestDecodeKitsSkipsBadDocuments(t *testing.T) {
	kits := decodeKits([]kitSource{
		{id: "insite", data: storedKit{kit: models.Kit{Title: "Insite", Latitude: 49.28}}},
		{id: "broken", data: storedKit{err: errors.New("latitude: cannot convert string")}},
		{id: "overdose-prevention", data: storedKit{kit: models.Kit{ID: "stale", Title: "OPS"}}},
	})

	if len(kits) != 2 {
		t.Fatalf("kits = %+v, want 2", kits)
	}
	if kits[0].ID != "insite" || kits[0].Latitude != 49.28 {
		t.Errorf("first kit = %+v", kits[0])
	}
	if kits[1].ID != "overdose-prevention" {
		t.Errorf("document ID not applied: %+v", kits[1])
	}
}
