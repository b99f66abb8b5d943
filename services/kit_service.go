package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"preventanyl/interfaces"
	"preventanyl/models"
	"preventanyl/utils"
)

// KitService owns kit CRUD and a single process-wide watch on the kit store
// whose snapshots are fanned out to map sessions.
type KitService struct {
	store        interfaces.KitStore
	validator    *utils.ValidationService
	retryBackoff time.Duration

	mu          sync.Mutex
	subscribers map[uint64]*KitSubscription
	nextID      uint64
	latest      []models.Kit
	hasLatest   bool
	running     bool
}

func NewKitService(store interfaces.KitStore) *KitService {
	return &KitService{
		store:        store,
		validator:    utils.NewValidationService(),
		retryBackoff: 5 * time.Second,
		subscribers:  make(map[uint64]*KitSubscription),
	}
}

// ==================== CRUD ====================

func (ks *KitService) ListKits(ctx context.Context) ([]models.Kit, error) {
	kits, err := ks.store.List(ctx)
	if err != nil {
		return nil, utils.NewDatabaseError("list kits", err)
	}
	return kits, nil
}

func (ks *KitService) GetKit(ctx context.Context, kitID string) (*models.Kit, error) {
	if strings.TrimSpace(kitID) == "" {
		return nil, utils.NewBadRequestError("Kit ID is required")
	}
	return ks.store.Get(ctx, kitID)
}

func (ks *KitService) CreateKit(ctx context.Context, userID string, req models.CreateKitRequest) (*models.Kit, error) {
	if errs := ks.validator.ValidateStruct(req); len(errs) > 0 {
		return nil, utils.NewBadRequestError(errs[0].Message)
	}

	kit := &models.Kit{
		Title:       utils.SanitizeInput(req.Title),
		Description: strings.TrimSpace(req.Description),
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Address:     req.Address,
		Phone:       req.Phone,
		CreatedBy:   userID,
	}

	if err := ks.store.Create(ctx, kit); err != nil {
		if _, ok := utils.GetServiceError(err); ok {
			return nil, err
		}
		return nil, utils.NewDatabaseError("create kit", err)
	}

	logrus.Infof("Kit %s created by %s", kit.ID, userID)
	return kit, nil
}

func (ks *KitService) UpdateKit(ctx context.Context, userID, role, kitID string, req models.UpdateKitRequest) (*models.Kit, error) {
	if errs := ks.validator.ValidateStruct(req); len(errs) > 0 {
		return nil, utils.NewBadRequestError(errs[0].Message)
	}

	kit, err := ks.store.Get(ctx, kitID)
	if err != nil {
		return nil, err
	}
	if !canModifyKit(kit, userID, role) {
		return nil, utils.NewForbiddenError("Only the reporter or an admin can change this kit")
	}

	if req.Title != nil {
		kit.Title = utils.SanitizeInput(*req.Title)
	}
	if req.Description != nil {
		kit.Description = strings.TrimSpace(*req.Description)
	}
	if req.Latitude != nil {
		kit.Latitude = *req.Latitude
	}
	if req.Longitude != nil {
		kit.Longitude = *req.Longitude
	}
	if req.Address != nil {
		kit.Address = *req.Address
	}
	if req.Phone != nil {
		kit.Phone = *req.Phone
	}

	if err := ks.store.Update(ctx, kit); err != nil {
		if _, ok := utils.GetServiceError(err); ok {
			return nil, err
		}
		return nil, utils.NewDatabaseError("update kit", err)
	}
	return kit, nil
}

func (ks *KitService) DeleteKit(ctx context.Context, userID, role, kitID string) error {
	kit, err := ks.store.Get(ctx, kitID)
	if err != nil {
		return err
	}
	if !canModifyKit(kit, userID, role) {
		return utils.NewForbiddenError("Only the reporter or an admin can delete this kit")
	}

	if err := ks.store.Delete(ctx, kitID); err != nil {
		if _, ok := utils.GetServiceError(err); ok {
			return err
		}
		return utils.NewDatabaseError("delete kit", err)
	}

	logrus.Infof("Kit %s deleted by %s", kitID, userID)
	return nil
}

func canModifyKit(kit *models.Kit, userID, role string) bool {
	return role == models.RoleAdmin || (kit.CreatedBy != "" && kit.CreatedBy == userID)
}

// ==================== FEED ====================

// Start runs the store watch until ctx is done, restarting it after errors.
// Calling Start again while it runs is a no-op.
func (ks *KitService) Start(ctx context.Context) {
	ks.mu.Lock()
	if ks.running {
		ks.mu.Unlock()
		return
	}
	ks.running = true
	ks.mu.Unlock()

	go func() {
		defer func() {
			ks.mu.Lock()
			ks.running = false
			ks.mu.Unlock()
		}()

		for {
			err := ks.store.Watch(ctx, ks.publish)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logrus.Errorf("Kit watch failed, retrying in %s: %v", ks.retryBackoff, err)
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(ks.retryBackoff):
			}
		}
	}()
}

func (ks *KitService) publish(kits []models.Kit) {
	snapshot := append([]models.Kit(nil), kits...)

	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.latest = snapshot
	ks.hasLatest = true
	for _, sub := range ks.subscribers {
		sub.deliver(snapshot)
	}
}

// Subscribe registers for kit snapshots. The latest snapshot, when one
// exists, is delivered immediately.
func (ks *KitService) Subscribe() *KitSubscription {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.nextID++
	sub := &KitSubscription{
		id:      ks.nextID,
		service: ks,
		ch:      make(chan []models.Kit, 1),
	}
	ks.subscribers[sub.id] = sub
	if ks.hasLatest {
		sub.deliver(ks.latest)
	}
	return sub
}

func (ks *KitService) unsubscribe(id uint64) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if sub, ok := ks.subscribers[id]; ok {
		delete(ks.subscribers, id)
		close(sub.ch)
	}
}

func (ks *KitService) SubscriberCount() int {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return len(ks.subscribers)
}

// KitSubscription receives kit snapshots. A slow reader only ever sees the
// newest snapshot.
type KitSubscription struct {
	id      uint64
	service *KitService
	ch      chan []models.Kit
	once    sync.Once
}

func (s *KitSubscription) Snapshots() <-chan []models.Kit {
	return s.ch
}

// Close stops delivery and closes the Snapshots channel.
func (s *KitSubscription) Close() {
	s.once.Do(func() {
		s.service.unsubscribe(s.id)
	})
}

// deliver must be called with the service lock held.
func (s *KitSubscription) deliver(kits []models.Kit) {
	select {
	case <-s.ch:
	default:
	}
	s.ch <- kits
}
