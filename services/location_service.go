package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"preventanyl/models"
	"preventanyl/repositories"
	"preventanyl/utils"
)

// LocationService stores device-reported positions and serves them as
// one-shot lookups or continuous watches.
type LocationService struct {
	deviceRepo *repositories.DeviceRepository
	clock      utils.Clock
	validator  *utils.ValidationService
	maxAge     time.Duration

	mu         sync.Mutex
	nextHandle models.WatchHandle
	watches    map[models.WatchHandle]*positionWatch
}

// NewLocationService creates the service. CurrentPosition treats positions
// older than maxAge as unavailable; zero disables the check.
func NewLocationService(deviceRepo *repositories.DeviceRepository, clock utils.Clock, maxAge time.Duration) *LocationService {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &LocationService{
		deviceRepo: deviceRepo,
		clock:      clock,
		validator:  utils.NewValidationService(),
		maxAge:     maxAge,
		watches:    make(map[models.WatchHandle]*positionWatch),
	}
}

// UpdatePosition stores a device fix and forwards it to the device's watches.
func (ls *LocationService) UpdatePosition(ctx context.Context, deviceID string, req models.UpdatePositionRequest) (*models.Position, error) {
	if deviceID == "" {
		return nil, utils.NewBadRequestError("Device ID is required")
	}
	if errs := ls.validator.ValidateStruct(req); len(errs) > 0 {
		return nil, utils.NewBadRequestError(errs[0].Message)
	}
	if !utils.IsValidCoordinate(req.Latitude, req.Longitude) {
		return nil, utils.NewBadRequestError("Invalid coordinates")
	}

	position := models.Position{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Accuracy:  req.Accuracy,
		Timestamp: ls.clock.Now(),
	}
	if req.Timestamp != nil && !req.Timestamp.IsZero() && req.Timestamp.Before(position.Timestamp) {
		position.Timestamp = *req.Timestamp
	}

	if err := ls.deviceRepo.SavePosition(ctx, deviceID, position); err != nil {
		return nil, utils.NewServiceErrorWithCause(utils.ErrCodeInternal, "Failed to store position", err)
	}

	ls.mu.Lock()
	for _, watch := range ls.watches {
		if watch.deviceID == deviceID {
			watch.offer(position)
		}
	}
	ls.mu.Unlock()

	return &position, nil
}

// CurrentPosition returns the last known fix, or ErrLocationUnavailable when
// there is none or it is stale.
func (ls *LocationService) CurrentPosition(ctx context.Context, deviceID string) (models.Position, error) {
	position, found, err := ls.deviceRepo.GetPosition(ctx, deviceID)
	if err != nil {
		logrus.Warnf("Failed to read position for %s: %v", deviceID, err)
		return models.Position{}, utils.ErrLocationUnavailable
	}
	if !found {
		return models.Position{}, utils.ErrLocationUnavailable
	}
	if ls.maxAge > 0 && ls.clock.Now().Sub(position.Timestamp) > ls.maxAge {
		return models.Position{}, utils.ErrLocationUnavailable
	}
	return position, nil
}

// WatchPosition follows a device. The channel yields the last known fix
// first, then every fix at least DistanceFilter meters from the previous one,
// and an ErrLocationUnavailable update whenever Timeout passes without a fix.
// It is closed after ClearWatch or when ctx is done.
func (ls *LocationService) WatchPosition(ctx context.Context, deviceID string, opts models.WatchOptions) (models.WatchHandle, <-chan models.PositionUpdate, error) {
	if deviceID == "" {
		return 0, nil, utils.NewBadRequestError("Device ID is required")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	watch := &positionWatch{
		deviceID: deviceID,
		opts:     opts,
		incoming: make(chan models.Position, 1),
		updates:  make(chan models.PositionUpdate, 1),
		cancel:   cancel,
	}

	ls.mu.Lock()
	ls.nextHandle++
	handle := ls.nextHandle
	watch.handle = handle
	ls.watches[handle] = watch
	ls.mu.Unlock()

	if position, found, err := ls.deviceRepo.GetPosition(ctx, deviceID); err == nil && found {
		watch.offer(position)
	}

	go func() {
		watch.run(watchCtx)
		ls.mu.Lock()
		delete(ls.watches, handle)
		ls.mu.Unlock()
	}()

	return handle, watch.updates, nil
}

// ClearWatch stops a watch. Unknown handles are ignored.
func (ls *LocationService) ClearWatch(handle models.WatchHandle) {
	ls.mu.Lock()
	watch, ok := ls.watches[handle]
	delete(ls.watches, handle)
	ls.mu.Unlock()

	if ok {
		watch.cancel()
	}
}

func (ls *LocationService) ActiveWatches() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.watches)
}

type positionWatch struct {
	handle   models.WatchHandle
	deviceID string
	opts     models.WatchOptions
	incoming chan models.Position
	updates  chan models.PositionUpdate
	cancel   context.CancelFunc
	last     *models.Position
}

// offer hands a fix to the watch goroutine, replacing one not yet consumed.
func (pw *positionWatch) offer(position models.Position) {
	for {
		select {
		case pw.incoming <- position:
			return
		default:
		}
		select {
		case <-pw.incoming:
		default:
		}
	}
}

func (pw *positionWatch) run(ctx context.Context) {
	defer close(pw.updates)

	var timeout <-chan time.Time
	var timer *time.Timer
	if pw.opts.Timeout > 0 {
		timer = time.NewTimer(pw.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case position := <-pw.incoming:
			if pw.accept(position) {
				pw.emit(models.PositionUpdate{Position: position})
			}
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(pw.opts.Timeout)
			}
		case <-timeout:
			pw.emit(models.PositionUpdate{Err: utils.ErrLocationUnavailable})
			timer.Reset(pw.opts.Timeout)
		}
	}
}

func (pw *positionWatch) accept(position models.Position) bool {
	if pw.last != nil && pw.opts.DistanceFilter > 0 {
		if utils.DistanceBetween(pw.last.Coordinate(), position.Coordinate()) < pw.opts.DistanceFilter {
			return false
		}
	}
	pw.last = &position
	return true
}

// emit keeps only the newest update when the reader falls behind.
func (pw *positionWatch) emit(update models.PositionUpdate) {
	for {
		select {
		case pw.updates <- update:
			return
		default:
		}
		select {
		case <-pw.updates:
		default:
		}
	}
}
