package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"preventanyl/interfaces"
	"preventanyl/models"
	"preventanyl/utils"
)

// SessionManager opens a MapSession for every websocket connection.
type SessionManager struct {
	locations    *LocationService
	connectivity *ConnectivityService
	kits         *KitService
	help         *HelpService

	mu       sync.Mutex
	sessions map[string]int // deviceID -> open sessions
}

func NewSessionManager(locations *LocationService, connectivity *ConnectivityService, kits *KitService, help *HelpService) *SessionManager {
	return &SessionManager{
		locations:    locations,
		connectivity: connectivity,
		kits:         kits,
		help:         help,
		sessions:     make(map[string]int),
	}
}

func (sm *SessionManager) OpenSession(ctx context.Context, deviceID, userID string, sink interfaces.SessionSink) (interfaces.Session, error) {
	if deviceID == "" {
		return nil, utils.NewBadRequestError("Device ID is required")
	}

	sm.mu.Lock()
	sm.sessions[deviceID]++
	sm.mu.Unlock()

	s := &MapSession{
		manager:  sm,
		deviceID: deviceID,
		userID:   userID,
		sink:     sink,
	}
	s.mount(ctx)
	return s, nil
}

func (sm *SessionManager) closed(deviceID string) {
	sm.mu.Lock()
	sm.sessions[deviceID]--
	last := sm.sessions[deviceID] <= 0
	if last {
		delete(sm.sessions, deviceID)
	}
	sm.mu.Unlock()

	if last && sm.help != nil {
		sm.help.Release(deviceID)
	}
}

func (sm *SessionManager) OpenSessions() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	total := 0
	for _, n := range sm.sessions {
		total += n
	}
	return total
}

// MapSession drives one device's map screen: region, user marker, kit
// markers, loading indicator and the help button.
type MapSession struct {
	manager  *SessionManager
	deviceID string
	userID   string
	sink     interfaces.SessionSink

	ctx            context.Context
	cancel         context.CancelFunc
	loading        *utils.LoadingCounter
	initialRelease func()
	watchHandle    models.WatchHandle
	subscription   *KitSubscription
	wg             sync.WaitGroup
	closeOnce      sync.Once

	mu           sync.Mutex
	region       models.Region
	userLocation *models.Coordinate
	kits         []models.Kit
}

func (s *MapSession) mount(parent context.Context) {
	s.ctx, s.cancel = context.WithCancel(parent)
	s.loading = utils.NewLoadingCounter(func(loading bool) {
		s.send(models.WSTypeLoading, models.WSLoading{Loading: loading})
	})
	// held until the first kit snapshot has been rendered
	s.initialRelease = s.loading.Acquire()

	region := models.DefaultRegion()
	if pos, err := s.manager.locations.CurrentPosition(s.ctx, s.deviceID); err == nil {
		c := pos.Coordinate()
		region = models.UserRegion(c)
		s.userLocation = &c
	}
	s.region = region
	s.send(models.WSTypeRegion, region)
	if s.userLocation != nil {
		s.sendUserLocation(*s.userLocation)
	}

	handle, updates, err := s.manager.locations.WatchPosition(s.ctx, s.deviceID, models.DefaultWatchOptions())
	if err != nil {
		logrus.Warnf("Failed to watch position for %s: %v", s.deviceID, err)
	} else {
		s.watchHandle = handle
		s.wg.Add(1)
		go s.followUser(updates)
	}

	s.subscription = s.manager.kits.Subscribe()
	s.wg.Add(1)
	go s.followKits()
}

func (s *MapSession) followUser(updates <-chan models.PositionUpdate) {
	defer s.wg.Done()

	for update := range updates {
		if update.Err != nil {
			logrus.Debugf("Position watch for %s: %v", s.deviceID, update.Err)
			continue
		}

		c := update.Position.Coordinate()
		s.mu.Lock()
		first := s.userLocation == nil
		s.userLocation = &c
		kits := s.kits
		s.mu.Unlock()

		s.sendUserLocation(c)
		// directions links need an origin; refresh them once one is known
		if first && kits != nil {
			s.sendMarkers(kits, &c)
		}
	}
}

func (s *MapSession) followKits() {
	defer s.wg.Done()

	for kits := range s.subscription.Snapshots() {
		release := s.loading.Acquire()

		s.mu.Lock()
		s.kits = kits
		from := s.userLocation
		s.mu.Unlock()

		s.sendMarkers(kits, from)
		release()
		s.initialRelease()
	}
}

// FindMe recenters the map on the device's current position.
func (s *MapSession) FindMe(ctx context.Context) error {
	release := s.loading.Acquire()
	defer release()

	pos, err := s.manager.locations.CurrentPosition(ctx, s.deviceID)
	if err != nil {
		s.send(models.WSTypeAlert, models.WSAlert{Message: utils.FindUserErrorMessage})
		return err
	}

	c := pos.Coordinate()
	region := models.UserRegion(c)
	s.mu.Lock()
	s.region = region
	s.userLocation = &c
	s.mu.Unlock()

	s.send(models.WSTypeRegion, region)
	s.sendUserLocation(c)
	return nil
}

func (s *MapSession) Region() models.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.region
}

// HandleMessage processes one client message. Returned errors are reported
// to the client by the caller.
func (s *MapSession) HandleMessage(ctx context.Context, request models.WSRequest) error {
	switch request.Type {
	case models.WSTypePing:
		s.sendReply(request, models.WSTypePong, nil)
		return nil

	case models.WSTypeLocationUpdate:
		var req models.UpdatePositionRequest
		if err := decodeRequest(request, &req); err != nil {
			return err
		}
		_, err := s.manager.locations.UpdatePosition(ctx, s.deviceID, req)
		return err

	case models.WSTypeConnectionStatus:
		var req models.UpdateConnectionRequest
		if err := decodeRequest(request, &req); err != nil {
			return err
		}
		_, err := s.manager.connectivity.Update(ctx, s.deviceID, req)
		return err

	case models.WSTypeFindMe:
		if err := s.FindMe(ctx); err != nil && !errors.Is(err, utils.ErrLocationUnavailable) {
			return err
		}
		return nil

	case models.WSTypeHelpRequest:
		var req models.RequestHelpRequest
		if len(request.Data) > 0 {
			if err := decodeRequest(request, &req); err != nil {
				return err
			}
		}
		status, err := s.manager.help.RequestHelp(ctx, s.deviceID, s.userID, req.Position(time.Now()))
		if IsWorkflowError(err) {
			return nil
		}
		if err != nil {
			return err
		}
		s.sendReply(request, models.WSTypeHelpStatus, status)
		return nil

	case models.WSTypeHelpConfirm:
		// dispatch can take a while; keep reading messages meanwhile
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			// a closed connection must not abort a confirmed dispatch
			if _, err := s.manager.help.Confirm(context.WithoutCancel(s.ctx), s.deviceID); err != nil {
				s.sendError(request, err)
				return
			}
			s.sendReply(request, models.WSTypeHelpStatus, s.manager.help.Status(s.deviceID))
		}()
		return nil

	case models.WSTypeHelpCancel:
		status, _ := s.manager.help.Cancel(s.deviceID)
		s.sendReply(request, models.WSTypeHelpStatus, status)
		return nil
	}

	return utils.NewServiceErrorWithStatus(models.WSErrorUnknownType, "Unknown message type: "+request.Type, http.StatusBadRequest)
}

// Close tears the session down: the watch is cleared, the kit subscription
// closed and the device's idle help workflow released.
func (s *MapSession) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.watchHandle != 0 {
			s.manager.locations.ClearWatch(s.watchHandle)
		}
		s.subscription.Close()
		s.initialRelease()
		s.wg.Wait()
		s.manager.closed(s.deviceID)
	})
}

func (s *MapSession) sendUserLocation(c models.Coordinate) {
	s.send(models.WSTypeUserLocation, models.WSUserLocation{
		Coordinate:  c,
		Title:       "You",
		Description: "Your location",
	})
}

func (s *MapSession) sendMarkers(kits []models.Kit, from *models.Coordinate) {
	s.send(models.WSTypeKits, models.WSKits{Markers: BuildKitMarkers(kits, from)})
}

func (s *MapSession) send(msgType string, data interface{}) {
	s.sink.Send(models.WSMessage{
		Type:      msgType,
		Data:      data,
		DeviceID:  s.deviceID,
		Timestamp: time.Now(),
	})
}

func (s *MapSession) sendReply(request models.WSRequest, msgType string, data interface{}) {
	s.sink.Send(models.WSMessage{
		Type:      msgType,
		Data:      data,
		DeviceID:  s.deviceID,
		Timestamp: time.Now(),
		RequestID: request.RequestID,
	})
}

func (s *MapSession) sendError(request models.WSRequest, err error) {
	serviceErr := utils.ToServiceError(err)
	s.sendReply(request, models.WSTypeError, models.WSError{
		Code:    serviceErr.Code,
		Message: serviceErr.Message,
	})
}

// BuildKitMarkers converts kits to map markers. Directions start at from
// when it is known.
func BuildKitMarkers(kits []models.Kit, from *models.Coordinate) []models.KitMarker {
	markers := make([]models.KitMarker, 0, len(kits))
	for _, kit := range kits {
		markers = append(markers, models.KitMarker{
			ID:                   kit.ID,
			Title:                kit.Title,
			FormattedDescription: kit.FormattedDescription(),
			Coordinate:           kit.Coordinate(),
			DirectionsURL:        utils.AppleMapsDirectionsURL(from, kit.Coordinate()),
		})
	}
	return markers
}

func decodeRequest(request models.WSRequest, dest interface{}) error {
	if err := json.Unmarshal(request.Data, dest); err != nil {
		return utils.NewServiceErrorWithStatus(models.WSErrorInvalidMessage, "Invalid message data", http.StatusBadRequest)
	}
	return nil
}
