package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"preventanyl/models"
)

// DeviceRepository keeps short-lived device state in Redis: the last
// reported position, the last reported connection state and the time of the
// last successful help dispatch.
type DeviceRepository struct {
	redis         *redis.Client
	positionTTL   time.Duration
	connectionTTL time.Duration
	cooldownTTL   time.Duration
}

func NewDeviceRepository(client *redis.Client, positionTTL, connectionTTL, cooldownTTL time.Duration) *DeviceRepository {
	return &DeviceRepository{
		redis:         client,
		positionTTL:   positionTTL,
		connectionTTL: connectionTTL,
		cooldownTTL:   cooldownTTL,
	}
}

func positionKey(deviceID string) string {
	return fmt.Sprintf("device:%s:position", deviceID)
}

func connectionKey(deviceID string) string {
	return fmt.Sprintf("device:%s:connection", deviceID)
}

func cooldownKey(deviceID string) string {
	return fmt.Sprintf("help:cooldown:%s", deviceID)
}

// ==================== POSITION ====================

func (dr *DeviceRepository) SavePosition(ctx context.Context, deviceID string, position models.Position) error {
	data, err := json.Marshal(position)
	if err != nil {
		return err
	}
	return dr.redis.Set(ctx, positionKey(deviceID), data, dr.positionTTL).Err()
}

// GetPosition returns the last position, or found=false when none is stored.
func (dr *DeviceRepository) GetPosition(ctx context.Context, deviceID string) (models.Position, bool, error) {
	var position models.Position
	found, err := dr.getJSON(ctx, positionKey(deviceID), &position)
	return position, found, err
}

// ==================== CONNECTIVITY ====================

func (dr *DeviceRepository) SaveConnection(ctx context.Context, deviceID string, state models.ConnectionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return dr.redis.Set(ctx, connectionKey(deviceID), data, dr.connectionTTL).Err()
}

func (dr *DeviceRepository) GetConnection(ctx context.Context, deviceID string) (models.ConnectionState, bool, error) {
	var state models.ConnectionState
	found, err := dr.getJSON(ctx, connectionKey(deviceID), &state)
	return state, found, err
}

// ==================== HELP COOLDOWN ====================

func (dr *DeviceRepository) LastHelpSuccess(ctx context.Context, deviceID string) (time.Time, bool, error) {
	value, err := dr.redis.Get(ctx, cooldownKey(deviceID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	nanos, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt cooldown for %s: %w", deviceID, err)
	}
	return time.Unix(0, nanos), true, nil
}

func (dr *DeviceRepository) RecordHelpSuccess(ctx context.Context, deviceID string, at time.Time) error {
	return dr.redis.Set(ctx, cooldownKey(deviceID), strconv.FormatInt(at.UnixNano(), 10), dr.cooldownTTL).Err()
}

func (dr *DeviceRepository) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := dr.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}
