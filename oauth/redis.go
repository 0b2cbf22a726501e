package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisEphemeralStore keeps the short-lived artifacts (device authorizations
// and confirmation codes) in redis with TTLs matching their expiry, so the
// garbage collection falls out of key expiration.
type RedisEphemeralStore struct {
	redis redis.Cmdable
}

var (
	_ DeviceStore           = (*RedisEphemeralStore)(nil)
	_ ConfirmationCodeStore = (*RedisEphemeralStore)(nil)
)

func NewRedisEphemeralStore(cmdable redis.Cmdable) *RedisEphemeralStore {
	return &RedisEphemeralStore{redis: cmdable}
}

const (
	deviceKeyPrefix   = "device-"
	userCodeKeyPrefix = "devuser-"
	confirmKeyPrefix  = "confirm-"
)

func (s *RedisEphemeralStore) SaveDevice(ctx context.Context, d *DeviceAuthorization) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	ttl := time.Until(d.ExpiresAt)
	if ttl <= 0 {
		return errors.New("oauth: device authorization already expired")
	}
	if err := s.redis.Set(ctx, deviceKeyPrefix+d.DeviceCode, string(data), ttl).Err(); err != nil {
		return err
	}
	return s.redis.Set(ctx, userCodeKeyPrefix+d.UserCode, d.DeviceCode, ttl).Err()
}

func (s *RedisEphemeralStore) GetDevice(ctx context.Context, clientID, deviceCode string) (*DeviceAuthorization, error) {
	d, err := s.getDevice(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	if d.ClientID != clientID {
		return nil, ErrNotFound
	}
	return d, nil
}

func (s *RedisEphemeralStore) getDevice(ctx context.Context, deviceCode string) (*DeviceAuthorization, error) {
	raw, err := s.redis.Get(ctx, deviceKeyPrefix+deviceCode).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	var d DeviceAuthorization
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *RedisEphemeralStore) GetDeviceByUserCode(ctx context.Context, userCode string) (*DeviceAuthorization, error) {
	deviceCode, err := s.redis.Get(ctx, userCodeKeyPrefix+userCode).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return s.getDevice(ctx, deviceCode)
}

func (s *RedisEphemeralStore) ApproveDevice(ctx context.Context, userCode, subject string) error {
	d, err := s.GetDeviceByUserCode(ctx, userCode)
	if err != nil {
		return err
	}
	d.Approved = true
	d.Subject = subject
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	ttl := time.Until(d.ExpiresAt)
	if ttl <= 0 {
		return ErrNotFound
	}
	return s.redis.Set(ctx, deviceKeyPrefix+d.DeviceCode, string(data), ttl).Err()
}

func (s *RedisEphemeralStore) DeleteDevice(ctx context.Context, deviceCode string) error {
	d, err := s.getDevice(ctx, deviceCode)
	if err != nil {
		return err
	}
	if err := s.redis.Del(ctx, deviceKeyPrefix+deviceCode).Err(); err != nil {
		return err
	}
	return s.redis.Del(ctx, userCodeKeyPrefix+d.UserCode).Err()
}

func (s *RedisEphemeralStore) SaveConfirmationCode(ctx context.Context, c *ConfirmationCode) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		return errors.New("oauth: confirmation code already expired")
	}
	return s.redis.Set(ctx, confirmKeyPrefix+c.Code, string(data), ttl).Err()
}

// ConsumeConfirmationCode relies on GETDEL so two concurrent consumers cannot
// both observe the code.
func (s *RedisEphemeralStore) ConsumeConfirmationCode(ctx context.Context, code string) (*ConfirmationCode, error) {
	raw, err := s.redis.GetDel(ctx, confirmKeyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	var c ConfirmationCode
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	return &c, nil
}
