package cache

import (
	"context"
	"errors"
	"fmt"

	"silo-be/internal/entity"
	"silo-be/internal/mapper"
	"silo-be/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

const settingsKeyPrefix = "silo:settings:"

type settingsRepository struct {
	rdb    *redis.Client
	mapper *mapper.SettingsMapper
}

func NewSettingsRepository(rdb *redis.Client) contract.ISettingsRepository {
	return &settingsRepository{rdb: rdb, mapper: mapper.NewSettingsMapper()}
}

func settingsKey(clientID string) string {
	return settingsKeyPrefix + clientID
}

func (r *settingsRepository) Load(ctx context.Context, clientID string) (*entity.CustomizationSettings, error) {
	raw, err := r.rdb.Get(ctx, settingsKey(clientID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entity.DefaultSettings(), nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return r.mapper.Decode(raw), nil
}

func (r *settingsRepository) Save(ctx context.Context, clientID string, settings *entity.CustomizationSettings) error {
	payload, err := r.mapper.Encode(settings)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, settingsKey(clientID), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}
