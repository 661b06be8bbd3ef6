package memory

import (
	"context"

	"silo-be/internal/entity"
	"silo-be/internal/mapper"
	"silo-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// settingsRepository keeps encoded blobs in process memory, for development
// without postgres or redis.
type settingsRepository struct {
	cache  *cache.Cache
	mapper *mapper.SettingsMapper
}

func NewSettingsRepository() contract.ISettingsRepository {
	return &settingsRepository{
		cache:  cache.New(cache.NoExpiration, 0),
		mapper: mapper.NewSettingsMapper(),
	}
}

func (r *settingsRepository) Load(_ context.Context, clientID string) (*entity.CustomizationSettings, error) {
	x, found := r.cache.Get(clientID)
	if !found {
		return entity.DefaultSettings(), nil
	}
	return r.mapper.Decode(x.([]byte)), nil
}

func (r *settingsRepository) Save(_ context.Context, clientID string, settings *entity.CustomizationSettings) error {
	payload, err := r.mapper.Encode(settings)
	if err != nil {
		return err
	}
	r.cache.Set(clientID, payload, cache.NoExpiration)
	return nil
}
