package implementation

import (
	"context"
	"errors"

	"silo-be/internal/entity"
	"silo-be/internal/mapper"
	"silo-be/internal/model"
	"silo-be/internal/repository/contract"

	"gorm.io/gorm"
)

type settingsRepository struct {
	db     *gorm.DB
	mapper *mapper.SettingsMapper
}

func NewSettingsRepository(db *gorm.DB) contract.ISettingsRepository {
	return &settingsRepository{db: db, mapper: mapper.NewSettingsMapper()}
}

func (r *settingsRepository) Load(ctx context.Context, clientID string) (*entity.CustomizationSettings, error) {
	var m model.CustomizationSetting
	if err := r.db.WithContext(ctx).Where("client_id = ?", clientID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entity.DefaultSettings(), nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *settingsRepository) Save(ctx context.Context, clientID string, settings *entity.CustomizationSettings) error {
	m, err := r.mapper.ToModel(clientID, settings)
	if err != nil {
		return err
	}
	// Save upserts on the primary key
	return r.db.WithContext(ctx).Save(m).Error
}
