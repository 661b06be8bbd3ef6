package mapper

import (
	"encoding/json"

	"silo-be/internal/entity"
	"silo-be/internal/model"

	"gorm.io/datatypes"
)

type SettingsMapper struct{}

func NewSettingsMapper() *SettingsMapper {
	return &SettingsMapper{}
}

// Decode reads a stored blob over the defaults. A corrupt blob yields the defaults.
func (m *SettingsMapper) Decode(raw []byte) *entity.CustomizationSettings {
	settings := entity.DefaultSettings()
	if len(raw) == 0 {
		return settings
	}
	if err := json.Unmarshal(raw, settings); err != nil {
		return entity.DefaultSettings()
	}
	settings.Normalize()
	return settings
}

func (m *SettingsMapper) Encode(settings *entity.CustomizationSettings) ([]byte, error) {
	return json.Marshal(settings)
}

func (m *SettingsMapper) ToEntity(mdl *model.CustomizationSetting) *entity.CustomizationSettings {
	if mdl == nil {
		return entity.DefaultSettings()
	}
	return m.Decode(mdl.Payload)
}

func (m *SettingsMapper) ToModel(clientID string, settings *entity.CustomizationSettings) (*model.CustomizationSetting, error) {
	payload, err := m.Encode(settings)
	if err != nil {
		return nil, err
	}
	return &model.CustomizationSetting{
		ClientId: clientID,
		Payload:  datatypes.JSON(payload),
	}, nil
}
