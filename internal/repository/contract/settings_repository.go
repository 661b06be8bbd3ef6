package contract

import (
	"context"

	"silo-be/internal/entity"
)

// ISettingsRepository persists customization settings per client. Load never
// reports a missing or unreadable record; it returns the defaults instead.
type ISettingsRepository interface {
	Load(ctx context.Context, clientID string) (*entity.CustomizationSettings, error)
	Save(ctx context.Context, clientID string, settings *entity.CustomizationSettings) error
}
