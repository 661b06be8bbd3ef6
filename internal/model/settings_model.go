package model

import (
	"time"

	"gorm.io/datatypes"
)

// CustomizationSetting stores one client's settings blob.
type CustomizationSetting struct {
	ClientId  string         `gorm:"type:varchar(64);primaryKey"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (CustomizationSetting) TableName() string {
	return "customization_settings"
}
