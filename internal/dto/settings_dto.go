package dto

import "silo-be/internal/entity"

// UpdateSettingsRequest is a partial update; omitted fields keep their value.
// An empty chatBackgroundUrl removes the chat background.
type UpdateSettingsRequest struct {
	BackgroundURL     *string `json:"backgroundUrl" validate:"omitempty,url"`
	InputSize         *string `json:"inputSize" validate:"omitempty,oneof=large thin"`
	InputShape        *string `json:"inputShape" validate:"omitempty,oneof=rounded pill"`
	InputTheme        *string `json:"inputTheme" validate:"omitempty,oneof=white transparent black lightGrey"`
	Language          *string `json:"language" validate:"omitempty,oneof=en"`
	ChatBackgroundURL *string `json:"chatBackgroundUrl" validate:"omitempty,url|len=0"`
}

func (r *UpdateSettingsRequest) Patch() entity.SettingsPatch {
	return entity.SettingsPatch{
		BackgroundURL:     r.BackgroundURL,
		InputSize:         r.InputSize,
		InputShape:        r.InputShape,
		InputTheme:        r.InputTheme,
		Language:          r.Language,
		ChatBackgroundURL: r.ChatBackgroundURL,
	}
}
