package entity

const (
	DefaultBackgroundURL = "https://i.ibb.co/Y43V0QcT/IMG-3726.png"

	InputSizeLarge = "large"
	InputSizeThin  = "thin"

	InputShapeRounded = "rounded"
	InputShapePill    = "pill"

	InputThemeWhite       = "white"
	InputThemeTransparent = "transparent"
	InputThemeBlack       = "black"
	InputThemeLightGrey   = "lightGrey"

	LanguageEnglish = "en"
)

// CustomizationSettings is the appearance blob kept per anonymous client.
type CustomizationSettings struct {
	BackgroundURL     string  `json:"backgroundUrl"`
	InputSize         string  `json:"inputSize"`
	InputShape        string  `json:"inputShape"`
	InputTheme        string  `json:"inputTheme"`
	Language          string  `json:"language"`
	ChatBackgroundURL *string `json:"chatBackgroundUrl,omitempty"`
}

func DefaultSettings() *CustomizationSettings {
	return &CustomizationSettings{
		BackgroundURL: DefaultBackgroundURL,
		InputSize:     InputSizeLarge,
		InputShape:    InputShapeRounded,
		InputTheme:    InputThemeWhite,
		Language:      LanguageEnglish,
	}
}

// SettingsPatch carries a partial update. Nil fields are left alone; an empty
// ChatBackgroundURL clears it.
type SettingsPatch struct {
	BackgroundURL     *string
	InputSize         *string
	InputShape        *string
	InputTheme        *string
	Language          *string
	ChatBackgroundURL *string
}

func (s *CustomizationSettings) Merge(p SettingsPatch) {
	if p.BackgroundURL != nil {
		s.BackgroundURL = *p.BackgroundURL
	}
	if p.InputSize != nil {
		s.InputSize = *p.InputSize
	}
	if p.InputShape != nil {
		s.InputShape = *p.InputShape
	}
	if p.InputTheme != nil {
		s.InputTheme = *p.InputTheme
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
	if p.ChatBackgroundURL != nil {
		if *p.ChatBackgroundURL == "" {
			s.ChatBackgroundURL = nil
		} else {
			url := *p.ChatBackgroundURL
			s.ChatBackgroundURL = &url
		}
	}
}

// Normalize replaces unknown or empty values with their defaults.
func (s *CustomizationSettings) Normalize() {
	d := DefaultSettings()
	if s.BackgroundURL == "" {
		s.BackgroundURL = d.BackgroundURL
	}
	if !oneOf(s.InputSize, InputSizeLarge, InputSizeThin) {
		s.InputSize = d.InputSize
	}
	if !oneOf(s.InputShape, InputShapeRounded, InputShapePill) {
		s.InputShape = d.InputShape
	}
	if !oneOf(s.InputTheme, InputThemeWhite, InputThemeTransparent, InputThemeBlack, InputThemeLightGrey) {
		s.InputTheme = d.InputTheme
	}
	if !oneOf(s.Language, LanguageEnglish) {
		s.Language = d.Language
	}
	if s.ChatBackgroundURL != nil && *s.ChatBackgroundURL == "" {
		s.ChatBackgroundURL = nil
	}
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
