package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Voice    VoiceConfig
	Auth     AuthConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	LiveLogFilePath    string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	ServiceName        string
}

type DatabaseConfig struct {
	Connection string
	// SettingsStore is "postgres", "redis" or "memory"
	SettingsStore string
}

// APIKeys never leave the server.
type APIKeys struct {
	Gemini     string
	ElevenLabs string
}

type AIConfig struct {
	FlashModel  string
	ProModel    string
	VoiceModel  string
	GeminiURL   string
	AutoAdvance bool
}

type VoiceConfig struct {
	SilenceTimeout time.Duration
	VoiceID        string
	TTSModel       string
	STTModel       string
	ElevenLabsURL  string
}

type AuthConfig struct {
	JWTSecret   string
	TokenTTL    time.Duration
	SessionIdle time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			LiveLogFilePath:    getEnv("LIVE_LOG_FILE_PATH", "logs/live.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			ServiceName:        getEnv("OTEL_SERVICE_NAME", "silo-backend"),
		},
		Database: DatabaseConfig{
			Connection:    getEnv("DB_CONNECTION_STRING", ""),
			SettingsStore: getEnv("SETTINGS_STORE", "postgres"),
		},
		Keys: APIKeys{
			Gemini:     getEnv("GEMINI_API_KEY", ""),
			ElevenLabs: getEnv("ELEVENLABS_API_KEY", ""),
		},
		Ai: AIConfig{
			FlashModel:  getEnv("GEMINI_FLASH_MODEL", "gemini-2.5-flash"),
			ProModel:    getEnv("GEMINI_PRO_MODEL", "gemini-2.5-pro"),
			VoiceModel:  getEnv("GEMINI_VOICE_MODEL", "gemini-2.5-flash"),
			GeminiURL:   getEnv("GEMINI_BASE_URL", ""),
			AutoAdvance: getEnvAsBool("AUTO_ADVANCE_ANIMATIONS", false),
		},
		Voice: VoiceConfig{
			SilenceTimeout: time.Duration(getEnvAsInt("VOICE_SILENCE_TIMEOUT_MS", 1000)) * time.Millisecond,
			VoiceID:        getEnv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
			TTSModel:       getEnv("ELEVENLABS_TTS_MODEL", "eleven_multilingual_v2"),
			STTModel:       getEnv("ELEVENLABS_STT_MODEL", "scribe_v1"),
			ElevenLabsURL:  getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			TokenTTL:    time.Duration(getEnvAsInt("SESSION_TOKEN_TTL_HOURS", 24)) * time.Hour,
			SessionIdle: time.Duration(getEnvAsInt("SESSION_IDLE_MINUTES", 60)) * time.Minute,
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}
