package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	DatabaseURL    string
	AllowedOrigins string

	// LLM providers
	OllamaURL       string
	OllamaModel     string
	OllamaTimeout   int // seconds
	GeminiAPIKey    string
	GeminiModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	DefaultProvider string
	LLMMaxRetries   int
	DailyQuizLimit  int // 0 = unlimited

	// Stable Diffusion
	SDAPIURL string

	// Quiz limits
	MaxPromptLength     int
	DefaultNumQuestions int
	MinQuestions        int
	MaxQuestions        int
	QuizTTLSeconds      int
	MaxQuizzes          int
	MaxImageSizeBytes   int

	// Rooms / game
	RoomTTLSeconds      int
	MaxRooms            int
	MaxPlayersPerRoom   int
	MaxNicknameLength   int
	MaxAvatarLength     int
	MaxTeamNameLength   int
	DefaultTimeLimit    int // seconds per question
	MinTimeLimit        int
	MaxTimeLimit        int
	OrganizerGraceSecs  int
	SweepIntervalSecs   int
	MaxRoomCodeAttempts int
	MaxGameHistory      int

	// WebSocket limits
	WSRateLimitPerSec int
	MaxWSMessageSize  int64

	// HTTP rate limiting for quiz generation
	RateLimitWindowSecs  int
	RateLimitMaxRequests int
}

func Load() *Config {
	// .env is optional; real env vars win either way
	_ = godotenv.Load()

	return &Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", ""),

		OllamaURL:       getEnv("OLLAMA_URL", "http://localhost:11434/api/generate"),
		OllamaModel:     getEnv("OLLAMA_MODEL", "qwen2.5:14b-instruct"),
		OllamaTimeout:   getEnvAsInt("OLLAMA_TIMEOUT", 120),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		DefaultProvider: getEnv("DEFAULT_PROVIDER", "gemini"),
		LLMMaxRetries:   getEnvAsInt("LLM_MAX_RETRIES", 3),
		DailyQuizLimit:  getEnvAsInt("DAILY_QUIZ_LIMIT", 0),

		SDAPIURL: getEnv("SD_API_URL", "http://localhost:8765"),

		MaxPromptLength:     500,
		DefaultNumQuestions: 10,
		MinQuestions:        3,
		MaxQuestions:        20,
		QuizTTLSeconds:      getEnvAsInt("QUIZ_TTL_SECONDS", 3600),
		MaxQuizzes:          100,
		MaxImageSizeBytes:   2 * 1024 * 1024,

		RoomTTLSeconds:      getEnvAsInt("ROOM_TTL_SECONDS", 1800),
		MaxRooms:            getEnvAsInt("MAX_ROOMS", 50),
		MaxPlayersPerRoom:   getEnvAsInt("MAX_PLAYERS_PER_ROOM", 100),
		MaxNicknameLength:   20,
		MaxAvatarLength:     10,
		MaxTeamNameLength:   30,
		DefaultTimeLimit:    getEnvAsInt("DEFAULT_TIME_LIMIT", 15),
		MinTimeLimit:        5,
		MaxTimeLimit:        60,
		OrganizerGraceSecs:  getEnvAsInt("ORGANIZER_GRACE_SECONDS", 30),
		SweepIntervalSecs:   getEnvAsInt("SWEEP_INTERVAL_SECONDS", 60),
		MaxRoomCodeAttempts: 10,
		MaxGameHistory:      1000,

		WSRateLimitPerSec: 10,
		MaxWSMessageSize:  4096,

		RateLimitWindowSecs:  60,
		RateLimitMaxRequests: 5,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
