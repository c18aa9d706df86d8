package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	FirebaseProjectID string
	AuthHMACSecret    string

	// AI engine
	AIBackendURL string
	AITimeout    time.Duration

	// Weather
	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string

	// Object storage
	S3Bucket        string
	S3Region        string
	S3PublicBaseURL string
	S3PresignTTL    time.Duration

	// Chat
	OpenAIAPIKey string
	OpenAIModel  string

	// Rate Limit（ウィンドウ内の最大リクエスト数）
	RateLimitGeneral int
	RateLimitAuth    int
	RateLimitUpload  int
	RateLimitAI      int

	// Worker
	RecommendationTTL time.Duration
	CleanupSchedule   string

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	Environment string
	FrontendURL string

	// CORS
	CORSAllowedOrigins []string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.FirebaseProjectID = os.Getenv("FIREBASE_PROJECT_ID")
	cfg.AuthHMACSecret = os.Getenv("AUTH_HMAC_SECRET")
	if cfg.FirebaseProjectID == "" && cfg.AuthHMACSecret == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID or AUTH_HMAC_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AIBackendURL = strings.TrimRight(getEnvString("AI_BACKEND_URL", "http://localhost:5002"), "/")
	cfg.AITimeout = getEnvDuration("AI_TIMEOUT", 30*time.Second)
	cfg.OpenWeatherAPIKey = getEnvString("OPENWEATHER_API_KEY", "")
	cfg.OpenWeatherBaseURL = getEnvString("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5")
	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3PublicBaseURL = getEnvString("S3_PUBLIC_BASE_URL", "")
	cfg.S3PresignTTL = getEnvDuration("S3_PRESIGN_TTL", 15*time.Minute)
	cfg.OpenAIAPIKey = getEnvString("OPENAI_API_KEY", "")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 100)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 5)
	cfg.RateLimitUpload = getEnvInt("RATE_LIMIT_UPLOAD", 20)
	cfg.RateLimitAI = getEnvInt("RATE_LIMIT_AI", 50)
	cfg.RecommendationTTL = getEnvDuration("RECOMMENDATION_TTL", 7*24*time.Hour)
	cfg.CleanupSchedule = getEnvString("CLEANUP_SCHEDULE", "@hourly")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "5000")
	cfg.Environment = getEnvString("APP_ENV", "development")
	cfg.FrontendURL = strings.TrimRight(getEnvString("FRONTEND_URL", "http://localhost:3000"), "/")
	cfg.CORSAllowedOrigins = corsOrigins(getEnvString("CORS_ALLOWED_ORIGIN", ""), cfg.FrontendURL)

	return cfg, nil
}

// corsOrigins は開発用オリジンと設定値を重複なく結合する。
// extraはカンマ区切りで複数指定できる。
func corsOrigins(extra, frontendURL string) []string {
	origins := []string{"http://localhost:3000", "http://localhost:5173"}
	candidates := append(strings.Split(extra, ","), frontendURL)
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		dup := false
		for _, o := range origins {
			if o == c {
				dup = true
				break
			}
		}
		if !dup {
			origins = append(origins, c)
		}
	}
	return origins
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
