package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// demoAPIKey はデモモードを示すAI APIキーの値。
const demoAPIKey = "dummy"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth（ホスト型認証基盤が発行するアクセストークンの検証鍵）
	AuthJWTSecret string

	// Completion
	AIProvider        string
	AIAPIKey          string
	AIBaseURL         string
	AIModel           string
	CompletionTimeout time.Duration

	// YooKassa（照会型）
	YooKassaShopID    string
	YooKassaSecretKey string
	YooKassaAPIURL    string

	// Robokassa（コールバック型）
	RobokassaMerchantLogin string
	RobokassaPassword1     string // 決済開始用
	RobokassaPassword2     string // ResultURLコールバック検証用
	RobokassaTestMode      bool

	// Rate Limit（req/min）
	RateLimitGeneral  int
	RateLimitGenerate int

	// Worker
	ExpirySweepInterval time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AuthJWTSecret = os.Getenv("AUTH_JWT_SECRET")
	if cfg.AuthJWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AIProvider = getEnvString("AI_PROVIDER", "openai")
	cfg.AIAPIKey = strings.TrimSpace(os.Getenv("AI_API_KEY"))
	cfg.AIBaseURL = getEnvString("AI_BASE_URL", "https://api.openai.com/v1")
	cfg.AIModel = getEnvString("AI_MODEL", "openai/gpt-3.5-turbo")
	cfg.CompletionTimeout = getEnvDuration("COMPLETION_TIMEOUT", 60*time.Second)
	cfg.YooKassaShopID = strings.TrimSpace(os.Getenv("YOOKASSA_SHOP_ID"))
	cfg.YooKassaSecretKey = strings.TrimSpace(os.Getenv("YOOKASSA_SECRET_KEY"))
	cfg.YooKassaAPIURL = getEnvString("YOOKASSA_API_URL", "https://api.yookassa.ru/v3")
	cfg.RobokassaMerchantLogin = os.Getenv("ROBOKASSA_MERCHANT_LOGIN")
	cfg.RobokassaPassword1 = os.Getenv("ROBOKASSA_PASSWORD_1")
	cfg.RobokassaPassword2 = os.Getenv("ROBOKASSA_PASSWORD_2")
	cfg.RobokassaTestMode = getEnvBool("ROBOKASSA_TEST_MODE", false)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitGenerate = getEnvInt("RATE_LIMIT_GENERATE", 10)
	cfg.ExpirySweepInterval = getEnvDuration("EXPIRY_SWEEP_INTERVAL", time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// DemoMode はAIキーが未設定またはダミー値の場合にtrueを返す。
// デモモードでは文章生成サービスを呼ばずにモック文章を返す。
func (c *Config) DemoMode() bool {
	return c.AIAPIKey == "" || c.AIAPIKey == demoAPIKey
}

// YooKassaEnabled はYooKassaの認証情報が揃っているかを返す。
func (c *Config) YooKassaEnabled() bool {
	return c.YooKassaShopID != "" && c.YooKassaSecretKey != ""
}

// RobokassaEnabled はRobokassaの認証情報が揃っているかを返す。
func (c *Config) RobokassaEnabled() bool {
	return c.RobokassaMerchantLogin != "" && c.RobokassaPassword1 != "" && c.RobokassaPassword2 != ""
}

// LoadEnvFile は.envファイルの内容を環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
