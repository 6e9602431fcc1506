package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Redis       RedisConfig
	DB          DBConfig
	Auth        AuthConfig
	Services    ServiceAddrs
	Gateway     GatewayConfig
	Email       EmailConfig
	CRM         CRMConfig
	Weather     WeatherConfig
	LogLevel    string
	Environment string
}

// DBConfig points every service at the one Postgres database. The services
// own separate tables but read profiles across them, so they share a schema.
type DBConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type ServiceAddrs struct {
	User         string
	Commissions  string
	Compliance   string
	Directory    string
	Integrations string
}

type GatewayConfig struct {
	Port           string
	RateLimit      string
	AllowedOrigins []string
}

type EmailConfig struct {
	ResendAPIKey string
	From         string
	PortalURL    string
}

type CRMConfig struct {
	BaseURL      string
	APIKey       string
	PollSchedule string
	PageSize     int
	RequestsPerS int
}

type WeatherConfig struct {
	BaseURL string
}

func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	crmPageSize, _ := strconv.Atoi(getEnv("CRM_PAGE_SIZE", "50"))
	crmRPS, _ := strconv.Atoi(getEnv("CRM_REQUESTS_PER_SECOND", "2"))

	tokenTTL, err := time.ParseDuration(getEnv("JWT_TTL", "12h"))
	if err != nil {
		logrus.Warnf("Invalid JWT_TTL, falling back to 12h: %v", err)
		tokenTTL = 12 * time.Hour
	}

	return Config{
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  tokenTTL,
		},
		Services: ServiceAddrs{
			User:         getEnv("USER_SERVICE_ADDR", "localhost:50051"),
			Commissions:  getEnv("COMMISSIONS_SERVICE_ADDR", "localhost:50052"),
			Compliance:   getEnv("COMPLIANCE_SERVICE_ADDR", "localhost:50053"),
			Directory:    getEnv("DIRECTORY_SERVICE_ADDR", "localhost:50054"),
			Integrations: getEnv("INTEGRATIONS_SERVICE_ADDR", "localhost:50055"),
		},
		Gateway: GatewayConfig{
			Port:           getEnv("GATEWAY_PORT", "8080"),
			RateLimit:      getEnv("RATE_LIMIT", "120-M"),
			AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("EMAIL_FROM", "TSM Roof Pro Hub <noreply@tsmroofpro.com>"),
			PortalURL:    getEnv("PORTAL_URL", "http://localhost:5173"),
		},
		CRM: CRMConfig{
			BaseURL:      getEnv("CRM_BASE_URL", "https://api.acculynx.com/api/v2"),
			APIKey:       getEnv("CRM_API_KEY", ""),
			PollSchedule: getEnv("CRM_POLL_SCHEDULE", "@every 15m"),
			PageSize:     crmPageSize,
			RequestsPerS: crmRPS,
		},
		Weather: WeatherConfig{
			BaseURL: getEnv("WEATHER_BASE_URL", "https://api.open-meteo.com/v1"),
		},
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("APP_ENV", "development"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
