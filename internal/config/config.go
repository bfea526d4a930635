package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the client and the devserver.
// It follows the 12-factor app methodology by prioritizing environment variables.
type Config struct {
	Client    ClientConfig
	Session   SessionConfig
	Redis     RedisConfig
	Devserver DevserverConfig
	S3        S3Config
}

type ClientConfig struct {
	APIURL      string
	WSURL       string
	Mode        string
	LogFile     string
	HTTPTimeout time.Duration
	NotifyTTL   time.Duration
}

type SessionConfig struct {
	// Store is one of file, memory or redis.
	Store   string
	File    string
	Profile string
	TTL     time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type DevserverConfig struct {
	Port        string
	Mode        string
	JWTSecret   string
	TokenExpiry time.Duration
}

type S3Config struct {
	Region     string
	Bucket     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	PublicBase string
}

const (
	SessionStoreFile   = "file"
	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
)

// LoadConfig loads configuration from a .env file when present and then
// from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	apiURL := strings.TrimSuffix(getEnv("DMCHAT_API_URL", "http://localhost:5050"), "/")
	wsURL := getEnv("DMCHAT_WS_URL", "")
	if wsURL == "" {
		wsURL = WebsocketURL(apiURL)
	}
	return &Config{
		Client: ClientConfig{
			APIURL:      apiURL,
			WSURL:       strings.TrimSuffix(wsURL, "/"),
			Mode:        getEnv("APP_MODE", "development"),
			LogFile:     getEnv("DMCHAT_LOG_FILE", defaultPath("dmchat.log")),
			HTTPTimeout: time.Duration(getEnvAsInt("DMCHAT_HTTP_TIMEOUT_SEC", 15)) * time.Second,
			NotifyTTL:   time.Duration(getEnvAsInt("DMCHAT_NOTIFY_TTL_SEC", 4)) * time.Second,
		},
		Session: SessionConfig{
			Store:   getEnv("DMCHAT_SESSION_STORE", SessionStoreFile),
			File:    getEnv("DMCHAT_SESSION_FILE", defaultPath("session.json")),
			Profile: getEnv("DMCHAT_PROFILE", "default"),
			TTL:     time.Duration(getEnvAsInt("DMCHAT_SESSION_TTL_MIN", 1440)) * time.Minute,
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Devserver: DevserverConfig{
			Port:        getEnv("DEVSERVER_PORT", "5050"),
			Mode:        getEnv("DEVSERVER_MODE", "debug"),
			JWTSecret:   getEnv("JWT_SECRET", "devserver"),
			TokenExpiry: time.Duration(getEnvAsInt("JWT_EXPIRY_MIN", 60)) * time.Minute,
		},
		S3: S3Config{
			Region:     getEnv("S3_REGION", "us-east-1"),
			Bucket:     getEnv("S3_BUCKET", ""),
			AccessKey:  getEnv("S3_ACCESS_KEY", ""),
			SecretKey:  getEnv("S3_SECRET_KEY", ""),
			Endpoint:   getEnv("S3_ENDPOINT", ""),
			PublicBase: getEnv("S3_PUBLIC_BASE", ""),
		},
	}, nil
}

// WebsocketURL derives the live channel base from the API base:
// http becomes ws and https becomes wss.
func WebsocketURL(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://")
	}
	return apiURL
}

// defaultPath places name in ~/.dmchat, or in the working directory when
// there is no home.
func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dmchat-" + name
	}
	return filepath.Join(home, ".dmchat", name)
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
