package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	PrimaryDB PrimaryDBConfig
	Secondary SecondaryDBConfig
	Ledger    LedgerConfig
	Engine    EngineConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port string
	Host string
	Env  string
}

// PrimaryDBConfig points at the relational record store.
type PrimaryDBConfig struct {
	Path string
}

// SecondaryDBConfig points at the CouchDB instance holding the document
// replicas and the detection rules.
type SecondaryDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// LedgerConfig points at the engine-owned conflict ledger database.
type LedgerConfig struct {
	Path string
}

type EngineConfig struct {
	// TimestampField names the "last modified" column/field on records.
	TimestampField string
	// SkewTolerance is the timestamp drift the classifier ignores.
	SkewTolerance time.Duration
	// ResolveTimeout bounds a full resolution attempt, including the
	// cross-store writes of merge/manual.
	ResolveTimeout time.Duration
}

type WebSocketConfig struct {
	MaxClients int
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
}

type CORSConfig struct {
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

type LoggingConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
			Env:  getEnv("ENV", "development"),
		},
		PrimaryDB: PrimaryDBConfig{
			Path: getEnv("PRIMARY_DB_PATH", "primary.db"),
		},
		Secondary: SecondaryDBConfig{
			Host:     getEnv("COUCH_HOST", "localhost"),
			Port:     getEnv("COUCH_PORT", "5984"),
			User:     getEnv("COUCH_USER", "admin"),
			Password: getEnv("COUCH_PASSWORD", "password"),
			Name:     getEnv("COUCH_DB_NAME", "reconciler"),
		},
		Ledger: LedgerConfig{
			Path: getEnv("LEDGER_DB_PATH", "ledger.db"),
		},
		Engine: EngineConfig{
			TimestampField: getEnv("TIMESTAMP_FIELD", "updated_at"),
			SkewTolerance:  getEnvAsDuration("SKEW_TOLERANCE", time.Second),
			ResolveTimeout: getEnvAsDuration("RESOLVE_TIMEOUT", 30*time.Second),
		},
		WebSocket: WebSocketConfig{
			MaxClients: getEnvAsInt("WS_MAX_CLIENTS", 32),
			WriteWait:  10 * time.Second,
			PongWait:   60 * time.Second,
			PingPeriod: 54 * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getEnvAsBool("LOG_PRETTY", false),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
