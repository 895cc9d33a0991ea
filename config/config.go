package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers accepted in DB_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	AWS      AWSConfig
	OpenAI   OpenAIConfig
	ESign    ESignConfig
	Email    EmailConfig
	Workflow WorkflowConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	MaxUploadMB        int
}

// DatabaseConfig selects the submission/organization store and holds PostgreSQL settings.
type DatabaseConfig struct {
	Driver   string // postgres | mongo
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/ngo_platform?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32 // pgxpool max connections; 0 keeps the pgx default
}

// MongoConfig holds MongoDB settings (used when Database.Driver is mongo).
type MongoConfig struct {
	URL      string
	Database string
	Timeout  time.Duration
}

// RedisConfig holds Redis connection settings. Empty Addr disables idempotency keys and the delivery queue.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

// AWSConfig holds AWS credentials and S3 bucket names.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	TemplatesBucket string
	DocumentsBucket string
}

// OpenAIConfig holds the text-generation backend settings.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, e.g. an Azure/OpenAI-compatible gateway
	Model   string
}

// ESignConfig holds DocuSign settings for agreement dispatch.
type ESignConfig struct {
	Enabled        bool
	AccountID      string
	IntegrationKey string
	UserID         string
	PrivateKey     string // base64-encoded RSA PEM
	BasePath       string // REST host, e.g. https://demo.docusign.net
	OAuthHost      string // e.g. account-d.docusign.com
	TokenTTL       time.Duration
}

// EmailConfig for SMTP delivery of generated correspondence.
type EmailConfig struct {
	FromAddress string
	FromName    string
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
}

// WorkflowConfig holds the deadlines applied to every external call made while processing a submission.
type WorkflowConfig struct {
	AITimeout      time.Duration
	ESignTimeout   time.Duration
	StorageTimeout time.Duration
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8000"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 90),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			MaxUploadMB:        getEnvInt("MAX_UPLOAD_MB", 10),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ngo_platform"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Mongo: MongoConfig{
			URL:      getEnv("MONGODB_URL", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "ngo_platform"),
			Timeout:  getEnvSeconds("MONGODB_TIMEOUT_SEC", 10),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvInt("REDIS_DB", 0),
			IdempotencyTTL: time.Duration(getEnvInt("IDEMPOTENCY_TTL_HOURS", 24)) * time.Hour,
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			TemplatesBucket: getEnv("AWS_S3_TEMPLATES_BUCKET", "ngo-templates"),
			DocumentsBucket: getEnv("AWS_S3_DOCUMENTS_BUCKET", "ngo-documents"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o"),
		},
		ESign: ESignConfig{
			Enabled:        getEnvBool("DOCUSIGN_ENABLED", false),
			AccountID:      getEnv("DOCUSIGN_ACCOUNT_ID", ""),
			IntegrationKey: getEnv("DOCUSIGN_INTEGRATION_KEY", ""),
			UserID:         getEnv("DOCUSIGN_USER_ID", ""),
			PrivateKey:     getEnv("DOCUSIGN_PRIVATE_KEY", ""),
			BasePath:       getEnv("DOCUSIGN_BASE_PATH", "https://demo.docusign.net"),
			OAuthHost:      getEnv("DOCUSIGN_OAUTH_HOST", "account-d.docusign.com"),
			TokenTTL:       getEnvSeconds("DOCUSIGN_TOKEN_TTL_SEC", 3600),
		},
		Email: EmailConfig{
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "noreply@example.org"),
			FromName:    getEnv("EMAIL_FROM_NAME", "NGO Platform"),
			SMTPHost:    getEnv("SMTP_HOST", ""),
			SMTPPort:    getEnvInt("SMTP_PORT", 587),
			SMTPUser:    getEnv("SMTP_USER", ""),
			SMTPPass:    getEnv("SMTP_PASS", ""),
		},
		Workflow: WorkflowConfig{
			AITimeout:      getEnvSeconds("AI_TIMEOUT_SEC", 30),
			ESignTimeout:   getEnvSeconds("ESIGN_TIMEOUT_SEC", 20),
			StorageTimeout: getEnvSeconds("STORAGE_TIMEOUT_SEC", 15),
		},
	}

	switch cfg.Database.Driver {
	case DriverPostgres, DriverMongo:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	if cfg.ESign.Enabled && (cfg.ESign.AccountID == "" || cfg.ESign.IntegrationKey == "" || cfg.ESign.UserID == "" || cfg.ESign.PrivateKey == "") {
		return nil, fmt.Errorf("DOCUSIGN_ENABLED requires DOCUSIGN_ACCOUNT_ID, DOCUSIGN_INTEGRATION_KEY, DOCUSIGN_USER_ID and DOCUSIGN_PRIVATE_KEY")
	}
	return cfg, nil
}

// MaxUploadBytes returns the multipart memory limit for uploads.
func (c ServerConfig) MaxUploadBytes() int64 {
	if c.MaxUploadMB <= 0 {
		return 10 << 20
	}
	return int64(c.MaxUploadMB) << 20
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
