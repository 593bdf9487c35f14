package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	GigaChat   GigaChatConfig
	Backends   BackendsConfig
	Provider   ProviderConfig
	Worker     WorkerConfig
	Retry      RetryConfig
	Classifier ClassifierConfig
	Logger     LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BodyLimit    int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxConns       int32
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
}

// BackendsConfig holds endpoints and time budgets of the external analysis services.
// An empty URL disables the corresponding backend.
type BackendsConfig struct {
	StatementsURL     string
	StatementsTimeout time.Duration

	TaxURL       string
	TaxTimeout   time.Duration
	TaxBatchSize int

	FSURL            string
	FSTimeout        time.Duration
	FSUploadTimeout  time.Duration
	FSRequestTimeout time.Duration
	FSPollInterval   time.Duration
	FSMaxAttempts    int
}

// ProviderConfig selects the secondary source of file bytes: "http", "gcs" or "" (none).
type ProviderConfig struct {
	Kind     string
	BaseURL  string
	APIKey   string
	Bucket   string
	Prefix   string
	Timeout  time.Duration
	Fetchers int
}

type WorkerConfig struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

type ClassifierConfig struct {
	RulesPath    string
	AgentEnabled bool
	BatchSize    int
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work as well (Docker/K8s)
	for _, envFile := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getSeconds("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getSeconds("SERVER_WRITE_TIMEOUT", 30),
			BodyLimit:    getInt("SERVER_BODY_LIMIT_MB", 50) * 1024 * 1024,
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "ikap"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConns:       int32(getInt("DB_MAX_CONNS", 5)),
			ConnectTimeout: getSeconds("DB_CONNECT_TIMEOUT", 15),
			IdleTimeout:    getSeconds("DB_IDLE_TIMEOUT", 30),
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(getInt("JWT_EXPIRATION_HOURS", 24)) * time.Hour,
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			Model:              getEnv("GIGACHAT_MODEL", "GigaChat"),
			InsecureSkipVerify: getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "true") == "true",
		},
		Backends: BackendsConfig{
			StatementsURL:     getEnv("STATEMENTS_CONVERTER_URL", ""),
			StatementsTimeout: getMinutes("STATEMENTS_TIMEOUT_MINUTES", 30),
			TaxURL:            getEnv("TAX_PDF_SERVICE_URL", ""),
			TaxTimeout:        getMinutes("TAX_TIMEOUT_MINUTES", 40),
			TaxBatchSize:      getInt("TAX_BATCH_SIZE", 5),
			FSURL:             getEnv("FINANCIAL_PDF_SERVICE_URL", ""),
			FSTimeout:         getMinutes("FS_TIMEOUT_MINUTES", 10),
			FSUploadTimeout:   getSeconds("FS_UPLOAD_TIMEOUT", 120),
			FSRequestTimeout:  getSeconds("FS_REQUEST_TIMEOUT", 10),
			FSPollInterval:    getSeconds("FS_POLL_INTERVAL", 3),
			FSMaxAttempts:     getInt("FS_MAX_POLL_ATTEMPTS", 120),
		},
		Provider: ProviderConfig{
			Kind:     getEnv("FILE_PROVIDER", ""),
			BaseURL:  getEnv("FILE_PROVIDER_URL", "https://api.openai.com/v1"),
			APIKey:   getEnv("FILE_PROVIDER_API_KEY", ""),
			Bucket:   getEnv("FILE_PROVIDER_BUCKET", ""),
			Prefix:   getEnv("FILE_PROVIDER_PREFIX", "uploads"),
			Timeout:  getSeconds("FILE_PROVIDER_TIMEOUT", 60),
			Fetchers: getInt("FILE_PROVIDER_FETCHERS", 4),
		},
		Worker: WorkerConfig{
			Workers:     getInt("WORKER_COUNT", 4),
			QueueSize:   getInt("WORKER_QUEUE_SIZE", 64),
			TaskTimeout: getMinutes("WORKER_TASK_TIMEOUT_MINUTES", 45),
		},
		Retry: RetryConfig{
			MaxRetries:   getInt("RETRY_MAX_ATTEMPTS", 3),
			InitialDelay: time.Duration(getInt("RETRY_INITIAL_DELAY_MS", 200)) * time.Millisecond,
			MaxDelay:     time.Duration(getInt("RETRY_MAX_DELAY_MS", 5000)) * time.Millisecond,
		},
		Classifier: ClassifierConfig{
			RulesPath:    getEnv("CLASSIFIER_RULES_PATH", ""),
			AgentEnabled: getEnv("CLASSIFIER_AGENT_ENABLED", "true") == "true",
			BatchSize:    getInt("CLASSIFIER_BATCH_SIZE", 40),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getInt(key, defaultValue)) * time.Second
}

func getMinutes(key string, defaultValue int) time.Duration {
	return time.Duration(getInt(key, defaultValue)) * time.Minute
}
