package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultAPIKey is the development key the REST API falls back to.
const DefaultAPIKey = "change_me_secret_key"

type Config struct {
	APIAddr       string
	DashboardAddr string
	MetricsAddr   string
	// APIURL is where the CLI reaches the REST API.
	APIURL        string
	DatabaseURL   string
	MigrationsDir string
	APIKey        string
	JWTSecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SessionCheck  time.Duration
	CORSOrigin    string
	PublicBaseURL string

	LogLevel  string
	LogFormat string

	TraceExporter string
	OTLPEndpoint  string
	ServiceName   string

	MeiliURL       string
	MeiliMasterKey string

	// Redis backs refresh sessions and the ingest rate limit when set.
	RedisURL         string
	IngestRateLimit  int
	IngestRateWindow time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// Load reads the environment, layered over the optional YAML file named by
// JOBTRACK_CONFIG.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

func LoadFrom(getenvFn func(string) string) (Config, error) {
	file := map[string]string{}
	if path := strings.TrimSpace(getenvFn("JOBTRACK_CONFIG")); path != "" {
		loaded, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		file = loaded
	}
	src := source{env: getenvFn, file: file}

	return Config{
		APIAddr:       src.get("API_ADDR", ":8787"),
		DashboardAddr: src.get("DASHBOARD_ADDR", ":8788"),
		MetricsAddr:   src.get("METRICS_ADDR", ":9090"),
		APIURL:        strings.TrimRight(src.get("JOBTRACK_API_URL", "http://localhost:8787"), "/"),
		DatabaseURL:   src.get("DATABASE_URL", ""),
		MigrationsDir: src.get("MIGRATIONS_DIR", ""),
		APIKey:        src.get("API_KEY", DefaultAPIKey),
		JWTSecret:     src.get("JWT_SECRET", "jobtrack-dev-secret"),
		AccessTTL:     time.Duration(src.getInt("ACCESS_TTL_SECONDS", 900)) * time.Second,
		RefreshTTL:    time.Duration(src.getInt("REFRESH_TTL_SECONDS", 2592000)) * time.Second,
		SessionCheck:  time.Duration(src.getInt("SESSION_CHECK_TIMEOUT_MS", 6000)) * time.Millisecond,
		CORSOrigin:    src.get("CORS_ORIGIN", "*"),
		PublicBaseURL: strings.TrimRight(src.get("PUBLIC_BASE_URL", "http://localhost:8788"), "/"),

		LogLevel:  src.get("LOG_LEVEL", "info"),
		LogFormat: src.get("LOG_FORMAT", "json"),

		TraceExporter: src.get("TRACE_EXPORTER", "none"),
		OTLPEndpoint:  src.get("OTLP_ENDPOINT", "localhost:4318"),
		ServiceName:   src.get("SERVICE_NAME", "jobtrack"),

		MeiliURL:       src.get("MEILI_URL", ""),
		MeiliMasterKey: src.get("MEILI_MASTER_KEY", ""),

		RedisURL:         src.get("REDIS_URL", ""),
		IngestRateLimit:  src.getInt("INGEST_RATE_LIMIT", 120),
		IngestRateWindow: time.Duration(src.getInt("INGEST_RATE_WINDOW_SECONDS", 60)) * time.Second,

		// SMTP is disabled unless a host and sender are set.
		SMTPHost:     src.get("SMTP_HOST", ""),
		SMTPPort:     src.get("SMTP_PORT", "587"),
		SMTPUsername: src.get("SMTP_USERNAME", ""),
		SMTPPassword: src.get("SMTP_PASSWORD", ""),
		SMTPFrom:     src.get("SMTP_FROM", ""),
		SMTPFromName: src.get("SMTP_FROM_NAME", "Jobtrack"),

		MinioEndpoint:  src.get("MINIO_ENDPOINT", ""),
		MinioAccessKey: src.get("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: src.get("MINIO_SECRET_KEY", ""),
		MinioBucket:    src.get("MINIO_BUCKET", "jobtrack-exports"),
		MinioUseSSL:    src.getBool("MINIO_USE_SSL", false),
	}, nil
}

func (c Config) UsesDefaultAPIKey() bool {
	return c.APIKey == DefaultAPIKey
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	values := make(map[string]string, len(doc))
	for key, value := range doc {
		if value == nil {
			continue
		}
		values[strings.ToUpper(key)] = fmt.Sprint(value)
	}
	return values, nil
}

type source struct {
	env  func(string) string
	file map[string]string
}

func (s source) get(key, fallback string) string {
	if value := s.env(key); value != "" {
		return value
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value
	}
	return fallback
}

func (s source) getInt(key string, fallback int) int {
	parsed, err := strconv.Atoi(s.get(key, ""))
	if err != nil {
		return fallback
	}
	return parsed
}

func (s source) getBool(key string, fallback bool) bool {
	parsed, err := strconv.ParseBool(s.get(key, ""))
	if err != nil {
		return fallback
	}
	return parsed
}
