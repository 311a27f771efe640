package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName              string
	AppEnv               string
	AppPort              string
	CORSAllowOrigins     string
	LogLevel             string
	DatabaseURL          string
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBConnMaxLifetime    time.Duration
	DBSlowQuery          time.Duration
	RedisURL             string
	NATSURL              string
	NotificationsChannel string
	JWTSecret            string

	GCSBucket          string
	GCSCredentialsFile string
	GCSEmulatorHost    string
	GCSEndpoint        string
	GCSSignerEmail     string
	GCSPrivateKeyFile  string

	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	CloudinaryAPIEndpoint  string

	StorageUploadTimeout     time.Duration
	StorageDeleteTimeout     time.Duration
	DownloadURLTTL           time.Duration
	UploadURLTTL             time.Duration
	StorageDeleteConcurrency int

	ResourceMaxSizeBytes      int64
	ResourceAllowedExtensions []string

	SubmissionRateLimit  int
	SubmissionRateWindow time.Duration

	OTelExporterEndpoint string
	OTelServiceName      string
	OTelInsecure         bool
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GEMA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA LMS API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.slow_query_threshold", "500ms")
	v.SetDefault("notifications.channel", "gema")
	v.SetDefault("cloudinary.folder", "gema/submissions")
	v.SetDefault("storage.upload_timeout", "2m")
	v.SetDefault("storage.delete_timeout", "30s")
	v.SetDefault("storage.download_url_ttl", "1h")
	v.SetDefault("storage.upload_url_ttl", "5m")
	v.SetDefault("storage.delete_concurrency", 8)
	v.SetDefault("resources.max_size_mb", 50)
	v.SetDefault("resources.allowed_extensions", "pdf,doc,docx,ppt,pptx,xls,xlsx,txt,md,zip,png,jpg,jpeg,mp4")
	v.SetDefault("submissions.rate_limit", 10)
	v.SetDefault("submissions.rate_window", "1m")
	v.SetDefault("otel.service_name", "gema-lms-api")

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		CORSAllowOrigins:       v.GetString("cors.allow_origins"),
		LogLevel:               strings.ToLower(v.GetString("log.level")),
		DatabaseURL:            v.GetString("database.url"),
		DBMaxOpenConns:         v.GetInt("database.max_open_conns"),
		DBMaxIdleConns:         v.GetInt("database.max_idle_conns"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		NotificationsChannel:   v.GetString("notifications.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		GCSBucket:              v.GetString("gcs.bucket"),
		GCSCredentialsFile:     v.GetString("gcs.credentials_file"),
		GCSEmulatorHost:        v.GetString("gcs.emulator_host"),
		GCSEndpoint:            v.GetString("gcs.endpoint"),
		GCSSignerEmail:         v.GetString("gcs.signer_email"),
		GCSPrivateKeyFile:      v.GetString("gcs.private_key_file"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		CloudinaryAPIEndpoint:  v.GetString("cloudinary.api_endpoint"),
		OTelExporterEndpoint:   v.GetString("otel.exporter_endpoint"),
		OTelServiceName:        v.GetString("otel.service_name"),
		OTelInsecure:           v.GetBool("otel.insecure"),
	}

	durations := map[string]*time.Duration{
		"database.conn_max_lifetime":    &cfg.DBConnMaxLifetime,
		"database.slow_query_threshold": &cfg.DBSlowQuery,
		"storage.upload_timeout":        &cfg.StorageUploadTimeout,
		"storage.delete_timeout":        &cfg.StorageDeleteTimeout,
		"storage.download_url_ttl":      &cfg.DownloadURLTTL,
		"storage.upload_url_ttl":        &cfg.UploadURLTTL,
		"submissions.rate_window":       &cfg.SubmissionRateWindow,
	}
	for key, target := range durations {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		*target = parsed
	}

	cfg.StorageDeleteConcurrency = v.GetInt("storage.delete_concurrency")
	if cfg.StorageDeleteConcurrency <= 0 {
		cfg.StorageDeleteConcurrency = 8
	}

	maxSizeMB := v.GetInt64("resources.max_size_mb")
	if maxSizeMB <= 0 {
		return Config{}, fmt.Errorf("resources.max_size_mb must be positive")
	}
	cfg.ResourceMaxSizeBytes = maxSizeMB << 20
	cfg.ResourceAllowedExtensions = splitList(v.GetString("resources.allowed_extensions"))

	cfg.SubmissionRateLimit = v.GetInt("submissions.rate_limit")
	if cfg.SubmissionRateLimit <= 0 {
		cfg.SubmissionRateLimit = 10
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	return cfg, nil
}

func splitList(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.ToLower(strings.TrimSpace(part))
		if trimmed != "" {
			result = append(result, strings.TrimPrefix(trimmed, "."))
		}
	}
	return result
}
