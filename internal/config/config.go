// Package config loads runtime settings from the environment (optionally seeded
// from a .env file) and an optional YAML file layered on top.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string       `yaml:"port"`
	GinMode     string       `yaml:"gin_mode"`
	CORSOrigins []string     `yaml:"cors_origins"`
	DB          DBConfig     `yaml:"db"`
	Auth        AuthConfig   `yaml:"auth"`
	Blob        BlobConfig   `yaml:"blob"`
	Notify      NotifyConfig `yaml:"notify"`
}

type DBConfig struct {
	Driver       string        `yaml:"driver"` // postgres or sqlite
	DSN          string        `yaml:"dsn"`    // overrides the discrete fields when set
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password"`
	Name         string        `yaml:"name"`
	SSLMode      string        `yaml:"sslmode"`
	LockTimeout  time.Duration `yaml:"lock_timeout"`
	MaxOpenConns int           `yaml:"max_open_conns"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

type BlobConfig struct {
	Driver         string `yaml:"driver"` // fs, s3 or memory
	FSRoot         string `yaml:"fs_root"`
	PublicBase     string `yaml:"public_base"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	S3Bucket       string `yaml:"s3_bucket"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3PathStyle    bool   `yaml:"s3_path_style"`
}

type NotifyConfig struct {
	AWSRegion   string        `yaml:"aws_region"`
	SESFrom     string        `yaml:"ses_from"`
	AdminEmails []string      `yaml:"admin_emails"` // empty means every admin user's address
	SESEnabled  bool          `yaml:"ses_enabled"`
	SNSTopicARN string        `yaml:"sns_topic_arn"`
	QueueSize   int           `yaml:"queue_size"`
	SinkTimeout time.Duration `yaml:"sink_timeout"`
}

const devJWTSecret = "default_super_secret_key"

// Load reads envFile (if it exists) into the process environment, builds the
// config from environment variables, then overlays yamlPath when non-empty.
func Load(envFile, yamlPath string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("No %s file found or error loading it", envFile)
		}
	}

	cfg := FromEnv()
	if yamlPath != "" {
		if err := cfg.overlayYAML(yamlPath); err != nil {
			return Config{}, err
		}
	}
	if cfg.Auth.JWTSecret == "" && cfg.GinMode != "release" {
		cfg.Auth.JWTSecret = devJWTSecret // Development fallback only
	}
	return cfg, cfg.Validate()
}

// FromEnv builds a config from environment variables and defaults.
func FromEnv() Config {
	return Config{
		Port:        getenv("PORT", "8080"),
		GinMode:     os.Getenv("GIN_MODE"),
		CORSOrigins: splitList(getenv("CORS_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")),
		DB: DBConfig{
			Driver:       getenv("DB_DRIVER", "postgres"),
			DSN:          os.Getenv("DB_DSN"),
			Host:         getenv("DB_HOST", "localhost"),
			Port:         getenv("DB_PORT", "5432"),
			User:         getenv("DB_USER", "postgres"),
			Password:     getenv("DB_PASSWORD", "postgres"),
			Name:         getenv("DB_NAME", "postgres"),
			SSLMode:      getenv("DB_SSLMODE", "disable"),
			LockTimeout:  getDuration("LOCK_TIMEOUT", 5*time.Second),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 20),
		},
		Auth: AuthConfig{
			JWTSecret:  os.Getenv("JWT_SECRET"),
			TokenTTL:   getDuration("TOKEN_TTL", 24*time.Hour),
			RefreshTTL: getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		},
		Blob: BlobConfig{
			Driver:         getenv("BLOB_DRIVER", "fs"),
			FSRoot:         getenv("BLOB_FS_ROOT", "./uploads"),
			PublicBase:     getenv("BLOB_PUBLIC_BASE", "/uploads"),
			MaxUploadBytes: int64(getInt("MAX_UPLOAD_BYTES", 10<<20)),
			S3Bucket:       os.Getenv("S3_BUCKET"),
			S3Region:       getenv("S3_REGION", os.Getenv("AWS_REGION")),
			S3Endpoint:     os.Getenv("S3_ENDPOINT"),
			S3PathStyle:    strings.EqualFold(os.Getenv("S3_PATH_STYLE"), "true"),
		},
		Notify: NotifyConfig{
			AWSRegion:   getenv("AWS_REGION", "eu-central-1"),
			SESFrom:     os.Getenv("SES_FROM_EMAIL"),
			AdminEmails: splitList(os.Getenv("ADMIN_EMAILS")),
			SESEnabled:  strings.EqualFold(os.Getenv("SES_ENABLED"), "true"),
			SNSTopicARN: os.Getenv("SNS_TOPIC_ARN"),
			QueueSize:   getInt("NOTIFY_QUEUE_SIZE", 128),
			SinkTimeout: getDuration("NOTIFY_SINK_TIMEOUT", 10*time.Second),
		},
	}
}

func (c *Config) overlayYAML(path string) error {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")
	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("db.driver must be postgres or sqlite, got %q", c.DB.Driver))
	}
	if c.DB.Driver == "sqlite" && c.DB.DSN == "" {
		errs = append(errs, errors.New("db.dsn is required when db.driver=sqlite"))
	}
	if c.DB.LockTimeout < 0 {
		errs = append(errs, errors.New("db.lock_timeout must not be negative"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required in release mode"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Auth.RefreshTTL < c.Auth.TokenTTL {
		errs = append(errs, errors.New("auth.refresh_ttl must not be shorter than auth.token_ttl"))
	}
	switch c.Blob.Driver {
	case "fs", "memory":
	case "s3":
		if c.Blob.S3Bucket == "" {
			errs = append(errs, errors.New("blob.s3_bucket is required when blob.driver=s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver must be fs, s3 or memory, got %q", c.Blob.Driver))
	}
	if c.Blob.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("blob.max_upload_bytes must be positive"))
	}
	if c.Notify.SESEnabled && c.Notify.SESFrom == "" {
		errs = append(errs, errors.New("notify.ses_from is required when notify.ses_enabled=true"))
	}
	return errors.Join(errs...)
}

// PostgresDSN renders the connection URL from the discrete fields unless DSN is set.
func (d DBConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// AWSEnabled reports whether any AWS-backed integration is configured.
func (c Config) AWSEnabled() bool {
	return c.Blob.Driver == "s3" || c.Notify.SESEnabled || c.Notify.SNSTopicARN != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, v, err)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, v, err)
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
