package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Neo4j         Neo4jConfig         `yaml:"neo4j"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	ActivityLog   ActivityLogConfig   `yaml:"activity_log"`
	Auth          AuthConfig          `yaml:"auth"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
	Queue         QueueConfig         `yaml:"queue"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Storage       StorageConfig       `yaml:"storage"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	CORSAllowOrigin string        `yaml:"cors_allow_origin"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL is the postgres:// form of the DSN, as the migrator requires.
func (c DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type Neo4jConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ActivityLogConfig selects where the audit trail is written. Driver is
// "postgres" (the main database) or "sqlite".
type ActivityLogConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
}

type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	AccessTokenExpiry  time.Duration `yaml:"access_token_expiry"`
	RefreshTokenExpiry time.Duration `yaml:"refresh_token_expiry"`
	AdminEmail         string        `yaml:"admin_email"`
	AdminPassword      string        `yaml:"admin_password"`
}

type AnalysisConfig struct {
	BatchConcurrency int     `yaml:"batch_concurrency"`
	MaxBatchSize     int     `yaml:"max_batch_size"`
	RateLimit        float64 `yaml:"rate_limit"`
	RateBurst        int     `yaml:"rate_burst"`
	MaxTextBytes     int64   `yaml:"max_text_bytes"`
}

type QueueConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Workers     int           `yaml:"workers"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

type SchedulerConfig struct {
	Enabled           bool          `yaml:"enabled"`
	OverdueSweep      string        `yaml:"overdue_sweep"`
	RetentionPurge    string        `yaml:"retention_purge"`
	StaleRequeue      string        `yaml:"stale_requeue"`
	AnalysisRetention time.Duration `yaml:"analysis_retention"`
	StaleAfter        time.Duration `yaml:"stale_after"`
}

// StorageConfig enables the document text sources. A provider is used
// when its identifying field (region, project, account or root) is set.
type StorageConfig struct {
	LocalRoot string      `yaml:"local_root"`
	MaxBytes  int64       `yaml:"max_bytes"`
	AWS       AWSConfig   `yaml:"aws"`
	Azure     AzureConfig `yaml:"azure"`
	GCP       GCPConfig   `yaml:"gcp"`
}

type AWSConfig struct {
	Region          string `yaml:"region"`
	AssumeRoleARN   string `yaml:"assume_role_arn"`
	ExternalID      string `yaml:"external_id"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type AzureConfig struct {
	TenantID       string `yaml:"tenant_id"`
	ClientID       string `yaml:"client_id"`
	ClientSecret   string `yaml:"client_secret"`
	StorageAccount string `yaml:"storage_account"`
}

type GCPConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

type NotificationsConfig struct {
	// MinPII is the number of PII items at which a completed document
	// analysis raises an alert.
	MinPII int               `yaml:"min_pii"`
	Slack  SlackNotifyConfig `yaml:"slack"`
	Email  EmailNotifyConfig `yaml:"email"`
}

type SlackNotifyConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

type EmailNotifyConfig struct {
	Enabled  bool     `yaml:"enabled"`
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Load reads a .env file when one exists, then the YAML config at path
// with environment variables expanded. A missing config file yields the
// defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.CORSAllowOrigin == "" {
		c.Server.CORSAllowOrigin = "*"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.User == "" {
		c.Database.User = "foia"
	}
	if c.Database.Database == "" {
		c.Database.Database = "foia"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}

	if c.Neo4j.URI == "" {
		c.Neo4j.URI = "bolt://localhost:7687"
	}

	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "foia.analysis"
	}

	if c.ActivityLog.Driver == "" {
		c.ActivityLog.Driver = "postgres"
	}
	if c.ActivityLog.SQLitePath == "" {
		c.ActivityLog.SQLitePath = "foia-activity.db"
	}

	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "change-me-in-production"

		fmt.Println("WARNING: Using default JWT secret. Set auth.jwt_secret in production!")
	}
	if c.Auth.AccessTokenExpiry == 0 {
		c.Auth.AccessTokenExpiry = 15 * time.Minute
	}
	if c.Auth.RefreshTokenExpiry == 0 {
		c.Auth.RefreshTokenExpiry = 7 * 24 * time.Hour
	}

	if c.Analysis.BatchConcurrency == 0 {
		c.Analysis.BatchConcurrency = 4
	}
	if c.Analysis.MaxBatchSize == 0 {
		c.Analysis.MaxBatchSize = 50
	}
	if c.Analysis.RateLimit == 0 {
		c.Analysis.RateLimit = 5
	}
	if c.Analysis.RateBurst == 0 {
		c.Analysis.RateBurst = 10
	}
	if c.Analysis.MaxTextBytes == 0 {
		c.Analysis.MaxTextBytes = 5 * 1024 * 1024
	}

	if c.Queue.Workers == 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.JobTimeout == 0 {
		c.Queue.JobTimeout = 5 * time.Minute
	}
	if c.Queue.PollTimeout == 0 {
		c.Queue.PollTimeout = 5 * time.Second
	}

	if c.Scheduler.OverdueSweep == "" {
		c.Scheduler.OverdueSweep = "0 7 * * 1-5"
	}
	if c.Scheduler.RetentionPurge == "" {
		c.Scheduler.RetentionPurge = "30 2 * * *"
	}
	if c.Scheduler.StaleRequeue == "" {
		c.Scheduler.StaleRequeue = "*/15 * * * *"
	}
	if c.Scheduler.AnalysisRetention == 0 {
		c.Scheduler.AnalysisRetention = 90 * 24 * time.Hour
	}
	if c.Scheduler.StaleAfter == 0 {
		c.Scheduler.StaleAfter = 30 * time.Minute
	}

	if c.Storage.MaxBytes == 0 {
		c.Storage.MaxBytes = c.Analysis.MaxTextBytes
	}

	if c.Notifications.MinPII == 0 {
		c.Notifications.MinPII = 10
	}
	if c.Notifications.Email.SMTPPort == 0 {
		c.Notifications.Email.SMTPPort = 587
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "foia"
	}
}
