// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Component names a part of the system whose settings must be present.
type Component string

const (
	ComponentPostgres Component = "postgres"
	ComponentRedis    Component = "redis"
	ComponentStorage  Component = "storage"
	ComponentCamunda  Component = "camunda"
	ComponentWizard   Component = "wizard"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on
// top of it and applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)
	return v
}

// bindEnvKeys registers keys that may only come from the environment so
// that Unmarshal sees them even when no config file mentions them.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"database.postgres.host",
		"database.postgres.port",
		"database.postgres.database",
		"database.postgres.user",
		"database.postgres.password",
		"database.redis.address",
		"database.redis.password",
		"storage.s3.bucket",
		"storage.s3.region",
		"storage.s3.base_endpoint",
		"storage.s3.access_key",
		"storage.s3.secret_key",
		"camunda.broker_address",
		"wizard.api_base_url",
		"logging.level",
	} {
		_ = v.BindEnv(key)
	}
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills credentials from the conventional variable names
// used by docker-compose and the AWS tooling.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Storage.S3.AccessKey == "" {
		cfg.Storage.S3.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if cfg.Storage.S3.SecretKey == "" {
		cfg.Storage.S3.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if cfg.Notifications.AWS.Region == "" {
		cfg.Notifications.AWS.Region = os.Getenv("AWS_REGION")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "ethics-review"
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.BasePath == "" {
		cfg.Server.BasePath = "/api"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60000
	}
	if cfg.Server.StoreTimeout == 0 {
		cfg.Server.StoreTimeout = 10000
	}
	if cfg.Server.UploadTimeout == 0 {
		cfg.Server.UploadTimeout = 60000
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 20 << 20
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Redis.CacheTTL == 0 {
		cfg.Database.Redis.CacheTTL = 300000
	}

	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = "us-east-1"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	if cfg.Wizard.APIBaseURL == "" {
		cfg.Wizard.APIBaseURL = "http://localhost:8080/api"
	}
	if cfg.Wizard.RequestTimeout == 0 {
		cfg.Wizard.RequestTimeout = 10000
	}
	if cfg.Wizard.UploadTimeout == 0 {
		cfg.Wizard.UploadTimeout = 60000
	}
	if cfg.Wizard.UploadConcurrency == 0 {
		cfg.Wizard.UploadConcurrency = 4
	}
}

// validateConfig validates fields every binary depends on.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", cfg.Server.Port)
	}
	if !strings.HasPrefix(cfg.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with /")
	}
	if cfg.Wizard.UploadConcurrency < 0 {
		return fmt.Errorf("wizard.upload_concurrency must not be negative")
	}
	return nil
}

// Require checks that the settings of each named component are present.
// Binaries call it with the components they actually connect to.
func (c *Config) Require(components ...Component) error {
	for _, component := range components {
		switch component {
		case ComponentPostgres:
			if c.Database.Postgres.Host == "" {
				return fmt.Errorf("database.postgres.host is required")
			}
			if c.Database.Postgres.Database == "" {
				return fmt.Errorf("database.postgres.database is required")
			}
			if c.Database.Postgres.User == "" {
				return fmt.Errorf("database.postgres.user is required")
			}
		case ComponentRedis:
			if c.Database.Redis.Address == "" {
				return fmt.Errorf("database.redis.address is required")
			}
		case ComponentStorage:
			if c.Storage.S3.Bucket == "" {
				return fmt.Errorf("storage.s3.bucket is required")
			}
		case ComponentCamunda:
			if c.Camunda.BrokerAddress == "" {
				return fmt.Errorf("camunda.broker_address is required")
			}
		case ComponentWizard:
			if c.Wizard.APIBaseURL == "" {
				return fmt.Errorf("wizard.api_base_url is required")
			}
		default:
			return fmt.Errorf("unknown component %q", component)
		}
	}
	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
