package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds pipeline configuration merged from the optional config file
// and environment overrides. Environment wins over file, file wins over
// defaults.
type Config struct {
	BronzeDir     string
	SilverDir     string
	PeriodDir     string
	GoldDir       string
	GoldFile      string
	DBPath        string
	HTTPPort      string
	WorkerCount   int
	JobQueueSize  int
	JobTimeoutSec int
	EnableWatcher bool
	BackfillLimit int
	StrictConfig  bool
}

type fileConfig struct {
	BronzeDir     string `json:"bronze_dir" yaml:"bronze_dir"`
	SilverDir     string `json:"silver_dir" yaml:"silver_dir"`
	PeriodDir     string `json:"period_dir" yaml:"period_dir"`
	GoldDir       string `json:"gold_dir" yaml:"gold_dir"`
	GoldFile      string `json:"gold_file" yaml:"gold_file"`
	DBPath        string `json:"db_path" yaml:"db_path"`
	HTTPPort      string `json:"http_port" yaml:"http_port"`
	WorkerCount   *int   `json:"worker_count" yaml:"worker_count"`
	JobQueueSize  *int   `json:"job_queue_size" yaml:"job_queue_size"`
	EnableWatcher *bool  `json:"enable_watcher" yaml:"enable_watcher"`
	BackfillLimit *int   `json:"backfill_limit" yaml:"backfill_limit"`
}

const (
	defaultPort          = ":8080"
	defaultBronzeDir     = "runtime/bronze"
	defaultSilverDir     = "runtime/silver"
	defaultPeriodDir     = "runtime/periods"
	defaultGoldDir       = "runtime/gold"
	defaultGoldFile      = "crime_gold_reports.csv"
	defaultDBFile        = "pipeline.db"
	minQueueSize         = 1
	defaultQueueSize     = 256
	maxQueueSize         = 4096
	defaultWorkerCount   = 4
	maxWorkerCount       = 64
	defaultJobTimeoutSec = 600
	defaultBackfillLimit = 0 // unlimited
)

// Load reads configuration from the optional config file plus environment
// variables. Under STRICT_CONFIG any load or validation failure is fatal;
// otherwise the pipeline logs and continues on defaults.
func Load() (Config, error) {
	LoadDotEnv(".env")

	cfg := Config{
		WorkerCount:   defaultWorkerCount,
		JobQueueSize:  defaultQueueSize,
		JobTimeoutSec: defaultJobTimeoutSec,
		EnableWatcher: true,
		BackfillLimit: defaultBackfillLimit,
		StrictConfig:  parseBoolEnv("STRICT_CONFIG"),
	}

	configPath := getEnv("CONFIG_PATH", filepath.Join("config", "config.yaml"))
	fileCfg, fileErr := loadFileConfig(configPath)
	if fileErr != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", configPath, fileErr)
		}
		log.Printf("config load failed (%s): %v (using defaults)", configPath, fileErr)
	}

	cfg.BronzeDir = firstNonEmpty(os.Getenv("BRONZE_DIR"), fileCfg.BronzeDir, defaultBronzeDir)
	cfg.SilverDir = firstNonEmpty(os.Getenv("SILVER_DIR"), fileCfg.SilverDir, defaultSilverDir)
	cfg.PeriodDir = firstNonEmpty(os.Getenv("PERIOD_DIR"), fileCfg.PeriodDir, defaultPeriodDir)
	cfg.GoldDir = firstNonEmpty(os.Getenv("GOLD_DIR"), fileCfg.GoldDir, defaultGoldDir)
	cfg.GoldFile = firstNonEmpty(os.Getenv("GOLD_FILE"), fileCfg.GoldFile, defaultGoldFile)

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	} else if fileCfg.DBPath != "" {
		cfg.DBPath = fileCfg.DBPath
	} else {
		cfg.DBPath = filepath.Join(cfg.GoldDir, defaultDBFile)
	}

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), fileCfg.HTTPPort, defaultPort)
	if !strings.HasPrefix(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}

	if fileCfg.WorkerCount != nil && *fileCfg.WorkerCount > 0 {
		cfg.WorkerCount = *fileCfg.WorkerCount
	}
	if fileCfg.JobQueueSize != nil && *fileCfg.JobQueueSize > 0 {
		cfg.JobQueueSize = *fileCfg.JobQueueSize
	}
	if fileCfg.EnableWatcher != nil {
		cfg.EnableWatcher = *fileCfg.EnableWatcher
	}
	if fileCfg.BackfillLimit != nil && *fileCfg.BackfillLimit >= 0 {
		cfg.BackfillLimit = *fileCfg.BackfillLimit
	}

	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Printf("invalid WORKER_COUNT=%q, using default %d", v, defaultWorkerCount)
			n = defaultWorkerCount
		}
		cfg.WorkerCount = n
	}
	cfg.WorkerCount = clampInt(cfg.WorkerCount, 1, maxWorkerCount)

	if v := os.Getenv("JOB_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid JOB_QUEUE_SIZE=%q, using default %d", v, defaultQueueSize)
			n = defaultQueueSize
		}
		cfg.JobQueueSize = n
	}
	cfg.JobQueueSize = clampInt(cfg.JobQueueSize, minQueueSize, maxQueueSize)
	if cfg.JobQueueSize < cfg.WorkerCount {
		log.Printf("JOB_QUEUE_SIZE must be >= WORKER_COUNT; raising to %d", cfg.WorkerCount)
		cfg.JobQueueSize = cfg.WorkerCount
	}

	if v := os.Getenv("JOB_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid JOB_TIMEOUT_SEC: %w", err)
		}
		if n <= 0 {
			return cfg, errors.New("JOB_TIMEOUT_SEC must be positive")
		}
		cfg.JobTimeoutSec = n
	}

	if v := strings.TrimSpace(os.Getenv("ENABLE_WATCHER")); v != "" {
		cfg.EnableWatcher = parseBoolEnv("ENABLE_WATCHER")
	}

	if v := os.Getenv("BACKFILL_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Printf("invalid BACKFILL_LIMIT=%q, ignoring", v)
		} else {
			cfg.BackfillLimit = n
		}
	}

	if err := validateConfig(cfg); err != nil {
		if cfg.StrictConfig {
			return cfg, err
		}
		log.Printf("config validation failed: %v (continuing)", err)
	}

	log.Printf("config: bronze=%s silver=%s periods=%s gold=%s db=%s workers=%d",
		cfg.BronzeDir, cfg.SilverDir, cfg.PeriodDir, cfg.GoldDir, cfg.DBPath, cfg.WorkerCount)
	return cfg, nil
}

// GoldPath is the full path of the final report table.
func (c Config) GoldPath() string {
	return filepath.Join(c.GoldDir, c.GoldFile)
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if len(data) == 0 {
		return cfg, errors.New("empty config file")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.BronzeDir) == "" {
		return errors.New("BRONZE_DIR is required")
	}
	if strings.TrimSpace(cfg.SilverDir) == "" {
		return errors.New("SILVER_DIR is required")
	}
	if strings.TrimSpace(cfg.GoldDir) == "" {
		return errors.New("GOLD_DIR is required")
	}
	if strings.TrimSpace(cfg.HTTPPort) == "" {
		return errors.New("HTTP_PORT is required")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Now returns utc time truncated to seconds for deterministic timestamps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
