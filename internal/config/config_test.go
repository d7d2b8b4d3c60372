package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("STRICT_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPPort != ":8080" {
		t.Fatalf("port = %q", cfg.HTTPPort)
	}
	if cfg.WorkerCount != 4 || cfg.JobQueueSize != 256 {
		t.Fatalf("workers = %d queue = %d", cfg.WorkerCount, cfg.JobQueueSize)
	}
	if cfg.BronzeDir != filepath.Join("runtime", "bronze") {
		t.Fatalf("bronze dir = %q", cfg.BronzeDir)
	}
	if cfg.GoldPath() != filepath.Join("runtime", "gold", "crime_gold_reports.csv") {
		t.Fatalf("gold path = %q", cfg.GoldPath())
	}
	if !cfg.EnableWatcher {
		t.Fatalf("watcher should default on")
	}
}

func TestHTTPPortGetsColonPrefix(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("HTTP_PORT", "9090")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPPort != ":9090" {
		t.Fatalf("port = %q", cfg.HTTPPort)
	}
}

func TestWorkerAndQueueClamping(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("WORKER_COUNT", "500")
	t.Setenv("JOB_QUEUE_SIZE", "2")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WorkerCount != 64 {
		t.Fatalf("worker count = %d", cfg.WorkerCount)
	}
	// The queue never shrinks below the worker pool.
	if cfg.JobQueueSize != 64 {
		t.Fatalf("queue size = %d", cfg.JobQueueSize)
	}
}

func TestInvalidWorkerCountFallsBack(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("WORKER_COUNT", "potato")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WorkerCount != 4 {
		t.Fatalf("worker count = %d", cfg.WorkerCount)
	}
}

func TestBackfillLimitParsing(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("BACKFILL_LIMIT", "25")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BackfillLimit != 25 {
		t.Fatalf("backfill limit = %d", cfg.BackfillLimit)
	}

	t.Setenv("BACKFILL_LIMIT", "-3")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BackfillLimit != 0 {
		t.Fatalf("negative limit should be ignored, got %d", cfg.BackfillLimit)
	}
}

func TestStrictConfigFailsOnMissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("STRICT_CONFIG", "true")
	if _, err := Load(); err == nil {
		t.Fatalf("expected strict mode to fail on missing config file")
	}
}

func TestFileConfigAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "bronze_dir: /data/raw\nworker_count: 8\nhttp_port: \"7000\"\nenable_watcher: false\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("HTTP_PORT", "7100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BronzeDir != "/data/raw" {
		t.Fatalf("bronze dir = %q", cfg.BronzeDir)
	}
	if cfg.WorkerCount != 8 {
		t.Fatalf("worker count = %d", cfg.WorkerCount)
	}
	if cfg.EnableWatcher {
		t.Fatalf("file should disable watcher")
	}
	// Environment wins over the file.
	if cfg.HTTPPort != ":7100" {
		t.Fatalf("port = %q", cfg.HTTPPort)
	}
}

func TestJSONConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"gold_dir": "/data/gold", "gold_file": "reports.csv"}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GoldPath() != filepath.Join("/data/gold", "reports.csv") {
		t.Fatalf("gold path = %q", cfg.GoldPath())
	}
	if cfg.DBPath != filepath.Join("/data/gold", "pipeline.db") {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
}

func TestLoadDotEnvSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "PIPE_TEST_A=from_file\nPIPE_TEST_B=from_file\n# comment\nexport PIPE_TEST_C=\"quoted value\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PIPE_TEST_A", "from_env")
	t.Setenv("PIPE_TEST_B", "")
	os.Unsetenv("PIPE_TEST_B")
	t.Setenv("PIPE_TEST_C", "")
	os.Unsetenv("PIPE_TEST_C")

	LoadDotEnv(path)
	if got := os.Getenv("PIPE_TEST_A"); got != "from_env" {
		t.Fatalf("existing env should win, got %q", got)
	}
	if got := os.Getenv("PIPE_TEST_B"); got != "from_file" {
		t.Fatalf("dotenv value = %q", got)
	}
	if got := os.Getenv("PIPE_TEST_C"); got != "quoted value" {
		t.Fatalf("export line value = %q", got)
	}
}
