package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config is the deployment-time shape of the pipeline. Whether processing
// runs in-process or via the external worker is fixed here: WorkerURL set
// means the asynchronous webhook path, empty means synchronous.
type Config struct {
	Port        string
	DatabaseURL string
	JWTSecret   string

	StorageDir     string
	StagingDir     string
	MaxUploadBytes int64
	StagingTTL     time.Duration

	WorkerURL           string
	CallbackURL         string
	DispatchMaxAttempts int
	WorkerRPS           float64

	OpenAIAPIKey    string
	TranscribeModel string
	NotesModel      string

	// EncryptionKey enables at-rest encryption of transcriptions when set
	// (hex-encoded 32 bytes).
	EncryptionKey []byte
}

func Load() (Config, error) {
	cfg := Config{}

	cfg.Port = envOrDefault("PORT", "8080")
	cfg.DatabaseURL = envOrDefault("DATABASE_URL", "notestream.db")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	cfg.StorageDir = envOrDefault("STORAGE_DIR", "data/storage")
	cfg.StagingDir = envOrDefault("STAGING_DIR", "data/staging")

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 200)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB * 1024 * 1024

	stagingTTLHours, err := parseIntEnv("STAGING_TTL_HOURS", 24)
	if err != nil {
		return Config{}, fmt.Errorf("parse STAGING_TTL_HOURS: %w", err)
	}
	cfg.StagingTTL = time.Duration(stagingTTLHours) * time.Hour

	cfg.WorkerURL = os.Getenv("WORKER_URL")
	cfg.CallbackURL = envOrDefault("WORKER_CALLBACK_URL",
		fmt.Sprintf("http://localhost:%s/api/v1/processing/webhook", cfg.Port))

	maxAttempts, err := parseIntEnv("DISPATCH_MAX_ATTEMPTS", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse DISPATCH_MAX_ATTEMPTS: %w", err)
	}
	cfg.DispatchMaxAttempts = int(maxAttempts)

	workerRPS, err := parseIntEnv("WORKER_RPS", 10)
	if err != nil {
		return Config{}, fmt.Errorf("parse WORKER_RPS: %w", err)
	}
	cfg.WorkerRPS = float64(workerRPS)

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.TranscribeModel = envOrDefault("OPENAI_MODEL_TRANSCRIBE", "whisper-1")
	cfg.NotesModel = envOrDefault("OPENAI_MODEL_NOTES", "gpt-4o-mini")

	if keyHex := os.Getenv("ENCRYPTION_KEY"); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return Config{}, fmt.Errorf("parse ENCRYPTION_KEY: %w", err)
		}
		if len(key) != 32 {
			return Config{}, fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.EncryptionKey = key
	}

	for _, dir := range []*string{&cfg.StorageDir, &cfg.StagingDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return Config{}, fmt.Errorf("resolve dir %s: %w", *dir, err)
		}
		*dir = abs
	}

	return cfg, nil
}

// Async reports whether this deployment delegates processing to the
// external worker.
func (c Config) Async() bool { return c.WorkerURL != "" }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}
	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}
