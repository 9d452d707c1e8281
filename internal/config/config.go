package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port             int           `yaml:"port"`
	RelayURL         string        `yaml:"relay_url"`
	StateFile        string        `yaml:"state_file"`
	CaptureDirectory string        `yaml:"capture_directory"`
	LogDirectory     string        `yaml:"log_directory"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
	ThrottleInterval time.Duration `yaml:"throttle_interval"`
	FrameInterval    time.Duration `yaml:"frame_interval"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	ModelPath        string        `yaml:"model_path"`
	ModelConfigPath  string        `yaml:"model_config_path"`
	AdminUsername    string        `yaml:"admin_username"`
	AdminPassword    string        `yaml:"admin_password"`
	LoginRatePerMin  int           `yaml:"login_rate_per_min"`
}

// Load reads configuration from the environment (a .env file is picked up if
// present) and, when CONFIG_FILE is set, overlays values from a YAML file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnvAsInt("PORT", 5000),
		RelayURL:         getEnv("RELAY_URL", "http://localhost:5001"),
		StateFile:        getEnv("STATE_FILE", "users.json"),
		CaptureDirectory: getEnv("CAPTURE_DIR", filepath.Join("static", "captures")),
		LogDirectory:     getEnv("LOG_DIR", filepath.Join(".", "logs")),
		SessionTTL:       getEnvAsDuration("SESSION_TTL", time.Hour),
		ThrottleInterval: getEnvAsDuration("THROTTLE_INTERVAL", 5*time.Second),
		FrameInterval:    getEnvAsDuration("FRAME_INTERVAL", 33*time.Millisecond),
		OpenTimeout:      getEnvAsDuration("OPEN_TIMEOUT", 20*time.Second),
		ReadTimeout:      getEnvAsDuration("READ_TIMEOUT", 10*time.Second),
		ModelPath:        getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ModelConfigPath:  getEnv("MODEL_CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		AdminUsername:    getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:    getEnv("ADMIN_PASSWORD", ""),
		LoginRatePerMin:  getEnvAsInt("LOGIN_RATE_PER_MIN", 30),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// applyFile overlays values from a YAML config file onto cfg.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
