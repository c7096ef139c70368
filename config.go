package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr         string   `yaml:"listen_addr"`
	APIToken           string   `yaml:"api_token"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`

	DBPath            string `yaml:"db_path"`
	EntityStoreURL    string `yaml:"entity_store_url"`
	EntityStoreAPIKey string `yaml:"entity_store_api_key"`

	UploadDir      string `yaml:"upload_dir"`
	UploadMaxBytes int64  `yaml:"upload_max_bytes"`

	OptimizeTimeoutSeconds     int    `yaml:"optimize_timeout_seconds"`
	AutoOptimizeSchedule       string `yaml:"auto_optimize_schedule"`
	DeviceGlossaryPath         string `yaml:"device_glossary_path"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	Timezone string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.APIToken, "API_TOKEN")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.EntityStoreURL, "ENTITY_STORE_URL")
	envOverride(&cfg.EntityStoreAPIKey, "ENTITY_STORE_API_KEY")
	envOverride(&cfg.UploadDir, "UPLOAD_DIR")
	envOverrideInt64(&cfg.UploadMaxBytes, "UPLOAD_MAX_BYTES")
	envOverrideInt(&cfg.OptimizeTimeoutSeconds, "OPTIMIZE_TIMEOUT_SECONDS")
	envOverride(&cfg.AutoOptimizeSchedule, "AUTO_OPTIMIZE_SCHEDULE")
	envOverride(&cfg.DeviceGlossaryPath, "DEVICE_GLOSSARY_PATH")
	envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
			}
		}
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8090"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./optiwatt.db"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "./uploads"
	}
	if cfg.UploadMaxBytes == 0 {
		cfg.UploadMaxBytes = 10 << 20
	}
	if cfg.OptimizeTimeoutSeconds == 0 {
		cfg.OptimizeTimeoutSeconds = 120
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	// Validate required fields
	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	default:
		log.Fatalf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}

	if cfg.EntityStoreURL != "" && cfg.EntityStoreAPIKey == "" {
		log.Fatalf("entity_store_api_key is required when entity_store_url is set")
	}
	if cfg.UploadMaxBytes < 1024 {
		log.Fatalf("invalid upload_max_bytes '%d': must be >= 1024", cfg.UploadMaxBytes)
	}
	if cfg.OptimizeTimeoutSeconds < 1 {
		log.Fatalf("invalid optimize_timeout_seconds '%d': must be >= 1", cfg.OptimizeTimeoutSeconds)
	}
	if schedule := strings.TrimSpace(cfg.AutoOptimizeSchedule); schedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(schedule); err != nil {
			log.Fatalf("invalid auto_optimize_schedule '%s': %v", schedule, err)
		}
	}
	if cfg.DeviceGlossaryPath != "" {
		if _, err := LoadDeviceGlossary(cfg.DeviceGlossaryPath); err != nil {
			log.Fatalf("invalid device_glossary_path '%s': %v", cfg.DeviceGlossaryPath, err)
		}
	}
	if cfg.SlackBotToken != "" && cfg.SlackChannelID == "" {
		log.Fatalf("slack_channel_id is required when slack_bot_token is set")
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
		cfg.Timezone = time.Local.String()
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	return cfg
}

func (c Config) OptimizeTimeout() time.Duration {
	return time.Duration(c.OptimizeTimeoutSeconds) * time.Second
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideInt64(field *int64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
