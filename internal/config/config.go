package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`

	// Published provider limits; the safe concurrency ceiling is derived
	// from these, never configured directly.
	AnthropicRateLimitRPM   int     `yaml:"anthropic_rate_limit_rpm"`
	OpenAIRateLimitRPM      int     `yaml:"openai_rate_limit_rpm"`
	RateSafetyMargin        float64 `yaml:"rate_safety_margin"`
	InferenceTimeoutSeconds int     `yaml:"inference_timeout_seconds"`
	InferenceMaxRetries     int     `yaml:"inference_max_retries"`

	TextCharBudget       int      `yaml:"text_char_budget"`
	DiscoverySampleSize  int      `yaml:"discovery_sample_size"`
	MaxThemesPerTopic    int      `yaml:"max_themes_per_topic"`
	Tier2SampleSize      int      `yaml:"tier2_sample_size"`
	Tier2ClearCount      int      `yaml:"tier2_clear_count"`
	SubTagKeys           []string `yaml:"sub_tag_keys"`
	PartitionParallelism int      `yaml:"partition_parallelism"`
	ExampleCount         int      `yaml:"example_count"`

	TaxonomyPath string `yaml:"taxonomy_path"`
	RecordsPath  string `yaml:"records_path"`
	WindowDays   int    `yaml:"window_days"`

	DBPath          string `yaml:"db_path"`
	ReportOutputDir string `yaml:"report_output_dir"`

	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackChannelID string `yaml:"slack_channel_id"`

	// Cron expression; empty means run one pass and exit.
	AnalysisSchedule string `yaml:"analysis_schedule"`
}

func LoadConfig() Config {
	var cfg Config

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
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverrideInt(&cfg.AnthropicRateLimitRPM, "ANTHROPIC_RATE_LIMIT_RPM")
	envOverrideInt(&cfg.OpenAIRateLimitRPM, "OPENAI_RATE_LIMIT_RPM")
	envOverrideFloat(&cfg.RateSafetyMargin, "RATE_SAFETY_MARGIN")
	envOverrideInt(&cfg.InferenceTimeoutSeconds, "INFERENCE_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.InferenceMaxRetries, "INFERENCE_MAX_RETRIES")
	envOverrideInt(&cfg.TextCharBudget, "TEXT_CHAR_BUDGET")
	envOverrideInt(&cfg.DiscoverySampleSize, "DISCOVERY_SAMPLE_SIZE")
	envOverrideInt(&cfg.WindowDays, "WINDOW_DAYS")
	envOverride(&cfg.TaxonomyPath, "TAXONOMY_PATH")
	envOverride(&cfg.RecordsPath, "RECORDS_PATH")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackChannelID, "SLACK_CHANNEL_ID")
	envOverride(&cfg.AnalysisSchedule, "ANALYSIS_SCHEDULE")

	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

func ApplyDefaults(cfg *Config) {
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.AnthropicRateLimitRPM == 0 {
		cfg.AnthropicRateLimitRPM = 50
	}
	if cfg.OpenAIRateLimitRPM == 0 {
		cfg.OpenAIRateLimitRPM = 60
	}
	if cfg.RateSafetyMargin == 0 {
		cfg.RateSafetyMargin = 0.8
	}
	if cfg.InferenceTimeoutSeconds == 0 {
		cfg.InferenceTimeoutSeconds = 60
	}
	if cfg.InferenceMaxRetries == 0 {
		cfg.InferenceMaxRetries = 3
	}
	if cfg.TextCharBudget == 0 {
		cfg.TextCharBudget = 1500
	}
	if cfg.DiscoverySampleSize == 0 {
		cfg.DiscoverySampleSize = 20
	}
	if cfg.MaxThemesPerTopic == 0 {
		cfg.MaxThemesPerTopic = 5
	}
	if cfg.Tier2SampleSize == 0 {
		cfg.Tier2SampleSize = 5
	}
	if cfg.Tier2ClearCount == 0 {
		cfg.Tier2ClearCount = 5
	}
	if len(cfg.SubTagKeys) == 0 {
		cfg.SubTagKeys = []string{"subcategory", "sub_topic"}
	}
	if cfg.PartitionParallelism == 0 {
		cfg.PartitionParallelism = 4
	}
	if cfg.ExampleCount == 0 {
		cfg.ExampleCount = 3
	}
	if cfg.WindowDays == 0 {
		cfg.WindowDays = 7
	}
	if cfg.TaxonomyPath == "" {
		cfg.TaxonomyPath = "taxonomy.yaml"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./topiclens.db"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
}

func Validate(cfg Config) error {
	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	default:
		return fmt.Errorf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}

	if cfg.AnthropicRateLimitRPM < 1 || cfg.OpenAIRateLimitRPM < 1 {
		return fmt.Errorf("provider rate limits must be >= 1 rpm")
	}
	if cfg.RateSafetyMargin <= 0 || cfg.RateSafetyMargin > 1 {
		return fmt.Errorf("invalid rate_safety_margin '%f': must be in (0, 1]", cfg.RateSafetyMargin)
	}
	if cfg.InferenceTimeoutSeconds < 1 {
		return fmt.Errorf("invalid inference_timeout_seconds '%d': must be >= 1", cfg.InferenceTimeoutSeconds)
	}
	if cfg.InferenceMaxRetries < 1 {
		return fmt.Errorf("invalid inference_max_retries '%d': must be >= 1", cfg.InferenceMaxRetries)
	}
	if cfg.TextCharBudget < 100 {
		return fmt.Errorf("invalid text_char_budget '%d': must be >= 100", cfg.TextCharBudget)
	}
	if cfg.DiscoverySampleSize < 1 {
		return fmt.Errorf("invalid discovery_sample_size '%d': must be >= 1", cfg.DiscoverySampleSize)
	}
	if cfg.MaxThemesPerTopic < 1 || cfg.MaxThemesPerTopic > 5 {
		return fmt.Errorf("invalid max_themes_per_topic '%d': must be between 1 and 5", cfg.MaxThemesPerTopic)
	}
	if cfg.WindowDays < 1 {
		return fmt.Errorf("invalid window_days '%d': must be >= 1", cfg.WindowDays)
	}
	if cfg.RecordsPath == "" {
		return fmt.Errorf("records_path is required")
	}
	if cfg.SlackChannelID != "" && cfg.SlackBotToken == "" {
		return fmt.Errorf("slack_bot_token is required when slack_channel_id is set")
	}
	return nil
}

// RateLimitRPM returns the published per-minute limit for the configured
// provider.
func (c Config) RateLimitRPM() int {
	if c.LLMProvider == "openai" {
		return c.OpenAIRateLimitRPM
	}
	return c.AnthropicRateLimitRPM
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

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

// SubTagKeyList trims configured keys, dropping empties.
func (c Config) SubTagKeyList() []string {
	var out []string
	for _, k := range c.SubTagKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}
