package config

import "testing"

func validConfig() Config {
	cfg := Config{
		LLMProvider:     "anthropic",
		AnthropicAPIKey: "key",
		RecordsPath:     "records.jsonl",
	}
	ApplyDefaults(&cfg)
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.TextCharBudget != 1500 {
		t.Fatalf("text budget default = %d", cfg.TextCharBudget)
	}
	if cfg.DiscoverySampleSize != 20 {
		t.Fatalf("sample size default = %d", cfg.DiscoverySampleSize)
	}
	if cfg.MaxThemesPerTopic != 5 {
		t.Fatalf("max themes default = %d", cfg.MaxThemesPerTopic)
	}
	if cfg.RateSafetyMargin != 0.8 {
		t.Fatalf("safety margin default = %v", cfg.RateSafetyMargin)
	}
	if cfg.AnthropicRateLimitRPM != 50 {
		t.Fatalf("anthropic rpm default = %d", cfg.AnthropicRateLimitRPM)
	}
	if len(cfg.SubTagKeys) == 0 {
		t.Fatalf("sub tag keys default missing")
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejectsBadProvider(t *testing.T) {
	cfg := validConfig()
	cfg.LLMProvider = "homegrown"
	if err := Validate(cfg); err == nil {
		t.Fatalf("unknown provider accepted")
	}
}

func TestValidateRequiresAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.AnthropicAPIKey = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("missing anthropic key accepted")
	}

	cfg = validConfig()
	cfg.LLMProvider = "openai"
	cfg.OpenAIAPIKey = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("missing openai key accepted")
	}
}

func TestValidateRejectsBadMargin(t *testing.T) {
	for _, margin := range []float64{-0.5, 1.5} {
		cfg := validConfig()
		cfg.RateSafetyMargin = margin
		if err := Validate(cfg); err == nil {
			t.Fatalf("safety margin %v accepted", margin)
		}
	}
}

func TestValidateRequiresRecordsPath(t *testing.T) {
	cfg := validConfig()
	cfg.RecordsPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("missing records path accepted")
	}
}

func TestValidateSlackPairing(t *testing.T) {
	cfg := validConfig()
	cfg.SlackChannelID = "C123"
	if err := Validate(cfg); err == nil {
		t.Fatalf("slack channel without bot token accepted")
	}
	cfg.SlackBotToken = "xoxb-1"
	if err := Validate(cfg); err != nil {
		t.Fatalf("paired slack config rejected: %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("LLM_PROVIDER_TEST_FIELD", "openai")
	field := "anthropic"
	envOverride(&field, "LLM_PROVIDER_TEST_FIELD")
	if field != "openai" {
		t.Fatalf("env override not applied: %s", field)
	}

	count := 0
	t.Setenv("RPM_TEST_FIELD", "120")
	envOverrideInt(&count, "RPM_TEST_FIELD")
	if count != 120 {
		t.Fatalf("int env override not applied: %d", count)
	}
}

func TestRateLimitRPMByProvider(t *testing.T) {
	cfg := validConfig()
	cfg.AnthropicRateLimitRPM = 50
	cfg.OpenAIRateLimitRPM = 500

	if got := cfg.RateLimitRPM(); got != 50 {
		t.Fatalf("anthropic rpm = %d", got)
	}
	cfg.LLMProvider = "openai"
	if got := cfg.RateLimitRPM(); got != 500 {
		t.Fatalf("openai rpm = %d", got)
	}
}
