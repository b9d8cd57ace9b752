package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"topiclens/internal/config"
	"topiclens/internal/fetch"
	"topiclens/internal/inference"
	"topiclens/internal/report"
	"topiclens/internal/storage/sqlite"
	"topiclens/internal/taxonomy"
)

func Main() {
	cfg := config.LoadConfig()
	log.Printf("Config loaded. Provider=%s RateLimitRPM=%d SafetyMargin=%.2f TextBudget=%d SampleSize=%d Window=%dd",
		cfg.LLMProvider, cfg.RateLimitRPM(), cfg.RateSafetyMargin, cfg.TextCharBudget, cfg.DiscoverySampleSize, cfg.WindowDays)

	// The registry is the one piece of shared state every step depends on;
	// failing to load it is fatal to the whole pass.
	reg, err := taxonomy.Load(cfg.TaxonomyPath)
	if err != nil {
		log.Fatalf("Failed to load taxonomy: %v", err)
	}
	log.Printf("Taxonomy loaded topics=%d from %s", len(reg.Names()), cfg.TaxonomyPath)

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	defer db.Close()
	log.Printf("Database initialized at %s", cfg.DBPath)

	runOnce := func() {
		pass := &Pass{
			Cfg:      cfg,
			Reg:      reg,
			Engine:   buildEngine(cfg),
			Source:   &fetch.FileSource{Path: cfg.RecordsPath},
			DB:       db,
			Notifier: report.NewNotifier(cfg.SlackBotToken, cfg.SlackChannelID),
		}
		summary, err := pass.Run(context.Background())
		if err != nil {
			log.Printf("pass failed err=%v", err)
			return
		}
		path, err := report.Write(cfg.ReportOutputDir, summary)
		if err != nil {
			log.Printf("report not written err=%v", err)
			return
		}
		log.Printf("report written path=%s", path)
		if err := pass.Notifier.PostSummary(summary, path); err != nil {
			log.Printf("report delivery failed err=%v", err)
		}
	}

	if cfg.AnalysisSchedule == "" {
		runOnce()
		return
	}

	log.Printf("Starting scheduled analysis schedule=%q", cfg.AnalysisSchedule)
	c := cron.New()
	if _, err := c.AddFunc(cfg.AnalysisSchedule, runOnce); err != nil {
		log.Fatalf("invalid analysis_schedule '%s': %v", cfg.AnalysisSchedule, err)
	}
	c.Start()
	select {} // cron owns the process from here
}

// buildEngine constructs the configured provider behind its own rate
// limiter. Each pass gets a fresh throttled wrapper so usage accounting is
// per pass; the ceilings come from the provider's published limit.
func buildEngine(cfg config.Config) *inference.ThrottledEngine {
	var engine inference.Engine
	switch cfg.LLMProvider {
	case "openai":
		engine = inference.NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.LLMModel)
	default:
		engine = inference.NewAnthropicEngine(cfg.AnthropicAPIKey, cfg.LLMModel)
	}
	limiter := inference.NewLimiter(cfg.RateLimitRPM(), cfg.RateSafetyMargin)
	retry := inference.RetryPolicy{
		MaxAttempts: cfg.InferenceMaxRetries,
		BaseBackoff: 500 * time.Millisecond,
	}
	timeout := time.Duration(cfg.InferenceTimeoutSeconds) * time.Second
	log.Printf("inference engine provider=%s ceiling=%d timeout=%s", engine.Name(), limiter.Ceiling(), timeout)
	return inference.NewThrottledEngine(engine, limiter, retry, timeout)
}
