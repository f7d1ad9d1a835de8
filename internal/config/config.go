package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/cloo-solutions/helpdesk-learning/internal/domain"
	"github.com/cloo-solutions/helpdesk-learning/internal/governor"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	DatabaseURL      string `envconfig:"DATABASE_URL" required:"true"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`

	OpenAIAPIKey        string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string        `envconfig:"OPENAI_BASE_URL"`
	CompletionModel     string        `envconfig:"COMPLETION_MODEL" default:"gpt-4o-mini"`
	EmbeddingModel      string        `envconfig:"EMBEDDING_MODEL" default:"text-embedding-ada-002"`
	EmbeddingDimensions int           `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	ProviderTimeout     time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"45s"`

	SweepInterval    time.Duration `envconfig:"SWEEP_INTERVAL" default:"24h"`
	SweepBatchSize   int           `envconfig:"SWEEP_BATCH_SIZE" default:"10"`
	SweepConcurrency int           `envconfig:"SWEEP_CONCURRENCY" default:"2"`
	StaleAfter       time.Duration `envconfig:"STALE_AFTER" default:"30m"`
	SeedDays         int           `envconfig:"SEED_DAYS" default:"90"`
	FeedbackInterval time.Duration `envconfig:"FEEDBACK_INTERVAL" default:"1h"`

	RatePreset         string  `envconfig:"RATE_PRESET" default:"balanced"`
	FreeTier           bool    `envconfig:"FREE_TIER" default:"false"`
	CompletionPricePer float64 `envconfig:"COMPLETION_PRICE_PER_1K" default:"0.0006"`
	EmbeddingPricePer  float64 `envconfig:"EMBEDDING_PRICE_PER_1K" default:"0.0001"`

	// Workflow defaults, used until an admin saves settings
	ConfidenceThreshold     float64 `envconfig:"CONFIDENCE_THRESHOLD" default:"0.7"`
	ComplexityThreshold     int     `envconfig:"COMPLEXITY_THRESHOLD" default:"70"`
	MinResolutionScore      int     `envconfig:"MIN_RESOLUTION_SCORE" default:"60"`
	ArticleApprovalRequired bool    `envconfig:"ARTICLE_APPROVAL_REQUIRED" default:"false"`
	AutoLearnEnabled        bool    `envconfig:"AUTO_LEARN_ENABLED" default:"true"`
	EscalationTeamID        string  `envconfig:"ESCALATION_TEAM_ID"`

	RedisURL          string        `envconfig:"REDIS_URL"`
	EmbeddingCacheTTL time.Duration `envconfig:"EMBEDDING_CACHE_TTL" default:"168h"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"helpdesk-articles"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	AdminToken string `envconfig:"ADMIN_TOKEN"`
	SentryDSN  string `envconfig:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("HELPDESK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, fmt.Errorf("failed to process config: DATABASE_URL must not be empty")
	}
	if _, err := domain.ParsePreset(cfg.RatePreset); err != nil || cfg.RatePreset == string(domain.PresetCustom) {
		return nil, fmt.Errorf("failed to process config: RATE_PRESET must be strict, balanced or generous, got %q", cfg.RatePreset)
	}

	return &cfg, nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

func (c *Config) HasAdminToken() bool {
	return c.AdminToken != ""
}

// Prices returns the configured per-1K-token prices
func (c *Config) Prices() governor.Prices {
	return governor.Prices{
		CompletionPer1K: c.CompletionPricePer,
		EmbeddingPer1K:  c.EmbeddingPricePer,
	}
}

// WorkflowDefaults returns the settings in effect before an admin saves any
func (c *Config) WorkflowDefaults() (domain.WorkflowSettings, error) {
	policy, err := domain.PresetPolicy(domain.Preset(c.RatePreset))
	if err != nil {
		return domain.WorkflowSettings{}, err
	}
	if c.FreeTier {
		policy = domain.FreeTierPolicy()
	}

	s := domain.DefaultWorkflowSettings()
	s.ConfidenceThreshold = c.ConfidenceThreshold
	s.ComplexityThreshold = c.ComplexityThreshold
	s.MinResolutionScore = c.MinResolutionScore
	s.ArticleApprovalRequired = c.ArticleApprovalRequired
	s.AutoLearnEnabled = c.AutoLearnEnabled
	s.EscalationTeamID = c.EscalationTeamID
	s.RateLimit = policy
	if err := domain.ValidateWorkflowSettings(s); err != nil {
		return domain.WorkflowSettings{}, fmt.Errorf("invalid workflow defaults: %w", err)
	}
	return s, nil
}
