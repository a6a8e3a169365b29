package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// LLM configures the generation and embedding capability client.
type LLM struct {
	BaseURL    string
	SmallModel string
	LargeModel string
	EmbedModel string
	Timeout    time.Duration
}

// RedisConfig configures the durable mirror. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MirrorQueueSize bounds pending write-behind operations per owner.
	MirrorQueueSize int
	// CacheTTL expires cached generations. Zero disables the response cache.
	CacheTTL time.Duration
}

// KafkaConfig configures the audit fan-out topic. Empty brokers disable it.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// Privacy configures the per-caller epsilon ledger.
type Privacy struct {
	EpsilonBudget     float64
	EpsilonPerRequest float64
	// AuditNoiseEpsilon is the Laplace epsilon for the budget figure written to
	// dpia audit entries. 0 records no noised figure.
	AuditNoiseEpsilon float64
}

// Guardian holds detector and router thresholds.
type Guardian struct {
	ApexConfidenceThreshold     float64
	ApexCostBudget              float64
	SentinelConsensusThreshold  int
	SentinelSimilarityThreshold float64
	VigilRateLimit              int
	VigilWindow                 time.Duration
}

// Config is the full process configuration.
type Config struct {
	Server     Server
	LLM        LLM
	Redis      RedisConfig
	Kafka      KafkaConfig
	Privacy    Privacy
	Guardian   Guardian
	PolicyFile string
	LogLevel   string
	LogFormat  string
}

// FromEnv builds a Config from NSS_* environment variables so main stays lean.
// Unset variables take their defaults; malformed ones are reported.
func FromEnv() (Config, error) {
	p := &parser{}
	cfg := Config{
		Server: Server{
			Addr:            p.str("NSS_ADDR", ":11338"),
			ShutdownTimeout: p.duration("NSS_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		LLM: LLM{
			BaseURL:    p.str("NSS_OLLAMA_BASE_URL", "http://localhost:11434"),
			SmallModel: p.str("NSS_OLLAMA_SMALL_MODEL", "mistral:7b-instruct-v0.3"),
			LargeModel: p.str("NSS_OLLAMA_LARGE_MODEL", "mistral-nemo:12b"),
			EmbedModel: p.str("NSS_OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			Timeout:    p.duration("NSS_LLM_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			URL:             p.str("NSS_REDIS_URL", ""),
			PoolSize:        p.integer("NSS_REDIS_POOL_SIZE", 10),
			MinIdleConns:    p.integer("NSS_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:     p.duration("NSS_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:     p.duration("NSS_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:    p.duration("NSS_REDIS_WRITE_TIMEOUT", 3*time.Second),
			MirrorQueueSize: p.integer("NSS_MIRROR_QUEUE_SIZE", 1024),
			CacheTTL:        p.duration("NSS_CACHE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:    p.list("NSS_KAFKA_BROKERS"),
			AuditTopic: p.str("NSS_KAFKA_AUDIT_TOPIC", "nexus.audit"),
		},
		Privacy: Privacy{
			EpsilonBudget:     p.float("NSS_PRIVACY_EPSILON_BUDGET", 1.0),
			EpsilonPerRequest: p.float("NSS_EPSILON_PER_REQUEST", 0.1),
			AuditNoiseEpsilon: p.float("NSS_AUDIT_NOISE_EPSILON", 1.0),
		},
		Guardian: Guardian{
			ApexConfidenceThreshold:     p.float("NSS_APEX_CONFIDENCE_THRESHOLD", 0.85),
			ApexCostBudget:              p.float("NSS_APEX_COST_BUDGET", 100),
			SentinelConsensusThreshold:  p.integer("NSS_SENTINEL_CONSENSUS_THRESHOLD", 2),
			SentinelSimilarityThreshold: p.float("NSS_SENTINEL_SIMILARITY_THRESHOLD", 0.75),
			VigilRateLimit:              p.integer("NSS_VIGIL_RATE_LIMIT", 100),
			VigilWindow:                 p.duration("NSS_VIGIL_WINDOW", 60*time.Second),
		},
		PolicyFile: p.str("NSS_POLICY_FILE", ""),
		LogLevel:   p.str("NSS_LOG_LEVEL", "info"),
		LogFormat:  p.str("NSS_LOG_FORMAT", "json"),
	}
	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.Privacy.EpsilonBudget < 0 {
		errs = append(errs, errors.New("NSS_PRIVACY_EPSILON_BUDGET must not be negative"))
	}
	if c.Privacy.EpsilonPerRequest < 0 {
		errs = append(errs, errors.New("NSS_EPSILON_PER_REQUEST must not be negative"))
	}
	if t := c.Guardian.SentinelConsensusThreshold; t < 1 || t > 3 {
		errs = append(errs, fmt.Errorf("NSS_SENTINEL_CONSENSUS_THRESHOLD must be in 1..3, got %d", t))
	}
	if t := c.Guardian.SentinelSimilarityThreshold; t < -1 || t > 1 {
		errs = append(errs, fmt.Errorf("NSS_SENTINEL_SIMILARITY_THRESHOLD must be in [-1,1], got %v", t))
	}
	if t := c.Guardian.ApexConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("NSS_APEX_CONFIDENCE_THRESHOLD must be in [0,1], got %v", t))
	}
	if c.Guardian.ApexCostBudget < 0 {
		errs = append(errs, errors.New("NSS_APEX_COST_BUDGET must not be negative"))
	}
	if c.Redis.CacheTTL < 0 {
		errs = append(errs, errors.New("NSS_CACHE_TTL must not be negative"))
	}
	if c.Guardian.VigilRateLimit < 1 {
		errs = append(errs, errors.New("NSS_VIGIL_RATE_LIMIT must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		errs = append(errs, errors.New("NSS_KAFKA_AUDIT_TOPIC is required when brokers are set"))
	}
	return errors.Join(errs...)
}

// MirrorEnabled reports whether a redis mirror is configured.
func (c Config) MirrorEnabled() bool { return c.Redis.URL != "" }

type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) list(key string) []string {
	raw := p.str(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *parser) integer(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}
