// Package config loads run settings from defaults, an optional YAML file,
// FACTCHECK_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FACTCHECK_RUN_ID or
// FACTCHECK_TRACKING_BACKEND.
const EnvPrefix = "FACTCHECK"

// Config is the full settings tree.
type Config struct {
	Provider       string  `mapstructure:"provider"`
	Model          string  `mapstructure:"model"`
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Temperature    float64 `mapstructure:"temperature"`
	TopP           float64 `mapstructure:"top_p"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	ContextWindow  int     `mapstructure:"context_window"`
	ReservedOutput int     `mapstructure:"reserved_output"`
	MaxRetries     int     `mapstructure:"max_retries"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	Tokenizer      string  `mapstructure:"tokenizer"`

	TeamID             string `mapstructure:"team_id"`
	RunID              string `mapstructure:"run_id"`
	MaxQueryIterations int    `mapstructure:"max_query_iterations"`
	QueriesPerRound    int    `mapstructure:"queries_per_round"`
	QuestionCount      int    `mapstructure:"question_count"`
	Critique           bool   `mapstructure:"critique"`
	DebugMode          bool   `mapstructure:"debug_mode"`

	TopicsPath string `mapstructure:"topics"`
	OutputDir  string `mapstructure:"output_dir"`
	PromptsDir string `mapstructure:"prompts_dir"`
	CleanHTML  bool   `mapstructure:"clean_html"`
	StartIndex int    `mapstructure:"start_index"`
	Resume     bool   `mapstructure:"resume"`

	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Index     IndexConfig     `mapstructure:"index"`
	Reranker  RerankerConfig  `mapstructure:"reranker"`
	Report    ReportConfig    `mapstructure:"report"`
	Tracking  TrackingConfig  `mapstructure:"tracking"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`

	MetricsAddr string `mapstructure:"metrics_addr"`
}

// RetrievalConfig sizes the retriever funnel.
type RetrievalConfig struct {
	LexicalTopK int `mapstructure:"lexical_top_k"`
	RerankTopK  int `mapstructure:"rerank_top_k"`
	ShownTopK   int `mapstructure:"shown_top_k"`
	MaxSelected int `mapstructure:"max_selected"`
}

// IndexConfig selects the lexical index. The memory backend loads Corpus at
// startup; the elasticsearch backend expects an index built by `factcheck index`.
type IndexConfig struct {
	Backend   string   `mapstructure:"backend"`
	Corpus    string   `mapstructure:"corpus"`
	Addresses []string `mapstructure:"addresses"`
	Name      string   `mapstructure:"name"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	RM3       bool     `mapstructure:"rm3"`
}

// RerankerConfig selects the relevance scorer.
type RerankerConfig struct {
	Backend string `mapstructure:"backend"`
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// ReportConfig bounds the synthesized report.
type ReportConfig struct {
	WordLimit    int  `mapstructure:"word_limit"`
	MaxCitations int  `mapstructure:"max_citations"`
	Compress     bool `mapstructure:"compress"`
}

// TrackingConfig selects where per-article records are persisted. Database
// connection settings come from the backend's own environment variables.
type TrackingConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// KafkaConfig enables completion events when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	Disable     bool    `mapstructure:"disable"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Provider names.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// Tracking backends.
const (
	TrackingFile     = "file"
	TrackingRedis    = "redis"
	TrackingPostgres = "postgres"
	TrackingSQLite   = "sqlite"
	TrackingMongo    = "mongo"
)

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"provider":       "provider",
	"model":          "model",
	"base-url":       "base_url",
	"temperature":    "temperature",
	"max-tokens":     "max_tokens",
	"team-id":        "team_id",
	"run-id":         "run_id",
	"max-iterations": "max_query_iterations",
	"critique":       "critique",
	"debug":          "debug_mode",
	"topics":         "topics",
	"output-dir":     "output_dir",
	"prompts-dir":    "prompts_dir",
	"clean-html":     "clean_html",
	"start-index":    "start_index",
	"resume":         "resume",
	"index":          "index.backend",
	"corpus":         "index.corpus",
	"reranker":       "reranker.backend",
	"tracking":       "tracking.backend",
	"tracking-path":  "tracking.path",
	"compress":       "report.compress",
	"metrics-addr":   "metrics_addr",
	"otel-endpoint":  "telemetry.endpoint",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"kafka-brokers":  "kafka.brokers",
	"kafka-topic":    "kafka.topic",
	"es-addresses":   "index.addresses",
	"es-index":       "index.name",
}

// RegisterFlags declares the CLI overrides on fs. Only flags the user sets
// take precedence over file and environment values.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("provider", "", "generation provider: ollama, openai, groq, claude or gemini")
	fs.String("model", "", "model name")
	fs.String("base-url", "", "generation service base URL")
	fs.Float64("temperature", 0, "default sampling temperature")
	fs.Int("max-tokens", 0, "max output tokens per call")
	fs.String("team-id", "", "team id written to submissions")
	fs.String("run-id", "", "run id; also names the tracking file")
	fs.Int("max-iterations", 0, "evidence loop round cap")
	fs.Bool("critique", false, "run the critique stage")
	fs.Bool("debug", false, "debug logging")
	fs.String("topics", "", "topics JSONL file")
	fs.String("output-dir", "", "directory for tracking files and submissions")
	fs.String("prompts-dir", "", "directory of prompt template overrides")
	fs.Bool("clean-html", false, "strip HTML from article fields")
	fs.Int("start-index", 0, "skip the first N topics")
	fs.Bool("resume", true, "skip articles already tracked")
	fs.String("index", "", "lexical index backend: memory or elasticsearch")
	fs.String("corpus", "", "segment corpus JSONL for the memory index")
	fs.String("reranker", "", "relevance scorer: overlap, crossencoder or cohere")
	fs.String("tracking", "", "tracking backend: file, redis, postgres, sqlite or mongo")
	fs.String("tracking-path", "", "tracking file or SQLite database path")
	fs.Bool("compress", true, "shorten over-budget reports when producing submissions")
	fs.String("metrics-addr", "", "serve /metrics and /healthz on this address")
	fs.String("otel-endpoint", "", "OTLP gRPC endpoint; stdout exporter when empty")
	fs.String("log-level", "", "log level")
	fs.String("log-format", "", "log format: text or json")
	fs.StringSlice("kafka-brokers", nil, "publish completion events to these brokers")
	fs.String("kafka-topic", "", "completion event topic")
	fs.StringSlice("es-addresses", nil, "Elasticsearch addresses")
	fs.String("es-index", "", "Elasticsearch segment index name")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderOllama)
	v.SetDefault("model", "qwen2.5:7b")
	v.SetDefault("base_url", "")
	v.SetDefault("api_key", "")
	v.SetDefault("temperature", 0.3)
	v.SetDefault("top_p", 0.1)
	v.SetDefault("max_tokens", 100000)
	v.SetDefault("context_window", 50000)
	v.SetDefault("reserved_output", 1500)
	v.SetDefault("max_retries", 3)
	v.SetDefault("rate_limit", 0)
	v.SetDefault("tokenizer", "")

	v.SetDefault("team_id", "TREMA_UNH")
	v.SetDefault("run_id", "run_2")
	v.SetDefault("max_query_iterations", 5)
	v.SetDefault("queries_per_round", 5)
	v.SetDefault("question_count", 10)
	v.SetDefault("critique", false)
	v.SetDefault("debug_mode", false)

	v.SetDefault("topics", "data/trec-2025-dragun-topics.jsonl")
	v.SetDefault("output_dir", "output")
	v.SetDefault("prompts_dir", "")
	v.SetDefault("clean_html", false)
	v.SetDefault("start_index", 0)
	v.SetDefault("resume", true)

	v.SetDefault("retrieval.lexical_top_k", 1000)
	v.SetDefault("retrieval.rerank_top_k", 100)
	v.SetDefault("retrieval.shown_top_k", 20)
	v.SetDefault("retrieval.max_selected", 3)

	v.SetDefault("index.backend", "memory")
	v.SetDefault("index.corpus", "data/segments.jsonl")
	v.SetDefault("index.addresses", []string{"http://localhost:9200"})
	v.SetDefault("index.name", "segments")
	v.SetDefault("index.username", "")
	v.SetDefault("index.password", "")
	v.SetDefault("index.rm3", true)

	v.SetDefault("reranker.backend", "overlap")
	v.SetDefault("reranker.url", "")
	v.SetDefault("reranker.api_key", "")
	v.SetDefault("reranker.model", "")

	v.SetDefault("report.word_limit", 250)
	v.SetDefault("report.max_citations", 3)
	v.SetDefault("report.compress", true)

	v.SetDefault("tracking.backend", TrackingFile)
	v.SetDefault("tracking.path", "")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "factcheck.articles")

	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.disable", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics_addr", "")
}

// Load builds a Config. fs may be nil; when it carries a "config" flag its
// value names the YAML file, otherwise FACTCHECK_CONFIG does.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	path := os.Getenv(EnvPrefix + "_CONFIG")
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Changed {
			path = f.Value.String()
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDerived fills values that depend on other settings.
func (c *Config) applyDerived() {
	if c.DebugMode {
		c.Log.Level = "debug"
	}
	if c.Tracking.Path == "" {
		switch c.Tracking.Backend {
		case TrackingSQLite:
			c.Tracking.Path = filepath.Join(c.OutputDir, "tracking.db")
		default:
			c.Tracking.Path = c.TrackingFile()
		}
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURLs[c.Provider]
	}
	if c.APIKey == "" {
		c.APIKey = providerKeyFromEnv(c.Provider)
	}
}

// TrackingFile is the default JSON tracking path for this team and run.
func (c *Config) TrackingFile() string {
	return filepath.Join(c.OutputDir, fmt.Sprintf("tracking_data_%s_%s.json", c.TeamID, c.RunID))
}

// Providers missing here use their SDK's own endpoint.
var defaultBaseURLs = map[string]string{
	ProviderOllama: "http://localhost:11434/v1",
	ProviderGroq:   "https://api.groq.com/openai/v1",
}

func providerKeyFromEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderGroq:
		return os.Getenv("GROQ_API_KEY")
	case ProviderClaude:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	case ProviderOllama:
		return "ollama"
	}
	return ""
}

// Validate checks the settings a run depends on.
func (c *Config) Validate() error {
	v := NewValidator()

	v.ValidateOneOf("provider", c.Provider, ProviderOllama, ProviderOpenAI, ProviderGroq, ProviderClaude, ProviderGemini)
	v.RequireNonEmpty("model", c.Model)
	if c.Provider != ProviderOllama {
		v.RequireNonEmpty("api_key", c.APIKey)
	}
	if c.Provider != ProviderGemini {
		v.ValidateURL("base_url", c.BaseURL)
	}
	v.ValidateFloatRange("temperature", c.Temperature, 0, 2)
	v.ValidateFloatRange("top_p", c.TopP, 0, 1)
	v.RequirePositive("max_tokens", c.MaxTokens)
	v.RequirePositive("context_window", c.ContextWindow)
	v.RequireNonNegative("reserved_output", c.ReservedOutput)
	if c.ReservedOutput >= c.ContextWindow {
		v.add("reserved_output", "must be below context_window (%d), got %d", c.ContextWindow, c.ReservedOutput)
	}
	v.RequireNonNegative("max_retries", c.MaxRetries)

	v.RequireNonEmpty("team_id", c.TeamID)
	v.RequireNonEmpty("run_id", c.RunID)
	v.RequirePositive("max_query_iterations", c.MaxQueryIterations)
	v.RequirePositive("queries_per_round", c.QueriesPerRound)
	v.RequirePositive("question_count", c.QuestionCount)
	v.RequireNonNegative("start_index", c.StartIndex)

	v.RequirePositive("retrieval.lexical_top_k", c.Retrieval.LexicalTopK)
	v.RequirePositive("retrieval.rerank_top_k", c.Retrieval.RerankTopK)
	v.RequirePositive("retrieval.shown_top_k", c.Retrieval.ShownTopK)
	v.RequirePositive("retrieval.max_selected", c.Retrieval.MaxSelected)

	v.ValidateOneOf("index.backend", c.Index.Backend, "memory", "elasticsearch")
	if c.Index.Backend == "elasticsearch" {
		v.RequireNonEmpty("index.name", c.Index.Name)
		if len(c.Index.Addresses) == 0 {
			v.add("index.addresses", "at least one address is required")
		}
	}
	v.ValidateOneOf("reranker.backend", c.Reranker.Backend, "overlap", "crossencoder", "cohere")
	switch c.Reranker.Backend {
	case "crossencoder":
		v.RequireNonEmpty("reranker.url", c.Reranker.URL).ValidateURL("reranker.url", c.Reranker.URL)
	case "cohere":
		v.RequireNonEmpty("reranker.api_key", c.Reranker.APIKey)
	}

	v.RequirePositive("report.word_limit", c.Report.WordLimit)
	v.RequirePositive("report.max_citations", c.Report.MaxCitations)

	v.ValidateOneOf("tracking.backend", c.Tracking.Backend,
		TrackingFile, TrackingRedis, TrackingPostgres, TrackingSQLite, TrackingMongo)
	if len(c.Kafka.Brokers) > 0 {
		v.RequireNonEmpty("kafka.topic", c.Kafka.Topic)
	}
	v.ValidateFloatRange("telemetry.sample_ratio", c.Telemetry.SampleRatio, 0, 1)
	v.ValidateOneOf("log.format", c.Log.Format, "text", "json")

	return v.Error()
}
