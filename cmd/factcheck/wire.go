package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/sweetpotato0/ai-factcheck/agent"
	"github.com/sweetpotato0/ai-factcheck/config"
	"github.com/sweetpotato0/ai-factcheck/contrib/index/elasticsearch"
	"github.com/sweetpotato0/ai-factcheck/contrib/index/memory"
	"github.com/sweetpotato0/ai-factcheck/contrib/provider/claude"
	"github.com/sweetpotato0/ai-factcheck/contrib/provider/gemini"
	"github.com/sweetpotato0/ai-factcheck/contrib/provider/openai"
	"github.com/sweetpotato0/ai-factcheck/contrib/publisher/kafka"
	"github.com/sweetpotato0/ai-factcheck/contrib/reranker/cohere"
	"github.com/sweetpotato0/ai-factcheck/contrib/reranker/crossencoder"
	"github.com/sweetpotato0/ai-factcheck/contrib/tokenizer/tiktoken"
	"github.com/sweetpotato0/ai-factcheck/generation"
	"github.com/sweetpotato0/ai-factcheck/pipeline"
	"github.com/sweetpotato0/ai-factcheck/pkg/logging"
	"github.com/sweetpotato0/ai-factcheck/retrieval"
	"github.com/sweetpotato0/ai-factcheck/tracking"
	"github.com/sweetpotato0/ai-factcheck/tracking/store"
)

// app owns the shared handles of one command invocation. Everything it
// opens is closed in reverse order by close.
type app struct {
	cfg *config.Config
	log *slog.Logger

	mu      sync.Mutex
	checks  map[string]healthFunc
	closers []func() error
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *app) addCheck(name string, fn healthFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.checks == nil {
		a.checks = make(map[string]healthFunc)
	}
	a.checks[name] = fn
}

func (a *app) health(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close resource", slog.Any("err", err))
		}
	}
}

// llmClient builds the provider adapter. Ollama and Groq both speak the
// OpenAI chat completions protocol.
func (a *app) llmClient(ctx context.Context) (agent.LLMClient, error) {
	cfg := a.cfg
	switch cfg.Provider {
	case config.ProviderOllama, config.ProviderOpenAI, config.ProviderGroq:
		return openai.New(&openai.Config{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: int64(cfg.MaxTokens),
		}), nil
	case config.ProviderClaude:
		return claude.New(&claude.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	case config.ProviderGemini:
		p, err := gemini.New(ctx, &gemini.Config{
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Endpoint: cfg.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(p.Close)
		return p, nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

// generationClient connects to the generation service and fails fast when it
// is unreachable.
func (a *app) generationClient(ctx context.Context) (*generation.Client, error) {
	llm, err := a.llmClient(ctx)
	if err != nil {
		return nil, err
	}
	cfg := a.cfg
	opts := []generation.Option{
		generation.WithModel(cfg.Model),
		generation.WithTemperature(cfg.Temperature),
		generation.WithTopP(cfg.TopP),
		generation.WithMaxOutputTokens(int64(cfg.MaxTokens)),
		generation.WithContextBudget(cfg.ContextWindow, cfg.ReservedOutput),
		generation.WithMaxRetries(cfg.MaxRetries),
		generation.WithRateLimit(cfg.RateLimit),
		generation.WithLogger(logging.WithComponent("generation")),
	}
	encoding := cfg.Tokenizer
	if encoding == "" {
		encoding = cfg.Model
	}
	if tok, err := tiktoken.ForModel(encoding); err != nil {
		a.log.Warn("tokenizer unavailable, using character estimate", slog.Any("err", err))
	} else {
		opts = append(opts, generation.WithTokenCounter(tok))
	}
	return generation.NewClient(ctx, llm, opts...)
}

func (a *app) rm3() retrieval.RM3 {
	if a.cfg.Index.RM3 {
		return retrieval.DefaultRM3()
	}
	return retrieval.RM3{}
}

func (a *app) elasticsearch(ctx context.Context) (*elasticsearch.Client, error) {
	es, err := elasticsearch.New(elasticsearch.Config{
		Addresses: a.cfg.Index.Addresses,
		Username:  a.cfg.Index.Username,
		Password:  a.cfg.Index.Password,
		Index:     a.cfg.Index.Name,
		RM3:       a.rm3(),
		Logger:    logging.WithComponent("elasticsearch"),
	})
	if err != nil {
		return nil, err
	}
	if err := es.Ping(ctx); err != nil {
		return nil, err
	}
	a.addCheck("elasticsearch", es.Ping)
	return es, nil
}

// index opens the lexical index the retriever searches.
func (a *app) index(ctx context.Context) (retrieval.Index, error) {
	switch a.cfg.Index.Backend {
	case "elasticsearch":
		return a.elasticsearch(ctx)
	case "memory":
		f, err := os.Open(a.cfg.Index.Corpus)
		if err != nil {
			return nil, fmt.Errorf("open corpus: %w", err)
		}
		defer f.Close()
		idx := memory.New(memory.WithRM3(a.rm3()))
		n, err := idx.Load(f)
		if err != nil {
			return nil, fmt.Errorf("load corpus %s: %w", a.cfg.Index.Corpus, err)
		}
		a.log.Info("memory index loaded", slog.String("corpus", a.cfg.Index.Corpus), slog.Int("segments", n))
		return idx, nil
	}
	return nil, fmt.Errorf("unknown index backend %q", a.cfg.Index.Backend)
}

// scorer builds the relevance scorer. Remote scorers degrade to term
// overlap when the service fails so a run is not lost to a reranker outage.
func (a *app) scorer() (retrieval.Scorer, error) {
	fallback := retrieval.OverlapScorer{}
	rc := a.cfg.Reranker
	switch rc.Backend {
	case "overlap":
		return fallback, nil
	case "crossencoder":
		return crossencoder.New(rc.URL,
			crossencoder.WithFallback(fallback),
			crossencoder.WithLogger(logging.WithComponent("crossencoder")))
	case "cohere":
		opts := []cohere.Option{
			cohere.WithFallback(fallback),
			cohere.WithLogger(logging.WithComponent("cohere")),
		}
		if rc.Model != "" {
			opts = append(opts, cohere.WithModel(rc.Model))
		}
		if rc.URL != "" {
			opts = append(opts, cohere.WithEndpoint(rc.URL))
		}
		return cohere.New(rc.APIKey, opts...), nil
	}
	return nil, fmt.Errorf("unknown reranker %q", rc.Backend)
}

// trackingStore opens the configured backend. Database backends read their
// connection settings from the environment.
func (a *app) trackingStore(ctx context.Context) (tracking.Store, error) {
	tc := a.cfg.Tracking
	var (
		s   tracking.Store
		err error
	)
	switch tc.Backend {
	case config.TrackingFile:
		s, err = tracking.OpenFile(tc.Path)
	case config.TrackingSQLite:
		if err = os.MkdirAll(filepath.Dir(tc.Path), 0o755); err == nil {
			s, err = store.OpenSQLite(ctx, tc.Path)
		}
	case config.TrackingPostgres:
		pc := store.PostgresConfigFromEnv()
		if err = config.ValidatePostgresConfig(pc.Host, pc.Port, pc.User, pc.DBName, pc.SSLMode); err == nil {
			s, err = store.OpenPostgres(ctx, pc)
		}
	case config.TrackingRedis:
		rc := store.RedisConfigFromEnv()
		if err = config.ValidateRedisConfig(rc.Addr, rc.DB, rc.Prefix); err != nil {
			break
		}
		var rs *store.RedisStore
		if rs, err = store.NewRedisStore(rc); err == nil {
			a.addCheck("redis", rs.Ping)
			s = rs
		}
	case config.TrackingMongo:
		mc := store.MongoConfigFromEnv()
		if err = config.ValidateMongoDBConfig(mc.URI, mc.Database, mc.Collection); err != nil {
			break
		}
		var ms *store.MongoStore
		if ms, err = store.NewMongoStore(ctx, mc); err == nil {
			a.addCheck("mongo", ms.Ping)
			s = ms
		}
	default:
		err = fmt.Errorf("unknown tracking backend %q", tc.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s tracking store: %w", tc.Backend, err)
	}
	a.onClose(s.Close)
	return s, nil
}

// publisher returns nil when no brokers are configured.
func (a *app) publisher() (pipeline.Publisher, error) {
	kc := a.cfg.Kafka
	if len(kc.Brokers) == 0 {
		return nil, nil
	}
	p, err := kafka.New(kafka.Config{
		Brokers: kc.Brokers,
		Topic:   kc.Topic,
		Logger:  logging.WithComponent("kafka"),
	})
	if err != nil {
		return nil, err
	}
	a.onClose(p.Close)
	return p, nil
}

var errNoLister = errors.New("provider cannot list models")
