package tutorgate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ventlab/tutorgate/internal/cache"
	"github.com/ventlab/tutorgate/internal/config"
	"github.com/ventlab/tutorgate/internal/metrics"
	"github.com/ventlab/tutorgate/internal/normalize"
	"github.com/ventlab/tutorgate/internal/observability"
	"github.com/ventlab/tutorgate/internal/providers"
	"github.com/ventlab/tutorgate/internal/transport"
	gwerrors "github.com/ventlab/tutorgate/pkg/errors"
	"github.com/ventlab/tutorgate/pkg/types"
)

// Client is the gateway facade. It is safe for concurrent use by multiple
// goroutines.
type Client struct {
	cfg       *ClientConfig
	logger    *slog.Logger
	builder   normalize.Builder
	cache     *cache.Manager
	registry  *providers.Registry
	transport *transport.Transport
	metrics   *metrics.Metrics
	redis     *goredis.Client
}

// New creates a gateway client with the given options.
func New(opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.BaseURL == "" {
		return nil, gwerrors.NewValidationError("base URL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		cfg:     cfg,
		logger:  logger,
		builder: normalize.Builder{HistoryTurns: cfg.HistoryTurns},
		metrics: metrics.New(cfg.Registerer),
	}

	c.registry = providers.NewRegistry(c.resolveProviders(hc), logger)
	if cfg.DefaultProvider != "" && !c.registry.Select(cfg.DefaultProvider) {
		logger.Debug("default provider not registered, keeping first", "provider", cfg.DefaultProvider)
	}

	fast := cache.NewMemoryStore(cfg.FastCacheTTL)
	var durable cache.Store
	switch {
	case cfg.RedisAddr != "":
		c.redis = goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		durable = cache.NewRedisStore(c.redis, cfg.RedisNamespace, 0)
	case cfg.DurableCache:
		durable = cache.NewRemoteStore(cfg.BaseURL, hc, cfg.Tokens, logger)
	}
	c.cache = cache.NewManager(fast, durable, cfg.PromptTemplateVersion, logger, c.metrics)

	c.transport = transport.New(transport.Options{
		BaseURL:     cfg.BaseURL,
		HTTPClient:  hc,
		Tokens:      cfg.Tokens,
		Logger:      logger,
		Retry:       cfg.Retry,
		StreamDelay: cfg.StreamDelay,
	})

	logger.Info("tutorgate client initialized",
		"base_url", cfg.BaseURL,
		"providers", c.registry.Names(),
		"durable_cache", durable != nil,
	)
	return c, nil
}

// NewFromConfigFile loads a YAML configuration file and creates a client
// from it. Options are applied after the file and override its values.
func NewFromConfigFile(path string, opts ...Option) (*Client, error) {
	fc, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	return New(append([]Option{fromFileConfig(fc)}, opts...)...)
}

// resolveProviders merges backend discovery (when enabled) with the
// configured windows.
func (c *Client) resolveProviders(hc *http.Client) []providers.Config {
	configured := c.cfg.providerConfigs()
	if !c.cfg.Discover {
		return configured
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d := providers.Discover(ctx, c.cfg.BaseURL, hc, c.cfg.Tokens, c.logger)

	windows := make(map[string]providers.Window, len(configured))
	for _, p := range configured {
		windows[p.Name] = p.Window
	}
	out := make([]providers.Config, 0, len(d.Providers))
	for _, name := range d.Providers {
		out = append(out, providers.Config{Name: name, Window: windows[name]})
	}
	if c.cfg.DefaultProvider == "" || c.cfg.DefaultProvider == providers.DefaultProvider {
		c.cfg.DefaultProvider = d.Default
	}
	return out
}

// SendMessage asks a question and streams the answer through cb. All
// three callbacks are required. A cached answer is delivered as a single
// token followed by the end event. On failure the classified error is
// delivered through OnError exactly once and also returned; cancellation
// is only returned, never delivered.
func (c *Client) SendMessage(ctx context.Context, params Params, cb Callbacks) error {
	if cb.OnToken == nil || cb.OnEnd == nil || cb.OnError == nil {
		return gwerrors.NewValidationError("streaming requires OnToken, OnEnd, and OnError callbacks")
	}
	_, err := c.send(ctx, params, cb, false)
	return err
}

// Ask asks a question and awaits the complete answer.
func (c *Client) Ask(ctx context.Context, params Params) (*Answer, error) {
	return c.send(ctx, params, Callbacks{}, true)
}

func (c *Client) send(ctx context.Context, params Params, cb Callbacks, direct bool) (*Answer, error) {
	start := time.Now()
	defer func() { c.metrics.ObserveDuration(time.Since(start)) }()

	ctx, span := observability.StartSpan(ctx, "tutorgate.send",
		attribute.String("lesson_context", params.LessonContext),
		attribute.Bool("direct", direct),
	)
	var retErr error
	defer func() { observability.EndSpan(span, retErr) }()

	question := strings.TrimSpace(params.Question)
	if question == "" {
		retErr = c.fail(cb, gwerrors.NewValidationError("question is required"))
		return nil, retErr
	}

	primary := params.Provider
	if primary == "" {
		primary = c.registry.Current()
	} else if !c.registered(primary) {
		retErr = c.fail(cb, gwerrors.NewValidationError("unknown provider: "+primary))
		return nil, retErr
	}

	if ans := c.fromCache(ctx, question, params.LessonContext, primary, cb, direct); ans != nil {
		return ans, nil
	}

	messages := c.builder.Build(params.System, params.Developer, params.History, question)

	chain := append([]string{primary}, c.registry.FallbackOrder(primary)...)
	var lastErr error
	for i, name := range chain {
		if i > 0 {
			c.metrics.Fallback()
			c.logger.Debug("falling back", "provider", name, "error", lastErr)
		}

		if d := c.registry.CheckLimit(name); !d.Allowed {
			lastErr = gwerrors.NewRateLimitError(name, "provider request window exhausted")
			continue
		}

		req := &transport.Request{
			Messages:      messages,
			LessonContext: params.LessonContext,
			Provider:      name,
			Strategy:      params.Strategy,
			Stream:        !direct && params.Strategy != StrategyDirect,
		}

		ans, started, err := c.attempt(ctx, params, req, question, cb, direct)
		if err == nil {
			return ans, nil
		}
		if gwerrors.IsCancelled(err) {
			retErr = err
			return nil, retErr
		}
		if started {
			// Tokens already reached the caller; switching providers would
			// splice two answers together.
			retErr = c.fail(cb, err)
			return nil, retErr
		}
		switch gwerrors.CodeOf(err) {
		case gwerrors.CodeAuth, gwerrors.CodeValidation:
			// Account-wide failures; another provider cannot help.
			retErr = c.fail(cb, err)
			return nil, retErr
		}
		lastErr = err
	}

	retErr = c.fail(cb, gwerrors.Wrap(gwerrors.CodeProvider, "all providers unavailable", lastErr))
	return nil, retErr
}

// attempt issues one provider attempt and records its outcome.
func (c *Client) attempt(ctx context.Context, params Params, req *transport.Request, question string, cb Callbacks, direct bool) (*Answer, bool, error) {
	began := time.Now()

	var (
		ans     *Answer
		started bool
		err     error
	)
	if direct {
		ans, err = c.transport.ExecuteSync(ctx, req)
		if err == nil {
			ans.Provider = req.Provider
			c.storeAnswer(ctx, question, params.LessonContext, req.Provider, ans.Text, ans.Usage)
		}
	} else {
		started, err = c.execute(ctx, params, req, question, cb)
	}

	latency := time.Since(began)
	if err == nil {
		c.registry.Record(req.Provider, true, latency, "")
		c.metrics.ProviderRequest(req.Provider, "success")
	} else if !gwerrors.IsCancelled(err) {
		code := gwerrors.CodeOf(err)
		c.registry.Record(req.Provider, false, latency, code)
		c.metrics.ProviderRequest(req.Provider, code)
	}
	return ans, started, err
}

// execute runs one streaming attempt, preferring the live socket when the
// lesson addresses one, and writes the cache on completion.
func (c *Client) execute(ctx context.Context, params Params, req *transport.Request, question string, cb Callbacks) (bool, error) {
	wrapped := transport.Callbacks{
		OnToken: func(delta string) {
			c.metrics.StreamToken()
			if cb.OnToken != nil {
				cb.OnToken(delta)
			}
		},
		OnEnd: func(end types.StreamEnd) {
			c.storeAnswer(ctx, question, params.LessonContext, req.Provider, end.Text, end.Usage)
			if cb.OnEnd != nil {
				cb.OnEnd(end)
			}
		},
	}

	if params.LessonID != "" {
		live := transport.LiveOptions{
			SocketBaseURL: c.cfg.SocketBaseURL,
			LessonID:      params.LessonID,
			SessionID:     uuid.NewString(),
		}
		started, err := c.transport.ExecuteLive(ctx, req, live, wrapped)
		if err == nil || started || gwerrors.CodeOf(err) != gwerrors.CodeNetwork {
			return started, err
		}
		c.logger.Debug("live transport unavailable, using HTTP", "lesson", params.LessonID, "error", err)
	}
	return c.transport.Execute(ctx, req, wrapped)
}

// fromCache serves a previously cached answer, emitting the single-token
// stream in streaming mode. Returns nil on a miss.
func (c *Client) fromCache(ctx context.Context, question, lessonContext, provider string, cb Callbacks, direct bool) *Answer {
	rec, ok := c.cache.Lookup(ctx, question, lessonContext, provider)
	if !ok {
		return nil
	}

	ans := &Answer{
		Text:      rec.Answer,
		MessageID: uuid.NewString(),
		Usage:     rec.Usage,
		Provider:  rec.Provider,
		Cached:    true,
	}
	if !direct {
		c.metrics.StreamToken()
		if cb.OnToken != nil {
			cb.OnToken(ans.Text)
		}
		if cb.OnEnd != nil {
			cb.OnEnd(StreamEnd{Text: ans.Text, MessageID: ans.MessageID, Usage: ans.Usage})
		}
	}
	return ans
}

func (c *Client) storeAnswer(ctx context.Context, question, lessonContext, provider, answer string, usage *Usage) {
	if answer == "" {
		return
	}
	c.cache.Store(ctx, question, lessonContext, provider, answer, &cache.Record{Usage: usage})
}

// fail classifies err, delivers it through OnError, and returns it.
func (c *Client) fail(cb Callbacks, err error) error {
	ge := asGatewayError(err)
	if cb.OnError != nil {
		cb.OnError(ge)
	}
	return ge
}

func asGatewayError(err error) *GatewayError {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	return gwerrors.Wrap(gwerrors.CodeProvider, err.Error(), err)
}

func (c *Client) registered(name string) bool {
	for _, n := range c.registry.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Providers returns the registered provider names in fallback priority
// order.
func (c *Client) Providers() []string { return c.registry.Names() }

// CurrentProvider returns the currently selected provider.
func (c *Client) CurrentProvider() string { return c.registry.Current() }

// SelectProvider switches the current provider. Selecting an unregistered
// name fails without changing the selection.
func (c *Client) SelectProvider(name string) bool { return c.registry.Select(name) }

// ProviderStats returns aggregate call outcomes for a provider.
func (c *Client) ProviderStats(name string) (ProviderStats, bool) { return c.registry.Stats(name) }

// ProviderHistory returns the bounded attempt history for a provider.
func (c *Client) ProviderHistory(name string) []ProviderAttempt { return c.registry.History(name) }

// Close drains background cache writes and releases held connections.
func (c *Client) Close() error {
	c.cache.Close()
	if c.redis != nil {
		return c.redis.Close()
	}
	return nil
}
