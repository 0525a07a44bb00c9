package tutorgate

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ventlab/tutorgate/internal/config"
	"github.com/ventlab/tutorgate/internal/providers"
	"github.com/ventlab/tutorgate/internal/transport"
)

// ClientConfig holds all configuration for the gateway client.
type ClientConfig struct {
	// BaseURL is the HTTP backend root. Required.
	BaseURL string
	// SocketBaseURL overrides the live transport endpoint; derived from
	// BaseURL when empty.
	SocketBaseURL string

	// HistoryTurns bounds the trailing conversation window sent with each
	// question. Zero means the default; negative disables history.
	HistoryTurns int

	// PromptTemplateVersion participates in cache fingerprints.
	PromptTemplateVersion string

	// Caching
	FastCacheTTL   time.Duration
	DurableCache   bool // backend HTTP tier; on by default
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisNamespace string

	// Providers in fallback priority order.
	Providers       []providers.Config
	DefaultProvider string
	// Discover asks the backend for its provider list during New.
	Discover bool

	// Transport
	Retry       transport.RetryPolicy
	StreamDelay time.Duration
	Timeout     time.Duration
	HTTPClient  *http.Client
	Tokens      TokenSource

	// Observability
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Option configures the Client.
type Option func(*ClientConfig)

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		PromptTemplateVersion: "v1",
		FastCacheTTL:          30 * time.Minute,
		DurableCache:          true,
		RedisNamespace:        "tutorcache",
		DefaultProvider:       providers.DefaultProvider,
		Retry:                 transport.DefaultRetryPolicy(),
		StreamDelay:           transport.DefaultStreamDelay,
		Timeout:               60 * time.Second,
		Logger:                slog.Default(),
	}
}

func (c *ClientConfig) providerConfigs() []providers.Config {
	if len(c.Providers) > 0 {
		return c.Providers
	}
	out := make([]providers.Config, 0, len(providers.DefaultProviders))
	for _, name := range providers.DefaultProviders {
		out = append(out, providers.Config{Name: name})
	}
	return out
}

// WithBaseURL sets the backend root URL. Required.
func WithBaseURL(u string) Option {
	return func(c *ClientConfig) { c.BaseURL = u }
}

// WithSocketBaseURL sets a dedicated endpoint for the live websocket
// transport. When unset the websocket URL is derived from the base URL.
func WithSocketBaseURL(u string) Option {
	return func(c *ClientConfig) { c.SocketBaseURL = u }
}

// WithHTTPClient sets the HTTP client used for all backend calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *ClientConfig) { c.HTTPClient = hc }
}

// WithTokenSource sets the bearer token source for backend requests.
func WithTokenSource(src TokenSource) Option {
	return func(c *ClientConfig) { c.Tokens = src }
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ClientConfig) { c.Logger = logger }
}

// WithHistoryTurns bounds how many prior exchanges accompany a question.
// A turn is one user message plus one assistant reply. Negative disables
// history entirely.
func WithHistoryTurns(turns int) Option {
	return func(c *ClientConfig) { c.HistoryTurns = turns }
}

// WithPromptTemplateVersion tags cache fingerprints with the prompt
// revision, so changing prompts never serves answers produced by old ones.
func WithPromptTemplateVersion(v string) Option {
	return func(c *ClientConfig) { c.PromptTemplateVersion = v }
}

// WithFastCacheTTL sets how long answers stay in the in-process tier.
func WithFastCacheTTL(ttl time.Duration) Option {
	return func(c *ClientConfig) { c.FastCacheTTL = ttl }
}

// WithoutDurableCache disables the durable cache tier entirely.
func WithoutDurableCache() Option {
	return func(c *ClientConfig) {
		c.DurableCache = false
		c.RedisAddr = ""
	}
}

// WithRedisCache uses Redis as the durable answer tier instead of the
// backend's HTTP cache endpoints.
func WithRedisCache(addr, password string, db int) Option {
	return func(c *ClientConfig) {
		c.RedisAddr = addr
		c.RedisPassword = password
		c.RedisDB = db
	}
}

// WithProvider registers a provider at the end of the fallback order with
// a sliding-window rate limit of max requests per interval. Zero values
// fall back to the default window.
func WithProvider(name string, max int, interval time.Duration) Option {
	return func(c *ClientConfig) {
		c.Providers = append(c.Providers, providers.Config{
			Name:   name,
			Window: providers.Window{Max: max, Interval: interval},
		})
	}
}

// WithProviders registers providers with default windows, in fallback
// priority order. It replaces any previously configured providers.
func WithProviders(names ...string) Option {
	return func(c *ClientConfig) {
		c.Providers = c.Providers[:0]
		for _, name := range names {
			c.Providers = append(c.Providers, providers.Config{Name: name})
		}
	}
}

// WithDefaultProvider selects the initially active provider.
func WithDefaultProvider(name string) Option {
	return func(c *ClientConfig) { c.DefaultProvider = name }
}

// WithProviderDiscovery asks the backend for its provider list during New,
// falling back to the configured providers when unreachable.
func WithProviderDiscovery() Option {
	return func(c *ClientConfig) { c.Discover = true }
}

// WithRetry configures the transport retry budget: maxRetries re-issues
// after the first attempt, starting at the base delay with exponential
// growth.
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(c *ClientConfig) {
		c.Retry.MaxRetries = maxRetries
		c.Retry.Base = base
	}
}

// WithRetryMaxBackoff caps the exponential retry delay. Zero disables the
// cap.
func WithRetryMaxBackoff(d time.Duration) Option {
	return func(c *ClientConfig) { c.Retry.Cap = d }
}

// WithRetryJitter sets the jitter fraction (0.0 to 1.0) added to each
// retry delay.
func WithRetryJitter(jitter float64) Option {
	return func(c *ClientConfig) { c.Retry.Jitter = jitter }
}

// WithStreamDelay paces the synthesized token stream used when the backend
// returns a buffered response to a streaming caller.
func WithStreamDelay(d time.Duration) Option {
	return func(c *ClientConfig) { c.StreamDelay = d }
}

// WithTimeout bounds each HTTP request to the backend.
func WithTimeout(d time.Duration) Option {
	return func(c *ClientConfig) { c.Timeout = d }
}

// WithMetrics registers the client's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *ClientConfig) { c.Registerer = reg }
}

// fromFileConfig maps a loaded config file onto the client config.
// Options applied after it override its values.
func fromFileConfig(fc *config.Config) Option {
	return func(c *ClientConfig) {
		c.BaseURL = fc.BaseURL
		c.SocketBaseURL = fc.SocketBaseURL
		c.PromptTemplateVersion = fc.PromptTemplateVersion
		c.HistoryTurns = fc.HistoryTurns
		c.StreamDelay = fc.StreamDelay
		c.Timeout = fc.Timeout
		c.FastCacheTTL = fc.Cache.FastTTL
		c.RedisAddr = fc.Cache.RedisAddr
		c.RedisPassword = fc.Cache.RedisPassword
		c.RedisDB = fc.Cache.RedisDB
		if fc.Cache.Namespace != "" {
			c.RedisNamespace = fc.Cache.Namespace
		}
		c.Providers = c.Providers[:0]
		for _, p := range fc.Providers {
			c.Providers = append(c.Providers, providers.Config{
				Name:   p.Name,
				Window: providers.Window{Max: p.MaxRequests, Interval: p.Window},
			})
		}
		if fc.DefaultProvider != "" {
			c.DefaultProvider = fc.DefaultProvider
		}
		c.Retry = transport.RetryPolicy{
			MaxRetries: fc.Retry.MaxRetries,
			Base:       fc.Retry.Base,
			Cap:        fc.Retry.Cap,
			Jitter:     fc.Retry.Jitter,
		}
	}
}
