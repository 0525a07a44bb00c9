package providers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/ventlab/tutorgate/internal/auth"
)

// DefaultProviders is the hard-coded fallback chain used when the backend's
// provider listing is unreachable.
var DefaultProviders = []string{"openai", "anthropic", "gemini"}

// DefaultProvider is the initial selection in the fallback configuration.
const DefaultProvider = "openai"

// Discovery is the provider list advertised by the backend.
type Discovery struct {
	Providers []string
	Default   string
}

type discoveryResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Providers []string `json:"providers"`
		Default   string   `json:"default"`
	} `json:"data"`
}

// Discover fetches GET {base}/ai/providers. Any failure falls back to the
// hard-coded default list; the caller always gets a usable chain.
func Discover(ctx context.Context, baseURL string, hc *http.Client, tokens auth.TokenSource, logger *slog.Logger) Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	fallback := Discovery{Providers: DefaultProviders, Default: DefaultProvider}

	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/ai/providers", nil)
	if err != nil {
		return fallback
	}
	auth.Attach(req, tokens, logger)

	resp, err := hc.Do(req)
	if err != nil {
		logger.Debug("provider discovery failed, using defaults", "error", err)
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Debug("provider discovery failed, using defaults", "status", resp.StatusCode)
		return fallback
	}

	var out discoveryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || !out.Success || len(out.Data.Providers) == 0 {
		logger.Debug("provider discovery returned no providers, using defaults")
		return fallback
	}

	d := Discovery{Providers: out.Data.Providers, Default: out.Data.Default}
	if d.Default == "" {
		d.Default = d.Providers[0]
	}
	return d
}
