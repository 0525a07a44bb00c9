package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/ventlab/tutorgate/internal/auth"
	gwerrors "github.com/ventlab/tutorgate/pkg/errors"
	"github.com/ventlab/tutorgate/pkg/types"
)

// RemoteStore is the durable tier backed by the platform's cache endpoints.
// Retention is owned by the server; no TTL is enforced client-side.
type RemoteStore struct {
	baseURL string
	http    *http.Client
	tokens  auth.TokenSource
	logger  *slog.Logger
}

// NewRemoteStore creates a durable tier client rooted at baseURL.
func NewRemoteStore(baseURL string, hc *http.Client, tokens auth.TokenSource, logger *slog.Logger) *RemoteStore {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteStore{baseURL: baseURL, http: hc, tokens: tokens, logger: logger}
}

// remoteLookupResponse mirrors GET /ai/tutor/cache.
type remoteLookupResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Answer    string       `json:"answer"`
		Usage     *types.Usage `json:"usage"`
		Timestamp int64        `json:"timestamp"`
	} `json:"data"`
}

// Get implements Store via GET {base}/ai/tutor/cache?hash=<fingerprint>.
func (s *RemoteStore) Get(ctx context.Context, hash string) (*Record, error) {
	u := fmt.Sprintf("%s/ai/tutor/cache?hash=%s", s.baseURL, url.QueryEscape(hash))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	auth.Attach(req, s.tokens, s.logger)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, gwerrors.NewNetworkError("", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, gwerrors.FromStatus("", resp.StatusCode, "cache lookup failed")
	}

	var out remoteLookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode cache lookup: %w", err)
	}
	if !out.Success || out.Data.Answer == "" {
		return nil, nil
	}

	rec := &Record{
		Hash:   hash,
		Answer: out.Data.Answer,
		Usage:  out.Data.Usage,
	}
	if out.Data.Timestamp > 0 {
		rec.CreatedAt = time.UnixMilli(out.Data.Timestamp)
	}
	return rec, nil
}

// Set implements Store via POST {base}/ai/tutor/cache. The caller treats
// this as fire-and-forget; errors are returned only so the read-through
// manager can log them.
func (s *RemoteStore) Set(ctx context.Context, rec *Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/ai/tutor/cache", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	auth.Attach(req, s.tokens, s.logger)

	resp, err := s.http.Do(req)
	if err != nil {
		return gwerrors.NewNetworkError("", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return gwerrors.FromStatus("", resp.StatusCode, "cache store rejected")
	}
	return nil
}
