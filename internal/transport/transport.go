// Package transport executes chat completion requests against the backend.
// It negotiates per-response between a server-sent event stream and a
// buffered JSON result, presents both through the same callback contract,
// and applies bounded retry with exponential backoff and jitter to
// recoverable failures.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ventlab/tutorgate/internal/auth"
	gwerrors "github.com/ventlab/tutorgate/pkg/errors"
	"github.com/ventlab/tutorgate/pkg/types"
)

// Callbacks is the streaming consumer contract. Exactly one of OnEnd or
// OnError concludes a delivery; no callback fires after cancellation is
// observed.
type Callbacks struct {
	OnToken func(delta string)
	OnEnd   func(end types.StreamEnd)
	OnError func(err error)
}

// Request is the wire envelope for POST {base}/ai/chat/completions.
type Request struct {
	Messages      []types.Message `json:"messages"`
	LessonContext string          `json:"lessonContext,omitempty"`
	Provider      string          `json:"provider,omitempty"`
	Strategy      types.Strategy  `json:"strategy,omitempty"`
	Stream        bool            `json:"stream"`
}

// RetryPolicy bounds the retry loop for recoverable failures.
type RetryPolicy struct {
	// MaxRetries is the number of re-issues after the first attempt.
	MaxRetries int
	// Base is the first retry delay; each further retry doubles it.
	Base time.Duration
	// Cap bounds the doubled delay before jitter. Zero disables the cap.
	Cap time.Duration
	// Jitter adds up to this fraction of the capped delay.
	Jitter float64
}

// DefaultRetryPolicy matches the backend's expectations: two retries,
// half-second base, eight-second cap, 30% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Base: 500 * time.Millisecond, Cap: 8 * time.Second, Jitter: 0.3}
}

// DefaultStreamDelay paces synthesized token streams.
const DefaultStreamDelay = 20 * time.Millisecond

// Options configures a Transport.
type Options struct {
	BaseURL     string
	HTTPClient  *http.Client
	Tokens      auth.TokenSource
	Logger      *slog.Logger
	Retry       RetryPolicy
	StreamDelay time.Duration
}

// Transport issues completion requests. Safe for concurrent use.
type Transport struct {
	baseURL     string
	http        *http.Client
	tokens      auth.TokenSource
	logger      *slog.Logger
	retry       RetryPolicy
	streamDelay time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds a Transport from opts, filling unset fields with defaults.
func New(opts Options) *Transport {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := opts.Retry
	if retry.Base <= 0 {
		retry.Base = DefaultRetryPolicy().Base
	}
	delay := opts.StreamDelay
	if delay == 0 {
		delay = DefaultStreamDelay
	}
	return &Transport{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		http:        hc,
		tokens:      opts.Tokens,
		logger:      logger,
		retry:       retry,
		streamDelay: delay,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Execute runs req in streaming mode, delivering tokens and the end event
// through cb. It returns started=true once any token or terminal event has
// reached the caller; a non-nil error was NOT delivered through cb and is
// the caller's to surface or to recover from via fallback.
func (t *Transport) Execute(ctx context.Context, req *Request, cb Callbacks) (started bool, err error) {
	return t.run(ctx, req, cb, true)
}

// ExecuteSync runs req in direct mode and awaits the complete answer. No
// artificial pacing is applied.
func (t *Transport) ExecuteSync(ctx context.Context, req *Request) (*types.Answer, error) {
	var end *types.StreamEnd
	cb := Callbacks{OnEnd: func(e types.StreamEnd) { end = &e }}

	if _, err := t.run(ctx, req, cb, false); err != nil {
		return nil, err
	}
	return &types.Answer{
		Text:        end.Text,
		MessageID:   end.MessageID,
		Usage:       end.Usage,
		Suggestions: end.Suggestions,
		Provider:    req.Provider,
	}, nil
}

func (t *Transport) run(ctx context.Context, req *Request, cb Callbacks, emulate bool) (bool, error) {
	var lastErr error

	for attempt := 0; attempt <= t.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := t.Backoff(attempt - 1)
			t.logger.Debug("retrying request", "provider", req.Provider, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return false, gwerrors.NewCancelledError(ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := t.post(ctx, req)
		if err != nil {
			if gwerrors.IsCancelled(err) {
				return false, err
			}
			if !gwerrors.IsRetryable(err) {
				return false, err
			}
			lastErr = err
			continue
		}

		return t.consume(ctx, resp, req.Provider, cb, emulate)
	}
	return false, lastErr
}

// Backoff returns the delay before retry n (zero-based):
// min(base*2^n, cap) plus up to Jitter of that value.
func (t *Transport) Backoff(n int) time.Duration {
	d := t.retry.Base
	for i := 0; i < n; i++ {
		d *= 2
	}
	if t.retry.Cap > 0 && d > t.retry.Cap {
		d = t.retry.Cap
	}
	if t.retry.Jitter > 0 {
		t.rngMu.Lock()
		j := t.rng.Float64()
		t.rngMu.Unlock()
		d += time.Duration(j * t.retry.Jitter * float64(d))
	}
	return d
}

func (t *Transport) post(ctx context.Context, req *Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, gwerrors.NewValidationError("encode request: " + err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/ai/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.NewValidationError("build request: " + err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream, application/json")
	auth.Attach(httpReq, t.tokens, t.logger)

	resp, err := t.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, gwerrors.NewCancelledError(ctx.Err())
		}
		return nil, gwerrors.NewNetworkError(req.Provider, err)
	}

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(resp.Body)
		resp.Body.Close()
		return nil, gwerrors.FromStatus(req.Provider, resp.StatusCode, msg)
	}
	return resp, nil
}

// readErrorMessage extracts a human-readable message from an error body.
func readErrorMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))
	var out struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &out); err == nil {
		if out.Error != "" {
			return out.Error
		}
		if out.Message != "" {
			return out.Message
		}
	}
	return strings.TrimSpace(string(raw))
}

func (t *Transport) consume(ctx context.Context, resp *http.Response, provider string, cb Callbacks, emulate bool) (bool, error) {
	defer resp.Body.Close()

	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "text/event-stream") {
		return t.consumeEventStream(ctx, resp.Body, provider, cb)
	}
	return t.consumeBuffered(ctx, resp.Body, provider, cb, emulate)
}

var (
	sseDataPrefix = []byte("data:")
	sseDone       = []byte("[DONE]")
)

// consumeEventStream decodes line-delimited data: frames. Malformed frames
// are skipped without aborting the stream.
func (t *Transport) consumeEventStream(ctx context.Context, body io.Reader, provider string, cb Callbacks) (bool, error) {
	asm := newAssembler(provider, cb)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 4096), 64*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return asm.started, gwerrors.NewCancelledError(ctx.Err())
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || !bytes.HasPrefix(line, sseDataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(line[len(sseDataPrefix):])
		if bytes.Equal(payload, sseDone) {
			break
		}

		done, err := asm.feed(payload, t.logger)
		if done {
			return asm.started || err == nil, err
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return asm.started, gwerrors.NewCancelledError(ctx.Err())
		}
		return asm.started, gwerrors.NewNetworkError(provider, err)
	}
	return asm.started, gwerrors.NewProviderError(provider, "stream closed without terminal event")
}

// directResponse is the buffered JSON result shape.
type directResponse struct {
	Response    string       `json:"response"`
	Content     string       `json:"content"`
	MessageID   string       `json:"messageId"`
	Usage       *types.Usage `json:"usage"`
	Suggestions []string     `json:"suggestions"`
	Error       string       `json:"error"`
}

// consumeBuffered treats the body as a single JSON result. In streaming
// mode the text is re-emitted as a synthesized token stream, whitespace
// fragment by fragment with a small pacing delay, so callers never branch
// on transport mode.
func (t *Transport) consumeBuffered(ctx context.Context, body io.Reader, provider string, cb Callbacks, emulate bool) (bool, error) {
	raw, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		if ctx.Err() != nil {
			return false, gwerrors.NewCancelledError(ctx.Err())
		}
		return false, gwerrors.NewNetworkError(provider, err)
	}

	var out directResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return false, gwerrors.NewProviderError(provider, "unparseable response body")
	}
	if out.Error != "" {
		return false, gwerrors.NewProviderError(provider, out.Error)
	}
	text := out.Response
	if text == "" {
		text = out.Content
	}
	if text == "" {
		return false, gwerrors.NewProviderError(provider, "empty response")
	}

	end := types.StreamEnd{
		Text:        text,
		MessageID:   out.MessageID,
		Usage:       out.Usage,
		Suggestions: out.Suggestions,
	}
	if end.MessageID == "" {
		end.MessageID = uuid.NewString()
	}

	if !emulate {
		if cb.OnEnd != nil {
			cb.OnEnd(end)
		}
		return true, nil
	}

	started := false
	for _, fragment := range strings.Fields(text) {
		if t.streamDelay > 0 {
			select {
			case <-ctx.Done():
				return started, gwerrors.NewCancelledError(ctx.Err())
			case <-time.After(t.streamDelay):
			}
		} else if ctx.Err() != nil {
			return started, gwerrors.NewCancelledError(ctx.Err())
		}
		if cb.OnToken != nil {
			cb.OnToken(fragment)
		}
		started = true
	}
	if cb.OnEnd != nil {
		cb.OnEnd(end)
	}
	return true, nil
}
