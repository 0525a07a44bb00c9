package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/ventlab/tutorgate/pkg/errors"
	"github.com/ventlab/tutorgate/pkg/types"
)

func testTransport(baseURL string) *Transport {
	return New(Options{
		BaseURL:     baseURL,
		Retry:       RetryPolicy{MaxRetries: 2, Base: time.Millisecond},
		StreamDelay: time.Nanosecond,
	})
}

type recorder struct {
	tokens []string
	end    *types.StreamEnd
	errs   []error
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnToken: func(d string) { r.tokens = append(r.tokens, d) },
		OnEnd:   func(e types.StreamEnd) { r.end = &e },
		OnError: func(err error) { r.errs = append(r.errs, err) },
	}
}

func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ai/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
	}))
}

func TestExecute_EventStream(t *testing.T) {
	srv := sseServer(t,
		`{"type":"token","delta":"Set "}`,
		`{"type":"token","delta":"PEEP"}`,
		`{"type":"end","messageId":"m-1","usage":{"total_tokens":7},"suggestions":["Why PEEP?"]}`,
	)
	defer srv.Close()

	var rec recorder
	tr := testTransport(srv.URL)
	started, err := tr.Execute(context.Background(), &Request{Provider: "openai", Stream: true}, rec.callbacks())

	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, []string{"Set ", "PEEP"}, rec.tokens)
	require.NotNil(t, rec.end)
	assert.Equal(t, "Set PEEP", rec.end.Text)
	assert.Equal(t, "m-1", rec.end.MessageID)
	require.NotNil(t, rec.end.Usage)
	assert.Equal(t, 7, rec.end.Usage.TotalTokens)
	assert.Equal(t, []string{"Why PEEP?"}, rec.end.Suggestions)
}

func TestExecute_EventStreamSkipsMalformedFrames(t *testing.T) {
	srv := sseServer(t,
		`{not json`,
		`{"type":"heartbeat"}`,
		`{"type":"token","content":"ok"}`,
		`{"type":"end"}`,
	)
	defer srv.Close()

	var rec recorder
	tr := testTransport(srv.URL)
	started, err := tr.Execute(context.Background(), &Request{Provider: "openai", Stream: true}, rec.callbacks())

	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, []string{"ok"}, rec.tokens)
	require.NotNil(t, rec.end)
	assert.NotEmpty(t, rec.end.MessageID, "missing id is synthesized")
}

func TestExecute_EventStreamErrorFrame(t *testing.T) {
	srv := sseServer(t,
		`{"type":"token","delta":"partial"}`,
		`{"type":"error","code":"RATE_LIMIT","message":"slow down"}`,
	)
	defer srv.Close()

	var rec recorder
	tr := testTransport(srv.URL)
	started, err := tr.Execute(context.Background(), &Request{Provider: "openai", Stream: true}, rec.callbacks())

	assert.True(t, started, "tokens flowed before the error")
	require.Error(t, err)
	assert.Equal(t, gwerrors.CodeRateLimit, gwerrors.CodeOf(err))
	assert.Nil(t, rec.end)
	assert.Empty(t, rec.errs, "transport never delivers errors through callbacks")
}

func TestExecute_EventStreamUnknownErrorCode(t *testing.T) {
	srv := sseServer(t, `{"type":"error","code":"EXPLODED","message":"boom"}`)
	defer srv.Close()

	tr := testTransport(srv.URL)
	_, err := tr.Execute(context.Background(), &Request{Provider: "openai"}, Callbacks{})
	assert.Equal(t, gwerrors.CodeProvider, gwerrors.CodeOf(err))
}

func TestExecute_EventStreamTruncated(t *testing.T) {
	srv := sseServer(t, `{"type":"token","delta":"half"}`)
	defer srv.Close()

	var rec recorder
	tr := testTransport(srv.URL)
	started, err := tr.Execute(context.Background(), &Request{Provider: "openai", Stream: true}, rec.callbacks())

	assert.True(t, started)
	assert.Equal(t, gwerrors.CodeProvider, gwerrors.CodeOf(err))
	assert.Nil(t, rec.end)
}

func TestExecute_BufferedEmulation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"response":  "increase tidal volume",
			"messageId": "m-9",
		})
	}))
	defer srv.Close()

	var rec recorder
	tr := testTransport(srv.URL)
	started, err := tr.Execute(context.Background(), &Request{Provider: "openai", Stream: true}, rec.callbacks())

	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, []string{"increase", "tidal", "volume"}, rec.tokens)
	require.NotNil(t, rec.end)
	assert.Equal(t, "increase tidal volume", rec.end.Text)
	assert.Equal(t, "m-9", rec.end.MessageID)
}

func TestExecute_BufferedErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model overloaded"})
	}))
	defer srv.Close()

	var rec recorder
	tr := testTransport(srv.URL)
	started, err := tr.Execute(context.Background(), &Request{Provider: "openai"}, rec.callbacks())

	assert.False(t, started)
	assert.Equal(t, gwerrors.CodeProvider, gwerrors.CodeOf(err))
	assert.Empty(t, rec.tokens)
}

func TestExecuteSync_NoTokenPacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": "direct answer",
			"usage":   map[string]any{"total_tokens": 3},
		})
	}))
	defer srv.Close()

	tr := testTransport(srv.URL)
	ans, err := tr.ExecuteSync(context.Background(), &Request{Provider: "anthropic"})

	require.NoError(t, err)
	assert.Equal(t, "direct answer", ans.Text)
	assert.Equal(t, "anthropic", ans.Provider)
	require.NotNil(t, ans.Usage)
	assert.Equal(t, 3, ans.Usage.TotalTokens)
}

func TestExecute_RetriesRecoverableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "ok"})
	}))
	defer srv.Close()

	var rec recorder
	tr := testTransport(srv.URL)
	started, err := tr.Execute(context.Background(), &Request{Provider: "openai"}, rec.callbacks())

	require.NoError(t, err)
	assert.True(t, started)
	assert.EqualValues(t, 3, calls.Load())
}

func TestExecute_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := testTransport(srv.URL)
	started, err := tr.Execute(context.Background(), &Request{Provider: "openai"}, Callbacks{})

	assert.False(t, started)
	assert.Equal(t, gwerrors.CodeRateLimit, gwerrors.CodeOf(err))
	assert.EqualValues(t, 3, calls.Load(), "initial attempt plus two retries")
}

func TestExecute_NoRetryOnAuthError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := testTransport(srv.URL)
	_, err := tr.Execute(context.Background(), &Request{Provider: "openai"}, Callbacks{})

	assert.Equal(t, gwerrors.CodeAuth, gwerrors.CodeOf(err))
	assert.EqualValues(t, 1, calls.Load())
}

func TestExecute_CancelledBeforeDial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var rec recorder
	tr := testTransport("http://127.0.0.1:1")
	started, err := tr.Execute(ctx, &Request{Provider: "openai"}, rec.callbacks())

	assert.False(t, started)
	assert.True(t, gwerrors.IsCancelled(err))
	assert.Empty(t, rec.tokens)
	assert.Nil(t, rec.end)
	assert.Empty(t, rec.errs)
}

func TestExecute_CancelledDuringBackoffWait(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	// A long base puts the transport inside the backoff wait when the
	// cancellation lands, after the first attempt has already failed.
	tr := New(Options{
		BaseURL: srv.URL,
		Retry:   RetryPolicy{MaxRetries: 2, Base: time.Minute},
	})

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(100*time.Millisecond, cancel)
	defer timer.Stop()
	defer cancel()

	var rec recorder
	started, err := tr.Execute(ctx, &Request{Provider: "openai"}, rec.callbacks())

	assert.False(t, started)
	assert.True(t, gwerrors.IsCancelled(err))
	assert.EqualValues(t, 1, calls.Load(), "no re-issue after cancellation")
	assert.Empty(t, rec.tokens)
	assert.Nil(t, rec.end)
	assert.Empty(t, rec.errs)
}

func TestBackoff_GrowthAndCap(t *testing.T) {
	tr := New(Options{Retry: RetryPolicy{Base: 500 * time.Millisecond, Cap: 8 * time.Second}})

	assert.Equal(t, 500*time.Millisecond, tr.Backoff(0))
	assert.Equal(t, time.Second, tr.Backoff(1))
	assert.Equal(t, 2*time.Second, tr.Backoff(2))
	assert.Equal(t, 8*time.Second, tr.Backoff(5), "capped")
}

func TestBackoff_JitterBounded(t *testing.T) {
	tr := New(Options{Retry: RetryPolicy{Base: time.Second, Cap: 8 * time.Second, Jitter: 0.3}})

	for i := 0; i < 50; i++ {
		d := tr.Backoff(0)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1300*time.Millisecond)
	}
}

func TestReadErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "question is required"})
	}))
	defer srv.Close()

	tr := testTransport(srv.URL)
	_, err := tr.Execute(context.Background(), &Request{Provider: "openai"}, Callbacks{})

	require.Error(t, err)
	assert.Equal(t, gwerrors.CodeValidation, gwerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "question is required")
}
