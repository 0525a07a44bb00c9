package transport

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"

	"github.com/ventlab/tutorgate/internal/auth"
	gwerrors "github.com/ventlab/tutorgate/pkg/errors"
)

// SocketURL builds the live tutoring endpoint for a lesson session. When
// socketBase is empty the websocket scheme is derived from httpBase.
func SocketURL(socketBase, httpBase, lessonID, sessionID, provider string) (string, error) {
	base := socketBase
	if base == "" {
		base = httpBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", gwerrors.NewValidationError("invalid socket base URL: " + err.Error())
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", gwerrors.NewValidationError("unsupported socket scheme: " + u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ai/tutor/live/" + url.PathEscape(lessonID)
	q := u.Query()
	q.Set("session", sessionID)
	if provider != "" {
		q.Set("provider", provider)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LiveOptions addresses one live session.
type LiveOptions struct {
	SocketBaseURL string
	LessonID      string
	SessionID     string
}

// ExecuteLive streams req over a websocket carrying the same frame
// protocol as the SSE path. A dial failure is returned as a network error
// with started=false so the caller can fall back to HTTP; once frames
// flow, semantics match Execute.
func (t *Transport) ExecuteLive(ctx context.Context, req *Request, live LiveOptions, cb Callbacks) (started bool, err error) {
	target, err := SocketURL(live.SocketBaseURL, t.baseURL, live.LessonID, live.SessionID, req.Provider)
	if err != nil {
		return false, err
	}

	// The websocket library refuses clients with a Timeout set; long-lived
	// streams are bounded by ctx instead.
	dialClient := t.http
	if dialClient != nil && dialClient.Timeout != 0 {
		dialClient = &http.Client{Transport: dialClient.Transport, Jar: dialClient.Jar}
	}
	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient: dialClient,
		HTTPHeader: auth.Header(t.tokens, t.logger),
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, gwerrors.NewCancelledError(ctx.Err())
		}
		return false, gwerrors.NewNetworkError(req.Provider, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := t.writeLiveRequest(ctx, conn, req); err != nil {
		return false, err
	}

	asm := newAssembler(req.Provider, cb)
	for {
		typ, payload, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return asm.started, gwerrors.NewCancelledError(ctx.Err())
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return asm.started, gwerrors.NewProviderError(req.Provider, "stream closed without terminal event")
			}
			return asm.started, gwerrors.NewNetworkError(req.Provider, err)
		}
		if typ != websocket.MessageText {
			continue
		}

		done, err := asm.feed(payload, t.logger)
		if done {
			return asm.started || err == nil, err
		}
	}
}

func (t *Transport) writeLiveRequest(ctx context.Context, conn *websocket.Conn, req *Request) error {
	w, err := conn.Writer(ctx, websocket.MessageText)
	if err != nil {
		return gwerrors.NewNetworkError(req.Provider, err)
	}
	if err := json.NewEncoder(w).Encode(req); err != nil {
		w.Close()
		return gwerrors.NewNetworkError(req.Provider, err)
	}
	return w.Close()
}
