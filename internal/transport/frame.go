package transport

import (
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	gwerrors "github.com/ventlab/tutorgate/pkg/errors"
	"github.com/ventlab/tutorgate/pkg/types"
)

// frame is one event payload on the stream, discriminated by Type.
type frame struct {
	Type        string       `json:"type"`
	Delta       string       `json:"delta"`
	Content     string       `json:"content"`
	MessageID   string       `json:"messageId"`
	Usage       *types.Usage `json:"usage"`
	Suggestions []string     `json:"suggestions"`
	Message     string       `json:"message"`
	Code        string       `json:"code"`
}

// knownCodes guards against upstreams inventing their own error codes.
var knownCodes = map[string]bool{
	gwerrors.CodeAuth:       true,
	gwerrors.CodeQuota:      true,
	gwerrors.CodeRateLimit:  true,
	gwerrors.CodeProvider:   true,
	gwerrors.CodeTimeout:    true,
	gwerrors.CodeNetwork:    true,
	gwerrors.CodeValidation: true,
}

func codeFromFrame(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if knownCodes[code] {
		return code
	}
	return gwerrors.CodeProvider
}

// assembler applies the frame protocol for both the SSE and websocket
// paths: token frames append deltas, the first terminal frame ends the
// stream, everything else is skipped.
type assembler struct {
	provider string
	cb       Callbacks
	text     strings.Builder
	started  bool
}

func newAssembler(provider string, cb Callbacks) *assembler {
	return &assembler{provider: provider, cb: cb}
}

// feed processes one frame payload. done is true after a terminal frame;
// err is non-nil only for error frames and has not been delivered to the
// callbacks.
func (a *assembler) feed(payload []byte, logger *slog.Logger) (done bool, err error) {
	var f frame
	if jsonErr := json.Unmarshal(payload, &f); jsonErr != nil {
		logger.Debug("skipping malformed stream frame", "error", jsonErr)
		return false, nil
	}

	switch f.Type {
	case "token":
		delta := f.Delta
		if delta == "" {
			delta = f.Content
		}
		if delta == "" {
			return false, nil
		}
		a.text.WriteString(delta)
		a.started = true
		if a.cb.OnToken != nil {
			a.cb.OnToken(delta)
		}
		return false, nil

	case "end":
		end := types.StreamEnd{
			Text:        a.text.String(),
			MessageID:   f.MessageID,
			Usage:       f.Usage,
			Suggestions: f.Suggestions,
		}
		if end.MessageID == "" {
			end.MessageID = uuid.NewString()
		}
		if a.cb.OnEnd != nil {
			a.cb.OnEnd(end)
		}
		return true, nil

	case "error":
		msg := f.Message
		if msg == "" {
			msg = "provider reported an error"
		}
		return true, &gwerrors.GatewayError{
			Code:     codeFromFrame(f.Code),
			Message:  msg,
			Provider: a.provider,
		}

	default:
		// Unknown frame types are skipped, like malformed ones.
		return false, nil
	}
}
