// Package tutorgate is the client-side gateway to the AI tutoring backend.
// It normalizes questions into ordered chat requests, serves repeated
// questions from a content-addressed answer cache, selects among the
// configured providers with sliding-window rate limits and ordered
// fallback, and delivers answers as a token stream regardless of whether
// the backend streamed or buffered its response.
//
// Basic usage:
//
//	client, err := tutorgate.New(
//	    tutorgate.WithBaseURL("https://api.example.com"),
//	    tutorgate.WithTokenSource(tutorgate.TokenFromEnv("TUTOR_TOKEN")),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SendMessage(ctx, tutorgate.Params{
//	    Question:      "Why did the peak pressure alarm fire?",
//	    LessonContext: "lesson-3:pressure-alarms",
//	}, tutorgate.Callbacks{
//	    OnToken: func(delta string) { fmt.Print(delta) },
//	    OnEnd:   func(end tutorgate.StreamEnd) { fmt.Println() },
//	})
package tutorgate

import (
	"github.com/ventlab/tutorgate/internal/auth"
	"github.com/ventlab/tutorgate/internal/providers"
	gwerrors "github.com/ventlab/tutorgate/pkg/errors"
	"github.com/ventlab/tutorgate/pkg/types"
)

// Re-exported request and result types.
type (
	Params      = types.Params
	Message     = types.Message
	Role        = types.Role
	Strategy    = types.Strategy
	Usage       = types.Usage
	Answer      = types.Answer
	StreamEnd   = types.StreamEnd
	StreamEvent = types.StreamEvent
	EventType   = types.EventType
)

const (
	RoleSystem    = types.RoleSystem
	RoleUser      = types.RoleUser
	RoleAssistant = types.RoleAssistant

	StrategyAuto   = types.StrategyAuto
	StrategyStream = types.StrategyStream
	StrategyDirect = types.StrategyDirect

	EventToken = types.EventToken
	EventEnd   = types.EventEnd
	EventError = types.EventError
)

// GatewayError is the classified error type returned by all operations.
type GatewayError = gwerrors.GatewayError

// Error codes carried by GatewayError.
const (
	CodeAuth       = gwerrors.CodeAuth
	CodeQuota      = gwerrors.CodeQuota
	CodeRateLimit  = gwerrors.CodeRateLimit
	CodeProvider   = gwerrors.CodeProvider
	CodeTimeout    = gwerrors.CodeTimeout
	CodeNetwork    = gwerrors.CodeNetwork
	CodeValidation = gwerrors.CodeValidation
	CodeCancelled  = gwerrors.CodeCancelled
)

// CodeOf extracts the taxonomy code from err.
func CodeOf(err error) string { return gwerrors.CodeOf(err) }

// IsCancelled reports whether err represents cooperative cancellation.
func IsCancelled(err error) bool { return gwerrors.IsCancelled(err) }

// ProviderStats aggregates a provider's recorded call outcomes.
type ProviderStats = providers.Stats

// ProviderAttempt is one recorded provider call.
type ProviderAttempt = providers.Attempt

// TokenSource supplies the bearer token attached to backend requests.
// Implementations return an empty string when no token is available.
type TokenSource interface {
	Token() string
}

// StaticToken returns a TokenSource for a fixed token.
func StaticToken(tok string) TokenSource { return auth.StaticToken(tok) }

// TokenFromEnv returns a TokenSource that reads the named environment
// variable on every request.
func TokenFromEnv(name string) TokenSource { return auth.EnvToken(name) }

// Callbacks receives the token stream for SendMessage. Exactly one of
// OnEnd or OnError concludes a successful delivery attempt; neither fires
// after the caller's context is cancelled.
type Callbacks struct {
	// OnToken receives each answer fragment in order.
	OnToken func(delta string)
	// OnEnd receives the terminal event with the full accumulated text.
	OnEnd func(end StreamEnd)
	// OnError receives the classified failure, at most once.
	OnError func(err *GatewayError)
}
