// Package types defines the request and stream event types shared by the
// tutorgate client and its subsystems.
package types

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the ordered conversation sent to the backend.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Strategy hints how the gateway should execute the request.
type Strategy string

const (
	// StrategyAuto lets the gateway pick streaming or direct based on the
	// caller's mode.
	StrategyAuto Strategy = "auto"
	// StrategyStream asks the backend for a token stream even when the
	// caller awaits a single result.
	StrategyStream Strategy = "stream"
	// StrategyDirect asks for a buffered JSON response; streaming callers
	// receive an emulated token stream.
	StrategyDirect Strategy = "direct"
)

// Params describes one tutoring question. Question is the only required
// field; everything else refines how the request is built and routed.
type Params struct {
	// Question is the current user message.
	Question string

	// System and Developer are prepended to the message list, in that
	// order, when non-empty.
	System    string
	Developer string

	// History holds prior exchanges, oldest first. It is trimmed to the
	// configured number of turns before transmission.
	History []Message

	// LessonContext identifies the lesson or topic the question belongs
	// to. It participates in the cache fingerprint.
	LessonContext string

	// LessonID addresses the live socket transport, when available.
	LessonID string

	// Provider overrides the currently selected provider. Must name a
	// registered provider.
	Provider string

	Strategy Strategy
}

// Usage carries token accounting reported by the backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamEnd is the payload of the terminal end event.
type StreamEnd struct {
	// Text is the full answer accumulated over the stream.
	Text        string
	MessageID   string
	Usage       *Usage
	Suggestions []string
}

// EventType discriminates stream events.
type EventType string

const (
	EventToken EventType = "token"
	EventEnd   EventType = "end"
	EventError EventType = "error"
)

// StreamEvent is one element of the event stream consumed through Stream.Recv.
// Exactly one terminal event (end or error) closes a stream.
type StreamEvent struct {
	Type  EventType
	Delta string
	End   *StreamEnd
	Err   error
}

// Terminal reports whether the event closes the stream.
func (e *StreamEvent) Terminal() bool {
	return e.Type == EventEnd || e.Type == EventError
}

// Answer is the awaited result of a non-streaming call.
type Answer struct {
	Text        string
	MessageID   string
	Usage       *Usage
	Suggestions []string
	Provider    string

	// Cached is true when the answer was served from the answer cache
	// without a provider call.
	Cached bool
}
