// Package normalize assembles the canonical ordered message list for a
// request and canonicalizes question text for cache fingerprinting.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ventlab/tutorgate/pkg/types"
)

// DefaultHistoryTurns is the number of prior exchanges kept in the window.
// A turn is one user message plus one assistant message.
const DefaultHistoryTurns = 12

// Builder produces ordered message lists with a bounded history window.
type Builder struct {
	// HistoryTurns limits the trailing history window. Zero means
	// DefaultHistoryTurns; negative disables history entirely.
	HistoryTurns int
}

// Build returns the canonical message order: system prompt (if present),
// developer prompt (if present), trimmed history, then the current user
// question. History is trimmed from the oldest end and never reordered.
func (b Builder) Build(system, developer string, history []types.Message, question string) []types.Message {
	trimmed := b.trimHistory(history)

	out := make([]types.Message, 0, len(trimmed)+3)
	if system != "" {
		out = append(out, types.Message{Role: types.RoleSystem, Content: system})
	}
	if developer != "" {
		out = append(out, types.Message{Role: types.RoleSystem, Content: developer})
	}
	out = append(out, trimmed...)
	out = append(out, types.Message{Role: types.RoleUser, Content: question})
	return out
}

func (b Builder) trimHistory(history []types.Message) []types.Message {
	turns := b.HistoryTurns
	if turns == 0 {
		turns = DefaultHistoryTurns
	}
	if turns < 0 {
		return nil
	}
	limit := turns * 2
	if len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}

// diacriticStripper removes combining marks after canonical decomposition.
var diacriticStripper = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// CanonicalText lowercases, trims, strips diacritics, and collapses runs of
// whitespace so that semantically identical questions compare equal.
func CanonicalText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if stripped, _, err := transform.String(diacriticStripper, s); err == nil {
		s = stripped
	}
	return strings.Join(strings.Fields(s), " ")
}
