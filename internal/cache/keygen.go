package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ventlab/tutorgate/internal/normalize"
)

// Fingerprint derives the fixed-length cache key for a question. The
// question text is canonicalized first, so casing, diacritics, and
// whitespace runs never produce distinct keys. Context, provider, and
// prompt-template version are part of the key: a different lesson, model,
// or prompt revision must never collide with an existing answer.
func Fingerprint(question, lessonContext, provider, templateVersion string) string {
	var sb strings.Builder
	sb.WriteString(normalize.CanonicalText(question))
	sb.WriteString("|ctx:")
	sb.WriteString(lessonContext)
	sb.WriteString("|provider:")
	sb.WriteString(provider)
	sb.WriteString("|tmpl:")
	sb.WriteString(templateVersion)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
