package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
	// Card and account numbers as spoken transcripts tend to render them:
	// 12-19 digits, optionally grouped by spaces or dashes.
	cardRe = regexp.MustCompile(`\b(?:\d[ \-]?){12,19}\b`)
)

// SetEnabled toggles PII redaction for transcript log lines.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails, phone numbers and card/account numbers when enabled.
// Transcript text is only ever redacted on its way into logs; the aggregator
// keeps the original.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = cardRe.ReplaceAllString(out, "[REDACTED_ACCOUNT]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}
