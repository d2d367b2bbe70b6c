package ai

import (
	"regexp"

	"github.com/propcrm/realty-agent/internal/logger"
)

// MaxPreviewLength caps model text echoed into debug logs
const MaxPreviewLength = 200

// RedactedValue replaces secrets in logs
const RedactedValue = "[REDACTED]"

var (
	phoneRun = regexp.MustCompile(`\+?\d[\d\s\-]{7,}\d`)
	emailRe  = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
)

// RedactKey keeps the first and last four characters of an API key
func RedactKey(apiKey string) string {
	switch {
	case apiKey == "":
		return ""
	case len(apiKey) <= 8:
		return RedactedValue
	}
	return apiKey[:4] + RedactedValue + apiKey[len(apiKey)-4:]
}

// Preview prepares lead or model text for a debug log line. Phone numbers and
// e-mail addresses that leads dictate mid-conversation are masked; full keeps
// the longer debug cap instead of MaxPreviewLength.
func Preview(text string, full bool) string {
	text = emailRe.ReplaceAllString(text, RedactedValue)
	text = phoneRun.ReplaceAllStringFunc(text, logger.MaskPhone)
	if full {
		return logger.SanitizeDebugContent(text)
	}
	return logger.SanitizeString(text, MaxPreviewLength)
}
