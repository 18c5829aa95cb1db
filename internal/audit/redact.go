package audit

import "regexp"

var secretRe = regexp.MustCompile(
	`(?i)((?:password|token|secret|key|auth|bearer|api[_-]?key|credentials)[\s=:]+)\S{8,}`)

// Redact masks credential-looking values so they never reach the audit log.
func Redact(text string) string {
	return secretRe.ReplaceAllString(text, "$1[REDACTED]")
}
