package logger

import (
	"regexp"
)

// Redactor masks credential material before it leaves the process, e.g. in
// settings served back to the web UI or in exported diagnostic logs. The
// configuration document carries integration tokens, so anything derived from
// it is redacted on the way out.
type Redactor struct {
	patterns []*compiledPattern
}

type compiledPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// defaultPatterns covers the credential shapes LoopDesk stores: GitHub
// personal access tokens (classic and fine-grained) and bearer headers.
var defaultPatterns = []struct {
	name        string
	pattern     string
	replacement string
}{
	{"github-token", `gh[pousr]_[A-Za-z0-9]{20,}`, "***"},
	{"github-fine-grained", `github_pat_[A-Za-z0-9_]{20,}`, "***"},
	{"bearer-header", `(?i)(bearer\s+)[A-Za-z0-9._~+/=-]+`, "${1}***"},
}

// NewRedactor creates a Redactor with the built-in credential patterns.
func NewRedactor() *Redactor {
	patterns := make([]*compiledPattern, 0, len(defaultPatterns))
	for _, p := range defaultPatterns {
		patterns = append(patterns, &compiledPattern{
			name:        p.name,
			regex:       regexp.MustCompile(p.pattern),
			replacement: p.replacement,
		})
	}
	return &Redactor{patterns: patterns}
}

// Redact returns line with all credential matches replaced.
func (r *Redactor) Redact(line string) string {
	for _, p := range r.patterns {
		line = p.regex.ReplaceAllString(line, p.replacement)
	}
	return line
}

// RedactValue masks a settings value entirely when its key looks like a
// credential. Non-credential keys pass through Redact for embedded tokens.
func (r *Redactor) RedactValue(key, value string) string {
	if isSensitiveKey(key) && value != "" {
		return "***"
	}
	return r.Redact(value)
}

var sensitiveKeyPattern = regexp.MustCompile(`(?i)(token|secret|password|api_key|apikey|credential)`)

func isSensitiveKey(key string) bool {
	return sensitiveKeyPattern.MatchString(key)
}
