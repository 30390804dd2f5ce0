// Package redact scrubs sensitive material from adapter arguments and
// output before they reach the event store or error details.
package redact

import "regexp"

// Placeholder replaces redacted values.
const Placeholder = "[REDACTED]"

// textRule scrubs one pattern; repl may reference capture groups so a
// recognizable prefix (the "Bearer" scheme, a key name) survives redaction.
type textRule struct {
	re   *regexp.Regexp
	repl string
}

var (
	// Key names whose values are always scrubbed, matched case-insensitively
	// as substrings of the key.
	defaultKeyPattern = regexp.MustCompile(`(?i)(token|secret|password|passwd|api_key|apikey|credential|authorization|private_key)`)

	// Text patterns scrubbed inside string values.
	defaultTextRules = []textRule{
		{regexp.MustCompile(`(?i)(bearer)\s+[A-Za-z0-9._\-]+`), "$1 " + Placeholder},
		{regexp.MustCompile(`sk-[A-Za-z0-9]{16,}`), Placeholder},
		{regexp.MustCompile(`(?i)ghp_[A-Za-z0-9]{20,}`), Placeholder},
		{regexp.MustCompile(`(?i)(aws_secret_access_key\s*[:=]\s*)\S+`), "${1}" + Placeholder},
	}
)

// Redactor scrubs maps and free text. The zero value is not usable; call
// NewDefault or New.
type Redactor struct {
	keyPattern *regexp.Regexp
	textRules  []textRule
}

// NewDefault returns a redactor with the standard key and text patterns.
func NewDefault() *Redactor {
	return &Redactor{
		keyPattern: defaultKeyPattern,
		textRules:  defaultTextRules,
	}
}

// New returns a redactor with custom patterns. A nil keyPattern disables key
// scrubbing; each text pattern's matches are replaced by the placeholder.
func New(keyPattern *regexp.Regexp, textPatterns ...*regexp.Regexp) *Redactor {
	rules := make([]textRule, 0, len(textPatterns))
	for _, p := range textPatterns {
		rules = append(rules, textRule{p, Placeholder})
	}
	return &Redactor{keyPattern: keyPattern, textRules: rules}
}

// Map returns a deep copy of m with sensitive keys replaced by the
// placeholder and text patterns scrubbed from string values. The input is
// never mutated.
func (r *Redactor) Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if r.keyPattern != nil && r.keyPattern.MatchString(k) {
			out[k] = Placeholder
			continue
		}
		out[k] = r.value(v)
	}
	return out
}

// Text scrubs text patterns from s.
func (r *Redactor) Text(s string) string {
	for _, rule := range r.textRules {
		s = rule.re.ReplaceAllString(s, rule.repl)
	}
	return s
}

func (r *Redactor) value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return r.Map(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = r.value(item)
		}
		return out
	case string:
		return r.Text(t)
	default:
		return v
	}
}

// ContainsSensitiveKey reports whether any key in m, or in maps nested
// directly as values, would be redacted. Maps inside lists are not searched.
// Useful for tests and pre-flight checks.
func (r *Redactor) ContainsSensitiveKey(m map[string]any) bool {
	if r.keyPattern == nil {
		return false
	}
	for k, v := range m {
		if r.keyPattern.MatchString(k) {
			return true
		}
		if nested, ok := v.(map[string]any); ok && r.ContainsSensitiveKey(nested) {
			return true
		}
	}
	return false
}
