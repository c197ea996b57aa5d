package guardrail

import (
	"context"
	"regexp"
)

var htmlTagStrip = regexp.MustCompile(`(?is)<(script|iframe|object|embed)[^>]*>.*?</\s*\w+\s*>`)

// injectionPatterns covers the attack families the sanitiser must
// reject outright: any hit is CRITICAL and an immediate BLOCK.
var injectionPatterns = map[string]*regexp.Regexp{
	"xss":              regexp.MustCompile(`(?i)<script|javascript:|onerror\s*=|onload\s*=`),
	"sqli":             regexp.MustCompile(`(?i)(\bunion\s+select\b|\bor\s+1\s*=\s*1\b|;\s*drop\s+table\b)`),
	"command_injection": regexp.MustCompile(`(?i)(\$\(.*\)|` + "`" + `.*` + "`" + `|;\s*(rm|curl|wget)\s)`),
	"nosql_injection":  regexp.MustCompile(`\$where|\$ne\s*:|\$gt\s*:`),
	"ldap_injection":   regexp.MustCompile(`\(\s*\|\s*\(|\)\s*\(\s*&`),
	"template_injection": regexp.MustCompile(`\{\{.*\}\}|\$\{.*\}`),
	"path_traversal":   regexp.MustCompile(`\.\./|\.\.\\`),
	"xxe":              regexp.MustCompile(`(?i)<!entity|<!doctype[^>]*system`),
}

// piiPatterns flag PII without blocking: detection feeds the AUDIT
// action and may trigger redaction on the outgoing path.
var piiPatterns = map[string]*regexp.Regexp{
	"ssn":     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	"card_pan": regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`),
	"email":   regexp.MustCompile(`\b[\w.+-]+@[\w-]+\.[a-zA-Z]{2,}\b`),
	"phone":   regexp.MustCompile(`\b\+?\d{1,2}[ -]?\(?\d{3}\)?[ -]?\d{3}[ -]?\d{4}\b`),
	"ip":      regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
	"mac":     regexp.MustCompile(`\b(?:[0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}\b`),
	"api_key": regexp.MustCompile(`(?i)\b(sk|pk)_(live|test)_[A-Za-z0-9]{16,}\b`),
}

// Sanitizer is pipeline layer two.
type Sanitizer struct {
	MaxLength           int
	AllowedContentTypes map[string]bool
	RedactOutgoingPII   bool
}

// NewSanitizer builds the Input Sanitiser with a length cap and the
// allowed content types; an empty AllowedContentTypes permits any type.
func NewSanitizer(maxLength int) *Sanitizer {
	return &Sanitizer{
		MaxLength:           maxLength,
		AllowedContentTypes: map[string]bool{"application/json": true, "text/plain": true},
		RedactOutgoingPII:   true,
	}
}

func (s *Sanitizer) Name() string { return "input_sanitizer" }

func (s *Sanitizer) Run(_ context.Context, req *Request) LayerResult {
	var violations []Violation

	if req.ContentType != "" && len(s.AllowedContentTypes) > 0 && !s.AllowedContentTypes[req.ContentType] {
		return LayerResult{Action: ActionBlock, Violations: []Violation{{
			Rule: "disallowed_content_type", Severity: SeverityHigh, Detail: req.ContentType,
		}}}
	}

	text := textOf(req.Content)
	if s.MaxLength > 0 && len(text) > s.MaxLength {
		return LayerResult{Action: ActionBlock, Violations: []Violation{{
			Rule: "length_cap_exceeded", Severity: SeverityMedium, Detail: "content exceeds max length",
		}}}
	}

	if req.ContentSchema != nil {
		if err := req.ContentSchema.Validate(req.Content); err != nil {
			return LayerResult{Action: ActionBlock, Violations: []Violation{{
				Rule: "schema_validation_failed", Severity: SeverityHigh, Detail: err.Error(),
			}}}
		}
	}

	for name, re := range injectionPatterns {
		if re.MatchString(text) {
			return LayerResult{Action: ActionBlock, Violations: []Violation{{
				Rule: name, Severity: SeverityCritical, Detail: "injection pattern matched",
			}}}
		}
	}

	piiHit := false
	for name := range piiPatterns {
		if piiPatterns[name].MatchString(text) {
			piiHit = true
			violations = append(violations, Violation{Rule: "pii_" + name, Severity: SeverityMedium, Detail: "PII detected"})
		}
	}

	modified := scrubHTML(req.Content)

	if piiHit {
		return LayerResult{Action: ActionAudit, Violations: violations, ModifiedData: modified}
	}
	if !htmlTagStrip.MatchString(text) {
		return LayerResult{Action: ActionAllow}
	}
	return LayerResult{Action: ActionModify, ModifiedData: modified}
}

// RedactPII replaces every PII match in text with a redaction marker,
// used by the Output Verifier on the outgoing path.
func RedactPII(text string) string {
	for name, re := range piiPatterns {
		text = re.ReplaceAllString(text, "[REDACTED:"+name+"]")
	}
	return text
}

func scrubHTML(content map[string]any) map[string]any {
	out := make(map[string]any, len(content))
	for k, v := range content {
		if s, ok := v.(string); ok {
			out[k] = htmlTagStrip.ReplaceAllString(s, "")
			continue
		}
		out[k] = v
	}
	return out
}

func textOf(content map[string]any) string {
	var out string
	for _, v := range content {
		if s, ok := v.(string); ok {
			out += s + " "
		}
	}
	return out
}
