// Package injection implements the prompt-injection detector that runs
// before the processing strategy: a fixed regex set plus an optional
// constitutional-classifier heuristic score.
package injection

import (
	"regexp"
	"strings"

	"github.com/acgs/agentbus/pkg/message"
)

// Pattern names the regex hit for forensics.
type Pattern struct {
	Name string
	re   *regexp.Regexp
}

// defaultPatterns covers the families named in the spec: instruction
// override, role-play/jailbreak personas, "developer mode", encoded
// exfiltration, and meta-instruction overrides. Matching is always
// case-insensitive.
var defaultPatterns = []Pattern{
	{Name: "ignore_previous_instructions", re: regexp.MustCompile(`(?i)ignore\s+(all\s+|any\s+)?previous\s+instructions`)},
	{Name: "role_play_override", re: regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an)\s+\w+`)},
	{Name: "developer_mode", re: regexp.MustCompile(`(?i)developer\s+mode`)},
	{Name: "dan_jailbreak", re: regexp.MustCompile(`(?i)\bDAN\b`)},
	{Name: "base64_exfil", re: regexp.MustCompile(`(?i)base64\s*(decode|encode)`)},
	{Name: "hex_exfil", re: regexp.MustCompile(`(?i)\b(?:[0-9a-f]{2}\s*){16,}\b`)},
	{Name: "meta_instruction_override", re: regexp.MustCompile(`(?i)disregard\s+(the\s+)?(system|above)\s+prompt`)},
	{Name: "jailbreak_keywords", re: regexp.MustCompile(`(?i)\bjailbreak\b`)},
}

// Detector runs the regex scan and an optional classifier score.
type Detector struct {
	patterns  []Pattern
	threshold float64
	classify  ClassifierFunc
}

// ClassifierFunc scores a message's compliance, independent of the
// regex set. compliant ⇔ score ≥ threshold.
type ClassifierFunc func(msg *message.AgentMessage) float64

// DefaultThreshold is the constitutional classifier's compliance cut.
const DefaultThreshold = 0.85

// New builds a Detector with the default pattern set and an optional
// classifier. A nil classifier always scores 1.0 (compliant) so
// detection relies solely on the regex set.
func New(classify ClassifierFunc) *Detector {
	if classify == nil {
		classify = func(*message.AgentMessage) float64 { return 1.0 }
	}
	return &Detector{patterns: defaultPatterns, threshold: DefaultThreshold, classify: classify}
}

// Result carries the detector's verdict.
type Result struct {
	Denied         bool
	MatchedPattern string
	Score          float64
}

// Detect scans the message content for injection patterns, then
// consults the classifier. A pattern hit is an unconditional denial
// regardless of classifier score; the classifier alone can also deny
// when its score falls below the threshold.
func (d *Detector) Detect(msg *message.AgentMessage) Result {
	text := extractText(msg)

	for _, p := range d.patterns {
		if p.re.MatchString(text) {
			return Result{Denied: true, MatchedPattern: p.Name, Score: 0}
		}
	}

	score := d.classify(msg)
	if score < d.threshold {
		return Result{Denied: true, MatchedPattern: "classifier_score_below_threshold", Score: score}
	}
	return Result{Denied: false, Score: score}
}

// AsDenial converts a denying Result into the deterministic error the
// message processor short-circuits on.
func (r Result) AsDenial() *message.DeterministicDenial {
	if !r.Denied {
		return nil
	}
	return &message.DeterministicDenial{Reason: "prompt_injection: " + r.MatchedPattern}
}

func extractText(msg *message.AgentMessage) string {
	var sb strings.Builder
	for _, v := range msg.Content {
		if s, ok := v.(string); ok {
			sb.WriteString(s)
			sb.WriteString(" ")
		}
	}
	sb.Write(msg.Payload)
	return sb.String()
}
