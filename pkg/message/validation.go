package message

// Decision is the outcome of a policy evaluation.
type Decision string

const (
	DecisionAllow Decision = "ALLOW"
	DecisionDeny  Decision = "DENY"
)

// ValidationResult carries the outcome of a Validator or Strategy
// evaluation. Results are mergeable: IsValid of a merged result is the
// logical AND of its constituents, and error/warning/metadata slices
// and maps are concatenated/merged.
type ValidationResult struct {
	IsValid            bool           `json:"is_valid"`
	Errors             []string       `json:"errors,omitempty"`
	Warnings           []string       `json:"warnings,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	Decision           Decision       `json:"decision"`
	ConstitutionalHash string         `json:"constitutional_hash,omitempty"`
}

// Valid builds a passing result.
func Valid(hash string) *ValidationResult {
	return &ValidationResult{
		IsValid:            true,
		Decision:           DecisionAllow,
		ConstitutionalHash: hash,
		Metadata:           map[string]any{},
	}
}

// Invalid builds a failing result with the given reason.
func Invalid(hash string, reason string) *ValidationResult {
	return &ValidationResult{
		IsValid:            false,
		Errors:             []string{reason},
		Decision:           DecisionDeny,
		ConstitutionalHash: hash,
		Metadata:           map[string]any{},
	}
}

// WithMetadata sets a single metadata key and returns the receiver for
// chaining.
func (r *ValidationResult) WithMetadata(key string, value any) *ValidationResult {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = value
	return r
}

// Merge combines another result into the receiver. IsValid becomes the
// AND of both; errors/warnings are appended; metadata keys from other
// overwrite the receiver's on conflict.
func (r *ValidationResult) Merge(other *ValidationResult) *ValidationResult {
	if other == nil {
		return r
	}
	r.IsValid = r.IsValid && other.IsValid
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if len(other.Metadata) > 0 {
		if r.Metadata == nil {
			r.Metadata = map[string]any{}
		}
		for k, v := range other.Metadata {
			r.Metadata[k] = v
		}
	}
	if !other.IsValid {
		r.Decision = DecisionDeny
	}
	return r
}

// DeterministicDenial marks an error class that must short-circuit the
// composite strategy rather than fall through to the next backend:
// hash mismatch, tenant mismatch, prompt injection, and malformed
// validation input are all deterministic - retrying against a
// different backend cannot change the outcome.
type DeterministicDenial struct {
	Reason string
}

func (e *DeterministicDenial) Error() string { return e.Reason }

// IsDeterministic reports whether err represents a denial that must
// not be shadowed by composite fallback.
func IsDeterministic(err error) bool {
	_, ok := err.(*DeterministicDenial)
	return ok
}
