// Package impact implements the hybrid impact scorer: a weighted
// rule-based fallback always available, an optional online-learning
// model that takes over once it has seen enough feedback, and the
// score-to-level mapping the rest of the bus consumes.
package impact

import (
	"sync"

	"github.com/acgs/agentbus/pkg/message"
)

// Level categorizes a score for operator-facing reporting.
type Level string

const (
	LevelCritical   Level = "CRITICAL"
	LevelHigh       Level = "HIGH"
	LevelMedium     Level = "MEDIUM"
	LevelLow        Level = "LOW"
	LevelNegligible Level = "NEGLIGIBLE"
)

// LevelFor maps a score to its level per the fixed thresholds.
func LevelFor(score float64) Level {
	switch {
	case score >= 0.9:
		return LevelCritical
	case score >= 0.7:
		return LevelHigh
	case score >= 0.4:
		return LevelMedium
	case score >= 0.2:
		return LevelLow
	default:
		return LevelNegligible
	}
}

// Weights holds the rule-based model's feature weights. The sum need
// not be 1.0 - the final score is capped at 1.0 regardless.
type Weights struct {
	MessageLength       float64
	AgentCount          float64
	TenantComplexity    float64
	ResourceUtilization float64
	SemanticSimilarity  float64
}

// DefaultWeights mirrors a conservative baseline: resource pressure
// weighs most, agent count, tenant complexity and semantic similarity
// follow equally, and message size contributes least until a learned
// model takes over.
var DefaultWeights = Weights{
	MessageLength:       0.15,
	AgentCount:          0.2,
	TenantComplexity:    0.2,
	ResourceUtilization: 0.25,
	SemanticSimilarity:  0.2,
}

// Features is the normalised (0..1) input to the rule-based model.
type Features struct {
	MessageLength       float64
	AgentCount          float64
	TenantComplexity    float64
	ResourceUtilization float64
	SemanticSimilarity  float64
}

// Feedback is one observed outcome used to update the online model.
type Feedback struct {
	Features     Features
	ActualImpact float64
}

// Scorer is the hybrid impact scorer.
type Scorer struct {
	weights Weights

	mu                   sync.Mutex
	samples              []Feedback
	minSamplesForPredict int
	onlineWeights        Weights
	hasOnlineModel       bool
}

// NewScorer builds a scorer using DefaultWeights for the rule-based
// fallback, requiring minSamples feedback events before the online
// model is trusted over the batch fallback (cold-start fallback).
func NewScorer(minSamples int) *Scorer {
	return &Scorer{weights: DefaultWeights, minSamplesForPredict: minSamples}
}

// Score computes the impact score for a message, given pre-extracted
// features. It delegates to the online model once enough feedback has
// accumulated; otherwise it uses the rule-based weighted sum.
func (s *Scorer) Score(_ *message.AgentMessage, f Features) float64 {
	s.mu.Lock()
	online, enough := s.onlineWeights, s.hasOnlineModel && len(s.samples) >= s.minSamplesForPredict
	s.mu.Unlock()

	w := s.weights
	if enough {
		w = online
	}

	score := f.MessageLength*w.MessageLength +
		f.AgentCount*w.AgentCount +
		f.TenantComplexity*w.TenantComplexity +
		f.ResourceUtilization*w.ResourceUtilization +
		f.SemanticSimilarity*w.SemanticSimilarity

	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score
}

// RecordFeedback incrementally updates the online model: each new
// sample nudges the per-feature weight toward the value that would
// have produced ActualImpact, a simple adaptive-random-forest stand-in
// appropriate for an in-process learner with no persistence backend.
func (s *Scorer) RecordFeedback(fb Feedback) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, fb)
	if !s.hasOnlineModel {
		s.onlineWeights = s.weights
		s.hasOnlineModel = true
	}

	const learningRate = 0.05
	predicted := fb.Features.MessageLength*s.onlineWeights.MessageLength +
		fb.Features.AgentCount*s.onlineWeights.AgentCount +
		fb.Features.TenantComplexity*s.onlineWeights.TenantComplexity +
		fb.Features.ResourceUtilization*s.onlineWeights.ResourceUtilization +
		fb.Features.SemanticSimilarity*s.onlineWeights.SemanticSimilarity
	err := fb.ActualImpact - predicted

	s.onlineWeights.MessageLength += learningRate * err * fb.Features.MessageLength
	s.onlineWeights.AgentCount += learningRate * err * fb.Features.AgentCount
	s.onlineWeights.TenantComplexity += learningRate * err * fb.Features.TenantComplexity
	s.onlineWeights.ResourceUtilization += learningRate * err * fb.Features.ResourceUtilization
	s.onlineWeights.SemanticSimilarity += learningRate * err * fb.Features.SemanticSimilarity
}

// SampleCount reports how much feedback has been recorded, for drift
// and retraining gauges.
func (s *Scorer) SampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}
