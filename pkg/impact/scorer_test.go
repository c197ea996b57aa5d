package impact_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/acgs/agentbus/pkg/impact"
)

func TestLevelFor(t *testing.T) {
	cases := []struct {
		score float64
		want  impact.Level
	}{
		{0.95, impact.LevelCritical},
		{0.9, impact.LevelCritical},
		{0.8, impact.LevelHigh},
		{0.5, impact.LevelMedium},
		{0.25, impact.LevelLow},
		{0.1, impact.LevelNegligible},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, impact.LevelFor(c.score))
	}
}

func TestScore_CappedAtOne(t *testing.T) {
	s := impact.NewScorer(1000)
	score := s.Score(nil, impact.Features{
		MessageLength: 1, AgentCount: 1, TenantComplexity: 1,
		ResourceUtilization: 1, SemanticSimilarity: 1,
	})
	assert.LessOrEqual(t, score, 1.0)
}

func TestScore_ZeroFeaturesZeroScore(t *testing.T) {
	s := impact.NewScorer(1000)
	score := s.Score(nil, impact.Features{})
	assert.Equal(t, 0.0, score)
}

func TestRecordFeedback_ColdStartFallsBackToRuleBased(t *testing.T) {
	s := impact.NewScorer(5)
	s.RecordFeedback(impact.Feedback{Features: impact.Features{MessageLength: 1}, ActualImpact: 0.9})
	assert.Equal(t, 1, s.SampleCount())

	// Fewer than minSamples: Score still uses the rule-based fallback,
	// so the result equals calling Score before any feedback.
	before := impact.NewScorer(5).Score(nil, impact.Features{MessageLength: 1})
	after := s.Score(nil, impact.Features{MessageLength: 1})
	assert.Equal(t, before, after)
}

func TestRecordFeedback_EnoughSamplesUsesOnlineModel(t *testing.T) {
	s := impact.NewScorer(3)
	for i := 0; i < 3; i++ {
		s.RecordFeedback(impact.Feedback{Features: impact.Features{MessageLength: 1}, ActualImpact: 1.0})
	}
	assert.Equal(t, 3, s.SampleCount())
	// Online weights should have moved toward higher impact for this feature.
	score := s.Score(nil, impact.Features{MessageLength: 1})
	assert.Greater(t, score, 0.0)
}
