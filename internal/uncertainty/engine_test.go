package uncertainty

import (
	"context"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgas-labs/kgas/internal/model"
	"github.com/kgas-labs/kgas/internal/resilience"
	"github.com/kgas-labs/kgas/pkg/llm"
)

// scriptedClient routes prompts to canned responses by substring match.
type scriptedClient struct {
	responses map[string]string
	err       error
	calls     int
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	for key, resp := range c.responses {
		if strings.Contains(req.Prompt, key) {
			return resp, nil
		}
	}
	return "", eris.New("no scripted response")
}

func testClaim() Claim {
	return Claim{
		ID:     "c1",
		Text:   "the merger closed in 2024",
		Domain: "finance",
		Evidence: []model.Evidence{
			{Content: "press release announcing close", Source: "newswire", Reliability: 0.9},
		},
	}
}

func TestAssessInitialHappyPath(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{
		"prior probability": `{"prior": 0.4, "reasoning": "mergers usually close"}`,
		"Assess how":        `{"support": 0.9, "quality": 0.8, "diagnosticity": 0.7, "reasoning": "direct"}`,
		"Synthesize":        `{"confidence": 0.8, "methodological_quality": 0.7, "relevance": 0.9, "coherence": 0.8, "adequacy": 0.6, "reasoning": "strong"}`,
	}}
	engine := NewEngine(client, NewBayesianEngine(DefaultBayesianConfig()))

	score, err := engine.AssessInitial(context.Background(), testClaim())
	require.NoError(t, err)

	assert.Greater(t, score.Value, 0.4)
	assert.Less(t, score.Value, 1.0)
	assert.InDelta(t, 0.7, score.MethodologicalQuality, 1e-9)
	assert.InDelta(t, 0.9, score.Relevance, 1e-9)
	assert.Equal(t, 1, score.EvidenceCount)
	assert.Equal(t, 3, client.calls)
}

func TestAssessInitialAllCallsFailDegrades(t *testing.T) {
	client := &scriptedClient{err: eris.New("api down")}
	dlq := resilience.NewDeadLetterQueue(10)
	engine := NewEngine(client, NewBayesianEngine(DefaultBayesianConfig())).WithDLQ(dlq)

	score, err := engine.AssessInitial(context.Background(), testClaim())
	require.NoError(t, err)

	// Neutral prior moved by the conservative evidence fallback, sub-
	// dimensions neutral.
	assert.Greater(t, score.Value, 0.5)
	assert.Less(t, score.Value, 0.7)
	assert.InDelta(t, 0.5, score.Relevance, 1e-9)

	// Every degraded step is dead-lettered for later retry.
	assert.Equal(t, 3, dlq.Len())
	stages := map[string]bool{}
	for _, e := range dlq.List(resilience.DLQFilter{}) {
		assert.Equal(t, "c1", e.ClaimID)
		stages[e.FailedStage] = true
	}
	assert.True(t, stages["prior_elicitation"])
	assert.True(t, stages["evidence_assessment"])
	assert.True(t, stages["synthesis"])
}

func TestAssessInitialMalformedJSONDegrades(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{
		"prior probability": "certainly around forty percent",
		"Assess how":        "```json\nnot json\n```",
		"Synthesize":        "{broken",
	}}
	engine := NewEngine(client, NewBayesianEngine(DefaultBayesianConfig()))

	score, err := engine.AssessInitial(context.Background(), testClaim())
	require.NoError(t, err)
	assert.Greater(t, score.Value, 0.0)
	assert.Less(t, score.Value, 1.0)
}

func TestAssessInitialOutOfRangePriorFallsBack(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{
		"prior probability": `{"prior": 7.5}`,
		"Assess how":        `{"support": 0.0, "quality": 0.5, "diagnosticity": 0.0}`,
		"Synthesize":        `{"confidence": 0.0}`,
	}}
	engine := NewEngine(client, NewBayesianEngine(DefaultBayesianConfig()))

	score, err := engine.AssessInitial(context.Background(), testClaim())
	require.NoError(t, err)
	// Neutral prior with zero-support evidence stays at 0.5.
	assert.InDelta(t, 0.5, score.Value, 1e-6)
}

func TestAssessInitialCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(&scriptedClient{}, NewBayesianEngine(DefaultBayesianConfig()))
	_, err := engine.AssessInitial(ctx, testClaim())
	require.Error(t, err)
}

func TestAssessClaimsPositional(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{
		"prior probability": `{"prior": 0.6}`,
		"Synthesize":        `{"confidence": 0.6, "methodological_quality": 0.5, "relevance": 0.5, "coherence": 0.5, "adequacy": 0.5}`,
	}}
	engine := NewEngine(client, NewBayesianEngine(DefaultBayesianConfig()))

	claims := []Claim{
		{ID: "a", Text: "claim a"},
		{ID: "b", Text: "claim b"},
		{ID: "c", Text: "claim c"},
	}
	scores, err := engine.AssessClaims(context.Background(), claims)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	for _, s := range scores {
		assert.InDelta(t, 0.6, s.Value, 1e-9)
	}
}

func TestTranslateWithContextFallsBackConservatively(t *testing.T) {
	client := &scriptedClient{err: eris.New("api down")}
	engine := NewEngine(client, NewBayesianEngine(DefaultBayesianConfig()))

	score := model.NewConfidenceScore(0.8, "", "")
	next := engine.TranslateWithContext(context.Background(), score, "text", "graph", "")

	assert.InDelta(t, 0.64, next.Value, 1e-9)
	assert.InDelta(t, 0.6, next.CrossModalConsistency, 1e-9)
}

func TestTranslateWithContextUsesModelParameters(t *testing.T) {
	client := &scriptedClient{responses: map[string]string{
		"translated": `{"factor": 1.1, "uncertainty_delta": 0.05, "consistency": 0.9}`,
	}}
	engine := NewEngine(client, NewBayesianEngine(DefaultBayesianConfig()))

	score := model.NewConfidenceScore(0.5, "", "")
	next := engine.TranslateWithContext(context.Background(), score, "text", "graph", "table mapping")

	assert.InDelta(t, 0.55, next.Value, 1e-9)
	assert.InDelta(t, 0.9, next.CrossModalConsistency, 1e-9)
}
