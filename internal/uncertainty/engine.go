package uncertainty

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kgas-labs/kgas/internal/model"
	"github.com/kgas-labs/kgas/internal/resilience"
	"github.com/kgas-labs/kgas/pkg/llm"
)

// assessConcurrency bounds parallel LLM calls across independent claims.
const assessConcurrency = 4

// Fallback values applied when the model call fails or returns an unusable
// shape. Conservative and documented: assessment degrades, never crashes.
const (
	fallbackPrior         = 0.5
	fallbackSupport       = 0.3
	fallbackQuality       = 0.5
	fallbackDiagnosticity = 0.3
)

// Engine elicits confidence assessments from a language model and reconciles
// them with the formal Bayesian combination. Within a single claim the
// pipeline is strictly sequential: prior, then per-evidence assessment, then
// synthesis, because each prompt embeds the previous step's structured
// output. Across claims the steps are independent and run concurrently.
type Engine struct {
	client  llm.Client
	bayes   *BayesianEngine
	model   string
	maxConc int
	dlq     *resilience.DeadLetterQueue
}

// NewEngine creates an assessment engine over an LLM client.
func NewEngine(client llm.Client, bayes *BayesianEngine) *Engine {
	return &Engine{
		client:  client,
		bayes:   bayes,
		model:   llm.DefaultModel,
		maxConc: assessConcurrency,
	}
}

// WithModel overrides the model used for assessment prompts.
func (e *Engine) WithModel(model string) *Engine {
	e.model = model
	return e
}

// WithDLQ records degraded assessment steps to a dead-letter queue so they
// can be retried once the API recovers.
func (e *Engine) WithDLQ(dlq *resilience.DeadLetterQueue) *Engine {
	e.dlq = dlq
	return e
}

func (e *Engine) deadLetter(claim Claim, stage string, err error) {
	if e.dlq == nil {
		return
	}
	e.dlq.Add(resilience.DLQEntry{
		ClaimID:     claim.ID,
		ClaimText:   claim.Text,
		Error:       err.Error(),
		ErrorType:   resilience.ClassifyError(err),
		FailedStage: stage,
		MaxRetries:  3,
	})
}

// Claim is one statement to assess together with its raw evidence.
type Claim struct {
	ID       string           `json:"id"`
	Text     string           `json:"text"`
	Domain   string           `json:"domain,omitempty"`
	Evidence []model.Evidence `json:"evidence,omitempty"`
}

// Typed response schemas, one per prompt kind. Parsing is strict: a response
// that fails to decode falls back to the documented default for that step,
// never to looser parsing.

type priorResponse struct {
	Prior     float64 `json:"prior"`
	Reasoning string  `json:"reasoning"`
}

type evidenceResponse struct {
	Support       float64 `json:"support"`
	Quality       float64 `json:"quality"`
	Diagnosticity float64 `json:"diagnosticity"`
	Reasoning     string  `json:"reasoning"`
}

type synthesisResponse struct {
	Confidence            float64 `json:"confidence"`
	MethodologicalQuality float64 `json:"methodological_quality"`
	Relevance             float64 `json:"relevance"`
	Coherence             float64 `json:"coherence"`
	Adequacy              float64 `json:"adequacy"`
	Reasoning             string  `json:"reasoning"`
}

// AssessInitial runs the full prior/evidence/synthesis pipeline for one
// claim. Model failures at any step degrade to documented defaults with a
// logged warning; the returned error reports only context cancellation.
func (e *Engine) AssessInitial(ctx context.Context, claim Claim) (model.ConfidenceScore, error) {
	if err := ctx.Err(); err != nil {
		return model.ConfidenceScore{}, err
	}

	prior := e.determinePrior(ctx, claim)

	weighted := make([]model.WeightedEvidence, len(claim.Evidence))
	for i, ev := range claim.Evidence {
		weighted[i] = e.assessEvidence(ctx, claim, ev)
	}

	update := e.bayes.AggregateBatch(prior, weighted)
	score := e.synthesize(ctx, claim, update)

	if err := ctx.Err(); err != nil {
		return model.ConfidenceScore{}, err
	}
	return score, nil
}

// AssessClaims assesses independent claims with bounded concurrency. Results
// are positionally aligned with the input; a claim whose assessment degraded
// still yields a usable conservative score.
func (e *Engine) AssessClaims(ctx context.Context, claims []Claim) ([]model.ConfidenceScore, error) {
	scores := make([]model.ConfidenceScore, len(claims))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConc)
	for i, claim := range claims {
		i, claim := i, claim
		g.Go(func() error {
			score, err := e.AssessInitial(gctx, claim)
			if err != nil {
				return err
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

// TranslateWithContext elicits cross-modal translation parameters from the
// model, falling back to the conservative fixed translation on failure.
func (e *Engine) TranslateWithContext(ctx context.Context, score model.ConfidenceScore, sourceModality, targetModality, context_ string) model.ConfidenceScore {
	prompt := fmt.Sprintf(`A confidence value of %.3f was estimated in the %q modality and must be translated to the %q modality.
Context: %s

Respond with a JSON object:
{"factor": <multiplier in [0.5, 1.5]>, "uncertainty_delta": <addition to estimation uncertainty in [0, 0.5]>, "consistency": <cross-modal consistency in [0, 1]>, "reasoning": "<one sentence>"}`,
		score.Value, sourceModality, targetModality, context_)

	var resp struct {
		Factor           float64 `json:"factor"`
		UncertaintyDelta float64 `json:"uncertainty_delta"`
		Consistency      float64 `json:"consistency"`
	}
	translation := ConservativeTranslation()
	if err := e.completeJSON(ctx, prompt, &resp); err != nil {
		zap.L().Warn("cross-modal adjustment unavailable, using conservative translation",
			zap.String("source", sourceModality),
			zap.String("target", targetModality),
			zap.Error(err),
		)
	} else if resp.Factor > 0 {
		translation = Translation{
			Factor:           resp.Factor,
			UncertaintyDelta: resp.UncertaintyDelta,
			Consistency:      resp.Consistency,
		}
	}

	return TranslateCrossModal(score, translation, sourceModality, targetModality)
}

func (e *Engine) determinePrior(ctx context.Context, claim Claim) float64 {
	prompt := fmt.Sprintf(`Estimate a prior probability that the following claim is true, before considering any specific evidence. Consider only base rates and domain plausibility.

Claim: %s
Domain: %s

Respond with a JSON object: {"prior": <probability in [0, 1]>, "reasoning": "<one sentence>"}`,
		claim.Text, orUnknown(claim.Domain))

	var resp priorResponse
	if err := e.completeJSON(ctx, prompt, &resp); err != nil {
		zap.L().Warn("prior elicitation failed, using neutral prior",
			zap.String("claim_id", claim.ID),
			zap.Error(err),
		)
		e.deadLetter(claim, "prior_elicitation", err)
		return fallbackPrior
	}
	if resp.Prior <= 0 || resp.Prior >= 1 {
		return fallbackPrior
	}
	return resp.Prior
}

func (e *Engine) assessEvidence(ctx context.Context, claim Claim, ev model.Evidence) model.WeightedEvidence {
	prompt := fmt.Sprintf(`Assess how the following evidence bears on the claim.

Claim: %s
Evidence: %s
Evidence source: %s (reliability %.2f)

Respond with a JSON object:
{"support": <-1 strongly contradicts .. 1 strongly supports>, "quality": <0..1>, "diagnosticity": <0..1, how sharply this discriminates between the claim being true or false>, "reasoning": "<one sentence>"}`,
		claim.Text, ev.Content, ev.Source, ev.Reliability)

	var resp evidenceResponse
	if err := e.completeJSON(ctx, prompt, &resp); err != nil {
		zap.L().Warn("evidence assessment failed, using conservative weighting",
			zap.String("claim_id", claim.ID),
			zap.String("source", ev.Source),
			zap.Error(err),
		)
		e.deadLetter(claim, "evidence_assessment", err)
		return model.WeightedEvidence{
			Evidence:      ev,
			Support:       fallbackSupport,
			Quality:       fallbackQuality,
			Diagnosticity: fallbackDiagnosticity,
		}
	}
	return model.WeightedEvidence{
		Evidence:      ev,
		Support:       clampSigned(resp.Support),
		Quality:       clamp01(resp.Quality),
		Diagnosticity: clamp01(resp.Diagnosticity),
	}
}

func (e *Engine) synthesize(ctx context.Context, claim Claim, update EvidenceUpdate) model.ConfidenceScore {
	prompt := fmt.Sprintf(`A formal Bayesian aggregation over %d evidence items moved belief in the claim from %.3f to %.3f (mean evidence quality %.2f).

Claim: %s

Synthesize a final assessment. Respond with a JSON object:
{"confidence": <0..1>, "methodological_quality": <0..1>, "relevance": <0..1>, "coherence": <0..1>, "adequacy": <0..1>, "reasoning": "<one sentence>"}`,
		update.EvidenceCount, update.PriorBelief, update.PosteriorBelief, update.MeanQuality, claim.Text)

	score := model.NewConfidenceScore(update.PosteriorBelief, claim.Domain, "initial_assessment")
	score.EvidenceCount = update.EvidenceCount

	var resp synthesisResponse
	if err := e.completeJSON(ctx, prompt, &resp); err != nil {
		// The Bayesian posterior alone is the documented fallback; the
		// sub-dimensions stay neutral.
		zap.L().Warn("confidence synthesis failed, keeping Bayesian posterior",
			zap.String("claim_id", claim.ID),
			zap.Error(err),
		)
		e.deadLetter(claim, "synthesis", err)
		return score
	}

	if resp.Confidence > 0 && resp.Confidence < 1 {
		// The synthesis may nudge, not override: blend with the formal
		// posterior so the model cannot discard the evidence arithmetic.
		score.Value = clamp01(0.6*update.PosteriorBelief + 0.4*resp.Confidence)
	}
	score.MethodologicalQuality = clampDim(resp.MethodologicalQuality)
	score.Relevance = clampDim(resp.Relevance)
	score.Coherence = clampDim(resp.Coherence)
	score.Adequacy = clampDim(resp.Adequacy)
	return score
}

// completeJSON runs one prompt and strictly decodes the embedded JSON object
// into out.
func (e *Engine) completeJSON(ctx context.Context, prompt string, out any) error {
	text, err := e.client.Complete(ctx, llm.CompletionRequest{
		Prompt:    prompt,
		Model:     e.model,
		MaxTokens: 512,
	})
	if err != nil {
		return err
	}

	cleaned := llm.CleanJSON(text)
	dec := json.NewDecoder(strings.NewReader(cleaned))
	return dec.Decode(out)
}

func orUnknown(s string) string {
	if s == "" {
		return "general"
	}
	return s
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
