// Package ach implements an Analysis of Competing Hypotheses matrix:
// hypotheses with declared predictions and assumptions, evidence items rated
// for consistency against every hypothesis at insertion time, and an
// evaluation that ranks hypotheses while tracking formal diagnosticity.
package ach

import (
	"math"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
)

// Sentinel errors for matrix misuse.
var (
	ErrDuplicateID = eris.New("ach: duplicate id")
	ErrNotFound    = eris.New("ach: not found")
)

// challengeWeight is subtracted per matched assumption challenge before
// normalization.
const challengeWeight = 0.5

// evidenceLogOddsWeight scales one evidence item's contribution to a
// hypothesis posterior.
const evidenceLogOddsWeight = 0.5

// Hypothesis is one competing explanation with declared predictions and
// assumptions.
type Hypothesis struct {
	ID          string
	Description string
	Prior       float64

	// Predictions maps observation keys to the value this hypothesis
	// expects.
	Predictions map[string]string

	// Assumptions this hypothesis rests on; evidence may challenge them.
	Assumptions []string

	// Consistency ratings by evidence ID, split by sign.
	Support    map[string]float64
	Contradict map[string]float64
}

// Evidence is one observation set rated against every hypothesis.
type Evidence struct {
	ID           string
	Description  string
	Reliability  float64
	Relevance    float64
	Observations map[string]string
	Challenges   []string

	// Diagnosticity is recomputed after insertion: variance of this
	// item's consistency ratings across all hypotheses, scaled.
	Diagnosticity float64

	ratings map[string]float64
}

// Matrix is the mutable ACH state. Safe for concurrent use.
type Matrix struct {
	mu         sync.Mutex
	hypotheses map[string]*Hypothesis
	evidence   map[string]*Evidence
	order      []string
}

// NewMatrix creates an empty matrix.
func NewMatrix() *Matrix {
	return &Matrix{
		hypotheses: make(map[string]*Hypothesis),
		evidence:   make(map[string]*Evidence),
	}
}

// AddHypothesis registers a hypothesis. Evidence added afterward is rated
// against it; evidence already present is not retroactively re-rated.
func (m *Matrix) AddHypothesis(h Hypothesis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.hypotheses[h.ID]; ok {
		return eris.Wrapf(ErrDuplicateID, "hypothesis %s", h.ID)
	}
	if h.Prior <= 0 || h.Prior >= 1 {
		h.Prior = 0.5
	}
	h.Support = make(map[string]float64)
	h.Contradict = make(map[string]float64)
	m.hypotheses[h.ID] = &h
	return nil
}

// AddEvidence rates the evidence against every hypothesis, records the
// signed consistency under support or contradict, and recomputes the item's
// diagnosticity.
func (m *Matrix) AddEvidence(ev Evidence) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.evidence[ev.ID]; ok {
		return eris.Wrapf(ErrDuplicateID, "evidence %s", ev.ID)
	}
	ev.Reliability = clamp01(ev.Reliability)
	if ev.Relevance == 0 {
		ev.Relevance = 1.0
	}
	ev.Relevance = clamp01(ev.Relevance)
	ev.ratings = make(map[string]float64, len(m.hypotheses))

	for id, h := range m.hypotheses {
		rating := consistencyRating(&ev, h)
		ev.ratings[id] = rating
		switch {
		case rating > 0:
			h.Support[ev.ID] = rating
		case rating < 0:
			h.Contradict[ev.ID] = rating
		}
	}

	ev.Diagnosticity = diagnosticity(ev.ratings)
	m.evidence[ev.ID] = &ev
	m.order = append(m.order, ev.ID)
	return nil
}

// consistencyRating compares declared observations against a hypothesis's
// predictions: +1 per matching key, -1 per mismatching key, -0.5 per matched
// assumption challenge, normalized by the number of comparisons attempted.
// The result is in [-1, 1]; evidence sharing no keys with the hypothesis
// rates 0.
func consistencyRating(ev *Evidence, h *Hypothesis) float64 {
	var score float64
	attempts := 0

	for key, observed := range ev.Observations {
		predicted, ok := h.Predictions[key]
		if !ok {
			continue
		}
		attempts++
		if observed == predicted {
			score += 1
		} else {
			score -= 1
		}
	}

	for _, challenge := range ev.Challenges {
		for _, assumption := range h.Assumptions {
			if challenge == assumption {
				score -= challengeWeight
				attempts++
				break
			}
		}
	}

	if attempts == 0 {
		return 0
	}
	rating := score / float64(attempts)
	if rating > 1 {
		return 1
	}
	if rating < -1 {
		return -1
	}
	return rating
}

// diagnosticity maps the spread of an item's ratings to [0, 1]: evidence
// equally consistent with every hypothesis discriminates nothing.
func diagnosticity(ratings map[string]float64) float64 {
	if len(ratings) < 2 {
		return 0
	}
	var sum float64
	for _, r := range ratings {
		sum += r
	}
	mean := sum / float64(len(ratings))

	var sq float64
	for _, r := range ratings {
		sq += (r - mean) * (r - mean)
	}
	variance := sq / float64(len(ratings))

	d := variance * 2
	if d > 1 {
		return 1
	}
	return d
}

// HypothesisResult is one ranked evaluation entry.
type HypothesisResult struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	TotalScore  float64 `json:"total_score"`
	Posterior   float64 `json:"posterior"`
	SupportN    int     `json:"supporting_evidence"`
	ContradictN int     `json:"contradicting_evidence"`
}

// EvaluateHypotheses scores and ranks every hypothesis. The total score
// drives ranking; the posterior is a separate log-odds recomputation from the
// prior over all recorded evidence.
func (m *Matrix) EvaluateHypotheses() []HypothesisResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]HypothesisResult, 0, len(m.hypotheses))
	for id, h := range m.hypotheses {
		results = append(results, m.evaluate(id, h, nil))
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].TotalScore != results[j].TotalScore {
			return results[i].TotalScore > results[j].TotalScore
		}
		return results[i].ID < results[j].ID
	})
	return results
}

// evaluate scores one hypothesis. reliabilityOverride, when non-nil, maps an
// evidence ID to a substituted reliability (used by sensitivity analysis).
// Caller must hold the mutex.
func (m *Matrix) evaluate(id string, h *Hypothesis, reliabilityOverride map[string]float64) HypothesisResult {
	reliability := func(evID string) float64 {
		if reliabilityOverride != nil {
			if r, ok := reliabilityOverride[evID]; ok {
				return r
			}
		}
		return m.evidence[evID].Reliability
	}

	total := h.Prior * 0.2
	logOdds := math.Log(h.Prior / (1 - h.Prior))

	for evID, rating := range h.Support {
		ev := m.evidence[evID]
		rel := reliability(evID)
		total += rating * rel * ev.Relevance
		total += 0.5 * ev.Diagnosticity
		logOdds += rating * rel * evidenceLogOddsWeight
	}
	for evID, rating := range h.Contradict {
		ev := m.evidence[evID]
		rel := reliability(evID)
		total -= math.Abs(rating) * rel * ev.Relevance
		logOdds += rating * rel * evidenceLogOddsWeight
	}

	posterior := 1 / (1 + math.Exp(-logOdds))
	if posterior < 0.001 {
		posterior = 0.001
	} else if posterior > 0.999 {
		posterior = 0.999
	}

	return HypothesisResult{
		ID:          id,
		Description: h.Description,
		TotalScore:  total,
		Posterior:   posterior,
		SupportN:    len(h.Support),
		ContradictN: len(h.Contradict),
	}
}

// SensitivityResult flags evidence whose reliability materially controls the
// conclusion.
type SensitivityResult struct {
	EvidenceID string  `json:"evidence_id"`
	MaxShift   float64 `json:"max_posterior_shift"`
	Critical   bool    `json:"critical"`
}

// sensitivityShiftThreshold marks evidence critical when perturbing it moves
// any posterior by more than this.
const sensitivityShiftThreshold = 0.1

// Sensitivity perturbs each evidence item's reliability by ±50% one at a
// time and reports the largest posterior shift it causes across hypotheses.
func (m *Matrix) Sensitivity() []SensitivityResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	baseline := make(map[string]float64, len(m.hypotheses))
	for id, h := range m.hypotheses {
		baseline[id] = m.evaluate(id, h, nil).Posterior
	}

	results := make([]SensitivityResult, 0, len(m.order))
	for _, evID := range m.order {
		ev := m.evidence[evID]
		var maxShift float64
		for _, factor := range []float64{0.5, 1.5} {
			override := map[string]float64{evID: clamp01(ev.Reliability * factor)}
			for id, h := range m.hypotheses {
				shift := math.Abs(m.evaluate(id, h, override).Posterior - baseline[id])
				if shift > maxShift {
					maxShift = shift
				}
			}
		}
		results = append(results, SensitivityResult{
			EvidenceID: evID,
			MaxShift:   maxShift,
			Critical:   maxShift > sensitivityShiftThreshold,
		})
	}
	return results
}

// Counts returns the number of hypotheses and evidence items in the matrix.
func (m *Matrix) Counts() (hypotheses, evidence int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hypotheses), len(m.evidence)
}

// EvidenceDiagnosticity returns the recorded diagnosticity for an evidence
// item.
func (m *Matrix) EvidenceDiagnosticity(evidenceID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.evidence[evidenceID]
	if !ok {
		return 0, eris.Wrapf(ErrNotFound, "evidence %s", evidenceID)
	}
	return ev.Diagnosticity, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
