package risk

import "engagement/internal/model"

// Trail accumulates the ordered explanation records for one user while the
// calculator walks its factor list. Reasons keep insertion order.
type Trail struct {
	risk    float64
	reasons []model.Reason
}

func NewTrail() *Trail {
	return &Trail{reasons: make([]model.Reason, 0, 4)}
}

// Factor records one weighted factor evaluation and returns its
// contribution. weight and localRisk are fractions of 1.0.
func (t *Trail) Factor(title string, weight, localRisk float64, logic string) float64 {
	contribution := localRisk * weight
	t.risk += contribution
	t.reasons = append(t.reasons, model.Reason{
		Title:           title,
		WeightPct:       weight * 100,
		LocalRiskPct:    localRisk * 100,
		ContributionPct: contribution * 100,
		Logic:           logic,
	})
	return contribution
}

// Item records one assessment-style factor where the weight is the item's
// share of total grade value and the local risk already includes the
// submitted/not-submitted weighting.
func (t *Trail) Item(reason model.Reason, itemWeight, localRisk float64) {
	contribution := itemWeight * localRisk
	t.risk += contribution
	reason.WeightPct = itemWeight * 100
	reason.LocalRiskPct = localRisk * 100
	reason.ContributionPct = contribution * 100
	t.reasons = append(t.reasons, reason)
}

// MaxRisk short-circuits the trail for a user with no relevant data at all:
// the risk saturates to the sum of the indicator's weights and exactly one
// synthetic reason explains it.
func MaxRisk(title, logic string, weightSum float64) model.RiskResult {
	return model.RiskResult{
		Risk: weightSum,
		Reasons: []model.Reason{{
			Title:           title,
			WeightPct:       100,
			LocalRiskPct:    100,
			ContributionPct: 100,
			Logic:           logic,
		}},
	}
}

func (t *Trail) Result() model.RiskResult {
	return model.RiskResult{Risk: t.risk, Reasons: t.reasons}
}
