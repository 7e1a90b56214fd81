package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"engagement/internal/model"
	"engagement/internal/risk"
	"engagement/internal/storage"
)

// Gradebook scores per-item grade thresholds. Course staff enable individual
// grade items and attach a comparator, a threshold value and a weighting;
// a triggered comparison contributes the item's full weight.
type Gradebook struct {
	logger *slog.Logger
}

func NewGradebook(logger *slog.Logger) *Gradebook {
	return &Gradebook{logger: logger}
}

func (g *Gradebook) Name() string { return "gradebook" }

// Defaults is empty: every threshold is an explicit per-course choice.
func (g *Gradebook) Defaults() Settings {
	return Settings{}
}

func (g *Gradebook) WeightKey(name string) bool {
	return strings.Contains(name, "weighting")
}

// ValidateSettings requires the enabled items' weightings to sum to 100 and
// each comparator to be one of the six known operators.
func (g *Gradebook) ValidateSettings(values map[string]string) error {
	enabled := make(map[string]bool)
	for name, raw := range values {
		id, ok := strings.CutPrefix(name, "gradeitem_enabled_")
		if ok && settingTruthy(raw) {
			enabled[id] = true
		}
	}
	for name, raw := range values {
		if id, ok := strings.CutPrefix(name, "gradeitem_comparator_"); ok && enabled[id] {
			switch raw {
			case "lt", "lte", "gt", "gte", "eq", "neq":
			default:
				return fmt.Errorf("setting %s: unknown comparator %q", name, raw)
			}
		}
	}
	if len(enabled) == 0 {
		return nil
	}
	return validatePercentSum(values, func(name string) bool {
		id, ok := strings.CutPrefix(name, "gradeitem_weighting_")
		return ok && enabled[id]
	})
}

type gradeThreshold struct {
	itemID     int64
	comparator string
	value      float64
	weight     float64
}

type gradebookDataset struct {
	names  map[int64]string
	grades map[int64]map[int64]float64 // user -> item -> final grade
}

func (g *Gradebook) Collect(ctx context.Context, src storage.Store, courseID int64, win model.Window, cfg Settings) (Dataset, error) {
	items, err := src.GradeItems(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("grade items: %w", err)
	}
	names := make(map[int64]string, len(items))
	var ids []int64
	for _, gi := range items {
		if gi.Type != model.GradeItemModule && gi.Type != model.GradeItemManual {
			continue
		}
		names[gi.ID] = gi.Name
		ids = append(ids, gi.ID)
	}
	grades, err := src.GradesForItems(ctx, ids, win)
	if err != nil {
		return nil, fmt.Errorf("grades: %w", err)
	}
	byUser := make(map[int64]map[int64]float64)
	for _, gr := range grades {
		m := byUser[gr.UserID]
		if m == nil {
			m = make(map[int64]float64)
			byUser[gr.UserID] = m
		}
		m[gr.ItemID] = gr.Final
	}
	return &gradebookDataset{names: names, grades: byUser}, nil
}

func (g *Gradebook) Score(ds Dataset, cfg Settings, userIDs []int64) map[int64]model.RiskResult {
	data := ds.(*gradebookDataset)
	thresholds := enabledThresholds(cfg)

	out := make(map[int64]model.RiskResult, len(userIDs))
	if len(thresholds) == 0 {
		for _, uid := range userIDs {
			out[uid] = model.RiskResult{Reasons: []model.Reason{}}
		}
		return out
	}

	var maxSum float64
	for _, th := range thresholds {
		maxSum += th.weight
	}

	for _, uid := range userIDs {
		userGrades, ok := data.grades[uid]
		if !ok {
			out[uid] = risk.MaxRisk(
				"No grades",
				"No graded activity in the reporting period, maximum risk.",
				maxSum)
			continue
		}
		trail := risk.NewTrail()
		for _, th := range thresholds {
			grade, has := userGrades[th.itemID]
			if !has {
				continue
			}
			local := 0.0
			logic := fmt.Sprintf("Grade %.2f is not %s %g, no risk.", grade, comparatorWords(th.comparator), th.value)
			if compareGrade(grade, th.comparator, th.value) {
				local = 1
				logic = fmt.Sprintf("Grade %.2f is %s %g, at risk.", grade, comparatorWords(th.comparator), th.value)
			}
			trail.Factor(data.names[th.itemID], th.weight, local, logic)
		}
		out[uid] = trail.Result()
	}
	return out
}

// enabledThresholds reads the enabled grade items out of the resolved
// settings, ordered by item id. Weightings arrive already divided by 100.
func enabledThresholds(cfg Settings) []gradeThreshold {
	var out []gradeThreshold
	for name := range cfg {
		rawID, ok := strings.CutPrefix(name, "gradeitem_enabled_")
		if !ok || !settingTruthy(cfg.String(name)) {
			continue
		}
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, gradeThreshold{
			itemID:     id,
			comparator: cfg.String("gradeitem_comparator_" + rawID),
			value:      cfg.Float("gradeitem_value_" + rawID),
			weight:     cfg.Float("gradeitem_weighting_" + rawID),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].itemID < out[j].itemID })
	return out
}

func settingTruthy(raw string) bool {
	return raw != "" && raw != "0" && raw != "false"
}

func compareGrade(grade float64, comparator string, value float64) bool {
	switch comparator {
	case "lt":
		return grade < value
	case "lte":
		return grade <= value
	case "gt":
		return grade > value
	case "gte":
		return grade >= value
	case "eq":
		return grade == value
	case "neq":
		return grade != value
	}
	return false
}

func comparatorWords(comparator string) string {
	switch comparator {
	case "lt":
		return "less than"
	case "lte":
		return "less than or equal to"
	case "gt":
		return "greater than"
	case "gte":
		return "greater than or equal to"
	case "eq":
		return "equal to"
	case "neq":
		return "not equal to"
	}
	return comparator
}
