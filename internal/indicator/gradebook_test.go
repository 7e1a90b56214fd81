package indicator

import (
	"context"
	"testing"
	"time"

	"engagement/internal/model"
)

func gradebookFixture() *fakeStore {
	gradedAt := testWindow.Start.Add(5 * 24 * time.Hour)
	return &fakeStore{
		items: []model.GradeItem{
			{ID: 1, Type: model.GradeItemModule, Module: "quiz", InstanceID: 200, Name: "Midterm", GradeMax: 100},
			{ID: 2, Type: model.GradeItemManual, Name: "Participation", GradeMax: 10},
			{ID: 3, Type: model.GradeItemCourse, Name: "Course total", GradeMax: 110},
		},
		grades: []model.Grade{
			{ItemID: 1, UserID: 1, Final: 40, GradedAt: gradedAt},
			{ItemID: 2, UserID: 1, Final: 8, GradedAt: gradedAt},
		},
	}
}

func gradebookSettings() map[string]string {
	return map[string]string{
		"gradeitem_enabled_1":    "1",
		"gradeitem_comparator_1": "lt",
		"gradeitem_value_1":      "50",
		"gradeitem_weighting_1":  "70",
		"gradeitem_enabled_2":    "1",
		"gradeitem_comparator_2": "lte",
		"gradeitem_value_2":      "5",
		"gradeitem_weighting_2":  "30",
	}
}

func TestGradebookTriggeredThreshold(t *testing.T) {
	ind := NewGradebook(nil)
	cfg := Resolve(gradebookSettings(), ind.Defaults(), ind.WeightKey)

	ds, err := ind.Collect(context.Background(), gradebookFixture(), 1, testWindow, cfg)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	res := ind.Score(ds, cfg, []int64{1})[1]

	if len(res.Reasons) != 2 {
		t.Fatalf("reasons = %d, want 2", len(res.Reasons))
	}
	// Midterm 40 < 50 triggers at weight 70; participation 8 > 5 does not.
	approx(t, res.Reasons[0].ContributionPct, 70)
	approx(t, res.Reasons[1].ContributionPct, 0)
	approx(t, res.Risk, 0.7)
}

func TestGradebookUserWithoutGrades(t *testing.T) {
	ind := NewGradebook(nil)
	cfg := Resolve(gradebookSettings(), ind.Defaults(), ind.WeightKey)

	ds, err := ind.Collect(context.Background(), gradebookFixture(), 1, testWindow, cfg)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	res := ind.Score(ds, cfg, []int64{2})[2]

	approx(t, res.Risk, 1.0)
	if len(res.Reasons) != 1 {
		t.Fatalf("reasons = %d, want 1", len(res.Reasons))
	}
}

func TestGradebookSkipsUngradedItem(t *testing.T) {
	store := gradebookFixture()
	store.grades = store.grades[:1] // drop the participation grade

	ind := NewGradebook(nil)
	cfg := Resolve(gradebookSettings(), ind.Defaults(), ind.WeightKey)
	ds, err := ind.Collect(context.Background(), store, 1, testWindow, cfg)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	res := ind.Score(ds, cfg, []int64{1})[1]

	if len(res.Reasons) != 1 {
		t.Fatalf("reasons = %d, want 1 after skipping ungraded item", len(res.Reasons))
	}
	approx(t, res.Risk, 0.7)
}

func TestGradebookNoEnabledItems(t *testing.T) {
	ind := NewGradebook(nil)
	ds, err := ind.Collect(context.Background(), gradebookFixture(), 1, testWindow, ind.Defaults())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	res := ind.Score(ds, ind.Defaults(), []int64{2})[2]
	if res.Risk != 0 || len(res.Reasons) != 0 {
		t.Fatalf("risk/reasons = %v/%d, want 0/0", res.Risk, len(res.Reasons))
	}
}

func TestGradebookValidateWeightSum(t *testing.T) {
	ind := NewGradebook(nil)
	values := gradebookSettings()
	if err := ind.ValidateSettings(values); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}

	values["gradeitem_weighting_2"] = "40"
	if err := ind.ValidateSettings(values); err == nil {
		t.Fatal("weightings summing to 110 accepted")
	}

	// A disabled item's weighting does not count toward the sum.
	values["gradeitem_enabled_2"] = "0"
	values["gradeitem_weighting_1"] = "100"
	if err := ind.ValidateSettings(values); err != nil {
		t.Fatalf("disabled item weighting counted: %v", err)
	}
}

func TestGradebookValidateComparator(t *testing.T) {
	ind := NewGradebook(nil)
	values := gradebookSettings()
	values["gradeitem_comparator_1"] = "between"
	if err := ind.ValidateSettings(values); err == nil {
		t.Fatal("unknown comparator accepted")
	}
}
