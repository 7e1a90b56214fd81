package indicator

import (
	"context"
	"log/slog"
	"sort"

	"engagement/internal/model"
	"engagement/internal/storage"
)

// Dataset is an indicator-specific collected snapshot. Collect builds it,
// Score consumes it; the concrete type is private to each indicator.
type Dataset any

// Indicator is one risk family: it declares its defaults, collects its raw
// dataset for a course and window, and scores a set of users against it.
// Score must be deterministic given the same dataset and settings.
type Indicator interface {
	Name() string
	Defaults() Settings

	// WeightKey reports whether a setting name is a weight, which the
	// resolver divides by 100 when persisted as a percentage.
	WeightKey(name string) bool

	// ValidateSettings checks raw values before they are persisted.
	ValidateSettings(values map[string]string) error

	Collect(ctx context.Context, src storage.Store, courseID int64, win model.Window, cfg Settings) (Dataset, error)
	Score(ds Dataset, cfg Settings, userIDs []int64) map[int64]model.RiskResult
}

// Registry holds the active indicators keyed by name.
type Registry struct {
	byName map[string]Indicator
}

// NewRegistry returns a registry with the four standard indicators.
func NewRegistry(logger *slog.Logger) *Registry {
	r := &Registry{byName: make(map[string]Indicator)}
	r.Register(NewLogin(logger))
	r.Register(NewForum(logger))
	r.Register(NewAssessment(logger))
	r.Register(NewGradebook(logger))
	return r
}

func (r *Registry) Register(ind Indicator) {
	r.byName[ind.Name()] = ind
}

func (r *Registry) Get(name string) (Indicator, bool) {
	ind, ok := r.byName[name]
	return ind, ok
}

// Names returns the registered indicator names in sorted order so every
// iteration over the registry is stable.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
