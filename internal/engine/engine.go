package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"engagement/internal/config"
	"engagement/internal/indicator"
	"engagement/internal/logging"
	"engagement/internal/model"
	"engagement/internal/storage"
)

// ErrInvalidSettings marks a settings save rejected by indicator validation.
// Callers distinguish it from storage failures to map it onto a client error.
var ErrInvalidSettings = errors.New("invalid settings")

// Engine computes per-user engagement risk for a course by running every
// registered indicator over the reporting window and combining the results
// with the configured course-level weights.
type Engine struct {
	store    storage.Store
	registry *indicator.Registry
	cfg      *config.Manager
	logger   *slog.Logger
}

func New(store storage.Store, registry *indicator.Registry, cfg *config.Manager, logger *slog.Logger) *Engine {
	l := logging.Component(logger, "engine")
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		store:    store,
		registry: registry,
		cfg:      cfg,
		logger:   l,
	}
}

func (e *Engine) Indicators() []string {
	return e.registry.Names()
}

// IndicatorDefaults exposes the built-in settings of one indicator, or nil
// for an unknown name.
func (e *Engine) IndicatorDefaults(name string) indicator.Settings {
	ind, ok := e.registry.Get(name)
	if !ok {
		return nil
	}
	return ind.Defaults()
}

// CourseRisks scores the given users, or every enrolled user when userIDs is
// nil. Results are deterministic: rerunning over the same stored data and
// settings produces identical output.
func (e *Engine) CourseRisks(ctx context.Context, courseID int64, win model.Window, userIDs []int64) (map[int64]model.CourseRisk, error) {
	if win.End.Before(win.Start) {
		return nil, fmt.Errorf("window end %v before start %v", win.End, win.Start)
	}
	if userIDs == nil {
		enrolled, err := e.store.EnrolledUsers(ctx, courseID)
		if err != nil {
			return nil, fmt.Errorf("enrolled users: %w", err)
		}
		userIDs = enrolled
	}
	users := append([]int64(nil), userIDs...)
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	out := make(map[int64]model.CourseRisk, len(users))
	for _, uid := range users {
		out[uid] = model.CourseRisk{Indicators: make(map[string]model.RiskResult)}
	}

	weights := e.cfg.Get().Indicators.Weights
	for _, name := range e.registry.Names() {
		ind, _ := e.registry.Get(name)
		cfg, err := e.resolveSettings(ctx, courseID, ind)
		if err != nil {
			return nil, err
		}
		ds, err := ind.Collect(ctx, e.store, courseID, win, cfg)
		if err != nil {
			return nil, fmt.Errorf("indicator %s: %w", name, err)
		}
		scores := ind.Score(ds, cfg, users)
		for _, uid := range users {
			cr := out[uid]
			cr.Indicators[name] = scores[uid]
			cr.Total += weights[name] * scores[uid].Risk
			out[uid] = cr
		}
	}
	return out, nil
}

// IndicatorRisks scores one indicator in isolation.
func (e *Engine) IndicatorRisks(ctx context.Context, name string, courseID int64, win model.Window, userIDs []int64) (map[int64]model.RiskResult, error) {
	ind, ok := e.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown indicator: %q", name)
	}
	if userIDs == nil {
		enrolled, err := e.store.EnrolledUsers(ctx, courseID)
		if err != nil {
			return nil, fmt.Errorf("enrolled users: %w", err)
		}
		userIDs = enrolled
	}
	users := append([]int64(nil), userIDs...)
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })

	cfg, err := e.resolveSettings(ctx, courseID, ind)
	if err != nil {
		return nil, err
	}
	ds, err := ind.Collect(ctx, e.store, courseID, win, cfg)
	if err != nil {
		return nil, fmt.Errorf("indicator %s: %w", name, err)
	}
	return ind.Score(ds, cfg, users), nil
}

// Settings returns the persisted per-course values for one indicator.
func (e *Engine) Settings(ctx context.Context, courseID int64, name string) (map[string]string, error) {
	if _, ok := e.registry.Get(name); !ok {
		return nil, fmt.Errorf("unknown indicator: %q", name)
	}
	return e.store.Settings(ctx, courseID, name)
}

// SaveSettings validates and persists per-course indicator settings. The
// candidate values are checked merged over what is already stored, so a
// partial update cannot break an invariant the stored set satisfies.
func (e *Engine) SaveSettings(ctx context.Context, courseID int64, name string, values map[string]string) error {
	ind, ok := e.registry.Get(name)
	if !ok {
		return fmt.Errorf("%w: unknown indicator %q", ErrInvalidSettings, name)
	}
	stored, err := e.store.Settings(ctx, courseID, name)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	merged := make(map[string]string, len(stored)+len(values))
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}
	if err := ind.ValidateSettings(merged); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := e.store.SaveSettings(ctx, courseID, name, values); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	e.logger.Info("settings saved", "course", courseID, "indicator", name, "values", len(values))
	return nil
}

func (e *Engine) resolveSettings(ctx context.Context, courseID int64, ind indicator.Indicator) (indicator.Settings, error) {
	persisted, err := e.store.Settings(ctx, courseID, ind.Name())
	if err != nil {
		// Settings are supplementary; scoring proceeds on defaults.
		e.logger.Warn("settings unavailable, using defaults",
			"course", courseID, "indicator", ind.Name(), "error", err)
		persisted = nil
	}
	return indicator.Resolve(persisted, ind.Defaults(), ind.WeightKey), nil
}
