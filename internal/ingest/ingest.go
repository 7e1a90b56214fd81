package ingest

import (
	"context"
	"log/slog"

	"engagement/internal/model"
	"engagement/internal/storage"
)

// SendNonBlocking queues an event without ever stalling a producer. A full
// channel drops the event with a warning.
func SendNonBlocking(ctx context.Context, out chan<- model.ActivityEvent, ev model.ActivityEvent, logger *slog.Logger) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("event channel full, dropping event",
				"type", ev.Type, "course", ev.CourseID, "user", ev.UserID)
		}
		return false
	}
}

// RunWriter drains the event channel into the store until the context ends.
func RunWriter(ctx context.Context, store storage.Store, in <-chan model.ActivityEvent, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-in:
			if err := store.InsertEvent(ctx, ev); err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("event insert failed", "type", ev.Type, "course", ev.CourseID, "err", err)
				}
			}
		}
	}
}
