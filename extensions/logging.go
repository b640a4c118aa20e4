package extensions

import (
	"context"
	"log/slog"
	"time"

	fetchgraph "github.com/fetchgraph/fetchgraph"
)

// LoggingExtension logs fetch attempts and the event stream through
// log/slog, the teacher's own logging choice (see extensions/graph_debug.go's
// HumanHandler) rather than a third-party logging library.
type LoggingExtension struct {
	fetchgraph.BaseExtension
	log *slog.Logger
}

// NewLoggingExtension builds a logging extension writing through logger,
// or slog.Default() when logger is nil.
func NewLoggingExtension(logger *slog.Logger) *LoggingExtension {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingExtension{
		BaseExtension: fetchgraph.NewBaseExtension("logging"),
		log:           logger,
	}
}

// WrapFetch logs the start and outcome of every fetch attempt.
func (e *LoggingExtension) WrapFetch(ctx context.Context, next func() (*fetchgraph.Result, error), op *fetchgraph.FetchOperation) (*fetchgraph.Result, error) {
	start := time.Now()
	e.log.Debug("fetch starting", "path", op.Path.String(), "source_id", op.Source.ID)

	result, err := next()

	elapsed := time.Since(start)
	if err != nil {
		e.log.Error("fetch errored", "path", op.Path.String(), "elapsed", elapsed, "error", err)
		return result, err
	}
	if result.Success {
		e.log.Info("fetch succeeded", "path", op.Path.String(), "elapsed", elapsed, "attempts", result.Attempts, "cached", result.Cached)
	} else {
		e.log.Warn("fetch failed", "path", op.Path.String(), "elapsed", elapsed, "attempts", result.Attempts, "retrying", result.Retrying)
	}
	return result, err
}

// OnEvent logs every event the orchestrator emits, including retry and
// partial-collection events that never flow through WrapFetch (cache
// hits, stub failures, collection composition).
func (e *LoggingExtension) OnEvent(ev fetchgraph.Event) {
	attrs := []any{"path", ev.Path.String()}
	if ev.Result != nil {
		attrs = append(attrs, "success", ev.Result.Success, "partial", ev.Result.Partial, "retrying", ev.Result.Retrying, "cached", ev.Result.Cached)
	}
	e.log.Debug("event", attrs...)
}

// OnError logs terminal errors attached to a path.
func (e *LoggingExtension) OnError(err error, path fetchgraph.Path) {
	e.log.Error("terminal fetch error", "path", path.String(), "error", err)
}
