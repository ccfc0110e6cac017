// Package depengine implements the commit dependency inference engine: it
// determines which earlier commits introduced the lines that a later
// commit changes or removes, optionally recursing to build a full
// dependency DAG.
package depengine

import "log/slog"

// Config holds the options the engine consults while draining its queue.
type Config struct {
	// Recurse enables transitive inference: newly discovered dependencies
	// are themselves enqueued for inference. When false, the queue only
	// ever contains the seed revisions.
	Recurse bool

	// ContextLines controls diff context expansion around each hunk; a
	// larger value widens the set of parent lines attributed, enlarging
	// the candidate set for blame. Defaults to 1 when constructed via
	// DefaultConfig.
	ContextLines int

	// ExcludeCommits is a list of revision expressions. Any candidate
	// dependency found on the ancestry of any of these is filtered out.
	// Each expression is resolved at first use.
	ExcludeCommits []string

	// Debug enables diagnostic logging through Logger. It has no effect on
	// the inferred results.
	Debug bool

	// Logger receives debug-level tracing of the driver loop. If nil, a
	// discarding logger is used. Callers that set Debug should pass a
	// Logger whose handler accepts slog.LevelDebug records.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the engine's documented defaults:
// non-recursive, one line of diff context, no exclusions.
func DefaultConfig() Config {
	return Config{
		Recurse:      false,
		ContextLines: 1,
	}
}
