package depengine

import "github.com/aspiers/git-deps/internal/gitcore"

// PathLines is the set of line numbers (1-based, in the snapshot of the
// dependent's parent that was diffed and blamed) that supply evidence for one dependent/dependency/path
// edge.
type PathLines map[int]struct{}

// DependencyEdges maps a dependency commit to the paths and line numbers
// that attribute lines in the dependent to it.
type DependencyEdges map[gitcore.Hash]map[string]PathLines

// Edge is a materialized (dependent, dependency) pair, as returned by
// Engine.Edges.
type Edge struct {
	Dependent  gitcore.Hash
	Dependency gitcore.Hash
}

// Listener is the capability contract the engine drives during inference.
// Every method is optional to actually act on — the engine calls all of
// them synchronously, in traversal order, so an implementation may ignore
// any subset. Listeners must not mutate engine state; the engine is the
// sole producer of events.
type Listener interface {
	// NewCommit fires the first time the engine encounters c, whether as a
	// dequeued seed or a freshly discovered dependency.
	NewCommit(c *gitcore.Commit)

	// NewDependent fires the first time an edge is being recorded for d.
	NewDependent(d *gitcore.Commit)

	// NewDependency fires on the first edge from d to dep.
	NewDependency(d, dep *gitcore.Commit, path string, line int)

	// NewPath fires on the first evidence of d -> dep on path.
	NewPath(d, dep *gitcore.Commit, path string, line int)

	// NewLine fires for each supporting line.
	NewLine(d, dep *gitcore.Commit, path string, line int)

	// DependentDone fires once d's dependencies have been fully inferred.
	// deps is empty if d introduced only new files.
	DependentDone(d *gitcore.Commit, deps DependencyEdges)

	// AllDone fires once the driver queue has drained.
	AllDone()
}

// NoopListener implements Listener with no-op methods. Embed it to
// implement only the events a consumer cares about.
type NoopListener struct{}

func (NoopListener) NewCommit(*gitcore.Commit)                                  {}
func (NoopListener) NewDependent(*gitcore.Commit)                               {}
func (NoopListener) NewDependency(*gitcore.Commit, *gitcore.Commit, string, int) {}
func (NoopListener) NewPath(*gitcore.Commit, *gitcore.Commit, string, int)       {}
func (NoopListener) NewLine(*gitcore.Commit, *gitcore.Commit, string, int)       {}
func (NoopListener) DependentDone(*gitcore.Commit, DependencyEdges)              {}
func (NoopListener) AllDone()                                                    {}
