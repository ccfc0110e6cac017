package depengine

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/aspiers/git-deps/internal/gitcore"
)

// Engine maintains the work queue, the completed-commit set, the nested
// dependency map, and the driver loop described in the inference engine
// design. All of its caches and maps live for the duration of one Engine
// instance; a second call to FindDependencies with a different seed
// benefits from the first call's caches and never redoes completed work.
type Engine struct {
	repo   *gitcore.Repository
	cfg    Config
	logger *slog.Logger

	listeners []Listener

	queue        []gitcore.Hash
	queued       map[gitcore.Hash]bool
	completed    []gitcore.Hash
	completedSet map[gitcore.Hash]bool

	commitCache map[gitcore.Hash]*gitcore.Commit
	deps        DependencyMap

	ancestry        *ancestryOracle
	excludeResolved []gitcore.Hash
	excludeLoaded   bool
}

// DependencyMap is dependent -> dependency -> path -> line set: the
// engine's full nested record of discovered evidence.
type DependencyMap map[gitcore.Hash]DependencyEdges

// New constructs an Engine bound to repo with the given configuration.
func New(cfg Config, repo *gitcore.Repository) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{
		repo:         repo,
		cfg:          cfg,
		logger:       logger,
		queued:       make(map[gitcore.Hash]bool),
		completedSet: make(map[gitcore.Hash]bool),
		commitCache:  make(map[gitcore.Hash]*gitcore.Commit),
		deps:         make(DependencyMap),
		ancestry:     newAncestryOracle(repo),
	}
}

// AddListener registers a listener to receive inference events.
func (e *Engine) AddListener(l Listener) {
	e.listeners = append(e.listeners, l)
}

// Edges returns a materialized view of the current dependency map as
// (dependent, dependency) pairs. Each pair appears once even if supported
// by multiple paths or lines.
func (e *Engine) Edges() []Edge {
	var edges []Edge
	for dependent, byDependency := range e.deps {
		for dependency := range byDependency {
			edges = append(edges, Edge{Dependent: dependent, Dependency: dependency})
		}
	}
	return edges
}

// getCommit resolves id to a commit object, populating the engine's
// commit cache on first lookup.
func (e *Engine) getCommit(id gitcore.Hash) (*gitcore.Commit, error) {
	if c, ok := e.commitCache[id]; ok {
		return c, nil
	}
	c, err := e.repo.GetCommit(id)
	if err != nil {
		return nil, err
	}
	e.commitCache[id] = c
	return c, nil
}

// resolveExcludes lazily resolves the configured exclusion revisions to
// commit identifiers, on first use.
func (e *Engine) resolveExcludes() ([]gitcore.Hash, error) {
	if e.excludeLoaded {
		return e.excludeResolved, nil
	}
	resolved := make([]gitcore.Hash, 0, len(e.cfg.ExcludeCommits))
	for _, rev := range e.cfg.ExcludeCommits {
		hash, err := gitcore.ResolveRevision(e.repo, rev)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, hash)
	}
	e.excludeResolved = resolved
	e.excludeLoaded = true
	return resolved, nil
}

// isExcluded reports whether commit lies on the ancestry of any configured
// exclusion branch tip.
func (e *Engine) isExcluded(commit gitcore.Hash) (bool, error) {
	excludes, err := e.resolveExcludes()
	if err != nil {
		return false, err
	}
	for _, tip := range excludes {
		if e.ancestry.Contains(tip, commit) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) enqueue(id gitcore.Hash) {
	if e.queued[id] || e.completedSet[id] {
		return
	}
	e.queue = append(e.queue, id)
	e.queued[id] = true
}

func (e *Engine) emitNewCommit(c *gitcore.Commit) {
	for _, l := range e.listeners {
		l.NewCommit(c)
	}
}

func (e *Engine) emitNewDependent(d *gitcore.Commit) {
	for _, l := range e.listeners {
		l.NewDependent(d)
	}
}

func (e *Engine) emitNewDependency(d, dep *gitcore.Commit, path string, line int) {
	for _, l := range e.listeners {
		l.NewDependency(d, dep, path, line)
	}
}

func (e *Engine) emitNewPath(d, dep *gitcore.Commit, path string, line int) {
	for _, l := range e.listeners {
		l.NewPath(d, dep, path, line)
	}
}

func (e *Engine) emitNewLine(d, dep *gitcore.Commit, path string, line int) {
	for _, l := range e.listeners {
		l.NewLine(d, dep, path, line)
	}
}

func (e *Engine) emitDependentDone(d *gitcore.Commit, deps DependencyEdges) {
	for _, l := range e.listeners {
		l.DependentDone(d, deps)
	}
}

func (e *Engine) emitAllDone() {
	for _, l := range e.listeners {
		l.AllDone()
	}
}

// FindDependencies resolves seedRev and drives the queue to completion,
// emitting events on every registered listener. It may be called
// repeatedly with different seeds on the same Engine; state accumulates
// across calls.
func (e *Engine) FindDependencies(seedRev string) error {
	seed, err := gitcore.ResolveRevision(e.repo, seedRev)
	if err != nil {
		return err
	}

	// Seen once already (queued earlier, or completed by a prior seed):
	// still emit new_commit / process if this is genuinely the first time
	// the engine touches it, matching enqueue's own dedup rule.
	e.enqueue(seed)

	for len(e.queue) > 0 {
		dependentID := e.queue[0]
		e.queue = e.queue[1:]
		delete(e.queued, dependentID)

		dependent, err := e.getCommit(dependentID)
		if err != nil {
			return err
		}
		e.emitNewCommit(dependent)
		if e.cfg.Debug {
			e.logger.Debug("inferring dependencies", "commit", dependentID.Short(), "parents", len(dependent.Parents), "queued", len(e.queue))
		}

		for _, parentID := range dependent.Parents {
			parent, err := e.getCommit(parentID)
			if err != nil {
				return err
			}
			if err := e.inferFromParent(dependent, parent); err != nil {
				return err
			}
		}

		e.completed = append(e.completed, dependentID)
		e.completedSet[dependentID] = true
		if e.cfg.Debug {
			e.logger.Debug("dependent done", "commit", dependentID.Short(), "dependencies", len(e.deps[dependentID]))
		}

		e.emitDependentDone(dependent, e.deps[dependentID])
	}

	e.emitAllDone()
	return nil
}

// inferFromParent implements infer_from_parent(D, P): diffs P -> D, blames
// each hunk against P, and records the resulting edges.
func (e *Engine) inferFromParent(dependent, parent *gitcore.Commit) error {
	patches, err := gitcore.DiffCommits(e.repo, parent.ID, dependent.ID, e.cfg.ContextLines)
	if err != nil {
		return &DiffFailedError{Old: string(parent.ID), New: string(dependent.ID), Err: err}
	}

	for _, patch := range patches {
		if !gitcore.PathExists(e.repo, parent.ID, patch.Path) {
			continue
		}

		for _, hunk := range patch.Hunks {
			if hunk.OldLines == 0 {
				continue // pure insertion: no parent-side lines to blame
			}

			blamed, err := gitcore.BlameLines(e.repo, parent.ID, patch.Path, hunk.OldStart, hunk.OldLines)
			if err != nil {
				return &BlameFailedError{Commit: string(parent.ID), Path: patch.Path, Err: err}
			}

			if err := e.recordBlame(dependent, patch.Path, hunk.OldStart, hunk.OldLines, blamed); err != nil {
				return err
			}
		}
	}

	return nil
}

// recordBlame walks line numbers in ascending order over [start, start+count)
// and records each (dependency, path, line) triple produced by blame,
// per §4.3.3's ordering and evidence-recording rules.
func (e *Engine) recordBlame(dependent *gitcore.Commit, path string, start, count int, blamed map[int]gitcore.Hash) error {
	for line := start; line < start+count; line++ {
		dependencyID, ok := blamed[line]
		if !ok {
			continue
		}

		dependency, err := e.getCommit(dependencyID)
		if err != nil {
			return err
		}

		byDependency, hasEntry := e.deps[dependent.ID]
		if !hasEntry {
			byDependency = make(DependencyEdges)
			e.deps[dependent.ID] = byDependency
			e.emitNewDependent(dependent)
		}

		excluded, err := e.isExcluded(dependencyID)
		if err != nil {
			return err
		}
		if excluded {
			continue
		}

		byPath, hasDependency := byDependency[dependencyID]
		isNewDependency := !hasDependency
		if isNewDependency {
			byPath = make(map[string]PathLines)
			byDependency[dependencyID] = byPath
			e.emitNewCommit(dependency)
			e.emitNewDependency(dependent, dependency, path, line)

			// The queue/completed check only suppresses re-enqueue; the
			// edge itself is always recorded above regardless of whether
			// dependencyID is already queued or completed.
			if e.cfg.Recurse {
				e.enqueue(dependencyID)
			}
		}

		lines, hasPath := byPath[path]
		isNewPath := !hasPath
		if isNewPath {
			lines = make(PathLines)
			byPath[path] = lines
			e.emitNewPath(dependent, dependency, path, line)
		}

		if _, already := lines[line]; already {
			return &InvariantViolationError{
				Message: fmt.Sprintf("duplicate edge %s -> %s on %s:%d", dependent.ID.Short(), dependency.ID.Short(), path, line),
			}
		}
		lines[line] = struct{}{}

		e.emitNewLine(dependent, dependency, path, line)
	}

	return nil
}
