package gitcore

import (
	"fmt"
	"sort"
)

// CommitFileDiff is one file's hunks within a commit-to-commit diff.
// Path is the old-side path (the path that exists in oldCommit); this is
// the path that should be passed to BlameLines.
type CommitFileDiff struct {
	Path  string
	Hunks []DiffHunk
}

// DiffCommits produces per-file patches between two commits, expanding
// context_lines of unchanged lines around each hunk. Binary files are
// skipped since no line-level attribution is meaningful for them.
func DiffCommits(repo *Repository, oldCommit, newCommit Hash, contextLines int) ([]CommitFileDiff, error) {
	oldC, err := repo.GetCommit(oldCommit)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	newC, err := repo.GetCommit(newCommit)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}

	entries, err := TreeDiff(repo, oldC.Tree, newC.Tree, "")
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", oldCommit.Short(), newCommit.Short(), err)
	}

	// TreeDiff walks a map internally, so its output order is not stable
	// across runs; sort by path so patch processing order is deterministic,
	// matching the engine's ordering guarantees.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	result := make([]CommitFileDiff, 0, len(entries))
	for _, e := range entries {
		if e.IsBinary {
			continue
		}
		if e.Status == DiffStatusAdded {
			// No old-side path: nothing to blame on the parent.
			continue
		}

		fd, err := ComputeFileDiff(repo, e.OldHash, e.NewHash, e.Path, contextLines)
		if err != nil {
			return nil, fmt.Errorf("diff %s: %w", e.Path, err)
		}
		if len(fd.Hunks) == 0 {
			continue
		}
		result = append(result, CommitFileDiff{Path: e.Path, Hunks: fd.Hunks})
	}

	return result, nil
}
