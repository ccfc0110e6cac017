package depengine

import "github.com/aspiers/git-deps/internal/gitcore"

// ancestryKey is the cache key for the ancestry oracle: (commit, branch
// tip) pairs, matching the spec's memoization scheme.
type ancestryKey struct {
	commit gitcore.Hash
	tip    gitcore.Hash
}

// ancestryOracle answers "is commit an ancestor of, or equal to, tip?" via
// merge-base, memoizing results per (commit, tip) pair. Excluding commits
// already reachable from a well-known integration branch is a common
// filter, and each candidate dependency may be tested against multiple
// exclusion branches, so the memoization matters for large histories.
type ancestryOracle struct {
	repo  *gitcore.Repository
	cache map[ancestryKey]bool
}

func newAncestryOracle(repo *gitcore.Repository) *ancestryOracle {
	return &ancestryOracle{
		repo:  repo,
		cache: make(map[ancestryKey]bool),
	}
}

// Contains reports whether commit is an ancestor of, or equal to, tip. The
// merge base of the two equals commit iff that relation holds.
func (a *ancestryOracle) Contains(tip, commit gitcore.Hash) bool {
	key := ancestryKey{commit: commit, tip: tip}
	if v, ok := a.cache[key]; ok {
		return v
	}

	base, err := gitcore.MergeBase(a.repo, tip, commit)
	result := err == nil && base == commit
	a.cache[key] = result
	return result
}
