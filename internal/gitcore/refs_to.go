package gitcore

import "sort"

// RefsPointingAt returns the short names of all branches and tags whose tip
// equals commit, sorted for deterministic output.
func RefsPointingAt(repo *Repository, commit Hash) []string {
	var refs []string

	for name, hash := range repo.Branches() {
		if hash == commit {
			refs = append(refs, name)
		}
	}
	for name, hashStr := range repo.Tags() {
		if Hash(hashStr) == commit {
			refs = append(refs, name)
		}
	}

	sort.Strings(refs)
	return refs
}
