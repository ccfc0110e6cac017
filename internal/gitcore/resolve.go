package gitcore

import (
	"fmt"
	"strings"
)

// InvalidCommitishError reports that a revision expression did not resolve
// to a commit object.
type InvalidCommitishError struct {
	Expr string
}

func (e *InvalidCommitishError) Error() string {
	return fmt.Sprintf("invalid commit-ish: %q", e.Expr)
}

// ResolveRevision resolves a revision expression to a full commit hash.
// Supported forms: "HEAD", a full 40-character hash, a branch name, a tag
// name (peeled to the commit it points at), or a unique hash prefix of at
// least 4 characters. Returns *InvalidCommitishError if rev does not
// resolve, or resolves to an object that is not a commit.
func ResolveRevision(repo *Repository, rev string) (Hash, error) {
	if rev == "HEAD" {
		h := repo.Head()
		if h == "" {
			return "", &InvalidCommitishError{Expr: rev}
		}
		return h, nil
	}

	if len(rev) == 40 {
		if hash, err := NewHash(rev); err == nil {
			if _, err := repo.GetCommit(hash); err == nil {
				return hash, nil
			}
		}
	}

	if branches := repo.Branches(); branches != nil {
		if hash, ok := branches[rev]; ok {
			return hash, nil
		}
	}

	if tags := repo.Tags(); tags != nil {
		if hashStr, ok := tags[rev]; ok {
			hash := Hash(hashStr)
			if _, err := repo.GetCommit(hash); err == nil {
				return hash, nil
			}
		}
	}

	if len(rev) >= 4 && len(rev) < 40 {
		commits := repo.Commits()
		var match Hash
		count := 0
		for hash := range commits {
			if strings.HasPrefix(string(hash), rev) {
				match = hash
				count++
				if count > 1 {
					return "", &InvalidCommitishError{Expr: rev}
				}
			}
		}
		if count == 1 {
			return match, nil
		}
	}

	return "", &InvalidCommitishError{Expr: rev}
}
