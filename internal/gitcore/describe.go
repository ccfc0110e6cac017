package gitcore

import "fmt"

// Describe produces a human-readable label for commit, in the shape of
// `git describe`: the name of the nearest reachable tag, followed by
// "-N-gABBREV" when the tag is not the commit itself, where N is the
// number of commits between the tag and commit along first-discovered
// ancestry. Returns ("", nil) — not an error — if no tag is reachable;
// callers display that as an empty describe string.
func Describe(repo *Repository, commit Hash) (string, error) {
	tags := repo.Tags()
	if len(tags) == 0 {
		return "", nil
	}

	commits := repo.Commits()
	if _, ok := commits[commit]; !ok {
		return "", fmt.Errorf("commit not found: %s", commit)
	}

	tagAt := make(map[Hash]string, len(tags))
	for name, hashStr := range tags {
		tagAt[Hash(hashStr)] = name
	}

	type item struct {
		hash Hash
		dist int
	}

	visited := map[Hash]bool{commit: true}
	queue := []item{{commit, 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if name, ok := tagAt[cur.hash]; ok {
			if cur.dist == 0 {
				return name, nil
			}
			return fmt.Sprintf("%s-%d-g%s", name, cur.dist, commit.Short()), nil
		}

		c, ok := commits[cur.hash]
		if !ok {
			continue
		}
		for _, parent := range c.Parents {
			if visited[parent] {
				continue
			}
			visited[parent] = true
			queue = append(queue, item{parent, cur.dist + 1})
		}
	}

	return "", nil
}
