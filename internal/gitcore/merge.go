package gitcore

import (
	"container/heap"
	"fmt"
)

// MergeBase finds the best common ancestor of two commits using a
// bidirectional BFS with date-ordered priority queues.
// Returns an error if no common ancestor exists.
func MergeBase(repo *Repository, ours, theirs Hash) (Hash, error) {
	repo.mu.RLock()
	defer repo.mu.RUnlock()

	cm := repo.commitsMap()

	oursCommit, ok := cm[ours]
	if !ok {
		return "", fmt.Errorf("commit not found: %s", ours)
	}
	theirsCommit, ok := cm[theirs]
	if !ok {
		return "", fmt.Errorf("commit not found: %s", theirs)
	}

	// Track which sides have visited each commit.
	// Bit 1 = ours, bit 2 = theirs.
	const sideOurs = 1
	const sideTheirs = 2

	visited := make(map[Hash]int)

	h := &commitHeap{}
	heap.Init(h)

	visited[ours] = sideOurs
	visited[theirs] |= sideTheirs

	heap.Push(h, oursCommit)
	if ours != theirs {
		heap.Push(h, theirsCommit)
	} else {
		return ours, nil
	}

	for h.Len() > 0 {
		c := heap.Pop(h).(*Commit) //nolint:errcheck

		side := visited[c.ID]
		if side == sideOurs|sideTheirs {
			return c.ID, nil
		}

		for _, parentHash := range c.Parents {
			prevSide := visited[parentHash]
			newSide := prevSide | side

			if newSide == sideOurs|sideTheirs {
				return parentHash, nil
			}

			if newSide != prevSide {
				visited[parentHash] = newSide
				if parent, found := cm[parentHash]; found {
					heap.Push(h, parent)
				}
			}
		}
	}

	return "", fmt.Errorf("no common ancestor between %s and %s", ours.Short(), theirs.Short())
}
