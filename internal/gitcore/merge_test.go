package gitcore

import (
	"testing"
	"time"
)

// addCommit registers a commit in the repository's commit map and list.
func addCommit(repo *Repository, c *Commit) {
	repo.commits = append(repo.commits, c)
	repo.commitMap[c.ID] = c
}

// makeCommit creates a minimal Commit with the given hash, parents, tree, and a fixed timestamp offset.
func makeCommit(hash Hash, parents []Hash, tree Hash, minutesAgo int) *Commit {
	return &Commit{
		ID:      hash,
		Tree:    tree,
		Parents: parents,
		Author:  Signature{Name: "Test", Email: "test@test.com", When: time.Now().Add(-time.Duration(minutesAgo) * time.Minute)},
		Committer: Signature{Name: "Test", Email: "test@test.com", When: time.Now().Add(-time.Duration(minutesAgo) * time.Minute)},
		Message: "commit " + string(hash[:7]),
	}
}

// TestMergeBase_LinearHistory tests merge-base on a linear chain: A -> B -> C.
func TestMergeBase_LinearHistory(t *testing.T) {
	repo, _ := setupTestRepo(t)

	hashA := Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	hashB := Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	hashC := Hash("cccccccccccccccccccccccccccccccccccccccc")

	treeA := createTree(t, repo, []TreeEntry{})
	treeB := createTree(t, repo, []TreeEntry{})
	treeC := createTree(t, repo, []TreeEntry{})

	addCommit(repo, makeCommit(hashA, nil, treeA, 30))
	addCommit(repo, makeCommit(hashB, []Hash{hashA}, treeB, 20))
	addCommit(repo, makeCommit(hashC, []Hash{hashB}, treeC, 10))

	base, err := MergeBase(repo, hashB, hashC)
	if err != nil {
		t.Fatalf("MergeBase failed: %v", err)
	}
	if base != hashB {
		t.Errorf("MergeBase = %s, want %s", base, hashB)
	}
}

// TestMergeBase_DiamondHistory tests merge-base on a diamond:
//
//	A -> B -> D
//	A -> C -> D
//
// merge-base(B, C) should be A.
func TestMergeBase_DiamondHistory(t *testing.T) {
	repo, _ := setupTestRepo(t)

	hashA := Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	hashB := Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	hashC := Hash("cccccccccccccccccccccccccccccccccccccccc")

	tree := createTree(t, repo, []TreeEntry{})

	addCommit(repo, makeCommit(hashA, nil, tree, 30))
	addCommit(repo, makeCommit(hashB, []Hash{hashA}, tree, 20))
	addCommit(repo, makeCommit(hashC, []Hash{hashA}, tree, 10))

	base, err := MergeBase(repo, hashB, hashC)
	if err != nil {
		t.Fatalf("MergeBase failed: %v", err)
	}
	if base != hashA {
		t.Errorf("MergeBase = %s, want %s", base, hashA)
	}
}

// TestMergeBase_SameCommit tests that merge-base of a commit with itself is itself.
func TestMergeBase_SameCommit(t *testing.T) {
	repo, _ := setupTestRepo(t)

	hashA := Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tree := createTree(t, repo, []TreeEntry{})
	addCommit(repo, makeCommit(hashA, nil, tree, 10))

	base, err := MergeBase(repo, hashA, hashA)
	if err != nil {
		t.Fatalf("MergeBase failed: %v", err)
	}
	if base != hashA {
		t.Errorf("MergeBase = %s, want %s", base, hashA)
	}
}

// TestMergeBase_NoCommonAncestor tests that two disconnected commits return an error.
func TestMergeBase_NoCommonAncestor(t *testing.T) {
	repo, _ := setupTestRepo(t)

	hashA := Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	hashB := Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	treeA := createTree(t, repo, []TreeEntry{})
	treeB := createTree(t, repo, []TreeEntry{})

	addCommit(repo, makeCommit(hashA, nil, treeA, 20))
	addCommit(repo, makeCommit(hashB, nil, treeB, 10))

	_, err := MergeBase(repo, hashA, hashB)
	if err == nil {
		t.Fatal("expected error for no common ancestor, got nil")
	}
}
