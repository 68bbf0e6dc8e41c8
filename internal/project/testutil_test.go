package project

import (
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

// commitEmptyTree writes an empty-tree commit directly into a bare
// repository and points the default branch at it.
func commitEmptyTree(t *testing.T, repo *gogit.Repository) plumbing.Hash {
	t.Helper()

	treeObj := repo.Storer.NewEncodedObject()
	require.NoError(t, (&object.Tree{}).Encode(treeObj))
	treeHash, err := repo.Storer.SetEncodedObject(treeObj)
	require.NoError(t, err)

	sig := object.Signature{Name: "test", Email: "test@example.com", When: time.Now()}
	commit := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   "initial",
		TreeHash:  treeHash,
	}
	commitObj := repo.Storer.NewEncodedObject()
	require.NoError(t, commit.Encode(commitObj))
	commitHash, err := repo.Storer.SetEncodedObject(commitObj)
	require.NoError(t, err)

	ref := plumbing.NewHashReference(plumbing.Master, commitHash)
	require.NoError(t, repo.Storer.SetReference(ref))
	return commitHash
}
