package branch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EPICLab/synectic/internal/core/store"
	"github.com/EPICLab/synectic/internal/tests/helpers"
)

func TestMergeBranch_Conflict(t *testing.T) {
	m, s, _, repo := setup(t)
	ctx := context.Background()

	helpers.CommitFile(t, repo, "a.txt", "base\n", "base")
	helpers.CreateBranch(t, repo, "feature")
	helpers.CommitFile(t, repo, "a.txt", "main side\n", "main change")
	helpers.Checkout(t, repo, "feature")
	helpers.CommitFile(t, repo, "a.txt", "feature side\n", "feature change")
	helpers.Checkout(t, repo, "main")

	result, err := m.MergeBranch(ctx, repo, "main", "feature")
	require.NoError(t, err)
	assert.Equal(t, MergeFailing, result.Status)
	assert.Contains(t, result.Output, "CONFLICT")

	require.NotNil(t, result.Branch)
	assert.Equal(t, store.BranchUnmerged, result.Branch.Status)
	assert.Equal(t, &store.Merging{Base: "main", Compare: "feature"}, result.Branch.Merging)

	stored, ok := s.FindBranch(repo, "main", store.ScopeLocal)
	require.True(t, ok)
	assert.Equal(t, store.BranchUnmerged, stored.Status)

	// Resolve and continue
	helpers.WriteFile(t, repo, "a.txt", "resolved\n")
	helpers.RunGit(t, repo, "add", "a.txt")
	result, err = m.MergeBranchContinue(ctx, repo, "main")
	require.NoError(t, err)
	assert.Equal(t, MergePassing, result.Status)
	require.NotNil(t, result.Branch)
	assert.Equal(t, store.BranchClean, result.Branch.Status)
	assert.Nil(t, result.Branch.Merging)
}

func TestMergeBranch_Passing(t *testing.T) {
	m, _, _, repo := setup(t)
	ctx := context.Background()

	helpers.CreateBranch(t, repo, "feature")
	helpers.Checkout(t, repo, "feature")
	helpers.CommitFile(t, repo, "b.txt", "b\n", "add b")
	helpers.Checkout(t, repo, "main")

	result, err := m.MergeBranch(ctx, repo, "main", "feature")
	require.NoError(t, err)
	assert.Equal(t, MergePassing, result.Status)
	require.NotNil(t, result.Branch)
	assert.Equal(t, store.BranchClean, result.Branch.Status)
	assert.FileExists(t, repo+"/b.txt")
}

func TestMergeBranch_UnknownBase(t *testing.T) {
	m, _, _, repo := setup(t)
	result, err := m.MergeBranch(context.Background(), repo, "missing", "main")
	require.NoError(t, err)
	assert.Equal(t, MergeFailing, result.Status)
	assert.Contains(t, result.Output, "missing")
}
