package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidRepoFullName(t *testing.T) {
	valid := []string{
		"owner/repo",
		"octo-cat/hello-world",
		"a.b/c.d",
		"user_1/repo_2",
		"a/b",
	}
	for _, name := range valid {
		assert.True(t, ValidRepoFullName(name), name)
	}

	invalid := []string{
		"",
		"norepo",
		"owner/",
		"/repo",
		"owner/repo/extra",
		"owner repo/x",
		"owner/re po",
		"owner/repo\n",
		"own!er/repo",
	}
	for _, name := range invalid {
		assert.False(t, ValidRepoFullName(name), name)
	}
}

func TestDedupeRepoNames(t *testing.T) {
	assert.Equal(t,
		[]string{"a/b", "c/d", "e/f"},
		DedupeRepoNames([]string{"a/b", "c/d", "a/b", "e/f", "c/d"}),
		"order of first occurrence is preserved")

	assert.Empty(t, DedupeRepoNames(nil))
}

func TestProfileAnalysisRepos(t *testing.T) {
	a := &ProfileAnalysis{
		Repos: map[string]RepoInfo{
			"c/d": {},
			"a/b": {Description: "x"},
		},
	}

	assert.Equal(t, []string{"a/b", "c/d"}, a.KnownRepoNames())
	assert.True(t, a.HasRepo("a/b"))
	assert.False(t, a.HasRepo("x/y"))
}
