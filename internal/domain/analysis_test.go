package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTechAnalysisRecompute(t *testing.T) {
	ta := &TechAnalysis{
		UserID: "u1",
		Repos: map[string]RepoTechStats{
			"a/b": {
				Libs: map[string]StatsUnit{"gin": {Insertions: 10, Deletions: 2}},
				Tech: map[string]StatsUnit{"go": {Insertions: 100, Deletions: 20}},
				Tags: map[string]StatsUnit{"web": {Insertions: 5}},
			},
			"c/d": {
				Libs: map[string]StatsUnit{"gin": {Insertions: 1, Deletions: 1}},
				Tech: map[string]StatsUnit{"go": {Insertions: 50, Deletions: 5}, "sql": {Insertions: 9}},
				Tags: map[string]StatsUnit{},
			},
		},
	}

	ta.Recompute()

	assert.Equal(t, StatsUnit{Insertions: 11, Deletions: 3}, ta.Aggregated.Libs["gin"])
	assert.Equal(t, StatsUnit{Insertions: 150, Deletions: 25}, ta.Aggregated.Tech["go"])
	assert.Equal(t, StatsUnit{Insertions: 9}, ta.Aggregated.Tech["sql"])
	assert.Equal(t, StatsUnit{Insertions: 5}, ta.Aggregated.Tags["web"])
}

func TestTechAnalysisRecompute_DropsStaleAggregate(t *testing.T) {
	ta := &TechAnalysis{
		Repos: map[string]RepoTechStats{
			"a/b": {Libs: map[string]StatsUnit{"gin": {Insertions: 1}}},
		},
		Aggregated: RepoTechStats{
			Libs: map[string]StatsUnit{"stale": {Insertions: 99}},
		},
	}

	ta.Recompute()

	assert.NotContains(t, ta.Aggregated.Libs, "stale")
	assert.Equal(t, StatsUnit{Insertions: 1}, ta.Aggregated.Libs["gin"])
}

func TestStatusRecordInProgress(t *testing.T) {
	assert.True(t, (&StatusRecord{Status: StatusInProgress}).InProgress())
	assert.False(t, (&StatusRecord{Status: StatusIdle}).InProgress())
}
