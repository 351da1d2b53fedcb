package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageOrdering(t *testing.T) {
	assert.True(t, StagePlanning.Before(StagePausedForApproval))
	assert.True(t, StagePausedForApproval.Before(StageResearching))
	assert.True(t, StageResearching.Before(StageDrafting))
	assert.True(t, StageDrafting.Before(StageRevising))
	assert.True(t, StageRevising.Before(StageDone))
	assert.False(t, StageDone.Before(StagePlanning))
	assert.False(t, StageDrafting.Before(StageDrafting))
}

func TestStageExecutable(t *testing.T) {
	tests := map[Stage]bool{
		StagePlanning:          false,
		StagePausedForApproval: true,
		StageResearching:       true,
		StageDrafting:          true,
		StageRevising:          true,
		StageDone:              false,
	}
	for stage, want := range tests {
		assert.Equal(t, want, stage.Executable(), "stage %s", stage)
	}
}

func TestParseStage(t *testing.T) {
	st, err := ParseStage("drafting")
	require.NoError(t, err)
	assert.Equal(t, StageDrafting, st)

	_, err = ParseStage("reviewing")
	require.Error(t, err)
}

func TestSessionCloneIsDeep(t *testing.T) {
	orig := Session{
		ID:           "s1",
		Plan:         []string{"a", "b"},
		ReasoningLog: []string{"one"},
		Findings: []Finding{
			{Index: 1, Query: "a", Outcome: FindingFound, Passages: []Passage{{Content: "x", Source: "d.pdf", Page: 1}}},
		},
	}
	cp := orig.Clone()
	cp.Plan[0] = "changed"
	cp.Log("two")
	cp.Findings[0].Passages[0].Content = "y"

	assert.Equal(t, "a", orig.Plan[0])
	assert.Len(t, orig.ReasoningLog, 1)
	assert.Equal(t, "x", orig.Findings[0].Passages[0].Content)
}

func TestValidateSessionID(t *testing.T) {
	require.NoError(t, ValidateSessionID("3f1c2a9e-8b7d-4c6e-9f00-1a2b3c4d5e6f"))
	require.NoError(t, ValidateSessionID("team:alpha.session_1"))
	require.Error(t, ValidateSessionID(""))
	require.Error(t, ValidateSessionID("has space"))
	require.Error(t, ValidateSessionID(strings.Repeat("a", MaxSessionIDLen+1)))
}

func TestValidateTask(t *testing.T) {
	require.NoError(t, ValidateTask("What is a hackathon?"))
	require.Error(t, ValidateTask(""))
	require.Error(t, ValidateTask(strings.Repeat("x", MaxTaskLen+1)))
	require.Error(t, ValidateTask(string([]byte{0xff, 0xfe})))
}

func TestPassageNormalize(t *testing.T) {
	p := Passage{Content: "c", Source: "  ", Page: -4}.Normalize()
	assert.Equal(t, UnknownSource, p.Source)
	assert.Equal(t, 0, p.Page)
	assert.Equal(t, "[Source: unknown, page: 0]", p.Citation())

	p = Passage{Content: "c", Source: "doc.pdf", Page: 3}.Normalize()
	assert.Equal(t, "[Source: doc.pdf, page: 3]", p.Citation())
}

func TestParsePage(t *testing.T) {
	assert.Equal(t, 3, ParsePage(3))
	assert.Equal(t, 7, ParsePage(int64(7)))
	assert.Equal(t, 2, ParsePage(2.0))
	assert.Equal(t, 12, ParsePage(" 12 "))
	assert.Equal(t, 0, ParsePage("twelve"))
	assert.Equal(t, 0, ParsePage(nil))
	assert.Equal(t, 0, ParsePage(-1))
}

func TestChunkIDIsStable(t *testing.T) {
	a := ChunkID("doc.pdf", 3, 0)
	assert.Equal(t, a, ChunkID("doc.pdf", 3, 0))
	assert.NotEqual(t, a, ChunkID("doc.pdf", 3, 1))
	assert.NotEqual(t, a, ChunkID("doc.pdf", 4, 0))
	assert.NotEqual(t, a, ChunkID("other.pdf", 3, 0))
}
