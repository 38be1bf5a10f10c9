package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refinery-cli/refinery/internal/config"
)

func stageNames(stages []*config.Stage) []string {
	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Name)
	}
	return names
}

func TestResolveLinearChain(t *testing.T) {
	cfg := &config.Config{
		Version: config.CurrentVersion,
		Stages: []config.Stage{
			{Name: "setup", Run: []string{"true"}},
			{Name: "detect", Needs: []string{"setup"}, Run: []string{"true"}},
			{Name: "format", Needs: []string{"detect"}, Run: []string{"true"}},
			{Name: "optimize", Needs: []string{"format"}, Run: []string{"true"}},
		},
	}

	plan, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"setup", "detect", "format", "optimize"}, stageNames(plan.Ordered))

	// A linear chain has one stage per level.
	require.Len(t, plan.Levels, 4)
	for i, level := range plan.Levels {
		assert.Len(t, level, 1, "level %d", i)
	}
}

func TestResolveDeclarationOrderWithoutNeeds(t *testing.T) {
	cfg := &config.Config{
		Version: config.CurrentVersion,
		Stages: []config.Stage{
			{Name: "c", Run: []string{"true"}},
			{Name: "a", Run: []string{"true"}},
			{Name: "b", Run: []string{"true"}},
		},
	}

	plan, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, stageNames(plan.Ordered),
		"without needs, the file order is the execution order")

	// All independent stages share level 0.
	require.Len(t, plan.Levels, 1)
	assert.Len(t, plan.Levels[0], 3)
}

func TestResolveDiamond(t *testing.T) {
	cfg := &config.Config{
		Version: config.CurrentVersion,
		Stages: []config.Stage{
			{Name: "setup", Run: []string{"true"}},
			{Name: "lint", Needs: []string{"setup"}, Run: []string{"true"}},
			{Name: "typecheck", Needs: []string{"setup"}, Run: []string{"true"}},
			{Name: "report", Needs: []string{"lint", "typecheck"}, Run: []string{"true"}},
		},
	}

	plan, err := Resolve(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"setup", "lint", "typecheck", "report"}, stageNames(plan.Ordered))

	require.Len(t, plan.Levels, 3)
	assert.Equal(t, []string{"setup"}, stageNames(plan.Levels[0]))
	assert.Equal(t, []string{"lint", "typecheck"}, stageNames(plan.Levels[1]))
	assert.Equal(t, []string{"report"}, stageNames(plan.Levels[2]))
}

func TestResolveDetectsCycle(t *testing.T) {
	cfg := &config.Config{
		Version: config.CurrentVersion,
		Stages: []config.Stage{
			{Name: "a", Needs: []string{"b"}, Run: []string{"true"}},
			{Name: "b", Needs: []string{"a"}, Run: []string{"true"}},
		},
	}

	_, err := Resolve(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
}
