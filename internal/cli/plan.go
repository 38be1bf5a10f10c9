package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/refinery-cli/refinery/internal/config"
	"github.com/refinery-cli/refinery/internal/git"
	"github.com/refinery-cli/refinery/internal/model"
	"github.com/refinery-cli/refinery/internal/pipeline"
	"github.com/refinery-cli/refinery/internal/ui"
)

// planStage is the JSON shape of one planned stage.
type planStage struct {
	Order     int      `json:"order"`
	Name      string   `json:"name"`
	Needs     []string `json:"needs,omitempty"`
	When      string   `json:"when"`
	Commands  []string `json:"commands"`
	Container string   `json:"container,omitempty"`
}

// NewPlanCommand creates the "plan" command, which resolves and prints
// the stage execution order without running anything.
func NewPlanCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the resolved stage execution order",
		Long: `Plan loads the pipeline file, resolves the dependency graph, and
prints the stages in the order "run" would execute them. Nothing is
executed; use this to verify a pipeline file before running it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the pipeline file (default: auto-detect)")

	return cmd
}

func runPlan(configPath string) error {
	cfg, err := loadPipelineFile(configPath)
	if err != nil {
		return err
	}

	plan, err := pipeline.Resolve(cfg)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "failed to resolve stage order", err)
	}

	stages := make([]planStage, 0, len(plan.Ordered))
	for i, s := range plan.Ordered {
		ps := planStage{
			Order:    i + 1,
			Name:     s.Name,
			Needs:    s.Needs,
			When:     s.When,
			Commands: s.Run,
		}
		if ps.When == "" {
			ps.When = config.WhenAlways
		}
		if c := cfg.StageContainer(s); c != nil {
			ps.Container = c.Image
		}
		stages = append(stages, ps)
	}

	if IsJSONOutput() {
		data, err := json.MarshalIndent(stages, "", "  ")
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to serialize plan", err)
		}
		fmt.Println(string(data))
		return nil
	}

	t := ui.NewTable(os.Stdout, "#", "STAGE", "WHEN", "NEEDS", "COMMANDS")
	for _, ps := range stages {
		needs := strings.Join(ps.Needs, ", ")
		if needs == "" {
			needs = "-"
		}
		t.Row(ps.Order, ps.Name, ps.When, needs, len(ps.Commands))
	}
	return t.Flush()
}

// loadPipelineFile resolves the pipeline file path (explicit flag, or
// auto-detection from the repository root) and loads it. Shared by the
// commands that read the file without running stages.
func loadPipelineFile(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, "failed to determine working directory", err)
	}

	// Outside a repository fall back to the working directory, so plan
	// works on a pipeline file in isolation.
	dir := cwd
	if root, err := git.New(cwd).Root(); err == nil {
		dir = root
	}

	path, err := config.Find(dir)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}
