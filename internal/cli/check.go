package cli

import (
	"github.com/spf13/cobra"
)

// NewCheckCommand creates the "check" command: run the stages and
// report what would change, without committing anything.
func NewCheckCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the pipeline without committing",
		Long: `Check executes the pipeline stages exactly like "run", but stops
after the diff gate. Changed files are listed in the summary (or the
JSON report) and left uncommitted in the worktree.

The exit code reflects the stages only: a hard stage failure exits
non-zero, a dirty or clean worktree exits zero.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd.Context(), flags, true)
		},
	}

	cmd.Flags().StringVarP(&flags.config, "config", "c", "", "Path to the pipeline file (default: auto-detect)")
	cmd.Flags().StringSliceVar(&flags.only, "only", nil, "Run only the named stages")
	cmd.Flags().StringSliceVar(&flags.skip, "skip", nil, "Skip the named stages")

	return cmd
}
