package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/refinery-cli/refinery/internal/config"
	"github.com/refinery-cli/refinery/internal/git"
	"github.com/refinery-cli/refinery/internal/model"
)

// NewInitCommand creates the "init" command, which writes a starter
// pipeline file mirroring the stock detect/format/optimize flow.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter pipeline file",
		Long: `Init writes refinery.yaml at the repository root with the stock
pipeline: virtualenv setup, an optimizer detection pass, the three
formatters, and an optimizer fix pass. Edit it to match your project.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing pipeline file")

	return cmd
}

func runInit(force bool) error {
	cwd, err := os.Getwd()
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to determine working directory", err)
	}

	// Prefer the repository root so the file lands next to .git, but an
	// un-initialized directory works too.
	dir := cwd
	if root, err := git.New(cwd).Root(); err == nil {
		dir = root
	}

	path := filepath.Join(dir, "refinery.yaml")
	if err := config.Write(path, config.Default(), force); err != nil {
		return err
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Review the stages, then try \"refinery plan\" and \"refinery check\".")
	return nil
}
