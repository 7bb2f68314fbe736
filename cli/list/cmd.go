package list

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/thin-edge/tedge-image-prune/cli/prune"
	"github.com/thin-edge/tedge-image-prune/pkg/app"
	"github.com/thin-edge/tedge-image-prune/pkg/cli"
	"github.com/thin-edge/tedge-image-prune/pkg/prompt"
)

func NewListCommand(cliContext cli.Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List images grouped by repository",
		Long:  `List the images of each repository, showing which images would be kept and which would be removed`,
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Executing", "cmd", cmd.CalledAs(), "args", args)
			stdout := cmd.OutOrStdout()

			limit, err := prune.ReadLimit(cliContext, prompt.NewPrompter(cmd.InOrStdin(), stdout))
			if err != nil {
				return err
			}

			client, err := prune.NewImageClient(cliContext.GetClientOptions())
			if err != nil {
				return err
			}

			summary := app.NewApp(client, nil, stdout, app.Config{DryRun: true}).List(cmd.Context(), limit)
			slog.Info("Listed images.", "repositories", summary.Repositories, "candidates", summary.Candidates)
			return nil
		},
	}
}
