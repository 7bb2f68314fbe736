package prune

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thin-edge/tedge-image-prune/pkg/app"
	"github.com/thin-edge/tedge-image-prune/pkg/cli"
	"github.com/thin-edge/tedge-image-prune/pkg/container"
	"github.com/thin-edge/tedge-image-prune/pkg/prompt"
)

var LimitQuestion = "Enter the limit of images to keep per repository: "

// Factory used to create the image client, replaced in tests
var NewImageClient = container.NewImageClient

// ReadLimit returns the configured keep limit, or asks for it if it was not configured
func ReadLimit(cliContext cli.Cli, p *prompt.Prompter) (int, error) {
	if cliContext.HasKeepLimit() {
		return prompt.ParseLimit(cliContext.GetKeepLimit())
	}
	return p.Limit(LimitQuestion)
}

func NewPruneCommand(cliContext cli.Cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old images of each repository",
		Long: `Group the local images by repository, keep the most recent images of each repository
and remove the older ones after confirmation.

The number of images to keep is read from --keep, or asked for interactively.
`,
		Args: cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Executing", "cmd", cmd.CalledAs(), "args", args)
			cliContext.PrintConfig()

			stdout := cmd.OutOrStdout()
			p := prompt.NewPrompter(cmd.InOrStdin(), stdout)
			p.AssumeYes = cliContext.ConfirmAll()

			limit, err := ReadLimit(cliContext, p)
			if err != nil {
				return err
			}

			client, err := NewImageClient(cliContext.GetClientOptions())
			if err != nil {
				return err
			}

			application := app.NewApp(client, p, stdout, app.Config{
				DryRun: cliContext.DryRun(),
			})
			summary := application.Run(cmd.Context(), limit)
			slog.Info("Finished pruning images.",
				"repositories", summary.Repositories,
				"kept", summary.Kept,
				"candidates", summary.Candidates,
				"deleted", summary.Deleted,
				"failed", summary.Failed,
			)
			return nil
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Delete without asking for confirmation")
	cmd.Flags().Bool("dry-run", false, "Only print the images which would be removed")

	viper.SetDefault("prune.confirm_all", false)
	viper.BindPFlag("prune.confirm_all", cmd.Flags().Lookup("yes"))
	viper.SetDefault("prune.dry_run", false)
	viper.BindPFlag("prune.dry_run", cmd.Flags().Lookup("dry-run"))

	return cmd
}
