package remove

import (
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/thin-edge/tedge-image-prune/cli/prune"
	"github.com/thin-edge/tedge-image-prune/pkg/app"
	"github.com/thin-edge/tedge-image-prune/pkg/cli"
	"github.com/thin-edge/tedge-image-prune/pkg/container"
)

func NewRemoveCommand(cliContext cli.Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <REPOSITORY:TAG>...",
		Short: "Remove images",
		Long: `Remove images by their repository:tag reference.

Each image is removed on its own. A failure is reported and the remaining images are still removed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Executing", "cmd", cmd.CalledAs(), "args", args)
			client, err := prune.NewImageClient(cliContext.GetClientOptions())
			if err != nil {
				return err
			}

			application := app.NewApp(client, nil, cmd.OutOrStdout(), app.Config{})
			failed := 0
			for _, ref := range args {
				repository, tag := container.SplitReference(ref)
				if err := application.Delete(cmd.Context(), repository, tag); err != nil {
					failed++
				}
			}
			if failed > 0 {
				return errors.Errorf("failed to delete %d of %d images", failed, len(args))
			}
			return nil
		},
	}
}
