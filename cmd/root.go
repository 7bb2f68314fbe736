/*
Copyright © 2024 thin-edge.io <info@thin-edge.io>
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/thin-edge/tedge-image-prune/cli/list"
	"github.com/thin-edge/tedge-image-prune/cli/prune"
	"github.com/thin-edge/tedge-image-prune/cli/remove"
	"github.com/thin-edge/tedge-image-prune/pkg/cli"
	"github.com/thin-edge/tedge-image-prune/pkg/container"
)

// Build data
var buildVersion string
var buildBranch string

var cliConfig = &cli.Cli{}

// rootCmd represents the base command when called without any subcommands
var rootCmd = NewRootCommand()

func NewRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tedge-image-prune",
		Short: "Remove old container images",
		Long: `Remove old container images, keeping only the most recent images of each repository.

The local images are grouped by repository and sorted by their creation date. The given
number of most recent images are kept, and the older images are removed once the removal
has been confirmed for the repository.`,
		Version:      fmt.Sprintf("%s (branch=%s)", buildVersion, buildBranch),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return SetLogLevel()
		},
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	args := os.Args
	name := filepath.Base(args[0])
	if name == "image-prune" {
		slog.Debug("Calling as the prune command.", "name", name, "args", args)
		rootCmd.SetArgs(append([]string{"prune"}, args[1:]...))
	} else {
		rootCmd.SetArgs(DefaultArgs(rootCmd, args[1:]))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// DefaultArgs routes invocations which do not name a subcommand, e.g. only flags,
// to the prune command. Help, version and unknown commands are left to cobra
func DefaultArgs(root *cobra.Command, args []string) []string {
	for _, arg := range args {
		switch arg {
		case "-h", "--help", "--version":
			return args
		}
	}
	cmd, _, err := root.Find(args)
	if err != nil || cmd != root {
		slog.Debug("Using subcommands.", "args", args)
		return args
	}
	return append([]string{"prune"}, args...)
}

func SetLogLevel() error {
	value := strings.ToLower(viper.GetString("log_level"))
	slog.Debug("Setting log level.", "new", value)
	switch value {
	case "info":
		slog.SetLogLoggerLevel(slog.LevelInfo)
	case "debug":
		slog.SetLogLoggerLevel(slog.LevelDebug)
	case "warn":
		slog.SetLogLoggerLevel(slog.LevelWarn)
	case "error":
		slog.SetLogLoggerLevel(slog.LevelError)
	default:
		return fmt.Errorf("invalid log level: %s", value)
	}
	return nil
}

// AddCommands registers the subcommands and the flags shared by them
func AddCommands(root *cobra.Command, cliContext *cli.Cli) {
	root.PersistentFlags().String("log-level", "warn", "Log level")
	root.PersistentFlags().StringVarP(&cliContext.ConfigFile, "config", "c", "", "Configuration file")
	root.PersistentFlags().String("keep", "", "Number of most recent images to keep per repository. Asked for if not set")
	root.PersistentFlags().String("engine", container.EngineAPI, "How to access the container engine: api or cli")
	root.PersistentFlags().String("binary", container.DefaultBinary, "Container engine command used by the cli engine, e.g. docker or podman")
	root.PersistentFlags().StringSlice("filter", []string{}, "Only include images matching the given references, e.g. 'myapp/*'")

	viper.SetDefault("log_level", "warn")
	viper.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("prune.keep", root.PersistentFlags().Lookup("keep"))
	viper.SetDefault("prune.engine", container.EngineAPI)
	viper.BindPFlag("prune.engine", root.PersistentFlags().Lookup("engine"))
	viper.SetDefault("prune.cli.binary", container.DefaultBinary)
	viper.BindPFlag("prune.cli.binary", root.PersistentFlags().Lookup("binary"))
	viper.BindPFlag("prune.filter.references", root.PersistentFlags().Lookup("filter"))

	root.AddCommand(
		prune.NewPruneCommand(*cliContext),
		list.NewListCommand(*cliContext),
		remove.NewRemoveCommand(*cliContext),
	)
}

func init() {
	cobra.OnInitialize(cliConfig.OnInit)
	AddCommands(rootCmd, cliConfig)
}
