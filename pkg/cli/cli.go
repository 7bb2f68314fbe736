package cli

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"github.com/thin-edge/tedge-image-prune/pkg/container"
	"github.com/thin-edge/tedge-image-prune/pkg/utils"
)

type Cli struct {
	ConfigFile string
}

func (c *Cli) OnInit() {
	if c.ConfigFile != "" {
		if !utils.PathExists(c.ConfigFile) {
			slog.Warn("Config file does not exist.", "path", c.ConfigFile)
		}
		// Use config file from the flag.
		viper.SetConfigFile(c.ConfigFile)
	} else {
		// Find home directory.
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		} else {
			slog.Debug("Could not find home directory.", "err", err)
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tedge-image-prune")
	}

	viper.SetEnvPrefix("IMAGE_PRUNE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		slog.Info("Using config file", "path", viper.ConfigFileUsed())
	}
}

func (c *Cli) GetString(key string) string {
	return viper.GetString(key)
}

func (c *Cli) GetBool(key string) bool {
	return viper.GetBool(key)
}

func (c *Cli) PrintConfig() {
	keys := viper.AllKeys()
	sort.Strings(keys)
	for _, key := range keys {
		slog.Debug("setting", "item", fmt.Sprintf("%s=%v", key, viper.Get(key)))
	}
}

// HasKeepLimit returns true if the number of images to keep was given
// via a flag, environment variable or config file
func (c *Cli) HasKeepLimit() bool {
	return viper.IsSet("prune.keep")
}

// GetKeepLimit returns the raw keep limit so that it can be validated by the caller
func (c *Cli) GetKeepLimit() string {
	return viper.GetString("prune.keep")
}

func (c *Cli) GetEngine() string {
	return viper.GetString("prune.engine")
}

func (c *Cli) GetBinary() string {
	v := viper.GetString("prune.cli.binary")
	if v == "" {
		return container.DefaultBinary
	}
	return v
}

func (c *Cli) ConfirmAll() bool {
	return viper.GetBool("prune.confirm_all")
}

func (c *Cli) DryRun() bool {
	return viper.GetBool("prune.dry_run")
}

func getExpandedStringSlice(key string) []string {
	v := viper.GetStringSlice(key)
	out := make([]string, 0, len(v))
	for _, item := range v {
		for _, value := range strings.Split(item, ",") {
			if value = strings.TrimSpace(value); value != "" {
				out = append(out, value)
			}
		}
	}
	return out
}

func (c *Cli) GetReferenceFilters() []string {
	return getExpandedStringSlice("prune.filter.references")
}

func (c *Cli) GetClientOptions() container.Options {
	return container.Options{
		Engine:     c.GetEngine(),
		Binary:     c.GetBinary(),
		References: c.GetReferenceFilters(),
	}
}
