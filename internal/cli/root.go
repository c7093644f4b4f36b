// Package cli wires the ideaforge commands.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joelkehle/ideaforge/internal/config"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ideaforge",
	Short: "IdeaForge - startup idea validation",
	Long: `IdeaForge scores a startup idea against public market data.

It gathers market size, competitors, search interest and funding signals,
asks a configured language model for a structured report, and falls back
to a deterministic engine when no model is available.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ideaforge %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.ideaforge/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log.level)")
	rootCmd.AddCommand(versionCmd)
}

// newViper builds the config source, letting flags override file and env.
func newViper(cmd *cobra.Command) *viper.Viper {
	v := config.New(cfgFile)
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		v.Set("log.level", logLevel)
	}
	return v
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(newViper(cmd))
}
