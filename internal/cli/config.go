package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joelkehle/ideaforge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect IdeaForge configuration",
	Long: `Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (IDEAFORGE_*, plus GOOGLE_GENERATIVE_AI_API_KEY,
   OPENAI_API_KEY, ANTHROPIC_API_KEY, AI_GATEWAY_API_KEY, NEWS_API_KEY)
3. Config file (~/.ideaforge/config.yaml or --config)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := newViper(cmd)
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Configuration file: %s\n\n", used)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "No configuration file found (defaults and environment only)\n\n")
		}
		data, err := yaml.Marshal(cfg.Masked())
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, err = out.Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
