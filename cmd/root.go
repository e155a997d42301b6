package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/convergerun/converge/pkg/common"
	"github.com/convergerun/converge/pkg/config"

	// Built-in task handlers register themselves on import.
	_ "github.com/convergerun/converge/pkg/handlers"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "converge",
	Short: "Declarative remote provisioning",
	Long: `converge reads a YAML playbook describing desired host state, builds an
execution plan, and walks each step through a probe/apply cycle over SSH or
locally. Steps that already match desired state are left untouched.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if logFormat != "" {
			cfg.Logging.Format = logFormat
		}
		common.SetLogLevel(cfg.Logging.Level)
		if err := common.SetLogFormat(cfg.Logging.Format); err != nil {
			return err
		}
		if cfg.Logging.File != "" {
			if err := common.SetLogFile(cfg.Logging.File); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (plain, json, yaml)")
}

// Execute runs the CLI.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("%w", err)
	}
	return nil
}
