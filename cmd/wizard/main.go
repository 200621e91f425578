// cmd/wizard/main.go
package main

import (
	"fmt"
	"os"

	"ethics-review/internal/common/config"
	"ethics-review/internal/common/logger"

	"github.com/spf13/cobra"
)

const programName = "ethics-wizard"

var globalFlags = struct {
	configFile string
	apiURL     string
	debug      bool
}{}

// loadConfig reads the config file named by --config, or the default
// configs/ lookup, and applies the --api override.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if globalFlags.configFile != "" {
		cfg, err = config.LoadFromFile(globalFlags.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if globalFlags.apiURL != "" {
		cfg.Wizard.APIBaseURL = globalFlags.apiURL
	}
	if err := cfg.Require(config.ComponentWizard); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger keeps stdout for progress output.
func newLogger(cfg *config.Config) logger.Logger {
	lc := cfg.Logging
	if globalFlags.debug {
		lc.Level = "debug"
	}
	if lc.Output == "" || lc.Output == "stdout" {
		lc.Output = "stderr"
	}
	lc.Format = "console"
	return logger.NewFromConfig(lc)
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Fill in and submit an ethics review application",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&globalFlags.configFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&globalFlags.apiURL, "api", "", "ethics review API base URL (overrides wizard.api_base_url)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(runCommand())
	rootCmd.AddCommand(statusCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
