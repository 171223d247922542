package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rshade/travelcarbon/internal/config"
)

// newConfigCmd creates the config command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage travelcarbon configuration",
	}
	cmd.AddCommand(NewConfigInitCmd(), NewConfigValidateCmd())
	return cmd
}

// NewConfigInitCmd creates the config init command, which writes the default
// configuration to $TRAVELCARBON_HOME/config.yaml.
func NewConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file with default values",
		Example: `  # Create the configuration file
  travelcarbon config init

  # Create configuration, overwriting existing
  travelcarbon config init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.New()

			if !force {
				if _, err := os.Stat(cfg.ConfigPath()); err == nil {
					return errors.New("configuration file already exists, use --force to overwrite")
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("cannot access config path %s: %w", cfg.ConfigPath(), err)
				}
			}

			// Keys picked up from the environment stay out of the file.
			cfg.TIM.APIKey = ""
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			cmd.Printf("Configuration initialized successfully\n")
			cmd.Printf("Configuration file: %s\n", cfg.ConfigPath())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration file")
	return cmd
}

// NewConfigValidateCmd creates the config validate command.
func NewConfigValidateCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective configuration",
		Long: `Validates the configuration after the config file, the --config overlay, and
environment overrides have been applied.`,
		Example: `  # Validate current configuration
  travelcarbon config validate

  # Validate and show the effective settings
  travelcarbon config validate --verbose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.GetGlobalConfig()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}

			cmd.Printf("Configuration is valid\n")
			if cfg.TIM.APIKey == "" {
				cmd.Printf("Note: no TIM API key set; compute commands will fail until %s is set\n",
					config.EnvTIMAPIKey)
			}
			if verbose {
				printVerboseDetails(cmd, cfg)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show the effective settings")
	return cmd
}

// printVerboseDetails prints the effective settings with the API key masked.
func printVerboseDetails(cmd *cobra.Command, cfg *config.Config) {
	cmd.Println()
	cmd.Println("Configuration details:")
	cmd.Printf("  Config file: %s\n", cfg.ConfigPath())
	cmd.Printf("  TIM base URL: %s\n", cfg.TIM.BaseURL)
	cmd.Printf("  TIM API key: %s\n", cfg.RedactedAPIKey())
	cmd.Printf("  TIM timeout: %s\n", cfg.TIM.Timeout)
	cmd.Printf("  Store backend: %s\n", cfg.Store.Backend)
	switch cfg.Store.Backend {
	case config.BackendMongo:
		cmd.Printf("  Mongo database: %s\n", cfg.Store.MongoDatabase)
	default:
		cmd.Printf("  Store path: %s\n", cfg.Store.Path)
	}
	cmd.Printf("  Output format: %s\n", cfg.Output.DefaultFormat)
	cmd.Printf("  Logging level: %s\n", cfg.Logging.Level)
	if cfg.Logging.File != "" {
		cmd.Printf("  Log file: %s\n", cfg.Logging.File)
	}
}
