package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rshade/travelcarbon/internal/config"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// NewRootCmd creates the root Cobra command for the travelcarbon CLI.
// It loads configuration, wires up logging and tracing, and registers the
// emissions, data, and config command groups.
func NewRootCmd(ver string) *cobra.Command {
	var logCloser io.Closer

	cmd := &cobra.Command{
		Use:           "travelcarbon",
		Short:         "Flight emission estimates for travel reports",
		Long:          "travelcarbon: Estimate and aggregate flight CO2 emissions with the Google Travel Impact Model",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd); err != nil {
				return err
			}
			logCloser = setupLogging(cmd)
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return cleanupLogging(logCloser)
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("config", "", "project config overlay merged over the global config")
	cmd.PersistentFlags().StringP("output", "o", "", "output format: table or json (default from config)")
	cmd.AddCommand(newEmissionsCmd(), newDataCmd(), newConfigCmd())

	return cmd
}

const rootCmdExample = `  # Load reports and flights into the local store
  travelcarbon data import trips.yaml

  # Estimate every flight on a report and store the summary
  travelcarbon emissions compute-report 01J9Z8K5Q6V7W8X9Y0Z1A2B3C4

  # Show the stored summary as JSON
  travelcarbon emissions report 01J9Z8K5Q6V7W8X9Y0Z1A2B3C4 --output json

  # Print the sentence used in trip narratives
  travelcarbon emissions context 01J9Z8K5Q6V7W8X9Y0Z1A2B3C4

  # Initialize configuration
  travelcarbon config init`

// loadConfig builds the effective configuration for this invocation and
// publishes it as the global config. A --config overlay replaces whole
// top-level sections; environment overrides still win over it.
func loadConfig(cmd *cobra.Command) error {
	cfg := config.New()

	overlay, _ := cmd.Flags().GetString("config")
	if overlay != "" {
		if err := config.ShallowMergeYAML(cfg, overlay); err != nil {
			return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
		}
		cfg.ApplyEnv(os.LookupEnv)
	}

	if cmd.Flags().Changed("output") {
		format, _ := cmd.Flags().GetString("output")
		switch format {
		case config.FormatTable, config.FormatJSON:
			cfg.Output.DefaultFormat = format
		default:
			return fmt.Errorf("%w: --output must be %q or %q, got %q",
				config.ErrInvalidConfig, config.FormatTable, config.FormatJSON, format)
		}
	}

	config.SetGlobalConfig(cfg)
	return nil
}
