package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rshade/travelcarbon/internal/config"
	"github.com/rshade/travelcarbon/internal/emissions"
	"github.com/rshade/travelcarbon/internal/greenops"
	"github.com/rshade/travelcarbon/internal/store"
	"github.com/rshade/travelcarbon/internal/tim"
)

// newEmissionsCmd creates the emissions command group.
func newEmissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emissions",
		Short: "Compute and read flight emission estimates",
	}

	cmd.AddCommand(
		newComputeFlightCmd(),
		newComputeReportCmd(),
		newFlightEmissionsCmd(),
		newReportEmissionsCmd(),
		newReportFlightsCmd(),
		newContextCmd(),
	)
	return cmd
}

func newComputeFlightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compute-flight <flightId>",
		Short: "Estimate one flight and store the result",
		Long: `Calls the Travel Impact Model for one flight and upserts the estimate
under the flight ID and the model version that produced it. Running it again
with the same model version overwrites the previous estimate.`,
		Example: `  # Estimate a single flight
  travelcarbon emissions compute-flight 01J9Z8M2N3P4Q5R6S7T8V9W0X1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, true, func(ctx context.Context, svc *emissions.Service) error {
				res, err := svc.ComputeFlightEmissions(ctx, args[0])
				if err != nil {
					return err
				}
				return output(cmd, res, estimationPanel)
			})
		},
	}
}

func newComputeReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compute-report <reportId>",
		Short: "Estimate every flight on a report and store the summary",
		Long: `Estimates each flight on the report in turn and writes the combined summary
back onto the report. Flights the model cannot estimate are reported as
failures and left out of the totals; the run still succeeds.`,
		Example: `  # Recompute a report summary
  travelcarbon emissions compute-report 01J9Z8K5Q6V7W8X9Y0Z1A2B3C4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, true, func(ctx context.Context, svc *emissions.Service) error {
				run, err := svc.ComputeReportEmissions(ctx, args[0])
				if err != nil {
					return err
				}
				logger.Info().Ctx(ctx).
					Str("report_id", run.ReportID).
					Int("failed", len(run.Failures)).
					Int64("total_co2_grams", run.Summary.TotalCo2Grams).
					Msg(run.Message)
				return output(cmd, run, reportRunPanel)
			})
		},
	}
}

func newFlightEmissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flight <flightId>",
		Short: "Show the latest stored estimate of a flight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, false, func(ctx context.Context, svc *emissions.Service) error {
				fe, err := svc.GetFlightEmissions(ctx, args[0])
				if err != nil {
					return err
				}
				return output(cmd, fe, flightEmissionsPanel)
			})
		},
	}
}

func newReportEmissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <reportId>",
		Short: "Show the stored emissions summary of a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, false, func(ctx context.Context, svc *emissions.Service) error {
				re, err := svc.GetReportEmissions(ctx, args[0])
				if err != nil {
					return err
				}
				return output(cmd, re, reportEmissionsPanel)
			})
		},
	}
}

func newReportFlightsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report-flights <reportId>",
		Short: "List the stored estimates of every flight on a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, false, func(ctx context.Context, svc *emissions.Service) error {
				rf, err := svc.GetReportFlightEmissions(ctx, args[0])
				if err != nil {
					return err
				}
				return output(cmd, rf, reportFlightsPanel)
			})
		},
	}
}

// narrativeOutput is the JSON shape of the context command.
type narrativeOutput struct {
	ReportID string                      `json:"reportId"`
	Context  *emissions.NarrativeContext `json:"emissionsContext"`
	Text     string                      `json:"text"`
}

func newContextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "context <reportId>",
		Short: "Print the emissions sentence used in report narratives",
		Long: `Prints the sentence a report narrative embeds about emissions. It uses the
stored report summary, or the newest flight estimate when no summary has been
computed yet. Reports without any figures get a fixed "no data" sentence.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, false, func(ctx context.Context, svc *emissions.Service) error {
				nc, err := svc.NarrativeContext(ctx, args[0])
				if err != nil && !errors.Is(err, emissions.ErrSummaryNotComputed) {
					return err
				}

				out := narrativeOutput{ReportID: args[0], Context: nc, Text: narrativeText(nc)}
				if outputFormat() == config.FormatJSON {
					return renderJSON(cmd.OutOrStdout(), out)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), out.Text)
				return err
			})
		},
	}
}

func narrativeText(nc *emissions.NarrativeContext) string {
	if nc == nil {
		return greenops.NoEmissionsText
	}
	return greenops.DescribeEmissions(nc.Co2TotalGrams, nc.Co2GramsPerPax, nc.ModelVersion)
}

// withService opens the configured store, builds the emissions service, and
// runs fn. needModel requires a TIM API key.
func withService(
	cmd *cobra.Command,
	needModel bool,
	fn func(ctx context.Context, svc *emissions.Service) error,
) error {
	ctx := cmd.Context()
	cfg := config.GetGlobalConfig()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := backend.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.Warn().Ctx(ctx).Err(closeErr).Msg("closing store")
		}
	}()

	var model emissions.ModelClient
	if needModel {
		client, clientErr := newModelClient(cfg)
		if clientErr != nil {
			return clientErr
		}
		model = client
	}

	return fn(ctx, emissions.NewService(model, backend))
}

func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	backend, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}
	return backend, nil
}

func newModelClient(cfg *config.Config) (*tim.Client, error) {
	client, err := tim.NewClient(cfg.TIM.APIKey,
		tim.WithBaseURL(cfg.TIM.BaseURL),
		tim.WithTimeout(cfg.TIM.Timeout),
		tim.WithMinInterval(cfg.TIM.MinInterval),
	)
	if err != nil {
		if errors.Is(err, tim.ErrMissingAPIKey) {
			return nil, fmt.Errorf("%w: set %s or tim.api_key in the config file: %w",
				emissions.ErrConfiguration, config.EnvTIMAPIKey, err)
		}
		return nil, fmt.Errorf("%w: %w", emissions.ErrConfiguration, err)
	}
	return client, nil
}

// outputFormat returns the effective output format.
func outputFormat() string {
	return config.GetGlobalConfig().Output.DefaultFormat
}

// output writes v as JSON or as the panel built by toPanel.
func output[T any](cmd *cobra.Command, v T, toPanel func(T) panel) error {
	if outputFormat() == config.FormatJSON {
		return renderJSON(cmd.OutOrStdout(), v)
	}
	return renderPanel(cmd.OutOrStdout(), toPanel(v))
}
