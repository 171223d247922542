package cli

import (
	"github.com/spf13/cobra"

	"github.com/rshade/travelcarbon/internal/config"
	"github.com/rshade/travelcarbon/internal/store"
)

// newDataCmd creates the data command group.
func newDataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage the reports and flights in the store",
	}
	cmd.AddCommand(newDataImportCmd())
	return cmd
}

func newDataImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import reports and flights from a YAML file",
		Long: `Loads reports and their flights from a YAML file into the configured store.
Records with an id replace the stored record of the same id; records without
one get a new ID. Stored emission summaries are kept.`,
		Example: `  # Import a trip file
  travelcarbon data import trips.yaml

  # Import into MongoDB
  TRAVELCARBON_STORE_BACKEND=mongo TRAVELCARBON_MONGO_URI=mongodb://localhost:27017 \
    travelcarbon data import trips.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := store.LoadDataset(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			backend, err := openBackend(ctx, config.GetGlobalConfig())
			if err != nil {
				return err
			}
			defer func() { _ = backend.Close(ctx) }()

			res, err := backend.Import(ctx, ds)
			if err != nil {
				return err
			}
			logger.Info().Ctx(ctx).
				Int("reports", res.Reports).
				Int("flights", res.Flights).
				Msg("dataset imported")

			return output(cmd, res, func(r *store.ImportResult) panel { return importPanel(args[0], r) })
		},
	}
}
