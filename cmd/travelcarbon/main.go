// Command travelcarbon estimates flight emissions for travel reports.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rshade/travelcarbon/internal/cli"
	"github.com/rshade/travelcarbon/internal/config"
	"github.com/rshade/travelcarbon/internal/emissions"
	"github.com/rshade/travelcarbon/internal/store"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev" //nolint:gochecknoglobals // Set by the linker.

// Process exit codes.
const (
	exitOK            = 0
	exitError         = 1
	exitInvalidInput  = 2
	exitConfiguration = 3
	exitNotFound      = 4
	exitModelFailure  = 5
)

func run() error {
	root := cli.NewRootCmd(version)
	return root.Execute()
}

// exitCode maps an error from run onto the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, emissions.ErrConfiguration), errors.Is(err, config.ErrInvalidConfig):
		return exitConfiguration
	case errors.Is(err, emissions.ErrReportNotFound),
		errors.Is(err, emissions.ErrFlightNotFound),
		errors.Is(err, emissions.ErrEstimateNotFound),
		errors.Is(err, emissions.ErrSummaryNotComputed):
		return exitNotFound
	case errors.Is(err, emissions.ErrNoFlights),
		errors.Is(err, emissions.ErrInvalidFlight),
		errors.Is(err, store.ErrInvalidDataset):
		return exitInvalidInput
	case errors.Is(err, emissions.ErrEmissionModelUnavailable),
		errors.Is(err, emissions.ErrNoEmissionsData):
		return exitModelFailure
	default:
		return exitError
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
