package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rshade/travelcarbon/internal/config"
	"github.com/rshade/travelcarbon/internal/logging"
)

// setupLogging configures logging from the global config and CLI flags, and
// attaches a trace-tagged logger to the command context. The returned closer
// releases the log file, if any.
func setupLogging(cmd *cobra.Command) io.Closer {
	loggingCfg := config.GetGlobalConfig().Logging

	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		loggingCfg.Level = "debug"
		loggingCfg.Format = "console"
		loggingCfg.File = ""
	}

	// Ensure log directory exists after all overrides have been applied.
	if loggingCfg.File != "" {
		if err := config.EnsureLogDir(); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not create log directory: %v\n", err)
		}
	}

	base, closer := logging.NewLogger(loggingCfg.ToLoggingConfig())
	if err := config.InitLogger(loggingCfg.Level, false); err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not initialize logger: %v\n", err)
	}

	ctx := cmd.Context()
	traceID := logging.GetOrGenerateTraceID(ctx)
	ctx = logging.ContextWithTraceID(ctx, traceID)
	base = base.With().Str(logging.FieldTraceID, traceID).Logger()
	ctx = base.WithContext(ctx)
	cmd.SetContext(ctx)

	logger = logging.ComponentLogger(base, "cli")
	logger.Debug().Ctx(ctx).Str("command", cmd.CommandPath()).Msg("command started")

	return closer
}

// cleanupLogging closes the log file handles.
func cleanupLogging(closer io.Closer) error {
	config.CloseLogFile()
	if closer == nil {
		return nil
	}
	return closer.Close()
}
