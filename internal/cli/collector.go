package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/teracrafts/posthog-go/posthogtest"
	"github.com/teracrafts/posthog-go/types"
)

// CollectorOptions holds flags for the collector command.
type CollectorOptions struct {
	Addr  string
	Flags []string
}

// NewCollectorCommand creates the collector command.
func NewCollectorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CollectorOptions{}

	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Run a local collector",
		Long: `Run a local collector that accepts /batch and /decide requests.

Received events are listed at GET /admin/events and flags can be changed at
POST /admin/feature-flags while the collector runs.`,
		Example: `  posthog collector --addr 127.0.0.1:8000 --flag beta=true --flag checkout='"variant-b"'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags, err := parsePairs(opts.Flags)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --flag", err)
			}

			ln, err := net.Listen("tcp", opts.Addr)
			if err != nil {
				return WrapExitError(ExitCommandError, "listen failed", err)
			}

			c := posthogtest.NewCollector()
			c.SetFlags(flags, nil)

			logger := types.NewDefaultLoggerTo(cmd.ErrOrStderr(), rootOpts.Debug)
			cmd.Printf("collector listening on http://%s\n", ln.Addr())
			return serveCollector(cmd.Context(), ln, c, logger)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8000", "listen address")
	cmd.Flags().StringArrayVar(&opts.Flags, "flag", nil, "feature flag key=value to serve (repeatable)")

	return cmd
}

// serveCollector serves c on ln until ctx is done, then shuts down.
func serveCollector(ctx context.Context, ln net.Listener, c *posthogtest.Collector, logger types.Logger) error {
	srv := &http.Server{
		Handler:      c.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Collector started", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return WrapExitError(ExitFailure, "collector failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Collector shutting down", "events", len(c.Events()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
